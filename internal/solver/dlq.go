package solver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"intentledger/internal/registry"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

type dlqEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Intent    registry.PaymentIntent `json:"intent"`
	Stage     string                 `json:"stage"`
	Error     string                 `json:"error"`
}

// writeDLQ records an intent the solver gave up on. Entries are one JSON
// file each so an operator can inspect and replay them by hand.
func (s *Solver) writeDLQ(intent registry.PaymentIntent, stage string, execErr error) {
	if s.dlqPath == "" {
		return
	}

	entry := dlqEntry{
		Timestamp: time.Now().UTC(),
		Intent:    intent,
		Stage:     stage,
		Error:     execErr.Error(),
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		s.log.Error("dlq marshal error: %v", err)
		return
	}

	if err := os.MkdirAll(s.dlqPath, 0o755); err != nil {
		s.log.Error("dlq mkdir error: %v", err)
		return
	}

	filename := fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), unsafeFileChars.ReplaceAllString(intent.ID, "_"))
	path := filepath.Join(s.dlqPath, filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		s.log.Error("dlq write error: %v", err)
	}
}

// DLQDepth reports how many entries the dead-letter directory holds.
func (s *Solver) DLQDepth() int {
	if s.dlqPath == "" {
		return 0
	}
	entries, err := os.ReadDir(s.dlqPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("dlq read error: %v", err)
		}
		return 0
	}
	return len(entries)
}
