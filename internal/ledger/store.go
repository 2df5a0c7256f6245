package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"intentledger/internal/identity"
	"intentledger/internal/registry"
)

// MemoryStore keeps the registry in process. Mostly for testing.
type MemoryStore struct {
	mu       sync.Mutex
	contract *registry.Contract
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Initialize(_ context.Context, owner identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contract != nil {
		return ErrAlreadyInitialized
	}
	c, err := registry.New(owner)
	if err != nil {
		return err
	}
	m.contract = c
	return nil
}

func (m *MemoryStore) Update(_ context.Context, fn func(*registry.Contract) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := RunOnCopy(m.contract, fn)
	if err != nil {
		return err
	}
	m.contract = next
	return nil
}

func (m *MemoryStore) View(_ context.Context, fn func(*registry.Contract) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := RunOnCopy(m.contract, fn)
	return err
}

// FileStore persists the registry as one JSON document. Writes go to a
// temporary file that replaces the old one, so a crash never leaves a
// half-written state behind.
type FileStore struct {
	path     string
	mu       sync.Mutex
	contract *registry.Contract
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	var c registry.Contract
	if err := json.Unmarshal(blob, &c); err != nil {
		return err
	}
	f.contract = &c
	return nil
}

func (f *FileStore) persist(c *registry.Contract) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileStore) Initialize(_ context.Context, owner identity.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contract != nil {
		return ErrAlreadyInitialized
	}
	c, err := registry.New(owner)
	if err != nil {
		return err
	}
	if err := f.persist(c); err != nil {
		return err
	}
	f.contract = c
	return nil
}

func (f *FileStore) Update(_ context.Context, fn func(*registry.Contract) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, err := RunOnCopy(f.contract, fn)
	if err != nil {
		return err
	}
	if err := f.persist(next); err != nil {
		return err
	}
	f.contract = next
	return nil
}

func (f *FileStore) View(_ context.Context, fn func(*registry.Contract) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := RunOnCopy(f.contract, fn)
	return err
}
