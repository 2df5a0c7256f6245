package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"intentledger/internal/identity"
	"intentledger/internal/registry"
)

// SQLiteStore keeps the registry in a local SQLite database. SQLite allows
// one writer at a time, so calls are also serialized in process.
type SQLiteStore struct {
	db   *sql.DB
	name string
	mu   sync.Mutex
}

const createSQLiteStateTableSQL = `
CREATE TABLE IF NOT EXISTS registry_state (
    name TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    intents TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
`

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path, name string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if name == "" {
		name = "default"
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(createSQLiteStateTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, name: name}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Initialize(ctx context.Context, owner identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := registry.New(owner)
	if err != nil {
		return err
	}
	intents, err := encodeIntents(c)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO registry_state (name, owner, intents) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING`,
		s.name, string(c.Owner), intents)
	if err != nil {
		return fmt.Errorf("initialize registry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyInitialized
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(*registry.Contract) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.load(ctx, tx)
	if err != nil {
		return err
	}
	next, err := RunOnCopy(current, fn)
	if err != nil {
		return err
	}
	intents, err := encodeIntents(next)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE registry_state SET intents = ?, updated_at = strftime('%s','now') WHERE name = ?`,
		intents, s.name); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) View(ctx context.Context, fn func(*registry.Contract) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx, s.db)
	if err != nil {
		return err
	}
	_, err = RunOnCopy(current, fn)
	return err
}

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) load(ctx context.Context, q sqlQuerier) (*registry.Contract, error) {
	var owner, intents string
	err := q.QueryRowContext(ctx,
		`SELECT owner, intents FROM registry_state WHERE name = ?`, s.name,
	).Scan(&owner, &intents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return decodeContract(owner, []byte(intents))
}
