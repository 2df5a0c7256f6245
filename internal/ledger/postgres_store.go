package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"intentledger/internal/identity"
	"intentledger/internal/registry"
)

// PostgresStore keeps the registry in a single row. Each Update locks that
// row for the length of its transaction, which serializes writers across
// processes.
type PostgresStore struct {
	pool *pgxpool.Pool
	name string
}

const createStateTableSQL = `
CREATE TABLE IF NOT EXISTS registry_state (
    name TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    intents JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table
// exists. name selects the registry row, so several registries can share a
// database.
func NewPostgresStore(ctx context.Context, dsn, name string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	if name == "" {
		name = "default"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createStateTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, name: name}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Initialize(ctx context.Context, owner identity.Identity) error {
	c, err := registry.New(owner)
	if err != nil {
		return err
	}
	intents, err := encodeIntents(c)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
INSERT INTO registry_state (name, owner, intents)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (name) DO NOTHING
`, p.name, string(c.Owner), intents)
	if err != nil {
		return fmt.Errorf("initialize registry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyInitialized
	}
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, fn func(*registry.Contract) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := p.load(ctx, tx, "FOR UPDATE")
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
	if _, err := tx.Exec(ctx, `
UPDATE registry_state
SET intents = $2::jsonb, updated_at = now()
WHERE name = $1
`, p.name, intents); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *PostgresStore) View(ctx context.Context, fn func(*registry.Contract) error) error {
	current, err := p.load(ctx, p.pool, "")
	if err != nil {
		return err
	}
	_, err = RunOnCopy(current, fn)
	return err
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *PostgresStore) load(ctx context.Context, q rowQuerier, lock string) (*registry.Contract, error) {
	row := q.QueryRow(ctx, `
SELECT owner, intents::text
FROM registry_state
WHERE name = $1
`+lock, p.name)

	var (
		owner   string
		intents string
	)
	if err := row.Scan(&owner, &intents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return decodeContract(owner, []byte(intents))
}
