package ledger

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend string // memory, file, sqlite or postgres
	Path    string // file and sqlite
	DSN     string // postgres
	Name    string // registry row name for the SQL backends
}

// Open builds the Store described by opts. The returned close function is
// never nil.
func Open(ctx context.Context, opts Options) (Store, func(), error) {
	noop := func() {}
	switch strings.ToLower(opts.Backend) {
	case "", "memory":
		return NewMemoryStore(), noop, nil
	case "file":
		fs, err := NewFileStore(opts.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("open file store: %w", err)
		}
		return fs, noop, nil
	case "sqlite":
		s, err := OpenSQLiteStore(opts.Path, opts.Name)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		p, err := NewPostgresStore(ctx, opts.DSN, opts.Name)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres store: %w", err)
		}
		return p, p.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown storage backend %q", opts.Backend)
}
