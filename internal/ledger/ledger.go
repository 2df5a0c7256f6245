// Package ledger hosts a registry.Contract: it loads the contract state
// before each call, runs the call alone, and saves the result only when the
// call succeeds. A failed call leaves the persisted state untouched.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"intentledger/internal/identity"
	"intentledger/internal/registry"
)

var (
	ErrNotInitialized     = errors.New("ledger: registry not initialized")
	ErrAlreadyInitialized = errors.New("ledger: registry already initialized")
)

// Store persists one registry and runs calls against it atomically.
type Store interface {
	// Initialize creates the empty registry owned by owner. It succeeds once.
	Initialize(ctx context.Context, owner identity.Identity) error
	// Update runs a mutating call. State changes are committed only when fn
	// returns nil.
	Update(ctx context.Context, fn func(*registry.Contract) error) error
	// View runs a read-only call. Nothing fn does is persisted.
	View(ctx context.Context, fn func(*registry.Contract) error) error
}

// RunOnCopy executes fn against a private copy of current so a failing call
// can be discarded wholesale. Hosts that keep the contract outside a Store
// use it to get the same commit rule.
func RunOnCopy(current *registry.Contract, fn func(*registry.Contract) error) (*registry.Contract, error) {
	if current == nil {
		return nil, ErrNotInitialized
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	return next, nil
}

func encodeIntents(c *registry.Contract) (string, error) {
	blob, err := json.Marshal(c.Intents)
	if err != nil {
		return "", fmt.Errorf("encode intents: %w", err)
	}
	return string(blob), nil
}

func decodeContract(owner string, intents []byte) (*registry.Contract, error) {
	c := &registry.Contract{Owner: identity.Identity(owner)}
	if err := json.Unmarshal(intents, &c.Intents); err != nil {
		return nil, fmt.Errorf("decode intents: %w", err)
	}
	return c, nil
}
