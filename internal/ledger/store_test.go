package ledger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentledger/internal/identity"
	"intentledger/internal/registry"
)

const owner identity.Identity = "alice"

func intentInput(id string) registry.IntentInput {
	return registry.IntentInput{
		ID:           id,
		PaymentID:    "pay-" + id,
		DestChain:    "ethereum-sepolia",
		DestAsset:    "ETH",
		DestAddress:  "0xBob",
		AmountAtomic: "500",
		Decimals:     18,
		CreatedAt:    "10",
	}
}

func backends() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) Store {
			fs, err := NewFileStore(filepath.Join(t.TempDir(), "registry.json"))
			require.NoError(t, err)
			return fs
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "registry.db"), "test")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func countIntents(t *testing.T, s Store) int {
	t.Helper()
	var n int
	require.NoError(t, s.View(context.Background(), func(c *registry.Contract) error {
		n = c.Intents.Len()
		return nil
	}))
	return n
}

func TestStoreLifecycle(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			err := store.View(ctx, func(*registry.Contract) error { return nil })
			require.ErrorIs(t, err, ErrNotInitialized)

			require.NoError(t, store.Initialize(ctx, owner))
			require.ErrorIs(t, store.Initialize(ctx, "bob"), ErrAlreadyInitialized)

			require.NoError(t, store.Update(ctx, func(c *registry.Contract) error {
				return c.CreateIntent(owner, intentInput("i1"))
			}))

			var openIntents []registry.PaymentIntent
			require.NoError(t, store.View(ctx, func(c *registry.Contract) error {
				openIntents = c.ListOpenIntents()
				return nil
			}))
			require.Len(t, openIntents, 1)
			assert.Equal(t, "i1", openIntents[0].ID)
			assert.Equal(t, "500", openIntents[0].AmountAtomic.String())

			require.NoError(t, store.Update(ctx, func(c *registry.Contract) error {
				_, err := c.MarkFulfilled(owner, "i1", "0xHASH")
				return err
			}))

			require.NoError(t, store.View(ctx, func(c *registry.Contract) error {
				assert.Empty(t, c.ListOpenIntents())
				got, ok := c.GetIntent("i1")
				require.True(t, ok)
				assert.True(t, got.Fulfilled)
				assert.Equal(t, "0xHASH", *got.PayoutTxHash)
				assert.Equal(t, owner, c.Owner)
				return nil
			}))
		})
	}
}

func TestStoreDiscardsFailedCall(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			require.NoError(t, store.Initialize(ctx, owner))
			require.NoError(t, store.Update(ctx, func(c *registry.Contract) error {
				return c.CreateIntent(owner, intentInput("i1"))
			}))

			err := store.Update(ctx, func(c *registry.Contract) error {
				if _, err := c.MarkFulfilled(owner, "i1", "0xHASH"); err != nil {
					return err
				}
				return c.CreateIntent("mallory", intentInput("i2"))
			})
			require.ErrorIs(t, err, registry.ErrUnauthorized)

			assert.Equal(t, 1, countIntents(t, store))
			require.NoError(t, store.View(ctx, func(c *registry.Contract) error {
				got, _ := c.GetIntent("i1")
				assert.False(t, got.Fulfilled)
				return nil
			}))
		})
	}
}

func TestViewDoesNotPersist(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			require.NoError(t, store.Initialize(ctx, owner))

			require.NoError(t, store.View(ctx, func(c *registry.Contract) error {
				return c.CreateIntent(owner, intentInput("sneaky"))
			}))
			assert.Zero(t, countIntents(t, store))
		})
	}
}

func TestStoreSerializesConcurrentCalls(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			require.NoError(t, store.Initialize(ctx, owner))

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, store.Update(ctx, func(c *registry.Contract) error {
						return c.CreateIntent(owner, intentInput("same-id"))
					}))
				}()
			}
			wg.Wait()
			assert.Equal(t, 20, countIntents(t, store))
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "registry.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(ctx, owner))
	require.NoError(t, store.Update(ctx, func(c *registry.Contract) error {
		return c.CreateIntent(owner, intentInput("i1"))
	}))

	_, err = os.Stat(path)
	require.NoError(t, err, "expected file on disk")

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, 1, countIntents(t, reopened))
	require.ErrorIs(t, reopened.Initialize(ctx, owner), ErrAlreadyInitialized)
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()

	store, err := OpenSQLiteStore(path, "")
	require.NoError(t, err)
	require.NoError(t, store.Initialize(ctx, owner))
	require.NoError(t, store.Update(ctx, func(c *registry.Contract) error {
		return c.CreateIntent(owner, intentInput("i1"))
	}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path, "")
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Ping(ctx))
	assert.Equal(t, 1, countIntents(t, reopened))
}

func TestInitializeRejectsAnonymousOwner(t *testing.T) {
	err := NewMemoryStore().Initialize(context.Background(), identity.Anonymous)
	assert.ErrorIs(t, err, registry.ErrEmptyOwner)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, closeFn, err := Open(context.Background(), Options{Backend: "etcd"})
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}

func TestPostgresStoreLifecycle(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	name := "test-" + time.Now().Format("20060102150405.000000000")
	store, err := NewPostgresStore(ctx, dsn, name)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Initialize(ctx, owner))
	require.ErrorIs(t, store.Initialize(ctx, owner), ErrAlreadyInitialized)
	require.NoError(t, store.Update(ctx, func(c *registry.Contract) error {
		return c.CreateIntent(owner, intentInput("i1"))
	}))
	err = store.Update(ctx, func(c *registry.Contract) error {
		return c.CreateIntent("mallory", intentInput("i2"))
	})
	require.ErrorIs(t, err, registry.ErrUnauthorized)
	assert.Equal(t, 1, countIntents(t, store))
}
