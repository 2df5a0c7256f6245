package restatehost

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentledger/internal/ledger"
	"intentledger/internal/registry"
)

func input(id, amount string) registry.IntentInput {
	return registry.IntentInput{
		ID:           id,
		PaymentID:    "pay-" + id,
		DestChain:    "ethereum-sepolia",
		DestAsset:    "ETH",
		DestAddress:  "0xBob",
		AmountAtomic: amount,
		Decimals:     18,
		CreatedAt:    "10",
	}
}

// roundTrip mimics Restate persisting state as JSON between invocations.
func roundTrip(t *testing.T, c *registry.Contract) *registry.Contract {
	t.Helper()
	raw, err := json.Marshal(c)
	require.NoError(t, err)
	var out *registry.Contract
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestInitializeOnce(t *testing.T) {
	c, err := initialize(nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", string(c.Owner))

	_, err = initialize(c, "bob")
	assert.ErrorIs(t, err, ledger.ErrAlreadyInitialized)

	_, err = initialize(nil, "")
	assert.ErrorIs(t, err, registry.ErrEmptyOwner)
}

func TestHandlersBeforeInitialize(t *testing.T) {
	_, err := createIntent(nil, CreateIntentRequest{Caller: "alice", Intent: input("i1", "1")})
	assert.ErrorIs(t, err, ledger.ErrNotInitialized)
	_, err = listOpen(nil)
	assert.ErrorIs(t, err, ledger.ErrNotInitialized)
	_, err = getIntent(nil, "i1")
	assert.ErrorIs(t, err, ledger.ErrNotInitialized)
}

func TestAliceScenarioAcrossInvocations(t *testing.T) {
	state, err := initialize(nil, "alice")
	require.NoError(t, err)
	state = roundTrip(t, state)

	state, err = createIntent(state, CreateIntentRequest{Caller: "alice", Intent: input("i1", "500")})
	require.NoError(t, err)
	state = roundTrip(t, state)

	rejected, err := createIntent(state, CreateIntentRequest{Caller: "bob", Intent: input("i2", "1")})
	assert.ErrorIs(t, err, registry.ErrUnauthorized)
	assert.Nil(t, rejected)

	open, err := listOpen(state)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "500", open[0].AmountAtomic.String())

	next, changed, err := markFulfilled(state, MarkFulfilledRequest{Caller: "alice", ID: "i1", PayoutTxHash: "0xHASH"})
	require.NoError(t, err)
	assert.True(t, changed)
	open, _ = listOpen(state)
	assert.Len(t, open, 1, "the loaded state is never mutated in place")
	state = roundTrip(t, next)

	open, err = listOpen(state)
	require.NoError(t, err)
	assert.Empty(t, open)

	resp, err := getIntent(state, "i1")
	require.NoError(t, err)
	require.NotNil(t, resp.Intent)
	assert.True(t, resp.Intent.Fulfilled)
	assert.Equal(t, "0xHASH", *resp.Intent.PayoutTxHash)

	resp, err = getIntent(state, "missing")
	require.NoError(t, err)
	assert.Nil(t, resp.Intent)
}

func TestMarkFulfilledRules(t *testing.T) {
	state, err := initialize(nil, "alice")
	require.NoError(t, err)
	state, err = createIntent(state, CreateIntentRequest{Caller: "alice", Intent: input("i1", "500")})
	require.NoError(t, err)

	_, _, err = markFulfilled(state, MarkFulfilledRequest{Caller: "bob", ID: "i1", PayoutTxHash: "0xEVIL"})
	assert.ErrorIs(t, err, registry.ErrUnauthorized)

	_, changed, err := markFulfilled(state, MarkFulfilledRequest{Caller: "alice", ID: "nope", PayoutTxHash: "0xHASH"})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTerminalKeepsCause(t *testing.T) {
	err := terminal(registry.ErrUnauthorized)
	require.Error(t, err)
	assert.Contains(t, err.Error(), registry.ErrUnauthorized.Error())
}
