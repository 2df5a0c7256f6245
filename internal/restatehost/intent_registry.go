// Package restatehost runs the registry as a Restate virtual object. Restate
// executes exclusive handlers of one object key one at a time and journals
// state writes, so the object needs no locking of its own.
package restatehost

import (
	"errors"
	"fmt"

	restate "github.com/restatedev/sdk-go"

	"intentledger/internal/identity"
	"intentledger/internal/ledger"
	"intentledger/internal/registry"
)

const stateKeyContract = "contract"

// IntentRegistry is keyed by registry name; each key holds one contract.
type IntentRegistry struct{}

type InitializeRequest struct {
	Owner string `json:"owner"`
}

// CreateIntentRequest carries the caller authenticated by the ingress in
// front of Restate.
type CreateIntentRequest struct {
	Caller string               `json:"caller"`
	Intent registry.IntentInput `json:"intent"`
}

type MarkFulfilledRequest struct {
	Caller       string `json:"caller"`
	ID           string `json:"id"`
	PayoutTxHash string `json:"payout_tx_hash"`
}

type MutationResponse struct {
	Status   string `json:"status"`
	IntentID string `json:"intent_id,omitempty"`
}

type GetIntentResponse struct {
	Intent *registry.PaymentIntent `json:"intent"`
}

// ============================================
// Exclusive handlers
// ============================================

func (IntentRegistry) Initialize(ctx restate.ObjectContext, req InitializeRequest) (MutationResponse, error) {
	current, err := restate.Get[*registry.Contract](ctx, stateKeyContract)
	if err != nil {
		return MutationResponse{}, err
	}
	next, err := initialize(current, identity.Identity(req.Owner))
	if err != nil {
		return MutationResponse{}, terminal(err)
	}
	restate.Set(ctx, stateKeyContract, next)
	ctx.Log().Info("registry initialized", "registry", restate.Key(ctx), "owner", req.Owner)
	return MutationResponse{Status: "initialized"}, nil
}

func (IntentRegistry) CreateIntent(ctx restate.ObjectContext, req CreateIntentRequest) (MutationResponse, error) {
	current, err := restate.Get[*registry.Contract](ctx, stateKeyContract)
	if err != nil {
		return MutationResponse{}, err
	}
	next, err := createIntent(current, req)
	if err != nil {
		return MutationResponse{}, terminal(err)
	}
	restate.Set(ctx, stateKeyContract, next)
	ctx.Log().Info("intent created", "registry", restate.Key(ctx), "intentId", req.Intent.ID)
	return MutationResponse{Status: "created", IntentID: req.Intent.ID}, nil
}

func (IntentRegistry) MarkFulfilled(ctx restate.ObjectContext, req MarkFulfilledRequest) (MutationResponse, error) {
	current, err := restate.Get[*registry.Contract](ctx, stateKeyContract)
	if err != nil {
		return MutationResponse{}, err
	}
	next, changed, err := markFulfilled(current, req)
	if err != nil {
		return MutationResponse{}, terminal(err)
	}
	if !changed {
		return MutationResponse{Status: "noop", IntentID: req.ID}, nil
	}
	restate.Set(ctx, stateKeyContract, next)
	ctx.Log().Info("intent fulfilled", "registry", restate.Key(ctx), "intentId", req.ID, "payoutTxHash", req.PayoutTxHash)
	return MutationResponse{Status: "fulfilled", IntentID: req.ID}, nil
}

// ============================================
// Shared handlers (read-only, run concurrently)
// ============================================

func (IntentRegistry) ListOpenIntents(ctx restate.ObjectSharedContext, _ restate.Void) ([]registry.PaymentIntent, error) {
	current, err := restate.Get[*registry.Contract](ctx, stateKeyContract)
	if err != nil {
		return nil, err
	}
	open, err := listOpen(current)
	if err != nil {
		return nil, terminal(err)
	}
	return open, nil
}

func (IntentRegistry) GetIntent(ctx restate.ObjectSharedContext, id string) (GetIntentResponse, error) {
	current, err := restate.Get[*registry.Contract](ctx, stateKeyContract)
	if err != nil {
		return GetIntentResponse{}, err
	}
	resp, err := getIntent(current, id)
	if err != nil {
		return GetIntentResponse{}, terminal(err)
	}
	return resp, nil
}

// The functions below hold the handler logic apart from the Restate context.

func initialize(current *registry.Contract, owner identity.Identity) (*registry.Contract, error) {
	if current != nil {
		return nil, ledger.ErrAlreadyInitialized
	}
	return registry.New(owner)
}

func createIntent(current *registry.Contract, req CreateIntentRequest) (*registry.Contract, error) {
	return ledger.RunOnCopy(current, func(c *registry.Contract) error {
		return c.CreateIntent(identity.Identity(req.Caller), req.Intent)
	})
}

func markFulfilled(current *registry.Contract, req MarkFulfilledRequest) (*registry.Contract, bool, error) {
	var changed bool
	next, err := ledger.RunOnCopy(current, func(c *registry.Contract) error {
		var err error
		changed, err = c.MarkFulfilled(identity.Identity(req.Caller), req.ID, req.PayoutTxHash)
		return err
	})
	return next, changed, err
}

func listOpen(current *registry.Contract) ([]registry.PaymentIntent, error) {
	if current == nil {
		return nil, ledger.ErrNotInitialized
	}
	return current.ListOpenIntents(), nil
}

func getIntent(current *registry.Contract, id string) (GetIntentResponse, error) {
	if current == nil {
		return GetIntentResponse{}, ledger.ErrNotInitialized
	}
	var resp GetIntentResponse
	if intent, ok := current.GetIntent(id); ok {
		resp.Intent = &intent
	}
	return resp, nil
}

// terminal stops Restate from retrying errors that a retry cannot fix.
func terminal(err error) error {
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		return restate.TerminalError(err, 403)
	case errors.Is(err, registry.ErrEmptyOwner):
		return restate.TerminalError(err, 400)
	case errors.Is(err, ledger.ErrAlreadyInitialized):
		return restate.TerminalError(err, 409)
	case errors.Is(err, ledger.ErrNotInitialized):
		return restate.TerminalError(err, 412)
	}
	return fmt.Errorf("intent registry: %w", err)
}
