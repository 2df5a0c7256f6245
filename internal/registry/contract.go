// Package registry implements the payment intent lifecycle: an owner-gated
// append-only list of intents that solvers poll and the owner closes out.
//
// A Contract is plain state. It takes no locks and persists nothing; the
// host that owns it must serialize calls and commit a call's mutations only
// when the call returns without error.
package registry

import (
	"errors"

	"intentledger/internal/identity"
)

var ErrEmptyOwner = errors.New("registry: owner identity is required")

// Contract is the full registry state: the owner and every intent ever
// created.
type Contract struct {
	Owner   identity.Identity `json:"owner"`
	Intents IntentStore       `json:"intents"`
}

// New initializes an empty registry owned by owner. The owner cannot be
// changed afterwards.
func New(owner identity.Identity) (*Contract, error) {
	if owner == identity.Anonymous {
		return nil, ErrEmptyOwner
	}
	return &Contract{Owner: owner}, nil
}

// CreateIntent appends a new intent. Only the owner may call it. Numeric
// text that does not parse is stored as zero.
func (c *Contract) CreateIntent(caller identity.Identity, in IntentInput) error {
	if err := Authorize(caller, c.Owner); err != nil {
		return err
	}
	c.Intents.Append(Decode(in))
	return nil
}

// MarkFulfilled closes out the first intent with id. Only the owner may call
// it. An unknown id is not an error; the returned flag reports whether an
// intent was updated.
func (c *Contract) MarkFulfilled(caller identity.Identity, id, payoutTxHash string) (bool, error) {
	if err := Authorize(caller, c.Owner); err != nil {
		return false, err
	}
	return c.Intents.TransitionToFulfilled(id, payoutTxHash), nil
}

func (c *Contract) ListOpenIntents() []PaymentIntent {
	return NewQueryEngine(&c.Intents).ListOpenIntents()
}

func (c *Contract) GetIntent(id string) (PaymentIntent, bool) {
	return NewQueryEngine(&c.Intents).GetIntent(id)
}

// Clone returns a deep copy, used by hosts that commit copy-on-write.
func (c *Contract) Clone() *Contract {
	return &Contract{
		Owner:   c.Owner,
		Intents: c.Intents.clone(),
	}
}
