// Package payout sends the destination-chain transfer that settles an intent.
package payout

import (
	"context"
	"errors"

	"intentledger/internal/registry"
)

// ErrPermanent marks failures that retrying cannot fix, such as a malformed
// destination address.
var ErrPermanent = errors.New("payout: permanent failure")

// Client abstracts the destination-chain transfer.
type Client interface {
	Pay(ctx context.Context, ins Instruction) (Receipt, error)
}

// HealthChecker is implemented by clients backed by a remote node.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Instruction is one payout derived from an open intent.
type Instruction struct {
	IntentID    string
	DestChain   string
	DestAsset   string
	DestAddress string
	Amount      registry.Uint128
	Decimals    uint8
}

type Receipt struct {
	TxHash string
}

// FromIntent builds the payout instruction for an intent.
func FromIntent(in registry.PaymentIntent) Instruction {
	return Instruction{
		IntentID:    in.ID,
		DestChain:   in.DestChain,
		DestAsset:   in.DestAsset,
		DestAddress: in.DestAddress,
		Amount:      in.AmountAtomic,
		Decimals:    in.Decimals,
	}
}
