package registry

import (
	"strconv"
	"strings"
)

// ParseAmountAtomic decodes the textual amount. Malformed or out of range
// input becomes zero instead of failing the call, so a bad amount yields a
// zero-amount intent.
func ParseAmountAtomic(text string) Uint128 {
	amount, err := ParseUint128(text)
	if err != nil {
		return Uint128{}
	}
	return amount
}

// ParseCreatedAt decodes the textual millisecond timestamp with the same
// zero fallback as ParseAmountAtomic.
func ParseCreatedAt(text string) uint64 {
	ms, err := strconv.ParseUint(strings.TrimPrefix(text, "+"), 10, 64)
	if err != nil {
		return 0
	}
	return ms
}

// Decode converts caller input into a stored intent. Decimals, Fulfilled and
// PayoutTxHash are copied through without validation.
func Decode(in IntentInput) PaymentIntent {
	out := PaymentIntent{
		ID:            in.ID,
		PaymentID:     in.PaymentID,
		DestChain:     in.DestChain,
		DestAsset:     in.DestAsset,
		DestAddress:   in.DestAddress,
		AmountAtomic:  ParseAmountAtomic(in.AmountAtomic),
		Decimals:      in.Decimals,
		ZcashBurnTxID: in.ZcashBurnTxID,
		CreatedAt:     ParseCreatedAt(in.CreatedAt),
		Fulfilled:     in.Fulfilled,
	}
	if in.PayoutTxHash != nil {
		hash := *in.PayoutTxHash
		out.PayoutTxHash = &hash
	}
	return out
}
