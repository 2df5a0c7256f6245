package payout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FakeClient hashes the instruction to deterministically emulate payout
// transaction hashes in tests and local runs.
type FakeClient struct{}

func (FakeClient) Pay(_ context.Context, ins Instruction) (Receipt, error) {
	if ins.DestAddress == "" {
		return Receipt{}, fmt.Errorf("%w: missing destination address", ErrPermanent)
	}
	return Receipt{TxHash: fakeHash(ins.IntentID + ins.DestChain + ins.DestAddress + ins.Amount.String())}, nil
}

func fakeHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return "0x" + hex.EncodeToString(sum[:])
}
