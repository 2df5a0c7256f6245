package registry

import (
	"errors"
	"fmt"

	"intentledger/internal/identity"
)

// ErrUnauthorized is returned when a mutating call comes from anyone but the
// owner.
var ErrUnauthorized = errors.New("registry: unauthorized")

// Authorize permits the call only when caller is the owner.
func Authorize(caller, owner identity.Identity) error {
	if caller != owner {
		return fmt.Errorf("%w: only the owner can call this method (caller: %s, owner: %s)",
			ErrUnauthorized, caller, owner)
	}
	return nil
}
