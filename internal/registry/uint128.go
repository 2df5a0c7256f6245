package registry

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Uint128 is an unsigned 128-bit integer. It is carried on the wire as a
// decimal string so that number-based JSON decoders do not lose precision.
type Uint128 struct {
	v uint256.Int
}

// MaxUint128 is 2^128 - 1.
var MaxUint128 = func() Uint128 {
	var u Uint128
	u.v.SetAllOne()
	u.v.Rsh(&u.v, 128)
	return u
}()

// NewUint128 returns x as a Uint128.
func NewUint128(x uint64) Uint128 {
	var u Uint128
	u.v.SetUint64(x)
	return u
}

// ParseUint128 decodes base-10 text. An optional single leading '+' is
// accepted; anything else that is not a digit, an empty string, or a value
// above MaxUint128 is rejected.
func ParseUint128(s string) (Uint128, error) {
	digits := strings.TrimPrefix(s, "+")
	if digits == "" {
		return Uint128{}, fmt.Errorf("parse uint128 %q: empty", s)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Uint128{}, fmt.Errorf("parse uint128 %q: invalid digit", s)
		}
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return Uint128{}, nil
	}
	n, err := uint256.FromDecimal(digits)
	if err != nil {
		return Uint128{}, fmt.Errorf("parse uint128 %q: %w", s, err)
	}
	if n.BitLen() > 128 {
		return Uint128{}, fmt.Errorf("parse uint128 %q: overflow", s)
	}
	return Uint128{v: *n}, nil
}

func (u Uint128) String() string {
	return u.v.Dec()
}

// Big returns u as a new big.Int.
func (u Uint128) Big() *big.Int {
	return u.v.ToBig()
}

func (u Uint128) IsZero() bool {
	return u.v.IsZero()
}

func (u Uint128) Equal(other Uint128) bool {
	return u.v.Eq(&other.v)
}

func (u Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON is strict: persisted state and responses must round-trip
// exactly, unlike caller input which goes through ParseAmountAtomic.
func (u *Uint128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("uint128 must be a decimal string: %w", err)
	}
	parsed, err := ParseUint128(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
