package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// BasisPoints is the denominator for fee and royalty rates.
const BasisPoints = 10_000

// Amount is a quantity of the settlement currency in its smallest unit.
type Amount = uint256.Int

// NewAmount returns v as an Amount.
func NewAmount(v uint64) Amount {
	return *uint256.NewInt(v)
}

// ParseAmount parses a base-10 amount string.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if err := a.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return a, nil
}

// AddAmount returns a+b or ErrAmountOverflow.
func AddAmount(a, b Amount) (Amount, error) {
	var z Amount
	if _, overflow := z.AddOverflow(&a, &b); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return z, nil
}

// SubAmount returns a-b or ErrAmountOverflow when b > a.
func SubAmount(a, b Amount) (Amount, error) {
	var z Amount
	if _, underflow := z.SubOverflow(&a, &b); underflow {
		return Amount{}, ErrAmountOverflow
	}
	return z, nil
}

// MulDiv returns a*m/d rounded down. The intermediate product is 512 bits wide
// so it never overflows; only a result above 2^256-1 does.
func MulDiv(a Amount, m, d uint64) (Amount, error) {
	if d == 0 {
		return Amount{}, fmt.Errorf("muldiv: zero divisor")
	}
	var z Amount
	mul, div := uint256.NewInt(m), uint256.NewInt(d)
	if _, overflow := z.MulDivOverflow(&a, mul, div); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return z, nil
}

// ApplyBps returns a*bps/10000.
func ApplyBps(a Amount, bps uint32) (Amount, error) {
	return MulDiv(a, uint64(bps), BasisPoints)
}

// TokenID identifies one token series within an asset contract.
type TokenID = uint256.Int

// NewTokenID returns v as a TokenID.
func NewTokenID(v uint64) TokenID {
	return *uint256.NewInt(v)
}
