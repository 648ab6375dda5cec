// Package fixed holds the WAD (1e18) fixed-point arithmetic used for prices and
// quantities. All values are unsigned 256-bit integers; signed balance deltas are
// carried as *big.Int at the pool boundary.
package fixed

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of a WAD value.
const Decimals = 18

var (
	// WAD is 1.0 in fixed-point units.
	WAD = uint256.NewInt(1_000_000_000_000_000_000)

	ErrOverflow  = errors.New("fixed-point overflow")
	ErrUnderflow = errors.New("fixed-point underflow")
	ErrDivByZero = errors.New("fixed-point division by zero")
)

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// FromUint64 returns v as a raw fixed-point integer (no scaling).
func FromUint64(v uint64) *uint256.Int { return uint256.NewInt(v) }

// Units returns whole * 1e18, e.g. Units(100) is the price 100.0.
func Units(whole uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(whole), WAD)
}

// MulDivDown computes floor(x*y/d) with a 512-bit intermediate.
func MulDivDown(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivUp computes ceil(x*y/d).
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDivDown(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	if z.Eq(maxUint256) {
		return nil, ErrOverflow
	}
	return z.AddUint64(z, 1), nil
}

var maxUint256 = new(uint256.Int).SetAllOne()

// Sub returns x-y or ErrUnderflow.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Min returns a copy of the smaller operand.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x.Clone()
	}
	return y.Clone()
}

// ToBig converts to a signed big integer carrying the given sign (-1, 0, 1).
func ToBig(x *uint256.Int, sign int) *big.Int {
	b := x.ToBig()
	if sign < 0 {
		b.Neg(b)
	}
	return b
}

// FromBigAbs returns |b| as a uint256, failing if it does not fit.
func FromBigAbs(b *big.Int) (*uint256.Int, error) {
	abs := new(big.Int).Abs(b)
	z, overflow := uint256.FromBig(abs)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// ToDecimal renders a WAD value as a decimal number (1e18 → "1").
func ToDecimal(x *uint256.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), -Decimals)
}

// FromDecimalString parses a human decimal ("1.5") into WAD units, truncating digits
// beyond 18 decimals.
func FromDecimalString(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse decimal %q: %w", s, ErrUnderflow)
	}
	raw := d.Shift(Decimals).Truncate(0).BigInt()
	z, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("parse decimal %q: %w", s, ErrOverflow)
	}
	return z, nil
}

// ParseRaw parses a base-10 integer string of raw fixed-point units.
func ParseRaw(s string) (*uint256.Int, error) {
	z, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse raw amount %q: %w", s, err)
	}
	return z, nil
}
