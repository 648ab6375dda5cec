// Package pool defines the pool identity and the parameter/delta types exchanged between
// a pool manager and its hook.
package pool

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// Key identifies a pool: the two currencies (sorted), the fee tier in pips, the tick
// spacing, and the hook contract attached to it.
type Key struct {
	Currency0   common.Address `json:"currency0"`
	Currency1   common.Address `json:"currency1"`
	Fee         uint32         `json:"fee"` // hundredths of a bip
	TickSpacing int32          `json:"tickSpacing"`
	Hooks       common.Address `json:"hooks"`
}

// ID is the keccak256 digest of the ABI-style encoding of a Key.
type ID common.Hash

func (id ID) Hex() string    { return common.Hash(id).Hex() }
func (id ID) String() string { return id.Hex() }

// IDFromHex parses a 0x-prefixed 32-byte pool id.
func IDFromHex(s string) (ID, error) {
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return ID{}, fmt.Errorf("invalid pool id %q", s)
	}
	return ID(common.BytesToHash(b)), nil
}

// ID derives the pool id. Each field is left-padded to a 32-byte word.
func (k Key) ID() ID {
	h := sha3.NewLegacyKeccak256()
	h.Write(common.LeftPadBytes(k.Currency0.Bytes(), 32))
	h.Write(common.LeftPadBytes(k.Currency1.Bytes(), 32))

	var word [32]byte
	binary.BigEndian.PutUint32(word[28:], k.Fee)
	h.Write(word[:])

	word = [32]byte{}
	if k.TickSpacing < 0 {
		for i := range word {
			word[i] = 0xff
		}
	}
	binary.BigEndian.PutUint32(word[28:], uint32(k.TickSpacing))
	h.Write(word[:])

	h.Write(common.LeftPadBytes(k.Hooks.Bytes(), 32))

	var out ID
	copy(out[:], h.Sum(nil))
	return out
}

// Validate checks the structural rules of a key.
func (k Key) Validate() error {
	if k.Currency0 == k.Currency1 {
		return fmt.Errorf("identical currencies %s", k.Currency0.Hex())
	}
	if !currenciesSorted(k.Currency0, k.Currency1) {
		return fmt.Errorf("currencies not sorted: %s >= %s", k.Currency0.Hex(), k.Currency1.Hex())
	}
	if k.Fee > MaxFee {
		return fmt.Errorf("fee %d exceeds max %d", k.Fee, MaxFee)
	}
	if k.TickSpacing <= 0 {
		return fmt.Errorf("tick spacing must be positive, got %d", k.TickSpacing)
	}
	return nil
}

// MaxFee is 100% in pips.
const MaxFee = 1_000_000

func currenciesSorted(a, b common.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// SwapParams are the pool manager's swap inputs.
// AmountSpecified > 0 is exact-input, < 0 is exact-output.
// PriceLimit (WAD, token1 per token0) is optional: minimum price for zeroForOne,
// maximum price for oneForZero.
type SwapParams struct {
	ZeroForOne      bool
	AmountSpecified *big.Int
	PriceLimit      *uint256.Int
}

// ExactInput reports whether the caller fixed the input amount.
func (p SwapParams) ExactInput() bool { return p.AmountSpecified.Sign() > 0 }

// SpecifiedIsCurrency0 reports whether the specified leg is denominated in currency0.
func (p SwapParams) SpecifiedIsCurrency0() bool { return p.ZeroForOne == p.ExactInput() }

// ModifyLiquidityParams are the pool manager's liquidity inputs.
type ModifyLiquidityParams struct {
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int
	Salt           common.Hash
}

// BalanceDelta is a pair of currency flows from the swapper's point of view:
// negative = paid into the pool, positive = received from the pool.
type BalanceDelta struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// ZeroBalanceDelta returns a delta with both legs zero.
func ZeroBalanceDelta() BalanceDelta {
	return BalanceDelta{Amount0: new(big.Int), Amount1: new(big.Int)}
}

// NewBalanceDelta copies its inputs.
func NewBalanceDelta(a0, a1 *big.Int) BalanceDelta {
	return BalanceDelta{Amount0: new(big.Int).Set(a0), Amount1: new(big.Int).Set(a1)}
}

// Add returns the leg-wise sum.
func (d BalanceDelta) Add(o BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Add(orZero(d.Amount0), orZero(o.Amount0)),
		Amount1: new(big.Int).Add(orZero(d.Amount1), orZero(o.Amount1)),
	}
}

// IsZero reports whether both legs are zero.
func (d BalanceDelta) IsZero() bool {
	return orZero(d.Amount0).Sign() == 0 && orZero(d.Amount1).Sign() == 0
}

// Legs splits the delta into (specified, unspecified) according to the swap params.
func (d BalanceDelta) Legs(p SwapParams) (specified, unspecified *big.Int) {
	if p.SpecifiedIsCurrency0() {
		return orZero(d.Amount0), orZero(d.Amount1)
	}
	return orZero(d.Amount1), orZero(d.Amount0)
}

func (d BalanceDelta) String() string {
	return fmt.Sprintf("(%s, %s)", orZero(d.Amount0), orZero(d.Amount1))
}

// BeforeSwapDelta is the hook's share of a swap, expressed against the specified and
// unspecified legs. Specified carries the sign of AmountSpecified; Unspecified carries
// the opposite sign.
type BeforeSwapDelta struct {
	Specified   *big.Int
	Unspecified *big.Int
}

// ZeroBeforeSwapDelta returns an empty hook delta.
func ZeroBeforeSwapDelta() BeforeSwapDelta {
	return BeforeSwapDelta{Specified: new(big.Int), Unspecified: new(big.Int)}
}

// IsZero reports whether the hook took no part of the swap.
func (d BeforeSwapDelta) IsZero() bool {
	return orZero(d.Specified).Sign() == 0 && orZero(d.Unspecified).Sign() == 0
}

// ToBalanceDelta maps the hook delta onto currency legs using swapper-side signs:
// what the swapper pays for the matched part is negative, what it receives is positive.
func (d BeforeSwapDelta) ToBalanceDelta(p SwapParams) BalanceDelta {
	spec := new(big.Int).Abs(orZero(d.Specified))
	unspec := new(big.Int).Abs(orZero(d.Unspecified))
	// exact-input: specified is paid, unspecified is received; exact-output reversed
	if p.ExactInput() {
		spec.Neg(spec)
	} else {
		unspec.Neg(unspec)
	}
	if p.SpecifiedIsCurrency0() {
		return BalanceDelta{Amount0: spec, Amount1: unspec}
	}
	return BalanceDelta{Amount0: unspec, Amount1: spec}
}

func (d BeforeSwapDelta) String() string {
	return fmt.Sprintf("(specified=%s, unspecified=%s)", orZero(d.Specified), orZero(d.Unspecified))
}

func orZero(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}
