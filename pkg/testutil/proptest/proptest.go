// Package proptest provides bounded random inputs and tolerance checks for
// property tests of the order book, the matcher and the hook controller.
package proptest

import (
	"flag"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"pgregory.net/rapid"
)

// MinTrials is the minimum number of independent cases run per property.
const MinTrials = 100

var (
	MinPrice    = uint256.NewInt(1_000_000_000_000_000) // 0.001 in WAD
	MaxPrice    = wad(1000)
	MinQuantity = uint256.NewInt(10_000_000_000_000_000) // 0.01 in WAD
	MaxQuantity = wad(10_000)
)

func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

// Uint256Range draws values in [min, max]. The span must fit in 128 bits.
func Uint256Range(min, max *uint256.Int) *rapid.Generator[*uint256.Int] {
	if max.Lt(min) {
		panic(fmt.Sprintf("proptest: empty range [%s, %s]", min.Dec(), max.Dec()))
	}
	span := new(uint256.Int).Sub(max, min)
	if span.BitLen() > 128 {
		panic("proptest: range wider than 128 bits")
	}
	lo, hi := min.Clone(), max.Clone()
	return rapid.Custom(func(t *rapid.T) *uint256.Int {
		if span.IsUint64() {
			off := rapid.Uint64Range(0, span.Uint64()).Draw(t, "off")
			return new(uint256.Int).Add(lo, uint256.NewInt(off))
		}
		top := new(uint256.Int).Rsh(span, 64).Uint64()
		h := rapid.Uint64Range(0, top).Draw(t, "hi")
		l := rapid.Uint64().Draw(t, "lo")
		v := new(uint256.Int).Lsh(uint256.NewInt(h), 64)
		v.Or(v, uint256.NewInt(l))
		if v.Gt(span) {
			v.Mod(v, new(uint256.Int).AddUint64(span, 1))
		}
		v.Add(v, lo)
		if v.Gt(hi) {
			return hi.Clone()
		}
		return v
	})
}

// Price draws a WAD price in [MinPrice, MaxPrice].
func Price() *rapid.Generator[*uint256.Int] { return Uint256Range(MinPrice, MaxPrice) }

// Quantity draws an order or swap amount in [MinQuantity, MaxQuantity].
func Quantity() *rapid.Generator[*uint256.Int] { return Uint256Range(MinQuantity, MaxQuantity) }

// Address draws an arbitrary non-zero address.
func Address() *rapid.Generator[common.Address] {
	return rapid.Custom(func(t *rapid.T) common.Address {
		b := rapid.SliceOfN(rapid.Byte(), common.AddressLength, common.AddressLength).Draw(t, "addr")
		b[common.AddressLength-1] |= 1
		return common.BytesToAddress(b)
	})
}

// OneOf draws from a fixed set of addresses, so owners repeat across orders.
func OneOf(addrs ...common.Address) *rapid.Generator[common.Address] {
	return rapid.SampledFrom(addrs)
}

// ApproxEqual reports whether |a-b| <= tol.
func ApproxEqual(a, b, tol *uint256.Int) bool {
	var d uint256.Int
	if a.Lt(b) {
		d.Sub(b, a)
	} else {
		d.Sub(a, b)
	}
	return !d.Gt(tol)
}

// TB is the part of testing.TB and *rapid.T the assertions need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireApproxEqual fails t unless |got-want| <= tol.
func RequireApproxEqual(t TB, got, want, tol *uint256.Int, what string) {
	t.Helper()
	if !ApproxEqual(got, want, tol) {
		t.Fatalf("%s = %s, want %s ± %s", what, got.Dec(), want.Dec(), tol.Dec())
	}
}

// Check runs prop with rapid, raising the configured number of checks to
// MinTrials when it is lower, and fails t if fewer trials ran.
func Check(t *testing.T, prop func(*rapid.T)) {
	t.Helper()
	if f := flag.Lookup("rapid.checks"); f != nil {
		if n, err := strconv.Atoi(f.Value.String()); err == nil && n < MinTrials {
			if err := f.Value.Set(strconv.Itoa(MinTrials)); err != nil {
				t.Fatalf("set rapid.checks: %v", err)
			}
		}
	}
	var trials atomic.Int64
	rapid.Check(t, func(rt *rapid.T) {
		trials.Add(1)
		prop(rt)
	})
	if !t.Failed() && trials.Load() < MinTrials {
		t.Fatalf("ran %d trials, want at least %d", trials.Load(), MinTrials)
	}
}
