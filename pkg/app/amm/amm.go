// Package amm models the pool's own pricing at its interface boundary. The hook
// never prices anything itself; the pool manager asks a Pricer to fill whatever
// the book left over.
package amm

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

var (
	ErrUnknownPool      = errors.New("amm: pool not initialized")
	ErrPoolExists       = errors.New("amm: pool already initialized")
	ErrPriceLimit       = errors.New("amm: price outside swap limit")
	ErrInsufficientLiq  = errors.New("amm: insufficient liquidity")
	ErrInvalidLiquidity = errors.New("amm: invalid liquidity delta")
	ErrFeeOutOfRange    = errors.New("amm: fee out of range")
	ErrZeroPoolPrice    = errors.New("amm: pool price must be positive")
)

// feeDenominator is 100% in pips.
const feeDenominator = 1_000_000

// Pricer is the pool's AMM leg.
type Pricer interface {
	Initialize(key pool.Key, price *uint256.Int) error
	// Forget drops a pool whose initialization was aborted.
	Forget(key pool.Key)
	// Swap prices remaining units of the specified currency and returns the
	// swapper-side delta. feePips is the LP fee to charge.
	Swap(key pool.Key, params pool.SwapParams, remaining *uint256.Int, feePips uint32) (pool.BalanceDelta, error)
	ModifyLiquidity(key pool.Key, params pool.ModifyLiquidityParams) (pool.BalanceDelta, error)
}

type fixedPool struct {
	price     *uint256.Int
	liquidity *big.Int
}

// FixedPrice quotes every swap at the pool's initialization price with unlimited
// depth. It exists for devnets and tests.
type FixedPrice struct {
	mu    sync.Mutex
	pools map[pool.ID]*fixedPool
}

func NewFixedPrice() *FixedPrice {
	return &FixedPrice{pools: make(map[pool.ID]*fixedPool)}
}

var _ Pricer = (*FixedPrice)(nil)

func (f *FixedPrice) Initialize(key pool.Key, price *uint256.Int) error {
	if price == nil || price.IsZero() {
		return ErrZeroPoolPrice
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := key.ID()
	if _, ok := f.pools[id]; ok {
		return fmt.Errorf("%w: %s", ErrPoolExists, id.Hex())
	}
	f.pools[id] = &fixedPool{price: price.Clone(), liquidity: new(big.Int)}
	return nil
}

func (f *FixedPrice) Forget(key pool.Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pools, key.ID())
}

// Price returns the pool's quote price.
func (f *FixedPrice) Price(id pool.ID) (*uint256.Int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[id]
	if !ok {
		return nil, false
	}
	return p.price.Clone(), true
}

func (f *FixedPrice) get(key pool.Key) (*fixedPool, error) {
	p, ok := f.pools[key.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, key.ID().Hex())
	}
	return p, nil
}

func (f *FixedPrice) Swap(key pool.Key, params pool.SwapParams, remaining *uint256.Int, feePips uint32) (pool.BalanceDelta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.get(key)
	if err != nil {
		return pool.BalanceDelta{}, err
	}
	if remaining == nil || remaining.IsZero() {
		return pool.ZeroBalanceDelta(), nil
	}
	if feePips >= feeDenominator {
		return pool.BalanceDelta{}, fmt.Errorf("%w: %d", ErrFeeOutOfRange, feePips)
	}
	if lim := params.PriceLimit; lim != nil && !lim.IsZero() {
		if params.ZeroForOne && p.price.Lt(lim) || !params.ZeroForOne && p.price.Gt(lim) {
			return pool.BalanceDelta{}, fmt.Errorf("%w: price %s limit %s", ErrPriceLimit, p.price.Dec(), lim.Dec())
		}
	}

	other, err := quote(p.price, params, remaining, feePips)
	if err != nil {
		return pool.BalanceDelta{}, err
	}

	// the specified leg carries the amount's sign, the other leg the opposite one
	spec := remaining.ToBig()
	unspec := other.ToBig()
	if params.ExactInput() {
		spec.Neg(spec)
	} else {
		unspec.Neg(unspec)
	}
	if params.SpecifiedIsCurrency0() {
		return pool.BalanceDelta{Amount0: spec, Amount1: unspec}, nil
	}
	return pool.BalanceDelta{Amount0: unspec, Amount1: spec}, nil
}

// quote converts the specified amount into the unspecified currency. Exact-input
// outputs round down after the fee is taken from the input; exact-output inputs
// round up and are grossed up by the fee.
func quote(price *uint256.Int, params pool.SwapParams, amount *uint256.Int, feePips uint32) (*uint256.Int, error) {
	wad := fixed.WAD
	keep := uint256.NewInt(feeDenominator - uint64(feePips))
	denom := uint256.NewInt(feeDenominator)

	if params.ExactInput() {
		net, err := fixed.MulDivDown(amount, keep, denom)
		if err != nil {
			return nil, err
		}
		if params.ZeroForOne {
			return fixed.MulDivDown(net, price, wad)
		}
		return fixed.MulDivDown(net, wad, price)
	}

	var cost *uint256.Int
	var err error
	if params.ZeroForOne {
		// buying currency1, paying currency0
		cost, err = fixed.MulDivUp(amount, wad, price)
	} else {
		cost, err = fixed.MulDivUp(amount, price, wad)
	}
	if err != nil {
		return nil, err
	}
	return fixed.MulDivUp(cost, denom, keep)
}

// ModifyLiquidity books a position change at the fixed price: one unit of
// liquidity is one unit of currency0 plus its value in currency1.
func (f *FixedPrice) ModifyLiquidity(key pool.Key, params pool.ModifyLiquidityParams) (pool.BalanceDelta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.get(key)
	if err != nil {
		return pool.BalanceDelta{}, err
	}
	if params.LiquidityDelta == nil || params.LiquidityDelta.Sign() == 0 {
		return pool.BalanceDelta{}, ErrInvalidLiquidity
	}
	next := new(big.Int).Add(p.liquidity, params.LiquidityDelta)
	if next.Sign() < 0 {
		return pool.BalanceDelta{}, fmt.Errorf("%w: have %s, remove %s", ErrInsufficientLiq, p.liquidity, new(big.Int).Neg(params.LiquidityDelta))
	}

	l, err := fixed.FromBigAbs(params.LiquidityDelta)
	if err != nil {
		return pool.BalanceDelta{}, fmt.Errorf("%w: %v", ErrInvalidLiquidity, err)
	}
	var amount1 *uint256.Int
	if params.LiquidityDelta.Sign() > 0 {
		amount1, err = fixed.MulDivUp(l, p.price, fixed.WAD)
	} else {
		amount1, err = fixed.MulDivDown(l, p.price, fixed.WAD)
	}
	if err != nil {
		return pool.BalanceDelta{}, err
	}

	p.liquidity = next
	// adding pays into the pool, removing receives
	sign := -params.LiquidityDelta.Sign()
	return pool.BalanceDelta{Amount0: fixed.ToBig(l, sign), Amount1: fixed.ToBig(amount1, sign)}, nil
}

// Liquidity returns the pool's total liquidity.
func (f *FixedPrice) Liquidity(id pool.ID) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[id]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(p.liquidity)
}
