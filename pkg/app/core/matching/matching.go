// Package matching fills an incoming swap against a pool's resting orders.
//
// The loop follows price-time priority: the best opposite order is taken first,
// filled at its own posted price, and the loop stops when the request is satisfied,
// the opposite side is exhausted, the next price fails the request's limit, or the
// configured number of price levels has been consumed.
package matching

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

var (
	ErrZeroAmount      = errors.New("swap amount must be non-zero")
	ErrInvalidLevelCap = errors.New("level cap must be positive")
	ErrCrossedBook     = errors.New("book crossed after match")
	ErrConsume         = errors.New("consume failed during match")
)

// Request is a swap as seen by the book.
//
// ZeroForOne takers sell currency0 and match bids; the others buy currency0 and match
// asks. Amount is the absolute specified amount. PriceLimit (WAD, currency1 per
// currency0) is a minimum for ZeroForOne and a maximum otherwise; nil or zero means
// unbounded.
type Request struct {
	ZeroForOne bool
	ExactInput bool
	Amount     *uint256.Int
	PriceLimit *uint256.Int
}

// RequestFromSwap converts pool swap params.
func RequestFromSwap(p pool.SwapParams) (Request, error) {
	if p.AmountSpecified == nil || p.AmountSpecified.Sign() == 0 {
		return Request{}, ErrZeroAmount
	}
	amount, err := fixed.FromBigAbs(p.AmountSpecified)
	if err != nil {
		return Request{}, fmt.Errorf("amount specified: %w", err)
	}
	return Request{
		ZeroForOne: p.ZeroForOne,
		ExactInput: p.ExactInput(),
		Amount:     amount,
		PriceLimit: p.PriceLimit,
	}, nil
}

// MakerSide is the book side a request matches against.
func (r Request) MakerSide() orderbook.Side {
	if r.ZeroForOne {
		return orderbook.Buy
	}
	return orderbook.Sell
}

func (r Request) accepts(price *uint256.Int) bool {
	if r.PriceLimit == nil || r.PriceLimit.IsZero() {
		return true
	}
	if r.ZeroForOne {
		return !price.Lt(r.PriceLimit)
	}
	return !price.Gt(r.PriceLimit)
}

// Fill is one maker order's share of a match.
type Fill struct {
	OrderID     uint64
	Owner       common.Address
	Side        orderbook.Side
	Price       *uint256.Int
	Quantity    *uint256.Int // consumed from the order, maker-receive currency
	Specified   *uint256.Int // taker's specified leg covered by this fill
	Unspecified *uint256.Int
	Removed     bool
}

// Result summarizes a match.
type Result struct {
	Filled       *uint256.Int // order quantity consumed
	AveragePrice *uint256.Int // zero when nothing filled
	Remaining    *uint256.Int // specified amount left for the AMM
	Specified    *uint256.Int
	Unspecified  *uint256.Int
	Fills        []Fill
	Levels       int
}

func emptyResult(amount *uint256.Int) Result {
	return Result{
		Filled:       fixed.Zero(),
		AveragePrice: fixed.Zero(),
		Remaining:    amount.Clone(),
		Specified:    fixed.Zero(),
		Unspecified:  fixed.Zero(),
	}
}

// Matched reports whether the book took any part of the request.
func (r Result) Matched() bool { return !r.Specified.IsZero() }

// Delta expresses the matched portion as a hook delta for the given swap: the
// specified leg carries the sign of AmountSpecified, the unspecified leg the opposite.
func (r Result) Delta(p pool.SwapParams) pool.BeforeSwapDelta {
	sign := p.AmountSpecified.Sign()
	return pool.BeforeSwapDelta{
		Specified:   fixed.ToBig(r.Specified, sign),
		Unspecified: fixed.ToBig(r.Unspecified, -sign),
	}
}

// Match fills req against book, mutating the book only through Consume.
// maxLevels bounds the number of distinct price levels the call may touch.
func Match(book *orderbook.OrderBook, req Request, maxLevels int) (Result, error) {
	if req.Amount == nil || req.Amount.IsZero() {
		return Result{}, ErrZeroAmount
	}
	if maxLevels <= 0 {
		return Result{}, ErrInvalidLevelCap
	}

	res := emptyResult(req.Amount)
	side := req.MakerSide()
	notional := fixed.Zero()
	var lastPrice *uint256.Int

	for !res.Remaining.IsZero() {
		maker := book.Best(side)
		if maker == nil || !req.accepts(maker.Price) {
			break
		}
		if lastPrice == nil || !lastPrice.Eq(maker.Price) {
			if res.Levels == maxLevels {
				break
			}
			res.Levels++
			lastPrice = maker.Price.Clone()
		}

		qty, spec, unspec, err := fillAmounts(req, maker, res.Remaining)
		if err != nil {
			return Result{}, err
		}
		if qty.IsZero() || spec.IsZero() || unspec.IsZero() {
			break // dust: the remainder cannot be expressed at this price
		}

		f := Fill{
			OrderID:     maker.ID,
			Owner:       maker.Owner,
			Side:        maker.Side,
			Price:       maker.Price.Clone(),
			Quantity:    qty,
			Specified:   spec,
			Unspecified: unspec,
		}
		removed, err := book.Consume(maker.ID, qty)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrConsume, err)
		}
		f.Removed = removed

		if notional, err = accumulate(notional, qty, f.Price); err != nil {
			return Result{}, err
		}
		res.Filled.Add(res.Filled, qty)
		res.Specified.Add(res.Specified, spec)
		res.Unspecified.Add(res.Unspecified, unspec)
		res.Remaining.Sub(res.Remaining, spec)
		res.Fills = append(res.Fills, f)
	}

	if !res.Filled.IsZero() {
		res.AveragePrice = new(uint256.Int).Div(notional, res.Filled)
	}
	if book.Crossed() {
		return Result{}, ErrCrossedBook
	}
	return res, nil
}

// fillAmounts sizes one fill against maker given the remaining specified amount.
// Order quantity is in the currency the maker receives, which is what the taker pays:
// exact-input fills consume it one-for-one, exact-output fills convert through the
// maker's price and round in the maker's favour.
func fillAmounts(req Request, maker *orderbook.Order, rem *uint256.Int) (qty, spec, unspec *uint256.Int, err error) {
	p := maker.Price
	// taker output per unit of maker quantity
	out := func(q *uint256.Int) (*uint256.Int, error) {
		if req.ZeroForOne {
			return fixed.MulDivDown(q, p, fixed.WAD)
		}
		return fixed.MulDivDown(q, fixed.WAD, p)
	}

	if req.ExactInput {
		qty = fixed.Min(rem, maker.Remaining)
		unspec, err = out(qty)
		return qty, qty.Clone(), unspec, err
	}

	var maxQty *uint256.Int
	if req.ZeroForOne {
		maxQty, err = fixed.MulDivDown(rem, fixed.WAD, p)
	} else {
		maxQty, err = fixed.MulDivDown(rem, p, fixed.WAD)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	qty = fixed.Min(maxQty, maker.Remaining)
	spec, err = out(qty)
	return qty, spec, qty.Clone(), err
}

func accumulate(notional, qty, price *uint256.Int) (*uint256.Int, error) {
	n, overflow := new(uint256.Int).MulOverflow(qty, price)
	if overflow {
		return nil, fixed.ErrOverflow
	}
	return fixed.Add(notional, n)
}
