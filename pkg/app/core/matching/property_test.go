package matching

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
	"github.com/uhyunpark/bookhook/pkg/testutil/proptest"
)

var owners = []common.Address{
	common.HexToAddress("0x00000000000000000000000000000000000a11ce"),
	common.HexToAddress("0x0000000000000000000000000000000000000b0b"),
	common.HexToAddress("0x0000000000000000000000000000000000000ca7"),
}

// drawBook fills both sides of a fresh book without crossing: bids at or below a
// drawn split price, asks strictly above it.
func drawBook(t *rapid.T) *orderbook.OrderBook {
	split := proptest.Uint256Range(proptest.MinPrice, new(uint256.Int).SubUint64(proptest.MaxPrice, 1)).Draw(t, "split")
	bidPrice := proptest.Uint256Range(proptest.MinPrice, split)
	askPrice := proptest.Uint256Range(new(uint256.Int).AddUint64(split, 1), proptest.MaxPrice)

	ob := orderbook.NewOrderBook()
	n := rapid.IntRange(0, 12).Draw(t, "orders")
	for i := 0; i < n; i++ {
		side := rapid.SampledFrom([]orderbook.Side{orderbook.Buy, orderbook.Sell}).Draw(t, "side")
		price := askPrice
		if side == orderbook.Buy {
			price = bidPrice
		}
		o := &orderbook.Order{
			Owner:     proptest.OneOf(owners...).Draw(t, "owner"),
			Side:      side,
			Price:     price.Draw(t, "price"),
			Remaining: proptest.Quantity().Draw(t, "qty"),
		}
		if err := ob.Insert(o); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return ob
}

func drawRequest(t *rapid.T) Request {
	req := Request{
		ZeroForOne: rapid.Bool().Draw(t, "zeroForOne"),
		ExactInput: rapid.Bool().Draw(t, "exactInput"),
		Amount:     proptest.Quantity().Draw(t, "amount"),
	}
	if rapid.Bool().Draw(t, "limited") {
		req.PriceLimit = proptest.Price().Draw(t, "limit")
	}
	return req
}

func snapshot(ob *orderbook.OrderBook, s orderbook.Side) map[uint64]*orderbook.Order {
	out := map[uint64]*orderbook.Order{}
	for _, o := range ob.Orders(s) {
		out[o.ID] = o.Clone()
	}
	return out
}

func TestPropertyConservation(t *testing.T) {
	proptest.Check(t, func(t *rapid.T) {
		ob := drawBook(t)
		req := drawRequest(t)
		maxLevels := rapid.IntRange(1, 8).Draw(t, "maxLevels")

		makerBefore := snapshot(ob, req.MakerSide())
		totalBefore := ob.TotalQuantity(req.MakerSide())
		otherBefore := ob.TotalQuantity(req.MakerSide().Opposite())

		res, err := Match(ob, req, maxLevels)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}

		consumed := fixed.Zero()
		for _, f := range res.Fills {
			consumed.Add(consumed, f.Quantity)
			before := makerBefore[f.OrderID]
			after, ok := ob.Get(f.OrderID)
			if f.Removed {
				if ok {
					t.Fatalf("order %d reported removed but still rests", f.OrderID)
				}
				if !before.Remaining.Eq(f.Quantity) {
					t.Fatalf("order %d removed after consuming %s of %s", f.OrderID, f.Quantity.Dec(), before.Remaining.Dec())
				}
				continue
			}
			if !ok {
				t.Fatalf("partially filled order %d missing", f.OrderID)
			}
			if want := new(uint256.Int).Sub(before.Remaining, f.Quantity); !after.Remaining.Eq(want) {
				t.Fatalf("order %d remaining %s, want %s", f.OrderID, after.Remaining.Dec(), want.Dec())
			}
		}
		if !consumed.Eq(res.Filled) {
			t.Fatalf("fills sum %s, result filled %s", consumed.Dec(), res.Filled.Dec())
		}
		totalAfter := ob.TotalQuantity(req.MakerSide())
		if want := new(uint256.Int).Sub(totalBefore, consumed); !totalAfter.Eq(want) {
			t.Fatalf("maker side total %s, want %s", totalAfter.Dec(), want.Dec())
		}
		if !ob.TotalQuantity(req.MakerSide().Opposite()).Eq(otherBefore) {
			t.Fatalf("taker side of the book changed")
		}
		if res.Levels > maxLevels {
			t.Fatalf("touched %d levels, cap %d", res.Levels, maxLevels)
		}
	})
}

func TestPropertyNoCrossAfterMatch(t *testing.T) {
	proptest.Check(t, func(t *rapid.T) {
		ob := drawBook(t)
		for i, n := 0, rapid.IntRange(1, 4).Draw(t, "swaps"); i < n; i++ {
			if _, err := Match(ob, drawRequest(t), 32); err != nil {
				t.Fatalf("Match: %v", err)
			}
			if ob.Crossed() {
				t.Fatalf("book crossed after swap %d", i)
			}
			bid, ask := ob.BestBid(), ob.BestAsk()
			if bid != nil && ask != nil && !bid.Price.Lt(ask.Price) {
				t.Fatalf("best bid %s >= best ask %s", bid.Price.Dec(), ask.Price.Dec())
			}
		}
	})
}

func TestPropertyDeltaBoundAndSign(t *testing.T) {
	proptest.Check(t, func(t *rapid.T) {
		ob := drawBook(t)
		req := drawRequest(t)

		amount := req.Amount.ToBig()
		if !req.ExactInput {
			amount.Neg(amount)
		}
		params := pool.SwapParams{ZeroForOne: req.ZeroForOne, AmountSpecified: amount, PriceLimit: req.PriceLimit}
		parsed, err := RequestFromSwap(params)
		if err != nil {
			t.Fatalf("RequestFromSwap: %v", err)
		}

		res, err := Match(ob, parsed, 32)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		d := res.Delta(params)

		if new(big.Int).Abs(d.Specified).Cmp(new(big.Int).Abs(amount)) > 0 {
			t.Fatalf("|specified delta| %s exceeds |amount| %s", d.Specified, amount)
		}
		if d.Specified.Sign() != 0 && d.Specified.Sign() != amount.Sign() {
			t.Fatalf("specified delta %s has the wrong sign for amount %s", d.Specified, amount)
		}
		if d.Unspecified.Sign() != 0 && d.Unspecified.Sign() != -amount.Sign() {
			t.Fatalf("unspecified delta %s has the wrong sign for amount %s", d.Unspecified, amount)
		}
		if (d.Specified.Sign() == 0) != (d.Unspecified.Sign() == 0) {
			t.Fatalf("one-legged delta %s/%s", d.Specified, d.Unspecified)
		}
		if sum := new(uint256.Int).Add(res.Specified, res.Remaining); !sum.Eq(req.Amount) {
			t.Fatalf("specified %s + remaining %s != amount %s", res.Specified.Dec(), res.Remaining.Dec(), req.Amount.Dec())
		}
	})
}

// Every fill happens at the best price the book offered at that point, and an
// order at a level is only filled after the older orders at that level are gone.
func TestPropertyPriceTimePriority(t *testing.T) {
	proptest.Check(t, func(t *rapid.T) {
		ob := drawBook(t)
		req := drawRequest(t)
		before := snapshot(ob, req.MakerSide())

		res, err := Match(ob, req, 32)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		better := func(a, b *uint256.Int) bool {
			if req.ZeroForOne {
				return a.Gt(b)
			}
			return a.Lt(b)
		}

		for i, f := range res.Fills {
			if i > 0 && better(f.Price, res.Fills[i-1].Price) {
				t.Fatalf("fill %d at %s improves on earlier fill at %s", i, f.Price.Dec(), res.Fills[i-1].Price.Dec())
			}
			if i < len(res.Fills)-1 && !f.Removed && res.Fills[i+1].OrderID != f.OrderID {
				t.Fatalf("fill %d left order %d resting before filling order %d", i, f.OrderID, res.Fills[i+1].OrderID)
			}
			seq := before[f.OrderID].Seq
			for _, o := range ob.Orders(req.MakerSide()) {
				if better(o.Price, f.Price) && req.accepts(o.Price) {
					t.Fatalf("order %d at %s still rests after a fill at %s", o.ID, o.Price.Dec(), f.Price.Dec())
				}
				if o.Price.Eq(f.Price) && o.Seq < seq {
					t.Fatalf("order %d (seq %d) skipped for newer order %d (seq %d)", o.ID, o.Seq, f.OrderID, seq)
				}
			}
		}

		if len(res.Fills) > 0 {
			// exact-input unspecified legs round down once per fill
			if req.ExactInput && len(res.Fills) == 1 {
				f := res.Fills[0]
				var want *uint256.Int
				if req.ZeroForOne {
					want, _ = fixed.MulDivDown(f.Specified, f.Price, fixed.WAD)
				} else {
					want, _ = fixed.MulDivDown(f.Specified, fixed.WAD, f.Price)
				}
				proptest.RequireApproxEqual(t, res.Unspecified, want, uint256.NewInt(1), "unspecified")
			}
			if res.AveragePrice.IsZero() {
				t.Fatalf("zero average price with %d fills", len(res.Fills))
			}
		}
	})
}

func TestPropertyEmptyBookLeavesAmountUnmatched(t *testing.T) {
	proptest.Check(t, func(t *rapid.T) {
		req := drawRequest(t)
		res, err := Match(orderbook.NewOrderBook(), req, 32)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if !res.Filled.IsZero() || !res.Remaining.Eq(req.Amount) || res.Matched() {
			t.Fatalf("empty book filled %s, remaining %s of %s", res.Filled.Dec(), res.Remaining.Dec(), req.Amount.Dec())
		}
	})
}

func TestPropertyZeroAmountRejected(t *testing.T) {
	proptest.Check(t, func(t *rapid.T) {
		req := drawRequest(t)
		req.Amount = fixed.Zero()
		if _, err := Match(drawBook(t), req, 32); !errors.Is(err, ErrZeroAmount) {
			t.Fatalf("Match(0) error = %v, want ErrZeroAmount", err)
		}
	})
}
