package hooks

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/matching"
	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

// Placement is the outcome of PlaceOrder.
type Placement struct {
	Order    *orderbook.Order // resting order, nil if nothing rested
	Fills    []matching.Fill  // resting orders the new order crossed
	Matched  *uint256.Int     // quantity filled on arrival
	Unrested *uint256.Int     // remainder dropped because it would still cross
	Evicted  *orderbook.Order // order removed to make room
}

// PlaceOrder adds a limit order to a pool's book. Quantity is denominated in the
// currency the owner receives: currency0 for buys, currency1 for sells. An order
// that crosses the book is first filled against it at the resting prices.
func (c *Controller) PlaceOrder(id pool.ID, owner common.Address, side orderbook.Side, price, qty *uint256.Int) (_ Placement, err error) {
	const op = "placeOrder"
	defer c.observe(op, time.Now(), &err)

	switch {
	case side != orderbook.Buy && side != orderbook.Sell:
		return Placement{}, userErr(op, orderbook.ErrInvalidSide)
	case price == nil || price.IsZero():
		return Placement{}, userErr(op, orderbook.ErrZeroPrice)
	case qty == nil || qty.IsZero():
		return Placement{}, userErr(op, orderbook.ErrZeroQuantity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reg, err := c.active(op, id)
	if err != nil {
		return Placement{}, err
	}
	if reg.swap != nil || reg.liquidity != nil {
		return Placement{}, boundaryErr(op, ErrReentrantCall)
	}
	if err := reg.book.Begin(); err != nil {
		return Placement{}, invariantErr(op, err)
	}

	// as a taker the order buys exactly its own quantity, bounded by its limit
	req := matching.Request{
		ZeroForOne: side == orderbook.Sell,
		ExactInput: false,
		Amount:     qty.Clone(),
		PriceLimit: price.Clone(),
	}
	res, err := matching.Match(reg.book, req, c.cfg.MaxLevelsPerSwap)
	if err != nil {
		reg.book.Rollback()
		return Placement{}, invariantErr(op, err)
	}

	out := Placement{Fills: res.Fills, Matched: res.Specified.Clone(), Unrested: fixed.Zero()}
	remaining := res.Remaining

	if !remaining.IsZero() {
		if opp := reg.book.Best(side.Opposite()); opp != nil && crosses(side, price, opp.Price) {
			// dust or the level cap stopped matching; resting it would cross
			out.Unrested = remaining.Clone()
		} else {
			evicted, err := c.makeRoom(reg, side, price)
			if err != nil {
				reg.book.Rollback()
				return Placement{}, userErr(op, err)
			}
			out.Evicted = evicted

			o := &orderbook.Order{Owner: owner, Side: side, Price: price, Original: qty, Remaining: remaining}
			if err := reg.book.Insert(o); err != nil {
				reg.book.Rollback()
				return Placement{}, userErr(op, err)
			}
			out.Order = o.Clone()
		}
	}

	if err := c.persist(reg); err != nil {
		reg.book.Rollback()
		return Placement{}, boundaryErr(op, err)
	}
	reg.book.Commit()

	c.announce(reg, "order", res.Fills)
	if out.Evicted != nil {
		c.metrics.RecordOrderEvicted(id.Hex())
		c.log.Infow("order_evicted", "pool", id.Hex(), "order", out.Evicted.ID, "owner", out.Evicted.Owner.Hex())
	}
	if out.Order != nil {
		c.metrics.RecordOrderPlaced(id.Hex(), side.String())
		c.log.Infow("order_placed",
			"pool", id.Hex(),
			"order", out.Order.ID,
			"owner", owner.Hex(),
			"side", side.String(),
			"price", fixed.ToDecimal(price).String(),
			"qty", out.Order.Remaining.Dec(),
			"matched", out.Matched.Dec(),
		)
	}
	return out, nil
}

func crosses(side orderbook.Side, price, opposite *uint256.Int) bool {
	if side == orderbook.Buy {
		return !price.Lt(opposite)
	}
	return !price.Gt(opposite)
}

func better(side orderbook.Side, price, than *uint256.Int) bool {
	if side == orderbook.Buy {
		return price.Gt(than)
	}
	return price.Lt(than)
}

// makeRoom applies the depth cap before an insert.
func (c *Controller) makeRoom(reg *registration, side orderbook.Side, price *uint256.Int) (*orderbook.Order, error) {
	limit := c.cfg.MaxOrdersPerBook
	if limit <= 0 || reg.book.Len() < limit {
		return nil, nil
	}
	if c.cfg.Eviction != EvictWorst {
		return nil, fmt.Errorf("%w: %d orders", ErrBookFull, limit)
	}
	worst := reg.book.Worst(side)
	if worst == nil || !better(side, price, worst.Price) {
		return nil, fmt.Errorf("%w: price does not improve on the worst %s", ErrBookFull, side)
	}
	return reg.book.Evict(worst.ID)
}

// CancelOrder removes an order owned by caller and returns its freed quantity.
func (c *Controller) CancelOrder(id pool.ID, caller common.Address, orderID uint64) (_ *uint256.Int, err error) {
	const op = "cancelOrder"
	defer c.observe(op, time.Now(), &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	reg, err := c.active(op, id)
	if err != nil {
		return nil, err
	}
	if reg.swap != nil || reg.liquidity != nil {
		return nil, boundaryErr(op, ErrReentrantCall)
	}
	if err := reg.book.Begin(); err != nil {
		return nil, invariantErr(op, err)
	}
	freed, err := reg.book.Cancel(orderID, caller)
	if err != nil {
		reg.book.Rollback()
		return nil, userErr(op, err)
	}
	if err := c.persist(reg); err != nil {
		reg.book.Rollback()
		return nil, boundaryErr(op, err)
	}
	reg.book.Commit()

	c.announce(reg, "cancel", nil)
	c.metrics.RecordOrderCanceled(id.Hex())
	c.log.Infow("order_canceled", "pool", id.Hex(), "order", orderID, "owner", caller.Hex(), "freed", freed.Dec())
	return freed, nil
}
