package orderbook

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// bookSide holds one side's price levels.
type bookSide struct {
	side   Side
	levels map[uint256.Int]*priceLevel
	best   *levelHeap
	worst  *levelHeap
	count  int
}

func newBookSide(s Side) *bookSide {
	// bids: best = highest price; asks: best = lowest price
	best := &levelHeap{slot: slotBest, higherFirst: s == Buy}
	worst := &levelHeap{slot: slotWorst, higherFirst: s != Buy}
	heap.Init(best)
	heap.Init(worst)
	return &bookSide{
		side:   s,
		levels: make(map[uint256.Int]*priceLevel),
		best:   best,
		worst:  worst,
	}
}

// OrderBook holds the resting orders of a single pool.
//
// Bids are ordered by descending price, asks by ascending price, ties by ascending
// insertion sequence. The book is not safe for concurrent use; its owner serializes
// access.
type OrderBook struct {
	bids *bookSide
	asks *bookSide

	// Order index for O(1) lookup by id
	orders map[uint64]*Order

	nextID  uint64
	nextSeq uint64

	journal *journal
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:    newBookSide(Buy),
		asks:    newBookSide(Sell),
		orders:  make(map[uint64]*Order),
		nextID:  1,
		nextSeq: 1,
	}
}

func (ob *OrderBook) sideOf(s Side) *bookSide {
	if s == Buy {
		return ob.bids
	}
	return ob.asks
}

// Insert adds a resting order. A zero ID or Seq is assigned from the book's counters;
// non-zero values (restored orders) are kept and the counters moved past them.
func (ob *OrderBook) Insert(o *Order) error {
	if o.Side != Buy && o.Side != Sell {
		return ErrInvalidSide
	}
	if o.Price == nil || o.Price.IsZero() {
		return ErrZeroPrice
	}
	if o.Remaining == nil || o.Remaining.IsZero() {
		return ErrZeroQuantity
	}
	if o.Original == nil {
		o.Original = o.Remaining.Clone()
	}
	if o.Remaining.Gt(o.Original) {
		return fmt.Errorf("remaining %s exceeds original %s: %w", o.Remaining.Dec(), o.Original.Dec(), ErrInsufficientQuantity)
	}
	if o.ID != 0 {
		if _, exists := ob.orders[o.ID]; exists {
			return fmt.Errorf("order %d: %w", o.ID, ErrDuplicateOrder)
		}
	}

	if o.ID == 0 {
		o.ID = ob.nextID
	}
	if o.ID >= ob.nextID {
		ob.nextID = o.ID + 1
	}
	if o.Seq == 0 {
		o.Seq = ob.nextSeq
	}
	if o.Seq >= ob.nextSeq {
		ob.nextSeq = o.Seq + 1
	}

	o.Price = o.Price.Clone()
	o.Original = o.Original.Clone()
	o.Remaining = o.Remaining.Clone()
	ob.link(o)
	ob.journal.recordInsert(o.ID)
	return nil
}

// link places o into its level without validation or journaling.
func (ob *OrderBook) link(o *Order) {
	bs := ob.sideOf(o.Side)
	lvl, ok := bs.levels[*o.Price]
	if !ok {
		// New price level - add to both heaps
		lvl = &priceLevel{price: *o.Price}
		bs.levels[*o.Price] = lvl
		heap.Push(bs.best, lvl)
		heap.Push(bs.worst, lvl)
	}

	// keep FIFO by sequence; restored orders may land before newer ones
	i := sort.Search(len(lvl.orders), func(i int) bool { return lvl.orders[i].Seq > o.Seq })
	lvl.orders = append(lvl.orders, nil)
	copy(lvl.orders[i+1:], lvl.orders[i:])
	lvl.orders[i] = o

	lvl.total.Add(&lvl.total, o.Remaining)
	o.level = lvl
	bs.count++
	ob.orders[o.ID] = o
}

// unlink removes o from its level and the index without journaling.
func (ob *OrderBook) unlink(o *Order) {
	bs := ob.sideOf(o.Side)
	lvl := o.level
	i := sort.Search(len(lvl.orders), func(i int) bool { return lvl.orders[i].Seq >= o.Seq })
	if i < len(lvl.orders) && lvl.orders[i] == o {
		copy(lvl.orders[i:], lvl.orders[i+1:])
		lvl.orders[len(lvl.orders)-1] = nil
		lvl.orders = lvl.orders[:len(lvl.orders)-1]
	}
	lvl.total.Sub(&lvl.total, o.Remaining)

	// If price level is now empty, remove from heaps and map
	if len(lvl.orders) == 0 {
		heap.Remove(bs.best, lvl.idx[slotBest])
		heap.Remove(bs.worst, lvl.idx[slotWorst])
		delete(bs.levels, lvl.price)
	}
	o.level = nil
	bs.count--
	delete(ob.orders, o.ID)
}

// Cancel removes an order owned by caller and returns its freed quantity.
// The book is left untouched on failure.
func (ob *OrderBook) Cancel(id uint64, caller common.Address) (*uint256.Int, error) {
	o, ok := ob.orders[id]
	if !ok {
		return nil, fmt.Errorf("cancel %d: %w", id, ErrOrderNotFound)
	}
	if o.Owner != caller {
		return nil, fmt.Errorf("cancel %d by %s: %w", id, caller.Hex(), ErrUnauthorized)
	}
	freed := o.Remaining.Clone()
	ob.journal.recordRemove(o)
	ob.unlink(o)
	return freed, nil
}

// Evict removes an order regardless of owner (capacity eviction).
func (ob *OrderBook) Evict(id uint64) (*Order, error) {
	o, ok := ob.orders[id]
	if !ok {
		return nil, fmt.Errorf("evict %d: %w", id, ErrOrderNotFound)
	}
	out := o.Clone()
	ob.journal.recordRemove(o)
	ob.unlink(o)
	return out, nil
}

// Consume reduces an order's remaining quantity, removing it at zero.
// It reports whether the order was removed. A quantity above the remaining amount
// is an invariant breach and leaves the book unchanged.
func (ob *OrderBook) Consume(id uint64, qty *uint256.Int) (bool, error) {
	o, ok := ob.orders[id]
	if !ok {
		return false, fmt.Errorf("consume %d: %w", id, ErrOrderNotFound)
	}
	if qty.IsZero() {
		return false, nil
	}
	if qty.Gt(o.Remaining) {
		return false, fmt.Errorf("consume %s from order %d with %s remaining: %w",
			qty.Dec(), id, o.Remaining.Dec(), ErrInsufficientQuantity)
	}
	if qty.Eq(o.Remaining) {
		ob.journal.recordRemove(o)
		ob.unlink(o)
		return true, nil
	}
	ob.journal.recordConsume(o.ID, o.Remaining)
	o.Remaining = new(uint256.Int).Sub(o.Remaining, qty)
	o.level.total.Sub(&o.level.total, qty)
	return false, nil
}

// Best returns the top-of-book order of a side, or nil when the side is empty.
// The returned order is owned by the book and must not be modified.
func (ob *OrderBook) Best(s Side) *Order {
	lvl := ob.sideOf(s).best.Peek()
	if lvl == nil {
		return nil
	}
	return lvl.orders[0]
}

// BestBid returns the highest, oldest bid (O(1)).
func (ob *OrderBook) BestBid() *Order { return ob.Best(Buy) }

// BestAsk returns the lowest, oldest ask (O(1)).
func (ob *OrderBook) BestAsk() *Order { return ob.Best(Sell) }

// Worst returns the worst-priced, newest order of a side (eviction candidate).
func (ob *OrderBook) Worst(s Side) *Order {
	lvl := ob.sideOf(s).worst.Peek()
	if lvl == nil {
		return nil
	}
	return lvl.orders[len(lvl.orders)-1]
}

// Get returns a copy of a resting order.
func (ob *OrderBook) Get(id uint64) (*Order, bool) {
	o, ok := ob.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Len returns the number of resting orders.
func (ob *OrderBook) Len() int { return len(ob.orders) }

// SideLen returns the number of resting orders on one side.
func (ob *OrderBook) SideLen(s Side) int { return ob.sideOf(s).count }

// TotalQuantity sums the remaining quantity of a side.
func (ob *OrderBook) TotalQuantity(s Side) *uint256.Int {
	total := new(uint256.Int)
	for _, lvl := range ob.sideOf(s).levels {
		total.Add(total, &lvl.total)
	}
	return total
}

// Crossed reports whether the best bid is at or above the best ask.
func (ob *OrderBook) Crossed() bool {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == nil || ask == nil {
		return false
	}
	return !bid.Price.Lt(ask.Price)
}

// Levels returns aggregated depth, best price first.
func (ob *OrderBook) Levels(s Side) []PriceLevel {
	bs := ob.sideOf(s)
	levels := make([]PriceLevel, 0, len(bs.levels))
	for _, lvl := range bs.levels {
		p := lvl.price
		levels = append(levels, PriceLevel{
			Price:  &p,
			Qty:    lvl.total.Clone(),
			Orders: len(lvl.orders),
		})
	}
	sort.Slice(levels, func(i, j int) bool {
		if s == Buy {
			return levels[i].Price.Gt(levels[j].Price)
		}
		return levels[i].Price.Lt(levels[j].Price)
	})
	return levels
}

// Orders returns copies of every resting order of a side in priority order.
func (ob *OrderBook) Orders(s Side) []*Order {
	var out []*Order
	for _, lvl := range ob.Levels(s) {
		for _, o := range ob.sideOf(s).levels[*lvl.Price].orders {
			out = append(out, o.Clone())
		}
	}
	return out
}

// OwnerOrders returns copies of the resting orders of one owner, bids first.
func (ob *OrderBook) OwnerOrders(owner common.Address) []*Order {
	var out []*Order
	for _, s := range []Side{Buy, Sell} {
		for _, o := range ob.Orders(s) {
			if o.Owner == owner {
				out = append(out, o)
			}
		}
	}
	return out
}

// NextID returns the id the next inserted order will receive.
func (ob *OrderBook) NextID() uint64 { return ob.nextID }

// Counters returns the next order id and insertion sequence.
func (ob *OrderBook) Counters() (nextID, nextSeq uint64) { return ob.nextID, ob.nextSeq }

// RestoreCounters moves the counters forward to persisted values. Counters never
// move backwards, so ids of removed orders are not reused.
func (ob *OrderBook) RestoreCounters(nextID, nextSeq uint64) {
	if nextID > ob.nextID {
		ob.nextID = nextID
	}
	if nextSeq > ob.nextSeq {
		ob.nextSeq = nextSeq
	}
}
