package orderbook

import "github.com/holiman/uint256"

const (
	slotBest  = 0
	slotWorst = 1
)

// priceLevel is a FIFO of orders at one price, kept in ascending Seq order.
type priceLevel struct {
	price  uint256.Int
	orders []*Order
	total  uint256.Int
	idx    [2]int // position in the side's best/worst heaps
}

// levelHeap implements heap.Interface over price levels. A side keeps two of them:
// one with its best price on top and one with its worst price on top, so both
// top-of-book and eviction candidates are O(1) to peek and O(log n) to remove.
// Use container/heap to manipulate it (Init, Push, Pop, Remove, Fix).
type levelHeap struct {
	items       []*priceLevel
	slot        int
	higherFirst bool
}

func (h levelHeap) Len() int { return len(h.items) }

func (h levelHeap) Less(i, j int) bool {
	if h.higherFirst {
		return h.items[i].price.Gt(&h.items[j].price)
	}
	return h.items[i].price.Lt(&h.items[j].price)
}

func (h levelHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].idx[h.slot] = i
	h.items[j].idx[h.slot] = j
}

func (h *levelHeap) Push(x interface{}) {
	lvl := x.(*priceLevel)
	lvl.idx[h.slot] = len(h.items)
	h.items = append(h.items, lvl)
}

func (h *levelHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	lvl := old[n-1]
	old[n-1] = nil
	lvl.idx[h.slot] = -1
	h.items = old[:n-1]
	return lvl
}

// Peek returns the top level without removing it
func (h *levelHeap) Peek() *priceLevel {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}
