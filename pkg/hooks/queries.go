package hooks

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/matching"
	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
	"github.com/uhyunpark/bookhook/pkg/storage"
)

// PoolInfo is a read-only summary of a registered pool.
type PoolInfo struct {
	ID        pool.ID
	Key       pool.Key
	Active    bool
	InitPrice *uint256.Int
	CreatedAt time.Time
	Orders    int
	BestBid   *uint256.Int // nil when the side is empty
	BestAsk   *uint256.Int
}

func (reg *registration) info() PoolInfo {
	pi := PoolInfo{
		ID:        reg.key.ID(),
		Key:       reg.key,
		Active:    reg.state == stateActive,
		CreatedAt: reg.createdAt,
		Orders:    reg.book.Len(),
	}
	if reg.initPrice != nil {
		pi.InitPrice = reg.initPrice.Clone()
	}
	if o := reg.book.BestBid(); o != nil {
		pi.BestBid = o.Price.Clone()
	}
	if o := reg.book.BestAsk(); o != nil {
		pi.BestAsk = o.Price.Clone()
	}
	return pi
}

// Pools lists registered pools ordered by id.
func (c *Controller) Pools() []PoolInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PoolInfo, 0, len(c.pools))
	for _, reg := range c.pools {
		out = append(out, reg.info())
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out
}

// Pool returns one pool's summary.
func (c *Controller) Pool(id pool.ID) (PoolInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.pools[id]
	if !ok {
		return PoolInfo{}, userErr("pool", fmt.Errorf("%s: %w", id.Hex(), ErrPoolNotInitialized))
	}
	return reg.info(), nil
}

// Depth returns aggregated bids and asks, best first.
func (c *Controller) Depth(id pool.ID) (bids, asks []orderbook.PriceLevel, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.pools[id]
	if !ok {
		return nil, nil, userErr("depth", fmt.Errorf("%s: %w", id.Hex(), ErrPoolNotInitialized))
	}
	return reg.book.Levels(orderbook.Buy), reg.book.Levels(orderbook.Sell), nil
}

// OrdersOf returns copies of owner's resting orders in a pool.
func (c *Controller) OrdersOf(id pool.ID, owner common.Address) ([]*orderbook.Order, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.pools[id]
	if !ok {
		return nil, userErr("orders", fmt.Errorf("%s: %w", id.Hex(), ErrPoolNotInitialized))
	}
	return reg.book.OwnerOrders(owner), nil
}

// Order returns a copy of one resting order.
func (c *Controller) Order(id pool.ID, orderID uint64) (*orderbook.Order, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.pools[id]
	if !ok {
		return nil, userErr("order", fmt.Errorf("%s: %w", id.Hex(), ErrPoolNotInitialized))
	}
	o, ok := reg.book.Get(orderID)
	if !ok {
		return nil, userErr("order", fmt.Errorf("order %d: %w", orderID, orderbook.ErrOrderNotFound))
	}
	return o, nil
}

// StateHash digests every pool's identity, state and depth in a deterministic order,
// so two nodes fed the same operations agree on it.
func (c *Controller) StateHash() common.Hash {
	pools := c.Pools()

	c.mu.RLock()
	defer c.mu.RUnlock()

	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	for _, pi := range pools {
		reg := c.pools[pi.ID]
		h.Write(pi.ID[:])
		if pi.Active {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		nextID, nextSeq := reg.book.Counters()
		binary.BigEndian.PutUint64(buf[:], nextID)
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], nextSeq)
		h.Write(buf[:])

		// bids high to low, then asks low to high
		for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
			for _, lvl := range reg.book.Levels(side) {
				p, q := lvl.Price.Bytes32(), lvl.Qty.Bytes32()
				h.Write(p[:])
				h.Write(q[:])
			}
		}
	}
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Restore rebuilds a pool from persisted state. It must run before the pool sees
// any callback.
func (c *Controller) Restore(st storage.PoolState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := st.Key.ID()
	if _, exists := c.pools[id]; exists {
		return fmt.Errorf("restore %s: %w", id.Hex(), ErrAlreadyInitialized)
	}
	book := orderbook.NewOrderBook()
	for _, o := range st.Orders {
		if err := book.Insert(o.Clone()); err != nil {
			return fmt.Errorf("restore %s order %d: %w", id.Hex(), o.ID, err)
		}
	}
	if book.Crossed() {
		return fmt.Errorf("restore %s: %w", id.Hex(), matching.ErrCrossedBook)
	}
	book.RestoreCounters(st.NextID, st.NextSeq)

	var initPrice *uint256.Int
	if st.InitPrice != "" {
		p, err := fixed.ParseRaw(st.InitPrice)
		if err != nil {
			return fmt.Errorf("restore %s init price: %w", id.Hex(), err)
		}
		initPrice = p
	}

	state := statePending
	if st.Active {
		state = stateActive
	}
	c.pools[id] = &registration{
		key:       st.Key,
		book:      book,
		state:     state,
		initPrice: initPrice,
		createdAt: time.UnixMilli(st.CreatedAt),
	}
	c.log.Infow("pool_restored", "pool", id.Hex(), "orders", book.Len(), "active", st.Active)
	return nil
}
