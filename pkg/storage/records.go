package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

// PoolRecord is the persisted registration of a pool.
type PoolRecord struct {
	Key       pool.Key `json:"key"`
	Active    bool     `json:"active"`
	InitPrice string   `json:"initPrice,omitempty"` // raw WAD units
	CreatedAt int64    `json:"createdAt"`
}

type counters struct {
	NextID  uint64 `json:"nextId"`
	NextSeq uint64 `json:"nextSeq"`
}

// OrderRecord is a resting order with amounts as base-10 strings of raw units.
type OrderRecord struct {
	ID        uint64         `json:"id"`
	Owner     common.Address `json:"owner"`
	Side      int8           `json:"side"`
	Price     string         `json:"price"`
	Original  string         `json:"original"`
	Remaining string         `json:"remaining"`
	Seq       uint64         `json:"seq"`
}

func recordFromOrder(o *orderbook.Order) OrderRecord {
	return OrderRecord{
		ID:        o.ID,
		Owner:     o.Owner,
		Side:      int8(o.Side),
		Price:     o.Price.Dec(),
		Original:  o.Original.Dec(),
		Remaining: o.Remaining.Dec(),
		Seq:       o.Seq,
	}
}

func (r OrderRecord) toOrder() (*orderbook.Order, error) {
	price, err := fixed.ParseRaw(r.Price)
	if err != nil {
		return nil, fmt.Errorf("order %d price: %w", r.ID, err)
	}
	original, err := fixed.ParseRaw(r.Original)
	if err != nil {
		return nil, fmt.Errorf("order %d original: %w", r.ID, err)
	}
	remaining, err := fixed.ParseRaw(r.Remaining)
	if err != nil {
		return nil, fmt.Errorf("order %d remaining: %w", r.ID, err)
	}
	return &orderbook.Order{
		ID:        r.ID,
		Owner:     r.Owner,
		Side:      orderbook.Side(r.Side),
		Price:     price,
		Original:  original,
		Remaining: remaining,
		Seq:       r.Seq,
	}, nil
}

// PoolState is everything needed to rebuild one pool's book after a restart.
type PoolState struct {
	PoolRecord
	NextID  uint64
	NextSeq uint64
	Orders  []*orderbook.Order
}

// TxStatus is the lifecycle of a submitted operation.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TxRecord tracks one operation submitted through the pool manager.
type TxRecord struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	PoolID    string   `json:"poolId"`
	Sender    string   `json:"sender"`
	Status    TxStatus `json:"status"`
	Error     string   `json:"error,omitempty"`
	Amount0   string   `json:"amount0,omitempty"` // swapper-side balance delta
	Amount1   string   `json:"amount1,omitempty"`
	BookFills int      `json:"bookFills"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}
