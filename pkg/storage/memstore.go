package storage

import (
	"sort"
	"sync"

	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

// MemStore keeps the same records as PebbleStore in memory.
type MemStore struct {
	mu       sync.Mutex
	pools    map[pool.ID]PoolRecord
	counters map[pool.ID]counters
	orders   map[pool.ID]map[uint64]*orderbook.Order
	txs      map[string]TxRecord
}

func NewMemStore() *MemStore {
	return &MemStore{
		pools:    make(map[pool.ID]PoolRecord),
		counters: make(map[pool.ID]counters),
		orders:   make(map[pool.ID]map[uint64]*orderbook.Order),
		txs:      make(map[string]TxRecord),
	}
}

func (s *MemStore) SavePool(rec PoolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[rec.Key.ID()] = rec
	return nil
}

func (s *MemStore) ApplyChanges(id pool.ID, ch orderbook.Changes, nextID, nextSeq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book := s.orders[id]
	if book == nil {
		book = make(map[uint64]*orderbook.Order)
		s.orders[id] = book
	}
	for _, o := range ch.Upserts {
		book[o.ID] = o.Clone()
	}
	for _, oid := range ch.Deletes {
		delete(book, oid)
	}
	s.counters[id] = counters{NextID: nextID, NextSeq: nextSeq}
	return nil
}

func (s *MemStore) LoadPools() ([]PoolState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PoolState, 0, len(s.pools))
	for id, rec := range s.pools {
		c := s.counters[id]
		st := PoolState{PoolRecord: rec, NextID: c.NextID, NextSeq: c.NextSeq}
		for _, o := range s.orders[id] {
			st.Orders = append(st.Orders, o.Clone())
		}
		sort.Slice(st.Orders, func(i, j int) bool { return st.Orders[i].ID < st.Orders[j].ID })
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.ID().Hex() < out[j].Key.ID().Hex() })
	return out, nil
}

func (s *MemStore) SaveTx(rec TxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[rec.ID] = rec
	return nil
}

func (s *MemStore) LoadTx(id string) (TxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.txs[id]
	if !ok {
		return TxRecord{}, ErrTxNotFound
	}
	return rec, nil
}
