package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

var ErrTxNotFound = errors.New("transaction not found")

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// SavePool persists a pool registration.
func (s *PebbleStore) SavePool(rec PoolRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal pool: %w", err)
	}
	if err := s.db.Set(poolKey(rec.Key.ID()), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save pool: %w", err)
	}
	return nil
}

// ApplyChanges writes one committed journal in a single batch: touched orders,
// removed orders and the book counters.
func (s *PebbleStore) ApplyChanges(id pool.ID, ch orderbook.Changes, nextID, nextSeq uint64) error {
	b := s.db.NewBatch()
	defer b.Close()

	for _, o := range ch.Upserts {
		data, err := json.Marshal(recordFromOrder(o))
		if err != nil {
			return fmt.Errorf("failed to marshal order %d: %w", o.ID, err)
		}
		if err := b.Set(orderKey(id, o.ID), data, nil); err != nil {
			return err
		}
	}
	for _, oid := range ch.Deletes {
		if err := b.Delete(orderKey(id, oid), nil); err != nil {
			return err
		}
	}
	meta, err := json.Marshal(counters{NextID: nextID, NextSeq: nextSeq})
	if err != nil {
		return err
	}
	if err := b.Set(metaKey(id), meta, nil); err != nil {
		return err
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit book changes: %w", err)
	}
	return nil
}

// LoadPools returns every persisted pool with its resting orders.
func (s *PebbleStore) LoadPools() ([]PoolState, error) {
	prefix := poolPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []PoolState
	for iter.First(); iter.Valid(); iter.Next() {
		var rec PoolRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pool %s: %w", iter.Key(), err)
		}
		st, err := s.loadBook(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *PebbleStore) loadBook(rec PoolRecord) (PoolState, error) {
	id := rec.Key.ID()
	st := PoolState{PoolRecord: rec}

	val, closer, err := s.db.Get(metaKey(id))
	switch {
	case err == nil:
		var c counters
		uerr := json.Unmarshal(val, &c)
		closer.Close()
		if uerr != nil {
			return st, fmt.Errorf("failed to unmarshal counters of %s: %w", id.Hex(), uerr)
		}
		st.NextID, st.NextSeq = c.NextID, c.NextSeq
	case errors.Is(err, pebble.ErrNotFound):
	default:
		return st, err
	}

	prefix := orderPrefix(id)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return st, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var r OrderRecord
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return st, fmt.Errorf("failed to unmarshal order %s: %w", iter.Key(), err)
		}
		o, err := r.toOrder()
		if err != nil {
			return st, err
		}
		st.Orders = append(st.Orders, o)
	}
	return st, nil
}

// SaveTx persists a transaction record.
func (s *PebbleStore) SaveTx(rec TxRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal tx: %w", err)
	}
	if err := s.db.Set(txKey(rec.ID), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save tx: %w", err)
	}
	return nil
}

// LoadTx returns ErrTxNotFound for unknown ids.
func (s *PebbleStore) LoadTx(id string) (TxRecord, error) {
	data, closer, err := s.db.Get(txKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return TxRecord{}, ErrTxNotFound
	}
	if err != nil {
		return TxRecord{}, fmt.Errorf("failed to get tx: %w", err)
	}
	defer closer.Close()

	var rec TxRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return TxRecord{}, fmt.Errorf("failed to unmarshal tx: %w", err)
	}
	return rec, nil
}
