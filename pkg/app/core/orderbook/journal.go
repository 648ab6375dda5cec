package orderbook

import (
	"sort"

	"github.com/holiman/uint256"
)

type entryKind uint8

const (
	entryInsert entryKind = iota
	entryRemove
	entryConsume
)

type journalEntry struct {
	kind    entryKind
	id      uint64
	removed *Order       // entryRemove: detached copy at removal time
	prev    *uint256.Int // entryConsume: remaining before the call
}

// journal records book mutations so an aborted callback can be undone.
// A nil journal records nothing.
type journal struct {
	entries []journalEntry
	nextID  uint64
	nextSeq uint64
}

func (j *journal) recordInsert(id uint64) {
	if j == nil {
		return
	}
	j.entries = append(j.entries, journalEntry{kind: entryInsert, id: id})
}

func (j *journal) recordRemove(o *Order) {
	if j == nil {
		return
	}
	j.entries = append(j.entries, journalEntry{kind: entryRemove, id: o.ID, removed: o.Clone()})
}

func (j *journal) recordConsume(id uint64, prev *uint256.Int) {
	if j == nil {
		return
	}
	j.entries = append(j.entries, journalEntry{kind: entryConsume, id: id, prev: prev.Clone()})
}

// Begin starts recording mutations. Only one journal may be active at a time.
func (ob *OrderBook) Begin() error {
	if ob.journal != nil {
		return ErrJournalActive
	}
	ob.journal = &journal{nextID: ob.nextID, nextSeq: ob.nextSeq}
	return nil
}

// InJournal reports whether mutations are currently being recorded.
func (ob *OrderBook) InJournal() bool { return ob.journal != nil }

// Pending returns the orders touched so far without ending the journal: current
// copies of those still resting and the ids of those removed.
func (ob *OrderBook) Pending() Changes {
	j := ob.journal
	if j == nil {
		return Changes{}
	}

	seen := make(map[uint64]struct{}, len(j.entries))
	var ch Changes
	for _, e := range j.entries {
		if _, dup := seen[e.id]; dup {
			continue
		}
		seen[e.id] = struct{}{}
		if o, ok := ob.orders[e.id]; ok {
			ch.Upserts = append(ch.Upserts, o.Clone())
		} else {
			ch.Deletes = append(ch.Deletes, e.id)
		}
	}
	sort.Slice(ch.Upserts, func(a, b int) bool { return ch.Upserts[a].ID < ch.Upserts[b].ID })
	sort.Slice(ch.Deletes, func(a, b int) bool { return ch.Deletes[a] < ch.Deletes[b] })
	return ch
}

// Commit stops recording and returns what the journal touched.
func (ob *OrderBook) Commit() Changes {
	ch := ob.Pending()
	ob.journal = nil
	return ch
}

// Rollback undoes every recorded mutation in reverse order, restoring removed orders
// at their original priority, and stops recording.
func (ob *OrderBook) Rollback() {
	j := ob.journal
	ob.journal = nil
	if j == nil {
		return
	}
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		switch e.kind {
		case entryInsert:
			if o, ok := ob.orders[e.id]; ok {
				ob.unlink(o)
			}
		case entryRemove:
			ob.link(e.removed.Clone())
		case entryConsume:
			if o, ok := ob.orders[e.id]; ok {
				delta := new(uint256.Int).Sub(e.prev, o.Remaining)
				o.Remaining = e.prev.Clone()
				o.level.total.Add(&o.level.total, delta)
			}
		}
	}
	ob.nextID = j.nextID
	ob.nextSeq = j.nextSeq
}
