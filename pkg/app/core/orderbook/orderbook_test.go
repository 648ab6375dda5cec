package orderbook

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func place(t *testing.T, ob *OrderBook, owner common.Address, side Side, price, qty uint64) *Order {
	t.Helper()
	o := &Order{Owner: owner, Side: side, Price: u(price), Remaining: u(qty)}
	if err := ob.Insert(o); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return o
}

func TestInsertValidation(t *testing.T) {
	ob := NewOrderBook()

	tests := []struct {
		name    string
		order   *Order
		wantErr error
	}{
		{"zero quantity", &Order{Owner: alice, Side: Buy, Price: u(100), Remaining: u(0)}, ErrZeroQuantity},
		{"nil quantity", &Order{Owner: alice, Side: Buy, Price: u(100)}, ErrZeroQuantity},
		{"zero price", &Order{Owner: alice, Side: Sell, Price: u(0), Remaining: u(5)}, ErrZeroPrice},
		{"bad side", &Order{Owner: alice, Side: 0, Price: u(1), Remaining: u(5)}, ErrInvalidSide},
		{"remaining above original", &Order{Owner: alice, Side: Buy, Price: u(1), Original: u(1), Remaining: u(5)}, ErrInsufficientQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ob.Insert(tt.order)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Insert() error = %v, want %v", err, tt.wantErr)
			}
			if ob.Len() != 0 {
				t.Errorf("book mutated on rejected insert: len=%d", ob.Len())
			}
		})
	}
}

func TestPriceTimePriority(t *testing.T) {
	ob := NewOrderBook()

	a1 := place(t, ob, alice, Sell, 101, 1)
	a2 := place(t, ob, bob, Sell, 100, 1)
	a3 := place(t, ob, alice, Sell, 100, 1)
	b1 := place(t, ob, bob, Buy, 98, 1)
	b2 := place(t, ob, alice, Buy, 99, 1)

	if got := ob.BestAsk(); got.ID != a2.ID {
		t.Errorf("best ask = %d, want %d (lowest price, oldest)", got.ID, a2.ID)
	}
	if got := ob.BestBid(); got.ID != b2.ID {
		t.Errorf("best bid = %d, want %d", got.ID, b2.ID)
	}
	if got := ob.Worst(Sell); got.ID != a1.ID {
		t.Errorf("worst ask = %d, want %d", got.ID, a1.ID)
	}
	if got := ob.Worst(Buy); got.ID != b1.ID {
		t.Errorf("worst bid = %d, want %d", got.ID, b1.ID)
	}

	// consume the head of the 100 level; a3 takes over
	removed, err := ob.Consume(a2.ID, u(1))
	if err != nil || !removed {
		t.Fatalf("Consume() = %v, %v", removed, err)
	}
	if got := ob.BestAsk(); got.ID != a3.ID {
		t.Errorf("best ask after consume = %d, want %d", got.ID, a3.ID)
	}
}

func TestSequenceIsMonotonic(t *testing.T) {
	ob := NewOrderBook()
	var last uint64
	for i := 0; i < 10; i++ {
		o := place(t, ob, alice, Buy, uint64(100+i%3), 1)
		if o.Seq <= last {
			t.Fatalf("seq %d not greater than %d", o.Seq, last)
		}
		last = o.Seq
	}
}

func TestCancel(t *testing.T) {
	ob := NewOrderBook()
	o := place(t, ob, alice, Buy, 100, 7)

	if _, err := ob.Cancel(o.ID, bob); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("cancel by non-owner: %v", err)
	}
	if ob.Len() != 1 {
		t.Fatalf("unauthorized cancel mutated book")
	}

	freed, err := ob.Cancel(o.ID, alice)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if freed.Uint64() != 7 {
		t.Errorf("freed = %d, want 7", freed.Uint64())
	}
	if ob.BestBid() != nil {
		t.Error("bid side should be empty")
	}

	// repeated cancel is always not-found
	for i := 0; i < 2; i++ {
		if _, err := ob.Cancel(o.ID, alice); !errors.Is(err, ErrOrderNotFound) {
			t.Errorf("second cancel: %v", err)
		}
	}
}

func TestConsume(t *testing.T) {
	ob := NewOrderBook()
	o := place(t, ob, alice, Sell, 100, 10)

	removed, err := ob.Consume(o.ID, u(4))
	if err != nil || removed {
		t.Fatalf("partial consume = %v, %v", removed, err)
	}
	got, _ := ob.Get(o.ID)
	if got.Remaining.Uint64() != 6 {
		t.Errorf("remaining = %d, want 6", got.Remaining.Uint64())
	}
	if got.Filled().Uint64() != 4 {
		t.Errorf("filled = %d, want 4", got.Filled().Uint64())
	}
	if total := ob.TotalQuantity(Sell); total.Uint64() != 6 {
		t.Errorf("total = %d, want 6", total.Uint64())
	}

	if _, err := ob.Consume(o.ID, u(7)); !errors.Is(err, ErrInsufficientQuantity) {
		t.Errorf("over-consume: %v", err)
	}
	got, _ = ob.Get(o.ID)
	if got.Remaining.Uint64() != 6 {
		t.Errorf("over-consume mutated remaining: %d", got.Remaining.Uint64())
	}

	removed, err = ob.Consume(o.ID, u(6))
	if err != nil || !removed {
		t.Fatalf("full consume = %v, %v", removed, err)
	}
	if ob.Len() != 0 || ob.BestAsk() != nil {
		t.Error("fully consumed order retained")
	}
}

func TestLevels(t *testing.T) {
	ob := NewOrderBook()
	place(t, ob, alice, Buy, 99, 1)
	place(t, ob, bob, Buy, 101, 2)
	place(t, ob, alice, Buy, 101, 3)

	levels := ob.Levels(Buy)
	if len(levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(levels))
	}
	if levels[0].Price.Uint64() != 101 || levels[0].Qty.Uint64() != 5 || levels[0].Orders != 2 {
		t.Errorf("top level = %+v", levels[0])
	}
	if levels[1].Price.Uint64() != 99 {
		t.Errorf("second level price = %d", levels[1].Price.Uint64())
	}
}

func TestCrossed(t *testing.T) {
	ob := NewOrderBook()
	place(t, ob, alice, Buy, 100, 1)
	place(t, ob, bob, Sell, 101, 1)
	if ob.Crossed() {
		t.Fatal("book should not be crossed")
	}
	place(t, ob, bob, Sell, 100, 1)
	if !ob.Crossed() {
		t.Fatal("equal bid/ask counts as crossed")
	}
}

func TestRollbackRestoresPriority(t *testing.T) {
	ob := NewOrderBook()
	first := place(t, ob, alice, Sell, 100, 10)
	second := place(t, ob, bob, Sell, 100, 5)
	nextID := ob.NextID()

	if err := ob.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ob.Begin(); !errors.Is(err, ErrJournalActive) {
		t.Fatalf("nested begin: %v", err)
	}
	if _, err := ob.Consume(first.ID, u(10)); err != nil {
		t.Fatal(err)
	}
	if _, err := ob.Consume(second.ID, u(2)); err != nil {
		t.Fatal(err)
	}
	place(t, ob, alice, Buy, 90, 3)
	ob.Rollback()

	if ob.Len() != 2 {
		t.Fatalf("len after rollback = %d, want 2", ob.Len())
	}
	if best := ob.BestAsk(); best.ID != first.ID || best.Remaining.Uint64() != 10 {
		t.Errorf("best ask after rollback = %d/%d", best.ID, best.Remaining.Uint64())
	}
	got, _ := ob.Get(second.ID)
	if got.Remaining.Uint64() != 5 {
		t.Errorf("second remaining = %d, want 5", got.Remaining.Uint64())
	}
	if ob.TotalQuantity(Sell).Uint64() != 15 {
		t.Errorf("ask total = %d, want 15", ob.TotalQuantity(Sell).Uint64())
	}
	if ob.NextID() != nextID {
		t.Errorf("next id = %d, want %d", ob.NextID(), nextID)
	}
}

func TestCommitReportsChanges(t *testing.T) {
	ob := NewOrderBook()
	gone := place(t, ob, alice, Sell, 100, 1)
	partial := place(t, ob, bob, Sell, 101, 5)

	_ = ob.Begin()
	_, _ = ob.Consume(gone.ID, u(1))
	_, _ = ob.Consume(partial.ID, u(2))
	added := place(t, ob, alice, Buy, 90, 1)
	ch := ob.Commit()

	if len(ch.Deletes) != 1 || ch.Deletes[0] != gone.ID {
		t.Errorf("deletes = %v", ch.Deletes)
	}
	if len(ch.Upserts) != 2 || ch.Upserts[0].ID != partial.ID || ch.Upserts[1].ID != added.ID {
		t.Errorf("upserts = %+v", ch.Upserts)
	}
	if ob.InJournal() {
		t.Error("journal still active after commit")
	}
}

func TestRestoredOrdersKeepSequence(t *testing.T) {
	ob := NewOrderBook()
	late := &Order{ID: 9, Seq: 20, Owner: alice, Side: Buy, Price: u(100), Remaining: u(1)}
	early := &Order{ID: 4, Seq: 3, Owner: bob, Side: Buy, Price: u(100), Remaining: u(1)}
	if err := ob.Insert(late); err != nil {
		t.Fatal(err)
	}
	if err := ob.Insert(early); err != nil {
		t.Fatal(err)
	}
	if ob.BestBid().ID != early.ID {
		t.Errorf("restored order with lower seq should lead the level")
	}
	if ob.NextID() != 10 {
		t.Errorf("next id = %d, want 10", ob.NextID())
	}
	if err := ob.Insert(&Order{ID: 9, Owner: alice, Side: Buy, Price: u(1), Remaining: u(1)}); !errors.Is(err, ErrDuplicateOrder) {
		t.Errorf("duplicate id: %v", err)
	}
}
