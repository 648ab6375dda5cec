package p2p

import (
	"testing"

	"github.com/uhyunpark/bookhook/pkg/events"
)

func TestEventWire(t *testing.T) {
	ev := events.Event{
		Kind:   events.KindFills,
		PoolID: "0x01",
		Source: "swap",
		Time:   42,
		Fills:  []events.FillView{{OrderID: 3, Side: "buy", Price: "1.5", Quantity: "2"}},
	}
	b, err := encodeEvent(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeEvent(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PoolID != ev.PoolID || len(got.Fills) != 1 || got.Fills[0].Price != "1.5" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestEventWireRejectsVersion(t *testing.T) {
	inner, _ := gobEncode(events.Event{Kind: events.KindFills})
	b, _ := gobEncode(EventWire{Version: wireVersion + 1, Event: inner})
	if _, err := decodeEvent(b); err == nil {
		t.Fatal("expected version error")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := decodeEvent([]byte("not gob")); err == nil {
		t.Fatal("expected decode error")
	}
}
