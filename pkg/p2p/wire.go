package p2p

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/uhyunpark/bookhook/pkg/events"
)

// wireVersion guards against peers running an incompatible event layout.
const wireVersion = 1

func init() {
	gob.Register(EventWire{})
}

type EventWire struct {
	Version int
	Event   []byte // gob-encoded events.Event
}

func encodeEvent(ev events.Event) ([]byte, error) {
	inner, err := gobEncode(ev)
	if err != nil {
		return nil, err
	}
	return gobEncode(EventWire{Version: wireVersion, Event: inner})
}

func decodeEvent(b []byte) (events.Event, error) {
	var w EventWire
	if err := gobDecode(b, &w); err != nil {
		return events.Event{}, err
	}
	if w.Version != wireVersion {
		return events.Event{}, fmt.Errorf("unsupported wire version %d", w.Version)
	}
	var ev events.Event
	if err := gobDecode(w.Event, &ev); err != nil {
		return events.Event{}, err
	}
	return ev, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
