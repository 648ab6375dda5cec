// Package events fans book activity out to external consumers: websocket clients,
// a NATS subject, and a libp2p gossip topic.
package events

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/matching"
	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

type Kind string

const (
	KindFills Kind = "fills"
	KindBook  Kind = "book"
)

// Event is the wire form shared by every sink. Amounts are decimal strings in
// whole-token units.
type Event struct {
	Kind   Kind       `json:"kind"`
	PoolID string     `json:"poolId"`
	Source string     `json:"source,omitempty"` // "swap", "order" or "cancel"
	Time   int64      `json:"ts"`               // unix milliseconds
	Fills  []FillView `json:"fills,omitempty"`
	Book   *BookView  `json:"book,omitempty"`
	Origin string     `json:"origin,omitempty"` // peer id when relayed over gossip
}

type FillView struct {
	OrderID     uint64 `json:"orderId"`
	Owner       string `json:"owner"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	Specified   string `json:"specified"`
	Unspecified string `json:"unspecified"`
	Removed     bool   `json:"removed"`
}

type LevelView struct {
	Price  string `json:"price"`
	Qty    string `json:"qty"`
	Orders int    `json:"orders"`
}

type BookView struct {
	Bids []LevelView `json:"bids"`
	Asks []LevelView `json:"asks"`
}

// Channel is the websocket channel an event is delivered on, e.g. "fills:0xabc...".
func (e Event) Channel() string { return string(e.Kind) + ":" + e.PoolID }

// Decimal renders a WAD amount for the wire.
func Decimal(x *uint256.Int) string { return fixed.ToDecimal(x).String() }

// NewFillEvent describes the fills of one match.
func NewFillEvent(id pool.ID, source string, ts time.Time, fills []matching.Fill) Event {
	views := make([]FillView, 0, len(fills))
	for _, f := range fills {
		views = append(views, FillView{
			OrderID:     f.OrderID,
			Owner:       f.Owner.Hex(),
			Side:        f.Side.String(),
			Price:       Decimal(f.Price),
			Quantity:    Decimal(f.Quantity),
			Specified:   Decimal(f.Specified),
			Unspecified: Decimal(f.Unspecified),
			Removed:     f.Removed,
		})
	}
	return Event{Kind: KindFills, PoolID: id.Hex(), Source: source, Time: ts.UnixMilli(), Fills: views}
}

// NewBookEvent snapshots aggregated depth.
func NewBookEvent(id pool.ID, ts time.Time, bids, asks []orderbook.PriceLevel) Event {
	return Event{
		Kind:   KindBook,
		PoolID: id.Hex(),
		Time:   ts.UnixMilli(),
		Book:   &BookView{Bids: LevelViews(bids), Asks: LevelViews(asks)},
	}
}

// LevelViews converts aggregated levels to their wire form.
func LevelViews(levels []orderbook.PriceLevel) []LevelView {
	out := make([]LevelView, 0, len(levels))
	for _, l := range levels {
		out = append(out, LevelView{Price: Decimal(l.Price), Qty: Decimal(l.Qty), Orders: l.Orders})
	}
	return out
}
