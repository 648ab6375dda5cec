package orderbook

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the side a taker of s matches against.
func (s Side) Opposite() Side { return -s }

// ParseSide accepts "buy"/"sell" (any case) and "bid"/"ask".
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy", "BUY", "Buy", "bid", "BID":
		return Buy, nil
	case "sell", "SELL", "Sell", "ask", "ASK":
		return Sell, nil
	}
	return 0, ErrInvalidSide
}

var (
	ErrZeroQuantity         = errors.New("order quantity must be positive")
	ErrZeroPrice            = errors.New("order price must be positive")
	ErrInvalidSide          = errors.New("invalid order side")
	ErrOrderNotFound        = errors.New("order not found")
	ErrUnauthorized         = errors.New("caller is not the order owner")
	ErrDuplicateOrder       = errors.New("duplicate order id")
	ErrInsufficientQuantity = errors.New("consume exceeds remaining quantity")
	ErrJournalActive        = errors.New("book journal already active")
)

// Order is a resting limit order.
//
// Quantity is denominated in the currency the maker receives: bids in currency0,
// asks in currency1. Price is always currency1 per currency0 in WAD units.
type Order struct {
	ID        uint64
	Owner     common.Address
	Side      Side
	Price     *uint256.Int
	Original  *uint256.Int
	Remaining *uint256.Int
	Seq       uint64 // insertion sequence, time priority

	level *priceLevel
}

// Clone returns a detached copy safe to hand outside the book.
func (o *Order) Clone() *Order {
	return &Order{
		ID:        o.ID,
		Owner:     o.Owner,
		Side:      o.Side,
		Price:     o.Price.Clone(),
		Original:  o.Original.Clone(),
		Remaining: o.Remaining.Clone(),
		Seq:       o.Seq,
	}
}

// Filled returns Original - Remaining.
func (o *Order) Filled() *uint256.Int {
	return new(uint256.Int).Sub(o.Original, o.Remaining)
}

// PriceLevel is the aggregated view of one price.
type PriceLevel struct {
	Price  *uint256.Int
	Qty    *uint256.Int // total remaining at this price
	Orders int
}

// Changes lists what a committed journal touched: orders to upsert and ids to delete.
type Changes struct {
	Upserts []*Order
	Deletes []uint64
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool { return len(c.Upserts) == 0 && len(c.Deletes) == 0 }
