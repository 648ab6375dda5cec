package api

import "github.com/uhyunpark/bookhook/pkg/events"

// API request/response types for REST endpoints and WebSocket messages.
// Prices and quantities are decimal strings in whole-token units ("1.5" is 1.5e18 raw).

// ==============================
// REST Response Types
// ==============================

// PoolInfo describes a registered pool
type PoolInfo struct {
	ID          string `json:"id"`
	Currency0   string `json:"currency0"`
	Currency1   string `json:"currency1"`
	Fee         uint32 `json:"fee"` // pips
	TickSpacing int32  `json:"tickSpacing"`
	Hooks       string `json:"hooks"`
	Active      bool   `json:"active"`
	InitPrice   string `json:"initPrice,omitempty"`
	Orders      int    `json:"orders"`
	BestBid     string `json:"bestBid,omitempty"`
	BestAsk     string `json:"bestAsk,omitempty"`
	CreatedAt   int64  `json:"createdAt"` // Unix milliseconds
}

// BookSnapshot is aggregated depth of one pool
type BookSnapshot struct {
	PoolID    string             `json:"poolId"`
	Bids      []events.LevelView `json:"bids"` // Sorted high to low
	Asks      []events.LevelView `json:"asks"` // Sorted low to high
	Timestamp int64              `json:"timestamp"`
}

// OrderInfo is a resting order
type OrderInfo struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	Side      string `json:"side"` // "buy" or "sell"
	Price     string `json:"price"`
	Original  string `json:"original"`
	Remaining string `json:"remaining"`
	Filled    string `json:"filled"`
}

// PlaceOrderResponse is returned from POST /pools/{id}/orders
type PlaceOrderResponse struct {
	TxID     string            `json:"txId"`
	Status   string            `json:"status"`
	Order    *OrderInfo        `json:"order,omitempty"` // nil if nothing rested
	Fills    []events.FillView `json:"fills"`
	Matched  string            `json:"matched"`
	Unrested string            `json:"unrested"`
	Evicted  *OrderInfo        `json:"evicted,omitempty"`
}

// CancelOrderResponse is returned from POST /pools/{id}/orders/cancel
type CancelOrderResponse struct {
	TxID    string `json:"txId"`
	Status  string `json:"status"`
	OrderID uint64 `json:"orderId"`
	Freed   string `json:"freed"`
}

// SwapResponse is returned from POST /pools/{id}/swaps.
// Deltas are signed raw integers from the swapper's side: negative is paid in.
type SwapResponse struct {
	TxID    string `json:"txId"`
	Status  string `json:"status"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
	Book0   string `json:"book0"`
	Book1   string `json:"book1"`
	Fee     uint32 `json:"fee"`
}

// TxInfo is the status of a submitted operation
type TxInfo struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	PoolID    string `json:"poolId"`
	Sender    string `json:"sender"`
	Status    string `json:"status"` // "pending", "confirmed", "failed"
	Message   string `json:"message,omitempty"`
	Amount0   string `json:"amount0,omitempty"`
	Amount1   string `json:"amount1,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// ==============================
// REST Request Types
// ==============================

// InitializePoolRequest is the payload for POST /api/v1/pools
type InitializePoolRequest struct {
	Sender      string `json:"sender"`
	Currency0   string `json:"currency0"`
	Currency1   string `json:"currency1"`
	Fee         uint32 `json:"fee"`
	TickSpacing int32  `json:"tickSpacing"`
	Price       string `json:"price,omitempty"` // defaults to the node's dev pool price
}

// PlaceOrderRequest is the payload for POST /api/v1/pools/{id}/orders
type PlaceOrderRequest struct {
	Owner    string `json:"owner"`
	Side     string `json:"side"` // "buy" or "sell"
	Price    string `json:"price"`
	Quantity string `json:"quantity"` // currency0 for buys, currency1 for sells
}

// CancelOrderRequest is the payload for POST /api/v1/pools/{id}/orders/cancel
type CancelOrderRequest struct {
	Owner   string `json:"owner"`
	OrderID uint64 `json:"orderId"`
}

// SwapRequest is the payload for POST /api/v1/pools/{id}/swaps
type SwapRequest struct {
	Sender     string `json:"sender"`
	ZeroForOne bool   `json:"zeroForOne"`
	ExactInput bool   `json:"exactInput"`
	Amount     string `json:"amount"`
	PriceLimit string `json:"priceLimit,omitempty"`
}

// ModifyLiquidityRequest is the payload for POST /api/v1/pools/{id}/liquidity
type ModifyLiquidityRequest struct {
	Sender         string `json:"sender"`
	TickLower      int32  `json:"tickLower"`
	TickUpper      int32  `json:"tickUpper"`
	LiquidityDelta string `json:"liquidityDelta"` // signed decimal, negative removes
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	TxID    string `json:"txId,omitempty"` // set when the failure was recorded as a transaction
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["book:0x...", "fills:0x..."]
}
