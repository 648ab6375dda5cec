package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/bookhook/pkg/app/amm"
	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
	"github.com/uhyunpark/bookhook/pkg/app/manager"
	"github.com/uhyunpark/bookhook/pkg/events"
	"github.com/uhyunpark/bookhook/pkg/hooks"
	"github.com/uhyunpark/bookhook/pkg/metrics"
	"github.com/uhyunpark/bookhook/pkg/storage"
)

type Config struct {
	AllowedOrigins []string
	DefaultPrice   *uint256.Int // pool price when an initialize request omits one
}

// Server handles REST API and WebSocket connections
type Server struct {
	cfg     Config
	hook    *hooks.Controller
	manager *manager.Manager
	metrics *metrics.Metrics
	router  *mux.Router
	hub     *Hub
	http    *http.Server
	log     *zap.SugaredLogger
}

// NewServer creates a new API server. The hub must be registered as an events
// sink by the caller and run with Hub().Run.
func NewServer(cfg Config, hook *hooks.Controller, mgr *manager.Manager, m *metrics.Metrics, log *zap.SugaredLogger) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	s := &Server{
		cfg:     cfg,
		hook:    hook,
		manager: mgr,
		metrics: m,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		log:     log,
	}
	s.setupRoutes()
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Pool endpoints
	api.HandleFunc("/pools", s.handleGetPools).Methods("GET")
	api.HandleFunc("/pools", s.handleInitializePool).Methods("POST")
	api.HandleFunc("/pools/{id}", s.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{id}/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/pools/{id}/liquidity", s.handleModifyLiquidity).Methods("POST")

	// Order endpoints
	api.HandleFunc("/pools/{id}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/pools/{id}/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/pools/{id}/orders/cancel", s.handleCancelOrder).Methods("POST")

	// Swaps and their status
	api.HandleFunc("/pools/{id}/swaps", s.handleSwap).Methods("POST")
	api.HandleFunc("/tx/{id}", s.handleGetTx).Methods("GET")
	api.HandleFunc("/tx/{id}/receipt", s.handleGetReceipt).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Infow("api_server_listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools := s.hook.Pools()
	response := make([]PoolInfo, len(pools))
	for i, p := range pools {
		response[i] = poolInfo(p)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, ok := poolID(w, r)
	if !ok {
		return
	}
	p, err := s.hook.Pool(id)
	if err != nil {
		s.respondFailure(w, err, "")
		return
	}
	respondJSON(w, poolInfo(p))
}

func (s *Server) handleInitializePool(w http.ResponseWriter, r *http.Request) {
	var req InitializePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	sender, ok := address(w, "sender", req.Sender)
	if !ok {
		return
	}
	c0, ok := address(w, "currency0", req.Currency0)
	if !ok {
		return
	}
	c1, ok := address(w, "currency1", req.Currency1)
	if !ok {
		return
	}
	price := s.cfg.DefaultPrice
	if req.Price != "" {
		p, err := fixed.FromDecimalString(req.Price)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid price", err.Error())
			return
		}
		price = p
	}
	if price == nil {
		respondError(w, http.StatusBadRequest, "missing price", "")
		return
	}

	key := pool.Key{Currency0: c0, Currency1: c1, Fee: req.Fee, TickSpacing: req.TickSpacing, Hooks: s.hook.Address()}
	rec, err := s.manager.Initialize(sender, key, price)
	if err != nil {
		s.respondFailure(w, err, rec.ID)
		return
	}
	p, err := s.hook.Pool(key.ID())
	if err != nil {
		s.respondFailure(w, err, rec.ID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(poolInfo(p))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := poolID(w, r)
	if !ok {
		return
	}
	bids, asks, err := s.hook.Depth(id)
	if err != nil {
		s.respondFailure(w, err, "")
		return
	}
	respondJSON(w, BookSnapshot{
		PoolID:    id.Hex(),
		Bids:      events.LevelViews(bids),
		Asks:      events.LevelViews(asks),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := poolID(w, r)
	if !ok {
		return
	}
	owner, ok := address(w, "owner", r.URL.Query().Get("owner"))
	if !ok {
		return
	}
	orders, err := s.hook.OrdersOf(id, owner)
	if err != nil {
		s.respondFailure(w, err, "")
		return
	}
	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = *orderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := poolID(w, r)
	if !ok {
		return
	}
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := address(w, "owner", req.Owner)
	if !ok {
		return
	}
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}
	price, err := fixed.FromDecimalString(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	qty, err := fixed.FromDecimalString(req.Quantity)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid quantity", err.Error())
		return
	}

	out, err := s.manager.PlaceOrder(owner, id, side, price, qty)
	if err != nil {
		s.respondFailure(w, err, out.Tx.ID)
		return
	}
	p := out.Placement
	response := PlaceOrderResponse{
		TxID:     out.Tx.ID,
		Status:   string(out.Tx.Status),
		Order:    orderInfo(p.Order),
		Fills:    events.NewFillEvent(id, "order", time.Now(), p.Fills).Fills,
		Matched:  events.Decimal(p.Matched),
		Unrested: events.Decimal(p.Unrested),
		Evicted:  orderInfo(p.Evicted),
	}
	respondJSON(w, response)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := poolID(w, r)
	if !ok {
		return
	}
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := address(w, "owner", req.Owner)
	if !ok {
		return
	}
	if req.OrderID == 0 {
		respondError(w, http.StatusBadRequest, "missing orderId", "")
		return
	}

	rec, freed, err := s.manager.CancelOrder(owner, id, req.OrderID)
	if err != nil {
		s.respondFailure(w, err, rec.ID)
		return
	}
	respondJSON(w, CancelOrderResponse{
		TxID:    rec.ID,
		Status:  string(rec.Status),
		OrderID: req.OrderID,
		Freed:   events.Decimal(freed),
	})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	id, ok := poolID(w, r)
	if !ok {
		return
	}
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	sender, ok := address(w, "sender", req.Sender)
	if !ok {
		return
	}
	amount, err := fixed.FromDecimalString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	if amount.IsZero() {
		respondError(w, http.StatusBadRequest, "invalid amount", "amount must be positive")
		return
	}
	params := pool.SwapParams{ZeroForOne: req.ZeroForOne, AmountSpecified: amount.ToBig()}
	if !req.ExactInput {
		params.AmountSpecified.Neg(params.AmountSpecified)
	}
	if req.PriceLimit != "" {
		if params.PriceLimit, err = fixed.FromDecimalString(req.PriceLimit); err != nil {
			respondError(w, http.StatusBadRequest, "invalid priceLimit", err.Error())
			return
		}
	}
	info, err := s.hook.Pool(id)
	if err != nil {
		s.respondFailure(w, err, "")
		return
	}

	res, err := s.manager.Swap(sender, info.Key, params, nil)
	if err != nil {
		s.respondFailure(w, err, res.Tx.ID)
		return
	}
	respondJSON(w, SwapResponse{
		TxID:    res.Tx.ID,
		Status:  string(res.Tx.Status),
		Amount0: res.Delta.Amount0.String(),
		Amount1: res.Delta.Amount1.String(),
		Book0:   res.Book.Amount0.String(),
		Book1:   res.Book.Amount1.String(),
		Fee:     res.Fee,
	})
}

func (s *Server) handleModifyLiquidity(w http.ResponseWriter, r *http.Request) {
	id, ok := poolID(w, r)
	if !ok {
		return
	}
	var req ModifyLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	sender, ok := address(w, "sender", req.Sender)
	if !ok {
		return
	}
	neg := strings.HasPrefix(req.LiquidityDelta, "-")
	l, err := fixed.FromDecimalString(strings.TrimPrefix(req.LiquidityDelta, "-"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid liquidityDelta", err.Error())
		return
	}
	delta := l.ToBig()
	if neg {
		delta.Neg(delta)
	}
	info, err := s.hook.Pool(id)
	if err != nil {
		s.respondFailure(w, err, "")
		return
	}

	params := pool.ModifyLiquidityParams{TickLower: req.TickLower, TickUpper: req.TickUpper, LiquidityDelta: delta}
	rec, _, err := s.manager.ModifyLiquidity(sender, info.Key, params, nil)
	if err != nil {
		s.respondFailure(w, err, rec.ID)
		return
	}
	respondJSON(w, txInfo(rec))
}

func (s *Server) handleGetTx(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.Tx(mux.Vars(r)["id"])
	if err != nil {
		s.respondFailure(w, err, "")
		return
	}
	respondJSON(w, txInfo(rec))
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.manager.Receipt(mux.Vars(r)["id"])
	if err != nil {
		s.respondFailure(w, err, "")
		return
	}
	respondJSON(w, receipt)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status":    "ok",
		"pools":     len(s.hook.Pools()),
		"wsClients": s.hub.Clients(),
	})
}

// ==============================
// Helper Functions
// ==============================

func poolID(w http.ResponseWriter, r *http.Request) (pool.ID, bool) {
	id, err := pool.IDFromHex(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pool id", err.Error())
		return pool.ID{}, false
	}
	return id, true
}

func address(w http.ResponseWriter, field, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid "+field, s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func poolInfo(p hooks.PoolInfo) PoolInfo {
	out := PoolInfo{
		ID:          p.ID.Hex(),
		Currency0:   p.Key.Currency0.Hex(),
		Currency1:   p.Key.Currency1.Hex(),
		Fee:         p.Key.Fee,
		TickSpacing: p.Key.TickSpacing,
		Hooks:       p.Key.Hooks.Hex(),
		Active:      p.Active,
		Orders:      p.Orders,
		CreatedAt:   p.CreatedAt.UnixMilli(),
	}
	if p.InitPrice != nil {
		out.InitPrice = events.Decimal(p.InitPrice)
	}
	if p.BestBid != nil {
		out.BestBid = events.Decimal(p.BestBid)
	}
	if p.BestAsk != nil {
		out.BestAsk = events.Decimal(p.BestAsk)
	}
	return out
}

func orderInfo(o *orderbook.Order) *OrderInfo {
	if o == nil {
		return nil
	}
	return &OrderInfo{
		ID:        o.ID,
		Owner:     o.Owner.Hex(),
		Side:      o.Side.String(),
		Price:     events.Decimal(o.Price),
		Original:  events.Decimal(o.Original),
		Remaining: events.Decimal(o.Remaining),
		Filled:    events.Decimal(o.Filled()),
	}
}

func txInfo(rec storage.TxRecord) TxInfo {
	return TxInfo{
		ID:        rec.ID,
		Kind:      rec.Kind,
		PoolID:    rec.PoolID,
		Sender:    rec.Sender,
		Status:    string(rec.Status),
		Message:   rec.Error,
		Amount0:   rec.Amount0,
		Amount1:   rec.Amount1,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// statusFor maps an operation error to an HTTP status. Fatal kinds are hidden
// behind a generic message.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, storage.ErrTxNotFound),
		errors.Is(err, hooks.ErrPoolNotInitialized),
		errors.Is(err, orderbook.ErrOrderNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, orderbook.ErrUnauthorized):
		return http.StatusForbidden, true
	case errors.Is(err, hooks.ErrBookFull),
		errors.Is(err, hooks.ErrAlreadyInitialized),
		errors.Is(err, amm.ErrPoolExists):
		return http.StatusConflict, true
	case errors.Is(err, amm.ErrPriceLimit),
		errors.Is(err, amm.ErrInsufficientLiq),
		errors.Is(err, amm.ErrInvalidLiquidity),
		errors.Is(err, manager.ErrMissingAmount):
		return http.StatusUnprocessableEntity, true
	}
	if hooks.IsFatal(err) {
		return http.StatusInternalServerError, false
	}
	if hooks.KindOf(err) == hooks.KindUser {
		return http.StatusBadRequest, true
	}
	return http.StatusInternalServerError, false
}

func (s *Server) respondFailure(w http.ResponseWriter, err error, txID string) {
	status, expose := statusFor(err)
	msg := "internal error"
	if expose {
		msg = err.Error()
	} else {
		s.log.Errorw("request_failed", "tx", txID, "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: msg,
		TxID:    txID,
	})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
