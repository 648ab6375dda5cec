package hooks

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/matching"
	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
	"github.com/uhyunpark/bookhook/pkg/events"
	"github.com/uhyunpark/bookhook/pkg/metrics"
	"github.com/uhyunpark/bookhook/pkg/storage"
	"github.com/uhyunpark/bookhook/pkg/util"
)

// EvictionPolicy decides what happens when a full book receives a new order.
type EvictionPolicy string

const (
	// EvictReject refuses the new order.
	EvictReject EvictionPolicy = "reject"
	// EvictWorst removes the worst-priced order of the same side if the new order
	// is priced better, and refuses the new order otherwise.
	EvictWorst EvictionPolicy = "evict"
)

// DefaultMaxLevelsPerSwap bounds matching when the config leaves it unset.
const DefaultMaxLevelsPerSwap = 32

type Config struct {
	Address          common.Address // hook address pool keys must name
	MaxLevelsPerSwap int
	MaxOrdersPerBook int // 0 = unbounded
	Eviction         EvictionPolicy
}

// Store persists registrations and committed book changes.
type Store interface {
	SavePool(rec storage.PoolRecord) error
	ApplyChanges(id pool.ID, ch orderbook.Changes, nextID, nextSeq uint64) error
}

type poolState uint8

const (
	statePending poolState = iota // between beforeInitialize and afterInitialize
	stateActive
)

// bookPrint summarizes a book so liquidity callbacks can prove they left it alone.
type bookPrint struct {
	orders     int
	bids, asks uint256.Int
	nextID     uint64
}

func fingerprint(ob *orderbook.OrderBook) bookPrint {
	id, _ := ob.Counters()
	return bookPrint{
		orders: ob.Len(),
		bids:   *ob.TotalQuantity(orderbook.Buy),
		asks:   *ob.TotalQuantity(orderbook.Sell),
		nextID: id,
	}
}

type pendingSwap struct {
	sender common.Address
	params pool.SwapParams
	result matching.Result
	delta  pool.BeforeSwapDelta
}

// registration is the per-pool state owned by the controller.
type registration struct {
	key       pool.Key
	book      *orderbook.OrderBook
	state     poolState
	initPrice *uint256.Int
	createdAt time.Time

	swap      *pendingSwap
	liquidity *bookPrint
}

// Controller is the order-book hook. Each registered pool owns one OrderBook;
// callbacks on a pool are serialized by the controller's lock.
type Controller struct {
	mu    sync.RWMutex
	cfg   Config
	pools map[pool.ID]*registration

	store   Store
	pub     events.Publisher
	fees    FeePolicy
	metrics *metrics.Metrics
	clock   util.Clock
	log     *zap.SugaredLogger
}

type Option func(*Controller)

func WithStore(s Store) Option                { return func(c *Controller) { c.store = s } }
func WithPublisher(p events.Publisher) Option { return func(c *Controller) { c.pub = p } }
func WithFeePolicy(p FeePolicy) Option        { return func(c *Controller) { c.fees = p } }
func WithMetrics(m *metrics.Metrics) Option   { return func(c *Controller) { c.metrics = m } }
func WithClock(clk util.Clock) Option         { return func(c *Controller) { c.clock = clk } }

func NewController(cfg Config, log *zap.SugaredLogger, opts ...Option) *Controller {
	if cfg.MaxLevelsPerSwap <= 0 {
		cfg.MaxLevelsPerSwap = DefaultMaxLevelsPerSwap
	}
	if cfg.Eviction == "" {
		cfg.Eviction = EvictReject
	}
	c := &Controller{
		cfg:   cfg,
		pools: make(map[pool.ID]*registration),
		pub:   events.Nop{},
		fees:  NoFeeOverride{},
		clock: util.RealClock{},
		log:   log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ Hooks = (*Controller)(nil)

// Address returns the hook address pool keys must carry.
func (c *Controller) Address() common.Address { return c.cfg.Address }

// Permissions reports that every callback is implemented and BeforeSwap returns a delta.
func (c *Controller) Permissions() Permissions {
	return Permissions{
		BeforeInitialize:      true,
		AfterInitialize:       true,
		BeforeSwap:            true,
		AfterSwap:             true,
		BeforeModifyLiquidity: true,
		AfterModifyLiquidity:  true,
		BeforeSwapReturnDelta: true,
	}
}

func (c *Controller) observe(op string, started time.Time, err *error) {
	c.metrics.ObserveCallback(op, started, *err)
	if *err != nil && IsFatal(*err) {
		c.log.Errorw("callback_failed", "op", op, "kind", KindOf(*err).String(), "err", *err)
	}
}

// active returns the registration of an initialized pool.
func (c *Controller) active(op string, id pool.ID) (*registration, error) {
	reg, ok := c.pools[id]
	if !ok {
		return nil, userErr(op, fmt.Errorf("%s: %w", id.Hex(), ErrPoolNotInitialized))
	}
	if reg.state != stateActive {
		return nil, userErr(op, fmt.Errorf("%s: %w", id.Hex(), ErrPoolNotActive))
	}
	return reg, nil
}

func (c *Controller) BeforeInitialize(sender common.Address, key pool.Key, price *uint256.Int) (_ Selector, err error) {
	const op = "beforeInitialize"
	defer c.observe(op, time.Now(), &err)

	if verr := key.Validate(); verr != nil {
		return Selector{}, userErr(op, fmt.Errorf("%w: %v", ErrInvalidPoolKey, verr))
	}
	if key.Hooks != c.cfg.Address {
		return Selector{}, userErr(op, fmt.Errorf("%w: %s", ErrHookAddressMismatch, key.Hooks.Hex()))
	}
	if price == nil || price.IsZero() {
		return Selector{}, userErr(op, orderbook.ErrZeroPrice)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.ID()
	if _, exists := c.pools[id]; exists {
		return Selector{}, userErr(op, fmt.Errorf("%s: %w", id.Hex(), ErrAlreadyInitialized))
	}
	c.pools[id] = &registration{
		key:       key,
		book:      orderbook.NewOrderBook(),
		state:     statePending,
		initPrice: price.Clone(),
		createdAt: c.clock.Now(),
	}
	c.log.Infow("pool_registered", "pool", id.Hex(), "sender", sender.Hex(), "price", fixed.ToDecimal(price).String())
	return SelBeforeInitialize, nil
}

func (c *Controller) AfterInitialize(sender common.Address, key pool.Key, price *uint256.Int, tick int32) (_ Selector, err error) {
	const op = "afterInitialize"
	defer c.observe(op, time.Now(), &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.ID()
	reg, ok := c.pools[id]
	if !ok {
		return Selector{}, userErr(op, fmt.Errorf("%s: %w", id.Hex(), ErrPoolNotInitialized))
	}
	if reg.state != statePending {
		return Selector{}, userErr(op, fmt.Errorf("%s: %w", id.Hex(), ErrAlreadyInitialized))
	}
	if c.store != nil {
		rec := storage.PoolRecord{
			Key:       key,
			Active:    true,
			InitPrice: reg.initPrice.Dec(),
			CreatedAt: reg.createdAt.UnixMilli(),
		}
		if serr := c.store.SavePool(rec); serr != nil {
			return Selector{}, boundaryErr(op, fmt.Errorf("%w: %v", ErrPersistFailure, serr))
		}
	}
	reg.state = stateActive
	c.log.Infow("pool_active", "pool", id.Hex(), "sender", sender.Hex(), "tick", tick)
	return SelAfterInitialize, nil
}

func (c *Controller) BeforeSwap(sender common.Address, key pool.Key, params pool.SwapParams, _ []byte) (_ Selector, _ pool.BeforeSwapDelta, _ FeeOverride, err error) {
	const op = "beforeSwap"
	defer c.observe(op, time.Now(), &err)
	none := pool.ZeroBeforeSwapDelta()

	c.mu.Lock()
	defer c.mu.Unlock()

	reg, err := c.active(op, key.ID())
	if err != nil {
		return Selector{}, none, 0, err
	}
	if reg.swap != nil || reg.liquidity != nil {
		return Selector{}, none, 0, boundaryErr(op, ErrReentrantCall)
	}
	req, err := matching.RequestFromSwap(params)
	if err != nil {
		return Selector{}, none, 0, userErr(op, err)
	}
	if err := reg.book.Begin(); err != nil {
		return Selector{}, none, 0, invariantErr(op, err)
	}

	res, err := matching.Match(reg.book, req, c.cfg.MaxLevelsPerSwap)
	if err != nil {
		reg.book.Rollback()
		return Selector{}, none, 0, invariantErr(op, err)
	}
	delta := res.Delta(params)
	if err := checkDelta(params, delta); err != nil {
		reg.book.Rollback()
		return Selector{}, none, 0, invariantErr(op, err)
	}

	reg.swap = &pendingSwap{
		sender: sender,
		params: copySwapParams(params),
		result: res,
		delta:  delta,
	}
	fee := c.fees.Override(key, params, res)
	c.log.Debugw("before_swap",
		"pool", key.ID().Hex(),
		"zero_for_one", params.ZeroForOne,
		"amount", params.AmountSpecified.String(),
		"fills", len(res.Fills),
		"delta", delta.String(),
	)
	return SelBeforeSwap, delta, fee, nil
}

// checkDelta enforces |specified| <= |amountSpecified| and that the legs keep the
// swap's direction.
func checkDelta(params pool.SwapParams, d pool.BeforeSwapDelta) error {
	amount := new(big.Int).Abs(params.AmountSpecified)
	if new(big.Int).Abs(d.Specified).Cmp(amount) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrDeltaExceeded, d.Specified, amount)
	}
	sign := params.AmountSpecified.Sign()
	if d.Specified.Sign() == 0 {
		if d.Unspecified.Sign() != 0 {
			return fmt.Errorf("%w: unspecified %s without specified", ErrDeltaSign, d.Unspecified)
		}
		return nil
	}
	if d.Specified.Sign() != sign || d.Unspecified.Sign() == sign {
		return fmt.Errorf("%w: %s for amount %s", ErrDeltaSign, d, params.AmountSpecified)
	}
	return nil
}

// sameLimit treats a nil limit and a zero limit as "no limit".
func sameLimit(a, b *uint256.Int) bool {
	if a == nil || a.IsZero() {
		return b == nil || b.IsZero()
	}
	return b != nil && a.Eq(b)
}

func copySwapParams(p pool.SwapParams) pool.SwapParams {
	out := pool.SwapParams{ZeroForOne: p.ZeroForOne, AmountSpecified: new(big.Int).Set(p.AmountSpecified)}
	if p.PriceLimit != nil {
		out.PriceLimit = p.PriceLimit.Clone()
	}
	return out
}

// AfterSwap reconciles the AMM leg with the matched portion and commits the book.
// delta is what the AMM realized for the unmatched remainder, from the swapper's
// side: its specified leg plus the hook's specified delta must cover the whole
// specified amount.
func (c *Controller) AfterSwap(sender common.Address, key pool.Key, params pool.SwapParams, delta pool.BalanceDelta, _ []byte) (_ Selector, _ *big.Int, err error) {
	const op = "afterSwap"
	defer c.observe(op, time.Now(), &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.ID()
	reg, ok := c.pools[id]
	if !ok || reg.swap == nil {
		return Selector{}, nil, boundaryErr(op, fmt.Errorf("%s: %w", id.Hex(), ErrNoPendingSwap))
	}
	ps := reg.swap

	if params.ZeroForOne != ps.params.ZeroForOne || params.AmountSpecified == nil ||
		params.AmountSpecified.Cmp(ps.params.AmountSpecified) != 0 ||
		!sameLimit(params.PriceLimit, ps.params.PriceLimit) {
		c.abortSwap(reg)
		return Selector{}, nil, boundaryErr(op, ErrSwapMismatch)
	}
	if err := reconcile(params, ps.delta, delta); err != nil {
		c.abortSwap(reg)
		return Selector{}, nil, boundaryErr(op, err)
	}
	if err := c.persist(reg); err != nil {
		c.abortSwap(reg)
		return Selector{}, nil, boundaryErr(op, err)
	}
	reg.book.Commit()
	reg.swap = nil

	res := ps.result
	if len(res.Fills) > 0 {
		c.announce(reg, "swap", res.Fills)
		c.log.Infow("swap_matched",
			"pool", id.Hex(),
			"sender", sender.Hex(),
			"fills", len(res.Fills),
			"levels", res.Levels,
			"specified", res.Specified.Dec(),
			"unspecified", res.Unspecified.Dec(),
			"avg_price", fixed.ToDecimal(res.AveragePrice).String(),
		)
	}
	return SelAfterSwap, new(big.Int), nil
}

func reconcile(params pool.SwapParams, hook pool.BeforeSwapDelta, amm pool.BalanceDelta) error {
	ammSpec, _ := amm.Legs(params)
	// the specified leg is paid (negative) on exact-input and received on exact-output
	if params.ExactInput() && ammSpec.Sign() > 0 || !params.ExactInput() && ammSpec.Sign() < 0 {
		return fmt.Errorf("%w: amm specified leg %s has the wrong sign", ErrDeltaMismatch, ammSpec)
	}
	total := new(big.Int).Abs(ammSpec)
	total.Add(total, new(big.Int).Abs(hook.Specified))
	want := new(big.Int).Abs(params.AmountSpecified)
	if total.Cmp(want) != 0 {
		return fmt.Errorf("%w: amm %s + hook %s != %s", ErrDeltaMismatch, ammSpec, hook.Specified, want)
	}
	return nil
}

// persist writes the open journal of reg to the store.
func (c *Controller) persist(reg *registration) error {
	if c.store == nil {
		return nil
	}
	ch := reg.book.Pending()
	if ch.Empty() {
		return nil
	}
	nextID, nextSeq := reg.book.Counters()
	if err := c.store.ApplyChanges(reg.key.ID(), ch, nextID, nextSeq); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailure, err)
	}
	return nil
}

func (c *Controller) abortSwap(reg *registration) {
	reg.book.Rollback()
	reg.swap = nil
}

// announce publishes fills and the resulting depth, and refreshes depth gauges.
func (c *Controller) announce(reg *registration, source string, fills []matching.Fill) {
	id := reg.key.ID()
	now := c.clock.Now()
	if len(fills) > 0 {
		c.pub.Publish(events.NewFillEvent(id, source, now, fills))
		c.metrics.RecordFills(id.Hex(), fills[0].Side.String(), len(fills))
	}
	c.pub.Publish(events.NewBookEvent(id, now, reg.book.Levels(orderbook.Buy), reg.book.Levels(orderbook.Sell)))
	c.metrics.UpdateBookDepth(id.Hex(), orderbook.Buy.String(), reg.book.SideLen(orderbook.Buy))
	c.metrics.UpdateBookDepth(id.Hex(), orderbook.Sell.String(), reg.book.SideLen(orderbook.Sell))
}

func validLiquidity(key pool.Key, p pool.ModifyLiquidityParams) error {
	if p.LiquidityDelta == nil {
		return fmt.Errorf("%w: missing liquidity delta", ErrInvalidLiquidity)
	}
	if p.TickLower >= p.TickUpper {
		return fmt.Errorf("%w: tick range [%d, %d)", ErrInvalidLiquidity, p.TickLower, p.TickUpper)
	}
	if p.TickLower%key.TickSpacing != 0 || p.TickUpper%key.TickSpacing != 0 {
		return fmt.Errorf("%w: ticks not multiples of %d", ErrInvalidLiquidity, key.TickSpacing)
	}
	return nil
}

// BeforeModifyLiquidity validates the position change. Resting orders are
// independent of AMM positions, so the book is only fingerprinted.
func (c *Controller) BeforeModifyLiquidity(sender common.Address, key pool.Key, params pool.ModifyLiquidityParams, _ []byte) (_ Selector, err error) {
	const op = "beforeModifyLiquidity"
	defer c.observe(op, time.Now(), &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	reg, err := c.active(op, key.ID())
	if err != nil {
		return Selector{}, err
	}
	if reg.swap != nil || reg.liquidity != nil {
		return Selector{}, boundaryErr(op, ErrReentrantCall)
	}
	if err := validLiquidity(key, params); err != nil {
		return Selector{}, userErr(op, err)
	}
	fp := fingerprint(reg.book)
	reg.liquidity = &fp
	return SelBeforeModifyLiquidity, nil
}

// AfterModifyLiquidity checks the book is untouched and returns no delta.
func (c *Controller) AfterModifyLiquidity(sender common.Address, key pool.Key, params pool.ModifyLiquidityParams, _ pool.BalanceDelta, _ []byte) (_ Selector, _ pool.BalanceDelta, err error) {
	const op = "afterModifyLiquidity"
	defer c.observe(op, time.Now(), &err)
	none := pool.ZeroBalanceDelta()

	c.mu.Lock()
	defer c.mu.Unlock()

	reg, err := c.active(op, key.ID())
	if err != nil {
		return Selector{}, none, err
	}
	if reg.swap != nil {
		return Selector{}, none, boundaryErr(op, ErrReentrantCall)
	}
	if err := validLiquidity(key, params); err != nil {
		reg.liquidity = nil
		return Selector{}, none, userErr(op, err)
	}
	before := reg.liquidity
	if before == nil {
		return Selector{}, none, boundaryErr(op, fmt.Errorf("%s: %w", key.ID().Hex(), ErrNoPendingLiquidity))
	}
	reg.liquidity = nil
	if *before != fingerprint(reg.book) {
		return Selector{}, none, invariantErr(op, ErrBookMutated)
	}
	c.log.Debugw("liquidity_modified",
		"pool", key.ID().Hex(),
		"sender", sender.Hex(),
		"tick_lower", params.TickLower,
		"tick_upper", params.TickUpper,
		"liquidity_delta", params.LiquidityDelta.String(),
	)
	return SelAfterModifyLiquidity, none, nil
}

// Abort discards whatever a pool has in flight: the book mutations of a pending
// swap, an open liquidity check, or an unfinished initialization. The pool manager
// calls it when an operation fails after a before-callback succeeded.
func (c *Controller) Abort(key pool.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.ID()
	reg, ok := c.pools[id]
	if !ok {
		return
	}
	switch {
	case reg.state == statePending:
		delete(c.pools, id)
		c.log.Warnw("pool_init_aborted", "pool", id.Hex())
	case reg.swap != nil:
		c.abortSwap(reg)
		c.log.Warnw("swap_aborted", "pool", id.Hex())
	}
	reg.liquidity = nil
}
