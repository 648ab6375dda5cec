// Package manager drives the hook callbacks the way a pool manager would: one
// operation at a time, before-callback, AMM leg, after-callback, and a rollback of
// the hook's in-flight state whenever a later step fails.
package manager

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/bookhook/pkg/app/amm"
	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
	"github.com/uhyunpark/bookhook/pkg/hooks"
	"github.com/uhyunpark/bookhook/pkg/storage"
	"github.com/uhyunpark/bookhook/pkg/util"
)

var (
	ErrBadSelector   = errors.New("hook returned an unexpected selector")
	ErrMissingAmount = errors.New("swap amount missing")
	ErrHookOverfill  = errors.New("hook delta exceeds swap amount")
)

// Hook is what the manager needs from the order-book hook.
type Hook interface {
	hooks.Hooks
	Abort(key pool.Key)
	PlaceOrder(id pool.ID, owner common.Address, side orderbook.Side, price, qty *uint256.Int) (hooks.Placement, error)
	CancelOrder(id pool.ID, caller common.Address, orderID uint64) (*uint256.Int, error)
}

// TxStore keeps transaction records for status queries.
type TxStore interface {
	SaveTx(rec storage.TxRecord) error
	LoadTx(id string) (storage.TxRecord, error)
}

type Config struct {
	Network string
}

// SwapResult is what a caller of Swap sees.
type SwapResult struct {
	Tx    storage.TxRecord
	Delta pool.BalanceDelta // swapper-side total
	Book  pool.BalanceDelta // part filled by resting orders
	AMM   pool.BalanceDelta
	Fee   uint32 // LP fee charged on the AMM leg, in pips
}

// OrderResult is what a caller of PlaceOrder sees.
type OrderResult struct {
	Tx        storage.TxRecord
	Placement hooks.Placement
}

type Manager struct {
	mu    sync.Mutex
	cfg   Config
	hook  Hook
	amm   amm.Pricer
	txs   TxStore
	wal   storage.WAL
	clock util.Clock
	log   *zap.SugaredLogger
}

type Option func(*Manager)

func WithWAL(w storage.WAL) Option  { return func(m *Manager) { m.wal = w } }
func WithClock(c util.Clock) Option { return func(m *Manager) { m.clock = c } }
func WithTxStore(s TxStore) Option  { return func(m *Manager) { m.txs = s } }

func New(cfg Config, hook Hook, pricer amm.Pricer, log *zap.SugaredLogger, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg,
		hook:  hook,
		amm:   pricer,
		txs:   storage.NewMemStore(),
		wal:   storage.NewNopWAL(),
		clock: util.RealClock{},
		log:   log,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) begin(kind string, id pool.ID, sender common.Address) storage.TxRecord {
	now := m.clock.Now().UnixMilli()
	rec := storage.TxRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		PoolID:    id.Hex(),
		Sender:    sender.Hex(),
		Status:    storage.TxPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.txs.SaveTx(rec); err != nil {
		m.log.Warnw("tx_save_failed", "tx", rec.ID, "err", err)
	}
	return rec
}

// finish records the outcome of rec and passes err through.
func (m *Manager) finish(rec *storage.TxRecord, err error) error {
	rec.UpdatedAt = m.clock.Now().UnixMilli()
	if err != nil {
		rec.Status = storage.TxFailed
		rec.Error = err.Error()
	} else {
		rec.Status = storage.TxConfirmed
	}
	if serr := m.txs.SaveTx(*rec); serr != nil {
		m.log.Warnw("tx_save_failed", "tx", rec.ID, "err", serr)
	}
	if werr := m.wal.Append(*rec); werr != nil {
		m.log.Warnw("tx_wal_failed", "tx", rec.ID, "err", werr)
	}
	if err != nil {
		m.log.Infow("tx_failed", "tx", rec.ID, "kind", rec.Kind, "pool", rec.PoolID, "err", err)
	}
	return err
}

func setAmounts(rec *storage.TxRecord, d pool.BalanceDelta) {
	if d.Amount0 != nil {
		rec.Amount0 = d.Amount0.String()
	}
	if d.Amount1 != nil {
		rec.Amount1 = d.Amount1.String()
	}
}

// Initialize registers a pool with the hook and the AMM.
func (m *Manager) Initialize(sender common.Address, key pool.Key, price *uint256.Int) (storage.TxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.begin("initialize", key.ID(), sender)
	return rec, m.finish(&rec, m.initialize(sender, key, price))
}

func (m *Manager) initialize(sender common.Address, key pool.Key, price *uint256.Int) error {
	sel, err := m.hook.BeforeInitialize(sender, key, price)
	if err != nil {
		return err
	}
	if sel != hooks.SelBeforeInitialize {
		m.hook.Abort(key)
		return fmt.Errorf("beforeInitialize: %w", ErrBadSelector)
	}
	if err := m.amm.Initialize(key, price); err != nil {
		m.hook.Abort(key)
		return err
	}
	sel, err = m.hook.AfterInitialize(sender, key, price, 0)
	if err == nil && sel != hooks.SelAfterInitialize {
		err = fmt.Errorf("afterInitialize: %w", ErrBadSelector)
	}
	if err != nil {
		m.amm.Forget(key)
		m.hook.Abort(key)
		return err
	}
	m.log.Infow("pool_initialized", "pool", key.ID().Hex(), "price", fixed.ToDecimal(price).String())
	return nil
}

// Restore seeds the AMM for a pool the hook rebuilt from storage.
func (m *Manager) Restore(key pool.Key, price *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.amm.Initialize(key, price)
}

// Swap fills params against the book first and routes the remainder to the AMM.
func (m *Manager) Swap(sender common.Address, key pool.Key, params pool.SwapParams, hookData []byte) (SwapResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := SwapResult{Tx: m.begin("swap", key.ID(), sender)}
	err := m.swap(sender, key, params, hookData, &res)
	if err == nil {
		setAmounts(&res.Tx, res.Delta)
	}
	return res, m.finish(&res.Tx, err)
}

func (m *Manager) swap(sender common.Address, key pool.Key, params pool.SwapParams, hookData []byte, res *SwapResult) error {
	if params.AmountSpecified == nil {
		return ErrMissingAmount
	}
	sel, hookDelta, override, err := m.hook.BeforeSwap(sender, key, params, hookData)
	if err != nil {
		return err
	}
	if sel != hooks.SelBeforeSwap {
		m.hook.Abort(key)
		return fmt.Errorf("beforeSwap: %w", ErrBadSelector)
	}

	fee := key.Fee
	if pips, ok := override.Pips(); ok {
		fee = pips
	}
	left := new(big.Int).Abs(params.AmountSpecified)
	left.Sub(left, new(big.Int).Abs(hookDelta.Specified))
	if left.Sign() < 0 {
		m.hook.Abort(key)
		return fmt.Errorf("%w: %s > %s", ErrHookOverfill, hookDelta.Specified, params.AmountSpecified)
	}
	remaining, err := fixed.FromBigAbs(left)
	if err != nil {
		m.hook.Abort(key)
		return err
	}

	ammDelta, err := m.amm.Swap(key, params, remaining, fee)
	if err != nil {
		m.hook.Abort(key)
		return err
	}
	sel, _, err = m.hook.AfterSwap(sender, key, params, ammDelta, hookData)
	if err == nil && sel != hooks.SelAfterSwap {
		err = fmt.Errorf("afterSwap: %w", ErrBadSelector)
	}
	if err != nil {
		m.hook.Abort(key)
		return err
	}

	res.Book = hookDelta.ToBalanceDelta(params)
	res.AMM = ammDelta
	res.Delta = res.Book.Add(ammDelta)
	res.Fee = fee
	m.log.Infow("swap_settled",
		"tx", res.Tx.ID,
		"pool", key.ID().Hex(),
		"book", res.Book.String(),
		"amm", res.AMM.String(),
		"fee", fee,
	)
	return nil
}

// ModifyLiquidity changes an AMM position between the liquidity callbacks.
func (m *Manager) ModifyLiquidity(sender common.Address, key pool.Key, params pool.ModifyLiquidityParams, hookData []byte) (storage.TxRecord, pool.BalanceDelta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.begin("modifyLiquidity", key.ID(), sender)
	delta, err := m.modifyLiquidity(sender, key, params, hookData)
	if err == nil {
		setAmounts(&rec, delta)
	}
	return rec, delta, m.finish(&rec, err)
}

func (m *Manager) modifyLiquidity(sender common.Address, key pool.Key, params pool.ModifyLiquidityParams, hookData []byte) (pool.BalanceDelta, error) {
	sel, err := m.hook.BeforeModifyLiquidity(sender, key, params, hookData)
	if err != nil {
		return pool.BalanceDelta{}, err
	}
	if sel != hooks.SelBeforeModifyLiquidity {
		m.hook.Abort(key)
		return pool.BalanceDelta{}, fmt.Errorf("beforeModifyLiquidity: %w", ErrBadSelector)
	}
	delta, err := m.amm.ModifyLiquidity(key, params)
	if err != nil {
		m.hook.Abort(key)
		return pool.BalanceDelta{}, err
	}
	sel, hookDelta, err := m.hook.AfterModifyLiquidity(sender, key, params, delta, hookData)
	if err == nil && sel != hooks.SelAfterModifyLiquidity {
		err = fmt.Errorf("afterModifyLiquidity: %w", ErrBadSelector)
	}
	if err != nil {
		m.hook.Abort(key)
		return pool.BalanceDelta{}, err
	}
	return delta.Add(hookDelta), nil
}

// PlaceOrder rests a limit order on a pool's book.
func (m *Manager) PlaceOrder(owner common.Address, id pool.ID, side orderbook.Side, price, qty *uint256.Int) (OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := OrderResult{Tx: m.begin("placeOrder", id, owner)}
	p, err := m.hook.PlaceOrder(id, owner, side, price, qty)
	if err == nil {
		out.Placement = p
		out.Tx.BookFills = len(p.Fills)
	}
	return out, m.finish(&out.Tx, err)
}

// CancelOrder removes owner's order and returns the freed quantity.
func (m *Manager) CancelOrder(owner common.Address, id pool.ID, orderID uint64) (storage.TxRecord, *uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.begin("cancelOrder", id, owner)
	freed, err := m.hook.CancelOrder(id, owner, orderID)
	return rec, freed, m.finish(&rec, err)
}

// Tx returns a transaction record by id.
func (m *Manager) Tx(id string) (storage.TxRecord, error) {
	return m.txs.LoadTx(id)
}

// Receipt is the export of a transaction's outcome.
type Receipt struct {
	Identifier string           `json:"identifier"`
	Timestamp  string           `json:"timestamp"`
	Status     storage.TxStatus `json:"status"`
	Network    string           `json:"network"`
}

// Receipt exports a transaction record.
func (m *Manager) Receipt(id string) (Receipt, error) {
	rec, err := m.txs.LoadTx(id)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		Identifier: rec.ID,
		Timestamp:  time.UnixMilli(rec.UpdatedAt).UTC().Format(time.RFC3339),
		Status:     rec.Status,
		Network:    m.cfg.Network,
	}, nil
}
