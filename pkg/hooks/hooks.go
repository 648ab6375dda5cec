// Package hooks implements the pool-manager callbacks of the order-book hook.
//
// The pool manager calls a Hooks implementation before and after each initialize,
// swap and liquidity operation. The Controller intercepts swaps in BeforeSwap,
// fills as much as it can from resting orders, and hands back a delta so the AMM
// only prices the remainder.
package hooks

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

// Selector acknowledges a callback: the first four bytes of the keccak256 of its
// canonical signature.
type Selector [4]byte

func (s Selector) Hex() string { return common.Bytes2Hex(s[:]) }

func selector(sig string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(sig)))
	return s
}

const (
	keyTuple       = "(address,address,uint24,int24,address)"
	swapTuple      = "(bool,int256,uint160)"
	liquidityTuple = "(int24,int24,int256,bytes32)"
)

var (
	SelBeforeInitialize      = selector("beforeInitialize(address," + keyTuple + ",uint160)")
	SelAfterInitialize       = selector("afterInitialize(address," + keyTuple + ",uint160,int24)")
	SelBeforeSwap            = selector("beforeSwap(address," + keyTuple + "," + swapTuple + ",bytes)")
	SelAfterSwap             = selector("afterSwap(address," + keyTuple + "," + swapTuple + ",int256,bytes)")
	SelBeforeModifyLiquidity = selector("beforeModifyLiquidity(address," + keyTuple + "," + liquidityTuple + ",bytes)")
	SelAfterModifyLiquidity  = selector("afterModifyLiquidity(address," + keyTuple + "," + liquidityTuple + ",int256,bytes)")
)

// OverrideFeeFlag marks a BeforeSwap fee value as an LP fee override.
const OverrideFeeFlag uint32 = 0x400000

// FeeOverride is the optional LP fee returned by BeforeSwap. Zero means none.
type FeeOverride uint32

// NewFeeOverride flags pips as an override.
func NewFeeOverride(pips uint32) FeeOverride { return FeeOverride(pips | OverrideFeeFlag) }

// Pips returns the overriding fee and whether an override is set.
func (f FeeOverride) Pips() (uint32, bool) {
	if uint32(f)&OverrideFeeFlag == 0 {
		return 0, false
	}
	return uint32(f) &^ OverrideFeeFlag, true
}

// Hooks is the capability the pool manager drives. Every method returns its
// acknowledgement selector; an error aborts the calling operation.
type Hooks interface {
	BeforeInitialize(sender common.Address, key pool.Key, price *uint256.Int) (Selector, error)
	AfterInitialize(sender common.Address, key pool.Key, price *uint256.Int, tick int32) (Selector, error)
	BeforeSwap(sender common.Address, key pool.Key, params pool.SwapParams, hookData []byte) (Selector, pool.BeforeSwapDelta, FeeOverride, error)
	AfterSwap(sender common.Address, key pool.Key, params pool.SwapParams, delta pool.BalanceDelta, hookData []byte) (Selector, *big.Int, error)
	BeforeModifyLiquidity(sender common.Address, key pool.Key, params pool.ModifyLiquidityParams, hookData []byte) (Selector, error)
	AfterModifyLiquidity(sender common.Address, key pool.Key, params pool.ModifyLiquidityParams, delta pool.BalanceDelta, hookData []byte) (Selector, pool.BalanceDelta, error)
}

// Permissions lists the callbacks a hook wants invoked.
type Permissions struct {
	BeforeInitialize      bool `json:"beforeInitialize"`
	AfterInitialize       bool `json:"afterInitialize"`
	BeforeSwap            bool `json:"beforeSwap"`
	AfterSwap             bool `json:"afterSwap"`
	BeforeModifyLiquidity bool `json:"beforeModifyLiquidity"`
	AfterModifyLiquidity  bool `json:"afterModifyLiquidity"`
	BeforeSwapReturnDelta bool `json:"beforeSwapReturnDelta"`
}
