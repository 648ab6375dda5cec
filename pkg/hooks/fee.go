package hooks

import (
	"github.com/uhyunpark/bookhook/pkg/app/core/matching"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

// FeePolicy decides the LP fee override returned from BeforeSwap.
type FeePolicy interface {
	Override(key pool.Key, params pool.SwapParams, res matching.Result) FeeOverride
}

// NoFeeOverride never overrides the pool fee.
type NoFeeOverride struct{}

func (NoFeeOverride) Override(pool.Key, pool.SwapParams, matching.Result) FeeOverride { return 0 }

// StaticFeePolicy overrides the LP fee with Pips whenever the book filled part of
// the swap; unmatched swaps keep the pool fee.
type StaticFeePolicy struct {
	Pips uint32
}

func (p StaticFeePolicy) Override(_ pool.Key, _ pool.SwapParams, res matching.Result) FeeOverride {
	if !res.Matched() {
		return 0
	}
	return NewFeeOverride(p.Pips)
}
