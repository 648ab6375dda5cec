package amm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

var key = pool.Key{
	Currency0:   common.HexToAddress("0x01"),
	Currency1:   common.HexToAddress("0x02"),
	Fee:         3000,
	TickSpacing: 60,
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newPricer(t *testing.T, price *uint256.Int) *FixedPrice {
	t.Helper()
	f := NewFixedPrice()
	require.NoError(t, f.Initialize(key, price))
	return f
}

func TestFixedPriceSwap(t *testing.T) {
	f := newPricer(t, fixed.Units(100))

	tests := []struct {
		name       string
		zeroForOne bool
		amount     *big.Int
		remaining  *uint256.Int
		want0      *big.Int
		want1      *big.Int
	}{
		{"sell 2 exact in", true, units(2), fixed.Units(2), units(-2), units(200)},
		{"buy with 300 exact in", false, units(300), fixed.Units(300), units(3), units(-300)},
		{"receive 100 exact out", true, units(-100), fixed.Units(100), units(-1), units(100)},
		{"receive 3 exact out", false, units(-3), fixed.Units(3), units(3), units(-300)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := pool.SwapParams{ZeroForOne: tt.zeroForOne, AmountSpecified: tt.amount}
			d, err := f.Swap(key, params, tt.remaining, 0)
			require.NoError(t, err)
			assert.Equal(t, 0, tt.want0.Cmp(d.Amount0), "amount0 %s", d.Amount0)
			assert.Equal(t, 0, tt.want1.Cmp(d.Amount1), "amount1 %s", d.Amount1)
		})
	}
}

func TestFixedPriceFeeRounding(t *testing.T) {
	f := newPricer(t, fixed.Units(100))

	// exact input: 1% of the input is kept as fee before conversion
	in := pool.SwapParams{ZeroForOne: true, AmountSpecified: units(1)}
	d, err := f.Swap(key, in, fixed.Units(1), 10_000)
	require.NoError(t, err)
	assert.Equal(t, 0, units(99).Cmp(d.Amount1))

	// exact output: the input is grossed up and rounded against the swapper
	out := pool.SwapParams{ZeroForOne: false, AmountSpecified: units(-1)}
	d, err = f.Swap(key, out, fixed.Units(1), 3000)
	require.NoError(t, err)
	want := new(big.Int).Mul(units(100), big.NewInt(1_000_000))
	want.Add(want, big.NewInt(997_000-1))
	want.Div(want, big.NewInt(997_000))
	assert.Equal(t, 0, new(big.Int).Neg(want).Cmp(d.Amount1), "amount1 %s", d.Amount1)
}

func TestFixedPriceSwapErrors(t *testing.T) {
	f := newPricer(t, fixed.Units(100))

	d, err := f.Swap(key, pool.SwapParams{ZeroForOne: true, AmountSpecified: units(1)}, fixed.Zero(), 0)
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	limited := pool.SwapParams{ZeroForOne: true, AmountSpecified: units(1), PriceLimit: fixed.Units(101)}
	_, err = f.Swap(key, limited, fixed.Units(1), 0)
	assert.ErrorIs(t, err, ErrPriceLimit)

	limited = pool.SwapParams{ZeroForOne: false, AmountSpecified: units(1), PriceLimit: fixed.Units(99)}
	_, err = f.Swap(key, limited, fixed.Units(1), 0)
	assert.ErrorIs(t, err, ErrPriceLimit)

	_, err = f.Swap(key, pool.SwapParams{ZeroForOne: true, AmountSpecified: units(1)}, fixed.Units(1), feeDenominator)
	assert.ErrorIs(t, err, ErrFeeOutOfRange)

	other := key
	other.Fee = 500
	_, err = f.Swap(other, pool.SwapParams{ZeroForOne: true, AmountSpecified: units(1)}, fixed.Units(1), 0)
	assert.ErrorIs(t, err, ErrUnknownPool)

	assert.ErrorIs(t, f.Initialize(key, fixed.Units(1)), ErrPoolExists)
	assert.ErrorIs(t, NewFixedPrice().Initialize(key, fixed.Zero()), ErrZeroPoolPrice)
}

func TestFixedPriceLiquidity(t *testing.T) {
	f := newPricer(t, fixed.Units(2))

	d, err := f.ModifyLiquidity(key, pool.ModifyLiquidityParams{TickLower: -60, TickUpper: 60, LiquidityDelta: units(10)})
	require.NoError(t, err)
	assert.Equal(t, 0, units(-10).Cmp(d.Amount0))
	assert.Equal(t, 0, units(-20).Cmp(d.Amount1))
	assert.Equal(t, 0, units(10).Cmp(f.Liquidity(key.ID())))

	_, err = f.ModifyLiquidity(key, pool.ModifyLiquidityParams{LiquidityDelta: units(-11)})
	assert.ErrorIs(t, err, ErrInsufficientLiq)

	d, err = f.ModifyLiquidity(key, pool.ModifyLiquidityParams{LiquidityDelta: units(-4)})
	require.NoError(t, err)
	assert.Equal(t, 0, units(4).Cmp(d.Amount0))
	assert.Equal(t, 0, units(6).Cmp(f.Liquidity(key.ID())))

	_, err = f.ModifyLiquidity(key, pool.ModifyLiquidityParams{LiquidityDelta: big.NewInt(0)})
	assert.ErrorIs(t, err, ErrInvalidLiquidity)
}

func TestForget(t *testing.T) {
	f := newPricer(t, fixed.Units(100))
	f.Forget(key)
	_, ok := f.Price(key.ID())
	assert.False(t, ok)
	require.NoError(t, f.Initialize(key, fixed.Units(50)), "forgotten pool can be initialized again")

	f.Forget(pool.Key{Currency0: common.HexToAddress("0x03"), Currency1: common.HexToAddress("0x04")})
	_, ok = f.Price(key.ID())
	assert.True(t, ok, "forgetting an unknown pool is a no-op")
}
