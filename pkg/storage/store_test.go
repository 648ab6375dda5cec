package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/bookhook/pkg/app/core/orderbook"
	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

type bookStore interface {
	SavePool(rec PoolRecord) error
	ApplyChanges(id pool.ID, ch orderbook.Changes, nextID, nextSeq uint64) error
	LoadPools() ([]PoolState, error)
	SaveTx(rec TxRecord) error
	LoadTx(id string) (TxRecord, error)
}

var testKey = pool.Key{
	Currency0:   common.HexToAddress("0x1000000000000000000000000000000000000001"),
	Currency1:   common.HexToAddress("0x2000000000000000000000000000000000000002"),
	Fee:         3000,
	TickSpacing: 60,
	Hooks:       common.HexToAddress("0x00000000000000000000000000000000000000ff"),
}

func order(id, seq uint64, side orderbook.Side, price, remaining uint64) *orderbook.Order {
	return &orderbook.Order{
		ID:        id,
		Owner:     common.HexToAddress("0xa11ce"),
		Side:      side,
		Price:     uint256.NewInt(price),
		Original:  uint256.NewInt(remaining * 2),
		Remaining: uint256.NewInt(remaining),
		Seq:       seq,
	}
}

func stores(t *testing.T) map[string]bookStore {
	ps, err := NewPebbleStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })
	return map[string]bookStore{"pebble": ps, "memory": NewMemStore()}
}

func TestBookRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id := testKey.ID()
			require.NoError(t, s.SavePool(PoolRecord{Key: testKey, Active: true, CreatedAt: 1}))

			require.NoError(t, s.ApplyChanges(id, orderbook.Changes{
				Upserts: []*orderbook.Order{order(1, 1, orderbook.Buy, 99, 5), order(2, 2, orderbook.Sell, 101, 7)},
			}, 3, 3))
			require.NoError(t, s.ApplyChanges(id, orderbook.Changes{
				Upserts: []*orderbook.Order{order(2, 2, orderbook.Sell, 101, 4)},
				Deletes: []uint64{1},
			}, 4, 5))

			pools, err := s.LoadPools()
			require.NoError(t, err)
			require.Len(t, pools, 1)

			st := pools[0]
			assert.Equal(t, testKey, st.Key)
			assert.True(t, st.Active)
			assert.Equal(t, uint64(4), st.NextID)
			assert.Equal(t, uint64(5), st.NextSeq)
			require.Len(t, st.Orders, 1)
			assert.Equal(t, uint64(2), st.Orders[0].ID)
			assert.Equal(t, orderbook.Sell, st.Orders[0].Side)
			assert.Equal(t, uint64(4), st.Orders[0].Remaining.Uint64())
			assert.Equal(t, uint64(8), st.Orders[0].Original.Uint64())
		})
	}
}

func TestPoolWithoutOrders(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SavePool(PoolRecord{Key: testKey}))
			pools, err := s.LoadPools()
			require.NoError(t, err)
			require.Len(t, pools, 1)
			assert.False(t, pools[0].Active)
			assert.Empty(t, pools[0].Orders)
			assert.Zero(t, pools[0].NextID)
		})
	}
}

func TestTxRecords(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.LoadTx("missing")
			assert.True(t, errors.Is(err, ErrTxNotFound))

			rec := TxRecord{ID: "0xabc", Kind: "swap", Status: TxPending, CreatedAt: 10}
			require.NoError(t, s.SaveTx(rec))
			rec.Status = TxConfirmed
			require.NoError(t, s.SaveTx(rec))

			got, err := s.LoadTx("0xabc")
			require.NoError(t, err)
			assert.Equal(t, TxConfirmed, got.Status)
		})
	}
}

func TestOrderKeysSortById(t *testing.T) {
	id := testKey.ID()
	assert.Less(t, string(orderKey(id, 9)), string(orderKey(id, 10)))
	assert.True(t, strings.HasPrefix(string(orderKey(id, 1)), string(orderPrefix(id))))
}

func TestFileWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tx.log")
	w, err := NewFileWAL(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(TxRecord{ID: "a", Status: TxConfirmed}))
	require.NoError(t, w.Append(TxRecord{ID: "b", Status: TxFailed}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"status":"failed"`)
}
