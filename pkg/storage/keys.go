package storage

import (
	"fmt"

	"github.com/uhyunpark/bookhook/pkg/app/core/pool"
)

// Key schema for Pebble storage:
//
//   pool:<poolId>            → PoolRecord
//   meta:<poolId>            → book counters
//   ord:<poolId>:<orderId>   → OrderRecord
//   tx:<txId>                → TxRecord

const (
	prefixPool  = "pool:"
	prefixMeta  = "meta:"
	prefixOrder = "ord:"
	prefixTx    = "tx:"
)

func poolKey(id pool.ID) []byte {
	return []byte(prefixPool + id.Hex())
}

func poolPrefix() []byte { return []byte(prefixPool) }

func metaKey(id pool.ID) []byte {
	return []byte(prefixMeta + id.Hex())
}

// orderKey returns "ord:{poolId}:{orderId}".
// The order id is zero-padded (20 digits) so a prefix scan yields id order.
func orderKey(id pool.ID, orderID uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixOrder, id.Hex(), orderID))
}

// orderPrefix returns "ord:{poolId}:".
func orderPrefix(id pool.ID) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, id.Hex()))
}

func txKey(txID string) []byte {
	return []byte(prefixTx + txID)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
