package proptest

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"pgregory.net/rapid"
)

func TestGeneratorsStayInBounds(t *testing.T) {
	Check(t, func(t *rapid.T) {
		p := Price().Draw(t, "price")
		if p.Lt(MinPrice) || p.Gt(MaxPrice) {
			t.Fatalf("price %s out of [%s, %s]", p.Dec(), MinPrice.Dec(), MaxPrice.Dec())
		}
		q := Quantity().Draw(t, "qty")
		if q.Lt(MinQuantity) || q.Gt(MaxQuantity) {
			t.Fatalf("quantity %s out of [%s, %s]", q.Dec(), MinQuantity.Dec(), MaxQuantity.Dec())
		}
		if a := Address().Draw(t, "addr"); a == (common.Address{}) {
			t.Fatalf("zero address drawn")
		}
	})
}

func TestUint256RangeNarrow(t *testing.T) {
	lo, hi := uint256.NewInt(7), uint256.NewInt(9)
	seen := map[uint64]bool{}
	Check(t, func(t *rapid.T) {
		v := Uint256Range(lo, hi).Draw(t, "v")
		if v.Lt(lo) || v.Gt(hi) {
			t.Fatalf("%s out of [7, 9]", v.Dec())
		}
		seen[v.Uint64()] = true
	})
	if len(seen) < 2 {
		t.Errorf("drew only %v from [7, 9]", seen)
	}
}

func TestUint256RangeRejectsEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty range")
		}
	}()
	Uint256Range(uint256.NewInt(2), uint256.NewInt(1))
}

func TestApproxEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		tol  uint64
		want bool
	}{
		{"equal", 10, 10, 0, true},
		{"within above", 12, 10, 2, true},
		{"within below", 10, 12, 2, true},
		{"outside", 13, 10, 2, false},
		{"zero tolerance", 11, 10, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApproxEqual(uint256.NewInt(tt.a), uint256.NewInt(tt.b), uint256.NewInt(tt.tol))
			if got != tt.want {
				t.Errorf("ApproxEqual(%d, %d, %d) = %v, want %v", tt.a, tt.b, tt.tol, got, tt.want)
			}
		})
	}
}
