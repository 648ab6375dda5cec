package fixed

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestMulDivRounding(t *testing.T) {
	tests := []struct {
		name     string
		x, y, d  uint64
		wantDown uint64
		wantUp   uint64
	}{
		{"exact", 10, 10, 5, 20, 20},
		{"truncates", 7, 3, 2, 10, 11},
		{"zero numerator", 0, 9, 4, 0, 0},
		{"below one", 1, 1, 3, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, d := uint256.NewInt(tt.x), uint256.NewInt(tt.y), uint256.NewInt(tt.d)
			down, err := MulDivDown(x, y, d)
			if err != nil {
				t.Fatalf("MulDivDown: %v", err)
			}
			up, err := MulDivUp(x, y, d)
			if err != nil {
				t.Fatalf("MulDivUp: %v", err)
			}
			if down.Uint64() != tt.wantDown {
				t.Errorf("MulDivDown = %d, want %d", down.Uint64(), tt.wantDown)
			}
			if up.Uint64() != tt.wantUp {
				t.Errorf("MulDivUp = %d, want %d", up.Uint64(), tt.wantUp)
			}
		})
	}
}

func TestMulDivLargeIntermediate(t *testing.T) {
	// 10000e18 * 1000e18 overflows 128 bits but not the 512-bit intermediate
	q := Units(10000)
	p := Units(1000)
	got, err := MulDivDown(q, p, WAD)
	if err != nil {
		t.Fatalf("MulDivDown: %v", err)
	}
	want := Units(10_000_000)
	if !got.Eq(want) {
		t.Errorf("got %s, want %s", got.Dec(), want.Dec())
	}
}

func TestDivByZero(t *testing.T) {
	if _, err := MulDivDown(WAD, WAD, Zero()); err != ErrDivByZero {
		t.Errorf("expected ErrDivByZero, got %v", err)
	}
}

func TestSubUnderflow(t *testing.T) {
	if _, err := Sub(uint256.NewInt(1), uint256.NewInt(2)); err != ErrUnderflow {
		t.Errorf("expected ErrUnderflow, got %v", err)
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	v, err := FromDecimalString("1.5")
	if err != nil {
		t.Fatalf("FromDecimalString: %v", err)
	}
	if v.Dec() != "1500000000000000000" {
		t.Errorf("raw = %s", v.Dec())
	}
	if got := ToDecimal(v).String(); got != "1.5" {
		t.Errorf("ToDecimal = %s, want 1.5", got)
	}
	if _, err := FromDecimalString("-1"); err == nil {
		t.Error("expected error for negative decimal")
	}
}
