package mathx

import (
	"math"
	"testing"
)

func TestFloorPow(t *testing.T) {
	if got := FloorPow(100, 1.65, 2); got != 272 {
		t.Fatalf("FloorPow(100,1.65,2)=%v", got)
	}
	if got := FloorPow(100, 1.65, 0); got != 100 {
		t.Fatalf("FloorPow(100,1.65,0)=%v", got)
	}
}

func TestFloorCeilAbsorbFloatError(t *testing.T) {
	if got := FloorPow(100, 1.4, 2); got != 196 {
		t.Fatalf("FloorPow(100,1.4,2)=%v", got)
	}
	if got := Ceil(20 * 1.05); got != 21 {
		t.Fatalf("Ceil(20*1.05)=%v", got)
	}
	if got := Ceil(10 * 1.05); got != 11 {
		t.Fatalf("Ceil(10*1.05)=%v", got)
	}
}

func TestFinite(t *testing.T) {
	if Finite(math.NaN()) || Finite(math.Inf(1)) || !Finite(0) {
		t.Fatalf("Finite mismatch")
	}
}

func TestHashStringStable(t *testing.T) {
	a := HashString(1, "hero_a")
	if a != HashString(1, "hero_a") {
		t.Fatalf("hash not stable")
	}
	if a == HashString(2, "hero_a") || a == HashString(1, "hero_b") {
		t.Fatalf("hash ignores input")
	}
}
