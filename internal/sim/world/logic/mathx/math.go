package mathx

import "math"

// eps absorbs float error so that 100*1.4^2 floors to 196, not 195.
const eps = 1e-9

func Floor(v float64) float64 { return math.Floor(v + eps) }

func Ceil(v float64) float64 { return math.Ceil(v - eps) }

// FloorPow returns floor(base * growth^exp).
func FloorPow(base, growth, exp float64) float64 {
	return Floor(base * math.Pow(growth, exp))
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// HashString is a stable 64-bit FNV-1a hash finished with a splitmix round.
func HashString(seed int64, s string) uint64 {
	h := uint64(14695981039346656037) ^ uint64(seed)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return mix64(h)
}
