package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// AlignUp rounds size up to the next multiple of alignment, which must be a power of two.
func AlignUp[T constraints.Unsigned](size, alignment T) T {
	mask := alignment - 1
	return (size + mask) &^ mask
}

func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}

// MipLevels returns the length of a full mip chain for a width x height image.
func MipLevels(width, height uint32) uint32 {
	levels := uint32(1)
	for size := Max(width, height); size > 1; size >>= 1 {
		levels++
	}
	return levels
}
