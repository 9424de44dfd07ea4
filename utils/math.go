package utils

import "cmp"

// Clamp returns value limited to the closed range [low, high].
func Clamp[T cmp.Ordered](value, low, high T) T {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
