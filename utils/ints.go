package utils

import (
	"golang.org/x/exp/constraints"
)

// Unsigned converts signed backend amounts. Negative values become 0
func Unsigned[T constraints.Signed](v T) (u uint64) {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// Signed converts to a signed amount saturating at the max value of D
func Signed[D constraints.Signed](v uint64) (s D) {
	var limit = ^uint64(0) >> 1
	switch any(s).(type) {
	case int8:
		limit = 1<<7 - 1
	case int16:
		limit = 1<<15 - 1
	case int32:
		limit = 1<<31 - 1
	}
	if v > limit {
		v = limit
	}
	return D(v)
}
