package util

import (
	"math/rand/v2"
)

// Pick returns a uniformly chosen element of items, or the zero value when
// items is empty.
func Pick[T any](items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[rand.IntN(len(items))]
}
