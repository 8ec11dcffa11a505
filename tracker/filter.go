// Package tracker smooths per-frame values keyed by an ID across frames.
// A FindOutdated detector ages IDs that stop being observed and the filters
// drop their per-ID state once the detector evicts an ID
package tracker

import (
	"cmp"
	"slices"
)

// Value is a composite value that can be filtered channel by channel
type Value[V any] interface {
	// Channels returns the scalar channels of the value
	Channels() []float64
	// FromChannels rebuilds a value from channels laid out as by Channels
	FromChannels(c []float64) V
}

// Filter is a temporal filter over frames of values keyed by ID
type Filter[K cmp.Ordered, V any] interface {
	// Apply consumes one frame and returns the filtered values of the IDs
	// present in it
	Apply(frame map[K]V) map[K]V
	// Reset forgets every tracked ID
	Reset()
}

// sortedKeys returns the keys of a frame in ascending order
func sortedKeys[K cmp.Ordered, V any](frame map[K]V) []K {

	keys := make([]K, 0, len(frame))

	for k := range frame {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
