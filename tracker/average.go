package tracker

import (
	"cmp"
	"sync"

	"github.com/pkg/errors"
)

// window is the bounded history of one ID
type window struct {
	values [][]float64
}

// MovingAverage is the filter emitting, for each ID, the mean of its most
// recent values over a fixed window
type MovingAverage[K cmp.Ordered, V Value[V]] struct {
	// span is the maximum number of most recent values to keep per ID
	span int
	// outdated decides when an ID's history is dropped
	outdated *FindOutdated[K]
	// history of values per ID
	history map[K]*window
	sync.Mutex
}

// NewMovingAverage returns a moving average filter over the last span values
// of each ID, using outdated to expire IDs no longer observed
func NewMovingAverage[K cmp.Ordered, V Value[V]](outdated *FindOutdated[K], span int) (*MovingAverage[K, V], error) {

	if outdated == nil {
		return nil, errors.Wrap(ErrInvalidFilterConfiguration, "moving average needs an outdated detector")
	}

	if span < 1 {
		return nil, errors.Wrapf(ErrInvalidPersistence, "window span %d must be at least 1", span)
	}

	return &MovingAverage[K, V]{
		span:     span,
		outdated: outdated,
		history:  make(map[K]*window),
	}, nil
}

// Apply adds the frame's values to their windows and returns the window
// means of the IDs in the frame
func (m *MovingAverage[K, V]) Apply(frame map[K]V) map[K]V {
	m.Lock()
	defer m.Unlock()

	keys := sortedKeys(frame)

	for _, id := range m.outdated.Update(keys) {
		delete(m.history, id)
	}

	out := make(map[K]V, len(frame))

	for _, id := range keys {

		value := frame[id]
		channels := value.Channels()

		// init window if no history exists yet for id
		w, exists := m.history[id]

		if !exists || len(w.values[0]) != len(channels) {
			w = &window{}
			m.history[id] = w
		}

		w.values = append(w.values, channels)

		// check if window is exceeded and drop oldest value
		if len(w.values) > m.span {
			w.values = w.values[1:]
		}

		out[id] = value.FromChannels(w.mean())
	}

	return out
}

// mean returns the element wise mean of the window.  The running form keeps
// a window of identical values exactly equal to that value
func (w *window) mean() []float64 {

	avg := make([]float64, len(w.values[0]))

	for n, v := range w.values {
		for i := range avg {
			avg[i] += (v[i] - avg[i]) / float64(n+1)
		}
	}

	return avg
}

// Len returns the number of IDs with history
func (m *MovingAverage[K, V]) Len() int {
	m.Lock()
	defer m.Unlock()

	return len(m.history)
}

// Reset clears all history
func (m *MovingAverage[K, V]) Reset() {
	m.Lock()
	defer m.Unlock()

	m.history = make(map[K]*window)
	m.outdated.Reset()
}
