package tracker

import (
	"cmp"
	"sync"

	"github.com/pkg/errors"
)

// kalmanTrack is the filter state of one ID
type kalmanTrack struct {
	filter     *KalmanFilter
	mean       StateMean
	covariance *StateCov
}

// KalmanTracker is the filter running an independent KalmanFilter per ID
// over every channel of its value
type KalmanTracker[K cmp.Ordered, V Value[V]] struct {
	// order is the number of derivatives tracked per channel
	order int
	// params is the noise model given to each filter
	params KalmanParams
	// outdated decides when an ID's filter is dropped
	outdated *FindOutdated[K]
	// filters are shared between tracks with the same channel count
	filters map[int]*KalmanFilter
	tracks  map[K]*kalmanTrack
	sync.Mutex
}

// NewKalmanTracker returns a Kalman filter tracking order derivatives of each
// value channel, using outdated to expire IDs no longer observed
func NewKalmanTracker[K cmp.Ordered, V Value[V]](outdated *FindOutdated[K], order int,
	params KalmanParams) (*KalmanTracker[K, V], error) {

	if outdated == nil {
		return nil, errors.Wrap(ErrInvalidFilterConfiguration, "kalman tracker needs an outdated detector")
	}

	if order < 0 {
		return nil, errors.Wrapf(ErrInvalidFilterConfiguration, "derivative order %d is negative", order)
	}

	if err := params.validate(); err != nil {
		return nil, err
	}

	return &KalmanTracker[K, V]{
		order:    order,
		params:   params,
		outdated: outdated,
		filters:  make(map[int]*KalmanFilter),
		tracks:   make(map[K]*kalmanTrack),
	}, nil
}

// Apply corrects each ID's filter with its value in the frame and returns the
// corrected estimates.  An ID seen for the first time is returned unchanged.
// IDs missing from the frame are not extrapolated
func (k *KalmanTracker[K, V]) Apply(frame map[K]V) map[K]V {
	k.Lock()
	defer k.Unlock()

	keys := sortedKeys(frame)

	for _, id := range k.outdated.Update(keys) {
		delete(k.tracks, id)
	}

	out := make(map[K]V, len(frame))

	for _, id := range keys {

		value := frame[id]
		measurement := Measurement(value.Channels())

		track, exists := k.tracks[id]

		if exists {
			if ndim, _ := track.filter.Dims(); ndim == len(measurement) {

				track.filter.Predict(track.mean, track.covariance)

				if err := track.filter.Update(track.mean, track.covariance, measurement); err == nil {
					out[id] = value.FromChannels(track.mean[:ndim])
					continue
				}
			}
		}

		// start a new track seeded with the observation
		track, err := k.initiate(measurement)

		if err != nil {
			out[id] = value
			continue
		}

		k.tracks[id] = track
		out[id] = value
	}

	return out
}

// initiate creates the filter state for a first observation
func (k *KalmanTracker[K, V]) initiate(measurement Measurement) (*kalmanTrack, error) {

	kf, ok := k.filters[len(measurement)]

	if !ok {
		var err error
		kf, err = NewKalmanFilter(len(measurement), k.order, k.params)

		if err != nil {
			return nil, err
		}

		k.filters[len(measurement)] = kf
	}

	mean, covariance := kf.NewState()
	kf.Initiate(mean, covariance, measurement)

	return &kalmanTrack{filter: kf, mean: mean, covariance: covariance}, nil
}

// Len returns the number of IDs with a running filter
func (k *KalmanTracker[K, V]) Len() int {
	k.Lock()
	defer k.Unlock()

	return len(k.tracks)
}

// Reset drops every filter
func (k *KalmanTracker[K, V]) Reset() {
	k.Lock()
	defer k.Unlock()

	k.tracks = make(map[K]*kalmanTrack)
	k.outdated.Reset()
}
