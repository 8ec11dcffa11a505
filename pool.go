package markerpose

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/swdee/go-markerpose/markers"
	"github.com/swdee/go-markerpose/pnp"
)

// Pool is a simple estimator pool to solve frames from several goroutines,
// all sharing the same marker configuration and camera
type Pool struct {
	// pool of estimators
	estimators chan *Estimator
	// size of pool
	size   int
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new estimator pool
func NewPool(size int, config *markers.Configuration, calib pnp.Calibration,
	defaultSize float64) (*Pool, error) {

	if size < 1 {
		return nil, errors.Errorf("pool size must be at least 1, got %d", size)
	}

	p := &Pool{
		estimators: make(chan *Estimator, size),
		size:       size,
	}

	for i := 0; i < size; i++ {
		// attach to pool
		p.Return(NewEstimator(config, calib, defaultSize))
	}

	return p, nil
}

// Size returns the number of estimators in the pool
func (p *Pool) Size() int {
	return p.size
}

// Get an estimator from the pool, blocking until one is free.  Returns nil
// once the pool is closed and drained
func (p *Pool) Get() *Estimator {
	return <-p.estimators
}

// Return an estimator to the pool
func (p *Pool) Return(estimator *Estimator) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	select {
	case p.estimators <- estimator:
	default:
		// pool is full
	}
}

// Estimate solves a frame with an estimator taken from the pool
func (p *Pool) Estimate(detections Detections) (PoseFrame, error) {

	estimator := p.Get()

	if estimator == nil {
		return nil, errors.New("estimator pool is closed")
	}

	defer p.Return(estimator)

	return estimator.Estimate(detections), nil
}

// Close the pool, estimators returned afterwards are discarded
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.estimators)
}
