package markerpose

import (
	"fmt"
	"log"
	"slices"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/swdee/go-markerpose/geometry"
	"github.com/swdee/go-markerpose/markers"
	"github.com/swdee/go-markerpose/pnp"
	"gonum.org/v1/gonum/mat"
)

// Detections are the tags found in one image, keyed by tag ID
type Detections = map[markers.TagID]geometry.Quad

// PoseFrame maps an object name, or the synthetic name of a tag, to its
// transformation in the camera frame
type PoseFrame = map[string]geometry.Transform

// TagName returns the synthetic name under which the pose of an individual
// tag is reported
func TagName(id markers.TagID) string {
	return fmt.Sprintf("tag_%d", id)
}

// correspondence is one pose to solve
type correspondence struct {
	name   string
	object []r3.Vector
	image  []r2.Point
}

// Estimator computes the poses of free tags and configured objects from tag
// detections.  It is not safe for concurrent use, use a Pool to estimate
// frames in parallel
type Estimator struct {
	// config is the immutable marker layout
	config *markers.Configuration
	// defaultSize is the size of tags absent from config, tags are ignored
	// when it is not positive
	defaultSize float64
	// calib is the camera used by the solver
	calib pnp.Calibration
	// initial is the camera given at construction
	initial pnp.Calibration
	// logger reports per entity failures when set
	logger *log.Logger
}

// NewEstimator returns an Estimator for the given marker configuration and
// camera.  A nil configuration treats every tag as free
func NewEstimator(config *markers.Configuration, calib pnp.Calibration,
	defaultSize float64) *Estimator {

	if config == nil {
		config = markers.Empty()
	}

	return &Estimator{
		config:      config,
		defaultSize: defaultSize,
		calib:       calib,
		initial:     calib,
	}
}

// SetLogger installs a logger receiving a line for every pose that could not
// be solved.  A nil logger disables the output
func (e *Estimator) SetLogger(logger *log.Logger) {
	e.logger = logger
}

// SetCalibration replaces the camera used by subsequent estimates.  On error
// the current camera is kept
func (e *Estimator) SetCalibration(cameraMatrix mat.Matrix, distCoeffs []float64) error {

	calib, err := pnp.NewCalibration(cameraMatrix, distCoeffs)

	if err != nil {
		return err
	}

	e.calib = calib
	return nil
}

// UseCalibration replaces the camera used by subsequent estimates with an
// already validated calibration
func (e *Estimator) UseCalibration(calib pnp.Calibration) {
	e.calib = calib
}

// ResetCalibration restores the camera given to NewEstimator
func (e *Estimator) ResetCalibration() {
	e.calib = e.initial
}

// Calibration returns the camera currently in use
func (e *Estimator) Calibration() pnp.Calibration {
	return e.calib
}

// Configuration returns the marker layout
func (e *Estimator) Configuration() *markers.Configuration {
	return e.config
}

// DefaultSize returns the size assumed for tags absent from the
// configuration
func (e *Estimator) DefaultSize() float64 {
	return e.defaultSize
}

// Estimate returns the poses that could be solved from the detections.  An
// entity whose pose cannot be solved is left out of the result
func (e *Estimator) Estimate(detections Detections) PoseFrame {
	poses, _ := e.EstimateDetailed(detections)
	return poses
}

// EstimateDetailed is Estimate also returning, by name, the reason each
// missing entity could not be solved
func (e *Estimator) EstimateDetailed(detections Detections) (PoseFrame, map[string]error) {

	poses := make(PoseFrame)
	var failures map[string]error

	for _, c := range e.correspondences(detections) {

		tr, err := e.solve(c)

		if err != nil {
			if failures == nil {
				failures = make(map[string]error)
			}

			failures[c.name] = err

			if e.logger != nil {
				e.logger.Printf("pose of %s not solved: %v", c.name, err)
			}

			continue
		}

		poses[c.name] = tr
	}

	return poses, failures
}

// correspondences partitions the detections into free tags, configured
// objects and independently kept markers, in ascending tag order
func (e *Estimator) correspondences(detections Detections) []correspondence {

	ids := make([]markers.TagID, 0, len(detections))

	for id := range detections {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	var out []correspondence
	grouped := make(map[int]*correspondence)
	var order []int

	for _, id := range ids {

		quad := detections[id]
		spec, configured := e.config.Marker(id)

		if !configured {
			if e.defaultSize > 0 {
				local := markers.LocalCorners(e.defaultSize)
				out = append(out, correspondence{
					name:   TagName(id),
					object: local[:],
					image:  quad.Points(),
				})
			}

			continue
		}

		idx, _ := e.config.ObjectIndex(id)
		group, exists := grouped[idx]

		if !exists {
			obj, _ := e.config.ObjectFor(id)
			group = &correspondence{name: obj.Name}
			grouped[idx] = group
			order = append(order, idx)
		}

		group.object = append(group.object, spec.ObjectCorners[:]...)
		group.image = append(group.image, quad.Points()...)

		if spec.KeepIndependent {
			local := spec.LocalCorners
			out = append(out, correspondence{
				name:   TagName(id),
				object: local[:],
				image:  quad.Points(),
			})
		}
	}

	slices.Sort(order)

	for _, idx := range order {
		out = append(out, *grouped[idx])
	}

	return out
}

// solve runs the solver for one entity, converting a panic into an error so
// a single bad entity cannot abort the frame
func (e *Estimator) solve(c correspondence) (tr geometry.Transform, err error) {

	defer func() {
		if r := recover(); r != nil {
			tr = geometry.Transform{}
			err = errors.Wrapf(pnp.ErrDegenerateGeometry, "solver panic: %v", r)
		}
	}()

	return pnp.Solve(c.object, c.image, e.calib)
}
