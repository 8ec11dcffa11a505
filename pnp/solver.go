// Package pnp solves the Perspective-n-Point problem: the rigid
// transformation of a set of 3D reference points given their projections in
// a calibrated camera.
package pnp

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/maorshutman/lm"
	"github.com/pkg/errors"
	"github.com/swdee/go-markerpose/geometry"
)

// ErrDegenerateGeometry is returned when correspondences cannot determine a
// pose, or when the solve does not produce a usable result
var ErrDegenerateGeometry = errors.New("degenerate pose geometry")

const (
	// minQuadArea is the smallest image area, in square pixels, of at least
	// one marker for the observation to be usable
	minQuadArea = 1e-9
	// minSpread is the smallest extent of the reference points
	minSpread = 1e-12
	// refineIterations bounds the Levenberg-Marquardt refinement
	refineIterations = 100
)

// Solution is the outcome of a pose solve
type Solution struct {
	// Transform maps reference points into the camera frame
	Transform geometry.Transform
	// RMSError is the root mean square reprojection error in pixels
	RMSError float64
}

// Solve computes the transformation taking objectPoints into the camera
// frame so that they project onto imagePoints.  Points come in groups of
// four, one group per marker, and at least one group is required
func Solve(objectPoints []r3.Vector, imagePoints []r2.Point, calib Calibration) (geometry.Transform, error) {

	sol, err := SolveDetailed(objectPoints, imagePoints, calib)

	if err != nil {
		return geometry.Transform{}, err
	}

	return sol.Transform, nil
}

// SolveDetailed is Solve returning the reprojection error as well.  A direct
// linear estimate seeds a Levenberg-Marquardt refinement of the rotation
// vector and translation that minimizes the reprojection error
func SolveDetailed(objectPoints []r3.Vector, imagePoints []r2.Point, calib Calibration) (Solution, error) {

	if err := checkCorrespondences(objectPoints, imagePoints); err != nil {
		return Solution{}, err
	}

	if calib.fx == 0 || calib.fy == 0 {
		return Solution{}, errors.Wrap(ErrInvalidCalibration, "calibration is not set")
	}

	seed, err := initialPose(objectPoints, imagePoints, calib)

	if err != nil {
		return Solution{}, errors.Wrapf(ErrDegenerateGeometry, "initial estimate: %v", err)
	}

	best := pack(seed)
	bestErr := rmsError(best, objectPoints, imagePoints, calib)

	refined, err := refine(best, objectPoints, imagePoints, calib)

	if err == nil {
		if e := rmsError(refined, objectPoints, imagePoints, calib); e <= bestErr || math.IsNaN(bestErr) {
			best, bestErr = refined, e
		}
	}

	tr := unpack(best)

	if math.IsNaN(bestErr) || math.IsInf(bestErr, 0) || !tr.IsFinite() {
		return Solution{}, errors.Wrap(ErrDegenerateGeometry, "solve did not converge")
	}

	for _, p := range objectPoints {
		if tr.Apply(p).Z <= 0 {
			return Solution{}, errors.Wrap(ErrDegenerateGeometry, "solution places points behind the camera")
		}
	}

	return Solution{Transform: tr, RMSError: bestErr}, nil
}

// checkCorrespondences validates the shape of the correspondence set
func checkCorrespondences(object []r3.Vector, image []r2.Point) error {

	if len(object) != len(image) {
		return errors.Wrapf(ErrDegenerateGeometry, "%d object points but %d image points",
			len(object), len(image))
	}

	if len(object) < 4 || len(object)%4 != 0 {
		return errors.Wrapf(ErrDegenerateGeometry, "need groups of 4 correspondences, got %d", len(object))
	}

	for i := 0; i < len(image); i += 4 {
		q := geometry.Quad{image[i], image[i+1], image[i+2], image[i+3]}
		if math.Abs(q.Area()) > minQuadArea {
			return nil
		}
	}

	return errors.Wrap(ErrDegenerateGeometry, "observed markers have no image area")
}

// initialPose picks the planar or general direct linear estimate
func initialPose(object []r3.Vector, image []r2.Point, calib Calibration) (pose, error) {

	normalized := make([]r2.Point, len(image))

	for i, p := range image {
		normalized[i] = calib.Normalize(p)
	}

	sv, basis, err := spread(object)

	if err != nil {
		return pose{}, err
	}

	if sv[0] < minSpread {
		return pose{}, errors.New("reference points coincide")
	}

	if sv[len(sv)-1] <= planarity*sv[0] {
		return planarPose(object, normalized, basis)
	}

	if len(object) < 6 {
		return pose{}, errors.Errorf("%d non-coplanar points cannot determine a pose", len(object))
	}

	return generalPose(object, normalized)
}

// pack converts a pose to the refinement parameters: rotation vector then
// translation
func pack(p pose) []float64 {
	r := geometry.RotationToVector(p.rot)
	return []float64{r.X, r.Y, r.Z, p.t.X, p.t.Y, p.t.Z}
}

// unpack converts refinement parameters back into a transformation
func unpack(x []float64) geometry.Transform {
	rot := geometry.RotationFromVector(r3.Vector{X: x[0], Y: x[1], Z: x[2]})
	return geometry.NewTransform(rot, r3.Vector{X: x[3], Y: x[4], Z: x[5]})
}

// residuals returns the closure writing the reprojection residuals, two per
// point, for a parameter vector
func residuals(object []r3.Vector, image []r2.Point, calib Calibration) func(dst, x []float64) {
	return func(dst, x []float64) {
		tr := unpack(x)
		for i, p := range object {
			px := calib.Project(tr.Apply(p))
			dst[2*i] = px.X - image[i].X
			dst[2*i+1] = px.Y - image[i].Y
		}
	}
}

// rmsError returns the root mean square reprojection error of x
func rmsError(x []float64, object []r3.Vector, image []r2.Point, calib Calibration) float64 {

	dst := make([]float64, 2*len(object))
	residuals(object, image, calib)(dst, x)

	sum := 0.0

	for _, d := range dst {
		sum += d * d
	}

	return math.Sqrt(sum / float64(len(object)))
}

// refine runs Levenberg-Marquardt from the initial parameters
func refine(init []float64, object []r3.Vector, image []r2.Point, calib Calibration) ([]float64, error) {

	params := make([]float64, len(init))
	copy(params, init)

	fn := residuals(object, image, calib)
	jacobian := lm.NumJac{Func: fn}

	problem := lm.LMProblem{
		Dim:        6,
		Size:       2 * len(object),
		Func:       fn,
		Jac:        jacobian.Jac,
		InitParams: params,
		Tau:        1e-6,
		Eps1:       1e-12,
		Eps2:       1e-12,
	}

	res, err := lm.LM(problem, &lm.Settings{Iterations: refineIterations, ObjectiveTol: 1e-16})

	if err != nil {
		return nil, errors.Wrap(err, "refinement failed")
	}

	if len(res.X) != 6 {
		return nil, errors.New("refinement returned no parameters")
	}

	return res.X, nil
}
