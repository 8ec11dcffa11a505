package pnp

import (
	"io"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCalibration is returned for camera intrinsics that cannot be used
var ErrInvalidCalibration = errors.New("invalid camera calibration")

const (
	// undistortIterations bounds the Newton iterations when removing lens
	// distortion from an image point
	undistortIterations = 20
	// undistortTolerance is the squared normalized error at which the
	// inversion stops
	undistortTolerance = 1e-24
)

// Calibration holds the pinhole intrinsics and lens distortion of a camera.
// Distortion coefficients follow the OpenCV layout k1, k2, p1, p2[, k3[, k4,
// k5, k6]]
type Calibration struct {
	fx, fy, cx, cy, skew float64
	// distortion coefficients padded to 8 values
	dist [8]float64
	// number of coefficients supplied
	ndist int
}

// NewCalibration creates a Calibration from a 3x3 intrinsic matrix and a
// distortion vector of length 0, 4, 5 or 8
func NewCalibration(cameraMatrix mat.Matrix, distCoeffs []float64) (Calibration, error) {

	if cameraMatrix == nil {
		return Calibration{}, errors.Wrap(ErrInvalidCalibration, "camera matrix is nil")
	}

	if r, c := cameraMatrix.Dims(); r != 3 || c != 3 {
		return Calibration{}, errors.Wrapf(ErrInvalidCalibration, "camera matrix must be 3x3, got %dx%d", r, c)
	}

	k := cameraMatrix.At

	if k(0, 0) == 0 || k(1, 1) == 0 {
		return Calibration{}, errors.Wrap(ErrInvalidCalibration, "focal length is zero")
	}

	if k(1, 0) != 0 || k(2, 0) != 0 || k(2, 1) != 0 || k(2, 2) != 1 {
		return Calibration{}, errors.Wrap(ErrInvalidCalibration, "camera matrix is not upper triangular with k22 = 1")
	}

	switch len(distCoeffs) {
	case 0, 4, 5, 8:
	default:
		return Calibration{}, errors.Wrapf(ErrInvalidCalibration,
			"distortion needs 0, 4, 5 or 8 coefficients, got %d", len(distCoeffs))
	}

	for _, v := range distCoeffs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Calibration{}, errors.Wrap(ErrInvalidCalibration, "distortion coefficient is not finite")
		}
	}

	cal := Calibration{
		fx:    k(0, 0),
		fy:    k(1, 1),
		cx:    k(0, 2),
		cy:    k(1, 2),
		skew:  k(0, 1),
		ndist: len(distCoeffs),
	}

	copy(cal.dist[:], distCoeffs)

	return cal, nil
}

// NewPinhole is a convenience constructor for an undistorted camera with
// square pixels
func NewPinhole(focal, cx, cy float64) (Calibration, error) {
	return NewCalibration(mat.NewDense(3, 3, []float64{
		focal, 0, cx,
		0, focal, cy,
		0, 0, 1,
	}), nil)
}

// calibrationDoc is the YAML layout read by LoadCalibration
type calibrationDoc struct {
	CameraMatrix []float64 `yaml:"camera_matrix"`
	Distortion   []float64 `yaml:"distortion"`
}

// LoadCalibration reads a YAML document holding the row major intrinsic
// matrix and the distortion coefficients
//
//	camera_matrix: [700, 0, 320, 0, 700, 240, 0, 0, 1]
//	distortion: [0.1, -0.05, 0, 0, 0]
func LoadCalibration(r io.Reader) (Calibration, error) {

	var doc calibrationDoc

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&doc); err != nil {
		return Calibration{}, errors.Wrapf(ErrInvalidCalibration, "failed to parse calibration: %v", err)
	}

	if len(doc.CameraMatrix) != 9 {
		return Calibration{}, errors.Wrapf(ErrInvalidCalibration,
			"camera_matrix needs 9 values, got %d", len(doc.CameraMatrix))
	}

	return NewCalibration(mat.NewDense(3, 3, doc.CameraMatrix), doc.Distortion)
}

// CameraMatrix returns the 3x3 intrinsic matrix
func (c Calibration) CameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		c.fx, c.skew, c.cx,
		0, c.fy, c.cy,
		0, 0, 1,
	})
}

// Distortion returns a copy of the distortion coefficients as supplied
func (c Calibration) Distortion() []float64 {

	out := make([]float64, c.ndist)
	copy(out, c.dist[:c.ndist])

	return out
}

// distort applies the lens model to a normalized image coordinate
func (c Calibration) distort(x, y float64) (float64, float64) {

	if c.ndist == 0 {
		return x, y
	}

	k1, k2, p1, p2, k3 := c.dist[0], c.dist[1], c.dist[2], c.dist[3], c.dist[4]
	k4, k5, k6 := c.dist[5], c.dist[6], c.dist[7]

	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2

	radial := (1 + k1*r2 + k2*r4 + k3*r6) / (1 + k4*r2 + k5*r4 + k6*r6)

	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y

	return xd, yd
}

// Project maps a point in the camera frame to pixel coordinates
func (c Calibration) Project(p r3.Vector) r2.Point {

	x, y := c.distort(p.X/p.Z, p.Y/p.Z)

	return r2.Point{
		X: c.fx*x + c.skew*y + c.cx,
		Y: c.fy*y + c.cy,
	}
}

// Normalize maps a pixel to the undistorted normalized image plane, the
// inverse of Project up to depth.  The lens model is inverted with
// Newton-Raphson iterations starting at the distorted coordinate
func (c Calibration) Normalize(px r2.Point) r2.Point {

	yd := (px.Y - c.cy) / c.fy
	xd := (px.X - c.cx - c.skew*yd) / c.fx

	if c.ndist == 0 {
		return r2.Point{X: xd, Y: yd}
	}

	xu, yu := xd, yd

	const h = 1e-7

	for i := 0; i < undistortIterations; i++ {

		ex, ey := c.distort(xu, yu)
		ex -= xd
		ey -= yd

		if ex*ex+ey*ey < undistortTolerance {
			break
		}

		// forward difference Jacobian of the lens model
		x1, y1 := c.distort(xu+h, yu)
		x2, y2 := c.distort(xu, yu+h)

		j00 := (x1 - (ex + xd)) / h
		j10 := (y1 - (ey + yd)) / h
		j01 := (x2 - (ex + xd)) / h
		j11 := (y2 - (ey + yd)) / h

		det := j00*j11 - j01*j10

		if det == 0 {
			break
		}

		xu -= (j11*ex - j01*ey) / det
		yu -= (-j10*ex + j00*ey) / det
	}

	return r2.Point{X: xu, Y: yu}
}
