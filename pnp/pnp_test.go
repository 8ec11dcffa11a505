package pnp

import (
	"strings"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-markerpose/geometry"
	"gonum.org/v1/gonum/mat"
)

// squareCorners returns the corners of a marker of the given size in its own
// plane, top-left first and clockwise
func squareCorners(size float64) []r3.Vector {
	return []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: size, Y: 0, Z: 0},
		{X: size, Y: size, Z: 0},
		{X: 0, Y: size, Z: 0},
	}
}

// project maps object points through a pose and camera
func project(t geometry.Transform, calib Calibration, object []r3.Vector) []r2.Point {

	out := make([]r2.Point, len(object))

	for i, p := range object {
		out[i] = calib.Project(t.Apply(p))
	}

	return out
}

func newCamera(t *testing.T) Calibration {
	calib, err := NewPinhole(700, 320, 240)
	require.NoError(t, err)
	return calib
}

func TestSolvePlanarRoundTrip(t *testing.T) {
	t.Parallel()

	calib := newCamera(t)
	want := geometry.MakeTransformation(35, 45, 65, 20, 40, 60)
	object := squareCorners(37)

	sol, err := SolveDetailed(object, project(want, calib, object), calib)
	require.NoError(t, err)

	assert.Less(t, sol.Transform.Distance(want), 1e-3, "got %v", sol.Transform)
	assert.Less(t, sol.RMSError, 1e-6)
}

func TestSolveMultipleMarkers(t *testing.T) {
	t.Parallel()

	calib := newCamera(t)

	tests := []struct {
		name   string
		second geometry.Transform
		pose   geometry.Transform
	}{
		{
			name:   "coplanar",
			second: geometry.MakeTransformation(0, 0, 0, 100, 0, 0),
			pose:   geometry.MakeTransformation(10, -20, 5, -30, 10, 400),
		},
		{
			name:   "perpendicular",
			second: geometry.MakeTransformation(0, -90, 0, 60, 0, 0),
			pose:   geometry.MakeTransformation(-25, 30, 15, 5, -10, 300),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			object := squareCorners(40)
			for _, p := range squareCorners(40) {
				object = append(object, tc.second.Apply(p))
			}

			got, err := Solve(object, project(tc.pose, calib, object), calib)
			require.NoError(t, err)
			assert.Less(t, got.Distance(tc.pose), 1e-3, "got %v", got)
		})
	}
}

func TestSolveWithDistortion(t *testing.T) {
	t.Parallel()

	calib, err := NewCalibration(mat.NewDense(3, 3, []float64{
		650, 0, 330,
		0, 640, 250,
		0, 0, 1,
	}), []float64{0.1, -0.05, 0.001, 0.002, 0.01})
	require.NoError(t, err)

	want := geometry.MakeTransformation(-15, 20, 40, 30, -20, 200)
	object := squareCorners(50)

	got, err := Solve(object, project(want, calib, object), calib)
	require.NoError(t, err)
	assert.Less(t, got.Distance(want), 1e-3, "got %v", got)
}

func TestSolveRejectsBadInput(t *testing.T) {
	t.Parallel()

	calib := newCamera(t)
	pose := geometry.MakeTransformation(0, 0, 0, 0, 0, 100)
	object := squareCorners(20)
	image := project(pose, calib, object)

	collapsed := []r2.Point{{X: 10, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 10}}

	tests := []struct {
		name   string
		object []r3.Vector
		image  []r2.Point
	}{
		{"empty", nil, nil},
		{"three points", object[:3], image[:3]},
		{"length mismatch", object, image[:3]},
		{"not a multiple of four", append(object, object[0]), append(image, image[0])},
		{"no image area", object, collapsed},
		{"coincident object points", []r3.Vector{{}, {}, {}, {}}, image},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Solve(tc.object, tc.image, calib)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDegenerateGeometry), "unexpected error %v", err)
		})
	}
}

func TestSolveRequiresCalibration(t *testing.T) {
	t.Parallel()

	calib := newCamera(t)
	object := squareCorners(20)
	image := project(geometry.MakeTransformation(0, 0, 0, 0, 0, 100), calib, object)

	_, err := Solve(object, image, Calibration{})
	assert.True(t, errors.Is(err, ErrInvalidCalibration))
}

func TestNormalizeInvertsProject(t *testing.T) {
	t.Parallel()

	calib, err := NewCalibration(mat.NewDense(3, 3, []float64{
		700, 0.5, 320,
		0, 690, 240,
		0, 0, 1,
	}), []float64{-0.2, 0.05, 0.001, -0.001, 0, 0.01, 0, 0})
	require.NoError(t, err)

	for _, p := range []r3.Vector{
		{X: 0, Y: 0, Z: 1},
		{X: 0.2, Y: -0.1, Z: 1},
		{X: -30, Y: 25, Z: 150},
	} {
		px := calib.Project(p)
		n := calib.Normalize(px)

		assert.InDelta(t, p.X/p.Z, n.X, 1e-9)
		assert.InDelta(t, p.Y/p.Z, n.Y, 1e-9)
	}
}

func TestNewCalibrationValidation(t *testing.T) {
	t.Parallel()

	good := mat.NewDense(3, 3, []float64{700, 0, 320, 0, 700, 240, 0, 0, 1})

	tests := []struct {
		name string
		k    mat.Matrix
		dist []float64
	}{
		{"nil matrix", nil, nil},
		{"wrong shape", mat.NewDense(2, 3, nil), nil},
		{"zero focal", mat.NewDense(3, 3, []float64{0, 0, 320, 0, 700, 240, 0, 0, 1}), nil},
		{"bad bottom row", mat.NewDense(3, 3, []float64{700, 0, 320, 0, 700, 240, 0, 0, 2}), nil},
		{"three coefficients", good, []float64{0, 0, 0}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewCalibration(tc.k, tc.dist)
			assert.True(t, errors.Is(err, ErrInvalidCalibration), "unexpected error %v", err)
		})
	}

	calib, err := NewCalibration(good, []float64{0.1, 0.2, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0, 0}, calib.Distortion())
	assert.True(t, mat.Equal(good, calib.CameraMatrix()))
}

func TestLoadCalibration(t *testing.T) {
	t.Parallel()

	calib, err := LoadCalibration(strings.NewReader(`
camera_matrix: [700, 0, 320, 0, 700, 240, 0, 0, 1]
distortion: [0.1, -0.05, 0, 0, 0]
`))
	require.NoError(t, err)
	assert.Equal(t, 320.0, calib.CameraMatrix().At(0, 2))
	assert.Len(t, calib.Distortion(), 5)

	_, err = LoadCalibration(strings.NewReader("camera_matrix: [1, 2, 3]\n"))
	assert.True(t, errors.Is(err, ErrInvalidCalibration))

	_, err = LoadCalibration(strings.NewReader("lens: fisheye\n"))
	assert.True(t, errors.Is(err, ErrInvalidCalibration))
}
