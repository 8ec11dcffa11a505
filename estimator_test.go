package markerpose

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-markerpose/geometry"
	"github.com/swdee/go-markerpose/markers"
	"github.com/swdee/go-markerpose/pnp"
	"gonum.org/v1/gonum/mat"
)

const objectsYAML = `
myobject3:
  - marker: 2
    size: 50
    translation: [-50, -100, 0]
    rotation: [0, 0, 0]
    keep: true
  - marker: 3
    size: 50
    translation: [50, -100, 0]
    rotation: [0, 0, 0]
`

func camera(t *testing.T) pnp.Calibration {
	calib, err := pnp.NewPinhole(700, 320, 240)
	require.NoError(t, err)
	return calib
}

// observe projects the given corners through a pose into a detection quad
func observe(calib pnp.Calibration, pose geometry.Transform, corners [4]geometry.Point3D) geometry.Quad {

	var q geometry.Quad

	for i, c := range corners {
		q[i] = calib.Project(pose.Apply(c))
	}

	return q
}

func TestEstimateFreeTag(t *testing.T) {
	t.Parallel()

	calib := camera(t)
	want := geometry.MakeTransformation(35, 45, 65, 20, 40, 60)

	e := NewEstimator(markers.Empty(), calib, 37)
	poses := e.Estimate(Detections{
		5: observe(calib, want, markers.LocalCorners(37)),
	})

	require.Len(t, poses, 1)
	require.Contains(t, poses, "tag_5")
	assert.Less(t, poses["tag_5"].Distance(want), 1e-3, "got %v", poses["tag_5"])
}

func TestEstimateObject(t *testing.T) {
	t.Parallel()

	calib := camera(t)
	config, err := markers.LoadString(objectsYAML)
	require.NoError(t, err)

	pose := geometry.MakeTransformation(10, -20, 30, 15, -5, 500)

	tag2, ok := config.Marker(2)
	require.True(t, ok)
	tag3, ok := config.Marker(3)
	require.True(t, ok)

	e := NewEstimator(config, calib, 0)
	poses := e.Estimate(Detections{
		2: observe(calib, pose, tag2.ObjectCorners),
		3: observe(calib, pose, tag3.ObjectCorners),
	})

	require.Len(t, poses, 2)
	require.Contains(t, poses, "myobject3")
	assert.Less(t, poses["myobject3"].Distance(pose), 1e-3, "got %v", poses["myobject3"])

	// the kept marker is reported in its own frame
	wantTag := pose.Mul(tag2.Offset.Transform())
	require.Contains(t, poses, "tag_2")
	assert.Less(t, poses["tag_2"].Distance(wantTag), 1e-3, "got %v", poses["tag_2"])

	assert.NotContains(t, poses, "tag_3")
}

func TestEstimateObjectPartiallyVisible(t *testing.T) {
	t.Parallel()

	calib := camera(t)
	config, err := markers.LoadString(objectsYAML)
	require.NoError(t, err)

	pose := geometry.MakeTransformation(-10, 15, 0, 0, 0, 400)
	tag3, _ := config.Marker(3)

	// free tags are dropped with no default size
	e := NewEstimator(config, calib, 0)
	poses := e.Estimate(Detections{
		3:  observe(calib, pose, tag3.ObjectCorners),
		40: observe(calib, pose, markers.LocalCorners(20)),
	})

	require.Len(t, poses, 1)
	assert.Less(t, poses["myobject3"].Distance(pose), 1e-3)
}

func TestEstimateWithoutConfiguration(t *testing.T) {
	t.Parallel()

	calib := camera(t)
	a := geometry.MakeTransformation(0, 10, 0, -40, 0, 300)
	b := geometry.MakeTransformation(20, 0, -15, 40, 10, 350)

	detections := Detections{
		1: observe(calib, a, markers.LocalCorners(30)),
		2: observe(calib, b, markers.LocalCorners(30)),
	}

	poses := NewEstimator(nil, calib, 30).Estimate(detections)
	require.Len(t, poses, 2)
	assert.Less(t, poses["tag_1"].Distance(a), 1e-3)
	assert.Less(t, poses["tag_2"].Distance(b), 1e-3)

	for _, size := range []float64{0, -1} {
		assert.Empty(t, NewEstimator(markers.Empty(), calib, size).Estimate(detections))
	}
}

func TestEstimateIsolatesFailures(t *testing.T) {
	t.Parallel()

	calib := camera(t)
	good := geometry.MakeTransformation(5, 5, 5, 0, 0, 200)
	p := geometry.Point2D{X: 100, Y: 100}

	var out bytes.Buffer

	e := NewEstimator(markers.Empty(), calib, 25)
	e.SetLogger(log.New(&out, "", 0))

	poses, failures := e.EstimateDetailed(Detections{
		1: observe(calib, good, markers.LocalCorners(25)),
		9: geometry.NewQuad(p, p, p, p),
	})

	require.Len(t, poses, 1)
	assert.Contains(t, poses, "tag_1")

	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures["tag_9"], pnp.ErrDegenerateGeometry))
	assert.Contains(t, out.String(), "tag_9")
}

func TestEstimateEmptyDetections(t *testing.T) {
	t.Parallel()

	poses, failures := NewEstimator(nil, camera(t), 10).EstimateDetailed(nil)
	assert.Empty(t, poses)
	assert.Nil(t, failures)
}

func TestEstimatorCalibration(t *testing.T) {
	t.Parallel()

	calib := camera(t)
	want := geometry.MakeTransformation(35, 45, 65, 20, 40, 60)
	detections := Detections{7: observe(calib, want, markers.LocalCorners(37))}

	e := NewEstimator(nil, calib, 37)

	err := e.SetCalibration(mat.NewDense(3, 3, []float64{
		1400, 0, 320,
		0, 1400, 240,
		0, 0, 1,
	}), nil)
	require.NoError(t, err)

	// the tag appears further away to the longer lens
	got := e.Estimate(detections)["tag_7"]
	assert.Greater(t, got.Distance(want), 1.0)

	err = e.SetCalibration(mat.NewDense(2, 2, nil), nil)
	assert.True(t, errors.Is(err, pnp.ErrInvalidCalibration))
	assert.Equal(t, 1400.0, e.Calibration().CameraMatrix().At(0, 0))

	e.ResetCalibration()
	assert.Less(t, e.Estimate(detections)["tag_7"].Distance(want), 1e-3)
}

func TestTagName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tag_42", TagName(42))
}
