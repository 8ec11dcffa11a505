package markerpose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-markerpose/geometry"
	"github.com/swdee/go-markerpose/markers"
	"github.com/swdee/go-markerpose/tracker"
)

func TestPipelineFilters(t *testing.T) {
	t.Parallel()

	calib := camera(t)
	want := geometry.MakeTransformation(35, 45, 65, 20, 40, 60)
	detections := Detections{3: observe(calib, want, markers.LocalCorners(37))}

	tagAges, err := tracker.NewFindOutdated[markers.TagID](2)
	require.NoError(t, err)
	tags, err := tracker.NewMovingAverage[markers.TagID, geometry.Quad](tagAges, 4)
	require.NoError(t, err)

	poseAges, err := tracker.NewFindOutdated[string](2)
	require.NoError(t, err)
	poses, err := tracker.NewKalmanTracker[string, geometry.Transform](poseAges, 1, tracker.DefaultKalmanParams())
	require.NoError(t, err)

	p := NewPipeline(NewEstimator(nil, calib, 37), tags, poses)

	for i := 0; i < 6; i++ {
		out := p.Process(detections)
		require.Contains(t, out, "tag_3", "frame %d", i)
		assert.Less(t, out["tag_3"].Distance(want), 1e-3, "frame %d", i)
	}

	assert.Equal(t, 1, tags.Len())
	assert.Equal(t, 1, poses.Len())

	// the tag disappears for longer than the persistence
	for i := 0; i < 3; i++ {
		assert.Empty(t, p.Process(nil))
	}

	assert.Zero(t, tags.Len())
	assert.Zero(t, poses.Len())

	p.Process(detections)
	p.Reset()
	assert.Zero(t, tags.Len())
}

func TestPipelineWithoutFilters(t *testing.T) {
	t.Parallel()

	calib := camera(t)
	want := geometry.MakeTransformation(0, 0, 0, 0, 0, 100)

	e := NewEstimator(nil, calib, 10)
	p := NewPipeline(e, nil, nil)

	out := p.Process(Detections{1: observe(calib, want, markers.LocalCorners(10))})
	assert.Less(t, out["tag_1"].Distance(want), 1e-3)
	assert.Same(t, e, p.Estimator())

	p.Reset()
}
