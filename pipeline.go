package markerpose

import (
	"github.com/swdee/go-markerpose/geometry"
	"github.com/swdee/go-markerpose/markers"
	"github.com/swdee/go-markerpose/tracker"
)

// TagFilter smooths tag corners in the image before poses are solved
type TagFilter = tracker.Filter[markers.TagID, geometry.Quad]

// PoseFilter smooths solved poses by name
type PoseFilter = tracker.Filter[string, geometry.Transform]

// Pipeline runs the per frame processing chain: an optional filter over the
// detected corners, the Estimator and an optional filter over the poses
type Pipeline struct {
	estimator *Estimator
	tags      TagFilter
	poses     PoseFilter
}

// NewPipeline returns a Pipeline around estimator.  Either filter may be nil
// to skip that stage
func NewPipeline(estimator *Estimator, tags TagFilter, poses PoseFilter) *Pipeline {
	return &Pipeline{
		estimator: estimator,
		tags:      tags,
		poses:     poses,
	}
}

// Estimator returns the pose estimator of the pipeline
func (p *Pipeline) Estimator() *Estimator {
	return p.estimator
}

// Process runs one frame of detections through the pipeline
func (p *Pipeline) Process(detections Detections) PoseFrame {

	if p.tags != nil {
		detections = p.tags.Apply(detections)
	}

	poses := p.estimator.Estimate(detections)

	if p.poses != nil {
		poses = p.poses.Apply(poses)
	}

	return poses
}

// Reset clears the state of both filters
func (p *Pipeline) Reset() {

	if p.tags != nil {
		p.tags.Reset()
	}

	if p.poses != nil {
		p.poses.Reset()
	}
}
