// Package geometry holds the small value types shared by the marker pose
// packages: image points, object points, tag quadrilaterals and rigid
// transformations.
package geometry

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Point2D is an image plane coordinate in pixels
type Point2D = r2.Point

// Point3D is a coordinate in a marker, object or camera frame
type Point3D = r3.Vector

// Centroid2D returns the arithmetic mean of the given image points.  An empty
// slice returns the origin
func Centroid2D(pts []Point2D) Point2D {

	var sum Point2D

	if len(pts) == 0 {
		return sum
	}

	for _, p := range pts {
		sum = sum.Add(p)
	}

	return sum.Mul(1 / float64(len(pts)))
}

// Centroid3D returns the arithmetic mean of the given points.  An empty
// slice returns the origin
func Centroid3D(pts []Point3D) Point3D {

	var sum Point3D

	if len(pts) == 0 {
		return sum
	}

	for _, p := range pts {
		sum = sum.Add(p)
	}

	return sum.Mul(1 / float64(len(pts)))
}
