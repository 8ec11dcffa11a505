// Package render draws tag detections and solved poses onto images
package render

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/swdee/go-markerpose/geometry"
	"github.com/swdee/go-markerpose/markers"
	"github.com/swdee/go-markerpose/pnp"
	"gocv.io/x/gocv"
)

// Markers outlines each detected tag and labels it with its ID at corner 0
func Markers(img *gocv.Mat, detections map[markers.TagID]geometry.Quad, style Style) {

	ids := make([]markers.TagID, 0, len(detections))

	for id := range detections {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {

		quad := detections[id]
		useClr := markerColor(int(id))

		for i := 0; i < 4; i++ {
			gocv.Line(img, toPoint(quad[i]), toPoint(quad[(i+1)%4]), useClr, style.LineThickness)
		}

		// mark corner 0 so the orientation is visible
		gocv.Circle(img, toPoint(quad[0]), style.LineThickness+2, useClr, -1)

		label(img, fmt.Sprintf("%d", id), toPoint(quad[0]), useClr, style.Font)
	}
}

// Axes draws the x, y and z axes of each pose, projected through the camera,
// and labels the pose with its name at the origin
func Axes(img *gocv.Mat, poses map[string]geometry.Transform, calib pnp.Calibration, style Style) {

	names := make([]string, 0, len(poses))

	for name := range poses {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {

		pose := poses[name]
		origin := pose.Apply(r3.Vector{})

		// skip poses behind the camera
		if origin.Z <= 0 {
			continue
		}

		o := toPoint(calib.Project(origin))

		axes := []struct {
			dir r3.Vector
			clr color.RGBA
		}{
			{r3.Vector{X: style.AxisLength}, AxisX},
			{r3.Vector{Y: style.AxisLength}, AxisY},
			{r3.Vector{Z: style.AxisLength}, AxisZ},
		}

		for _, a := range axes {
			end := pose.Apply(a.dir)

			if end.Z <= 0 {
				continue
			}

			gocv.ArrowedLine(img, o, toPoint(calib.Project(end)), a.clr, style.LineThickness)
		}

		t := pose.Translation()
		label(img, fmt.Sprintf("%s %.0f,%.0f,%.0f", name, t.X, t.Y, t.Z), o, Black, style.Font)
	}
}

// label draws text on a filled box above the given position
func label(img *gocv.Mat, text string, pos image.Point, bg color.RGBA, font Font) {

	textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

	// create box for placing text on
	bRect := image.Rect(pos.X, pos.Y-textSize.Y-2*font.Pad,
		pos.X+textSize.X+2*font.Pad, pos.Y)
	gocv.Rectangle(img, bRect, bg, -1)

	gocv.PutTextWithParams(img, text, image.Pt(pos.X+font.Pad, pos.Y-font.Pad),
		font.Face, font.Scale, font.Color, font.Thickness, font.LineType, false)
}

// toPoint rounds an image coordinate to a pixel
func toPoint(p r2.Point) image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}
