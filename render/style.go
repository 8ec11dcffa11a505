package render

import (
	"image/color"

	"gocv.io/x/gocv"
)

var (
	// markerColors is a list of colors used to outline tags, picked by tag ID
	markerColors = []color.RGBA{
		{R: 255, G: 56, B: 56, A: 255},   // #FF3838
		{R: 255, G: 112, B: 31, A: 255},  // #FF701F
		{R: 255, G: 178, B: 29, A: 255},  // #FFB21D
		{R: 207, G: 210, B: 49, A: 255},  // #CFD231
		{R: 72, G: 249, B: 10, A: 255},   // #48F90A
		{R: 26, G: 147, B: 52, A: 255},   // #1A9334
		{R: 0, G: 212, B: 187, A: 255},   // #00D4BB
		{R: 0, G: 194, B: 255, A: 255},   // #00C2FF
		{R: 52, G: 69, B: 147, A: 255},   // #344593
		{R: 100, G: 115, B: 255, A: 255}, // #6473FF
		{R: 132, G: 56, B: 255, A: 255},  // #8438FF
		{R: 255, G: 55, B: 199, A: 255},  // #FF37C7
	}

	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}

	// axis colors follow the x, y, z = red, green, blue convention.  Mats are
	// in BGR order so the channels are swapped
	AxisX = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	AxisY = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	AxisZ = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Padding to place around text
	Pad int
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		Pad:       4,
	}
}

// Style holds the settings used to draw markers and poses
type Style struct {
	Font Font
	// LineThickness of tag outlines and pose axes
	LineThickness int
	// AxisLength is the length of drawn pose axes in object units
	AxisLength float64
}

// DefaultStyle returns default drawing settings for axes of the given length
func DefaultStyle(axisLength float64) Style {
	return Style{
		Font:          DefaultFont(),
		LineThickness: 2,
		AxisLength:    axisLength,
	}
}

// markerColor returns the outline color of a tag
func markerColor(id int) color.RGBA {
	if id < 0 {
		id = -id
	}
	return markerColors[id%len(markerColors)]
}
