package geometry

// Quad is the four image corners of a detected tag, ordered clockwise from
// the top left corner of the tag: top-left, top-right, bottom-right,
// bottom-left.  Corner i corresponds to corner i of the reference geometry
type Quad [4]Point2D

// quadChannels is the number of scalar values a Quad flattens to
const quadChannels = 8

// NewQuad is a constructor function for a Quad in corner order
func NewQuad(tl, tr, br, bl Point2D) Quad {
	return Quad{tl, tr, br, bl}
}

// Points returns the corners as a slice in corner order
func (q Quad) Points() []Point2D {
	return []Point2D{q[0], q[1], q[2], q[3]}
}

// Centroid returns the mean of the four corners
func (q Quad) Centroid() Point2D {
	return Centroid2D(q[:])
}

// Area returns the signed area enclosed by the corners using the shoelace
// formula.  With image axes (y down) a tag seen from the front has a
// positive area
func (q Quad) Area() float64 {

	area := 0.0

	for i := 0; i < 4; i++ {
		area += q[i].Cross(q[(i+1)%4])
	}

	return area / 2
}

// Channels flattens the corners into x0,y0,x1,y1,... scalar values
func (q Quad) Channels() []float64 {

	c := make([]float64, 0, quadChannels)

	for _, p := range q {
		c = append(c, p.X, p.Y)
	}

	return c
}

// FromChannels builds a Quad from values laid out as returned by Channels.
// Missing values are left at zero
func (q Quad) FromChannels(c []float64) Quad {

	var out Quad

	for i := 0; i < 4 && 2*i+1 < len(c); i++ {
		out[i] = Point2D{X: c[2*i], Y: c[2*i+1]}
	}

	return out
}
