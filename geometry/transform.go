package geometry

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Transform is a 4x4 homogeneous rigid transformation, a 3x3 rotation block
// with a translation column and a [0 0 0 1] bottom row
type Transform [4][4]float64

// transformChannels is the number of scalar values a Transform flattens to
const transformChannels = 16

// Identity returns the identity transformation
func Identity() Transform {
	return Transform{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// NewTransform assembles a Transform from a 3x3 rotation and a translation
func NewTransform(rot mat.Matrix, t r3.Vector) Transform {

	tr := Identity()

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			tr[i][j] = rot.At(i, j)
		}
	}

	tr[0][3], tr[1][3], tr[2][3] = t.X, t.Y, t.Z

	return tr
}

// MakeTransformation builds the transformation that rotates by the Euler
// angles rx, ry, rz (degrees, X then Y then Z) and then translates by
// (tx, ty, tz)
func MakeTransformation(rx, ry, rz, tx, ty, tz float64) Transform {
	return NewTransform(EulerXYZ(rx, ry, rz), r3.Vector{X: tx, Y: ty, Z: tz})
}

// Rotation returns the 3x3 rotation block
func (t Transform) Rotation() *mat.Dense {

	rot := mat.NewDense(3, 3, nil)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, t[i][j])
		}
	}

	return rot
}

// Translation returns the translation column
func (t Transform) Translation() r3.Vector {
	return r3.Vector{X: t[0][3], Y: t[1][3], Z: t[2][3]}
}

// Apply transforms the point p
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: t[0][0]*p.X + t[0][1]*p.Y + t[0][2]*p.Z + t[0][3],
		Y: t[1][0]*p.X + t[1][1]*p.Y + t[1][2]*p.Z + t[1][3],
		Z: t[2][0]*p.X + t[2][1]*p.Y + t[2][2]*p.Z + t[2][3],
	}
}

// Mul returns the composition t·o, which applies o first and then t
func (t Transform) Mul(o Transform) Transform {

	var out Transform

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 4; k++ {
				out[i][j] += t[i][k] * o[k][j]
			}
		}
	}

	return out
}

// Inverse returns the inverse rigid transformation, assuming the rotation
// block is orthonormal
func (t Transform) Inverse() Transform {

	rt := mat.DenseCopyOf(t.Rotation().T())
	tr := Rotate(rt, t.Translation()).Mul(-1)

	return NewTransform(rt, tr)
}

// Dense returns the transformation as a gonum 4x4 matrix
func (t Transform) Dense() *mat.Dense {
	return mat.NewDense(4, 4, t.Channels())
}

// Distance returns the Frobenius norm of t - o
func (t Transform) Distance(o Transform) float64 {

	sum := 0.0

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			d := t[i][j] - o[i][j]
			sum += d * d
		}
	}

	return math.Sqrt(sum)
}

// IsFinite reports whether no entry is NaN or infinite
func (t Transform) IsFinite() bool {

	for _, v := range t.Channels() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// Channels flattens the matrix row by row into 16 scalar values
func (t Transform) Channels() []float64 {

	c := make([]float64, 0, transformChannels)

	for _, row := range t {
		c = append(c, row[:]...)
	}

	return c
}

// FromChannels builds a Transform from 16 row major values.  Missing values
// are left at zero
func (t Transform) FromChannels(c []float64) Transform {

	var out Transform

	for i := 0; i < transformChannels && i < len(c); i++ {
		out[i/4][i%4] = c[i]
	}

	return out
}

// String formats the matrix one row per line
func (t Transform) String() string {

	var b strings.Builder

	for i, row := range t {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[% .6f % .6f % .6f % .6f]", row[0], row[1], row[2], row[3])
	}

	return b.String()
}
