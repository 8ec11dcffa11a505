package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestEulerXYZOrder(t *testing.T) {
	t.Parallel()

	// rotating X by 90 about X leaves it, then 90 about Y sends it to -Z,
	// then 90 about Z leaves -Z
	p := Rotate(EulerXYZ(90, 90, 90), r3.Vector{X: 1})
	assert.InDelta(t, 0, p.X, 1e-12)
	assert.InDelta(t, 0, p.Y, 1e-12)
	assert.InDelta(t, -1, p.Z, 1e-12)

	// Y goes to Z about X, to X about Y and back to Y about Z
	p = Rotate(EulerXYZ(90, 90, 90), r3.Vector{Y: 1})
	assert.InDelta(t, 0, p.X, 1e-12)
	assert.InDelta(t, 1, p.Y, 1e-12)
	assert.InDelta(t, 0, p.Z, 1e-12)

	var want, tmp mat.Dense
	tmp.Mul(RotationZ(Radians(65)), RotationY(Radians(45)))
	want.Mul(&tmp, RotationX(Radians(35)))
	assert.True(t, mat.EqualApprox(&want, EulerXYZ(35, 45, 65), 1e-12))
}

func TestRotationVectorRoundTrip(t *testing.T) {
	t.Parallel()

	vectors := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 1e-14, Y: 0, Z: 0},
		{X: 0.3, Y: -0.2, Z: 0.1},
		{X: 0, Y: 2.5, Z: 0},
		{X: math.Pi - 1e-9, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: -math.Pi + 1e-9},
		r3.Vector{X: 1, Y: 1, Z: 1}.Normalize().Mul(math.Pi),
	}

	for _, v := range vectors {
		rot := RotationFromVector(v)
		assert.InDelta(t, 1, mat.Det(rot), 1e-9)

		back := RotationFromVector(RotationToVector(rot))
		assert.True(t, mat.EqualApprox(rot, back, 1e-6), "vector %v", v)
	}
}

func TestRotationFromVectorMatchesAxisRotation(t *testing.T) {
	t.Parallel()

	rot := RotationFromVector(r3.Vector{Z: Radians(30)})
	assert.True(t, mat.EqualApprox(RotationZ(Radians(30)), rot, 1e-12))
}

func TestOrthonormalize(t *testing.T) {
	t.Parallel()

	noisy := mat.DenseCopyOf(EulerXYZ(10, 20, 30))
	noisy.Set(0, 0, noisy.At(0, 0)+1e-3)
	noisy.Scale(2, noisy)

	rot, err := Orthonormalize(noisy)
	require.NoError(t, err)
	assert.InDelta(t, 1, mat.Det(rot), 1e-9)
	assert.True(t, mat.EqualApprox(EulerXYZ(10, 20, 30), rot, 1e-3))

	var rrt mat.Dense
	rrt.Mul(rot, rot.T())
	assert.True(t, mat.EqualApprox(mat.NewDiagDense(3, []float64{1, 1, 1}), &rrt, 1e-9))
}

func TestTransformComposition(t *testing.T) {
	t.Parallel()

	a := MakeTransformation(35, 45, 65, 20, 40, 60)
	b := MakeTransformation(-10, 5, 80, 1, 2, 3)
	p := r3.Vector{X: 3, Y: -4, Z: 5}

	assert.True(t, a.Mul(b).Apply(p).ApproxEqual(a.Apply(b.Apply(p))))
	assert.InDelta(t, 0, a.Mul(a.Inverse()).Distance(Identity()), 1e-12)
	assert.Equal(t, r3.Vector{X: 20, Y: 40, Z: 60}, a.Translation())
	assert.Equal(t, [4]float64{0, 0, 0, 1}, a[3])
}

func TestTransformChannels(t *testing.T) {
	t.Parallel()

	a := MakeTransformation(1, 2, 3, 4, 5, 6)
	c := a.Channels()
	require.Len(t, c, 16)
	assert.Equal(t, a[1][2], c[6])
	assert.Equal(t, a, Transform{}.FromChannels(c))
	assert.True(t, a.IsFinite())

	a[2][1] = math.NaN()
	assert.False(t, a.IsFinite())
}

func TestQuad(t *testing.T) {
	t.Parallel()

	q := NewQuad(Point2D{X: 0, Y: 0}, Point2D{X: 10, Y: 0}, Point2D{X: 10, Y: 10}, Point2D{X: 0, Y: 10})

	assert.Equal(t, Point2D{X: 5, Y: 5}, q.Centroid())
	assert.InDelta(t, 100, q.Area(), 1e-12)
	assert.Equal(t, q, Quad{}.FromChannels(q.Channels()))
	assert.Len(t, q.Points(), 4)

	flat := NewQuad(Point2D{X: 1, Y: 1}, Point2D{X: 1, Y: 1}, Point2D{X: 1, Y: 1}, Point2D{X: 1, Y: 1})
	assert.Zero(t, flat.Area())
}

func TestCentroids(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Point3D{}, Centroid3D(nil))
	assert.Equal(t, Point2D{}, Centroid2D(nil))
	assert.Equal(t, Point3D{X: 1, Y: 2, Z: 3},
		Centroid3D([]Point3D{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 4, Z: 6}}))
}
