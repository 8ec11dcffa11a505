package pnp

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/swdee/go-markerpose/geometry"
	"gonum.org/v1/gonum/mat"
)

// planarity is the ratio of the smallest to the largest spread of the object
// points below which they are treated as lying on a plane
const planarity = 1e-6

// pose is a rotation and translation taking object points into the camera
// frame
type pose struct {
	rot *mat.Dense
	t   r3.Vector
}

// nullVector returns the right singular vector of a belonging to its
// smallest singular value
func nullVector(a *mat.Dense) ([]float64, error) {

	var svd mat.SVD

	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize design matrix")
	}

	var v mat.Dense
	svd.VTo(&v)

	_, c := v.Dims()

	return mat.Col(nil, c-1, &v), nil
}

// normalize2D returns the similarity moving the points' centroid to the
// origin with a mean distance of √2, as a 3x3 homogeneous matrix
func normalize2D(pts []r2.Point) *mat.Dense {

	c := geometry.Centroid2D(pts)
	mean := 0.0

	for _, p := range pts {
		mean += p.Sub(c).Norm()
	}

	mean /= float64(len(pts))

	s := 1.0
	if mean > 0 {
		s = math.Sqrt2 / mean
	}

	return mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	})
}

// normalize3D returns the similarity moving the points' centroid to the
// origin with a mean distance of √3, as a 4x4 homogeneous matrix
func normalize3D(pts []r3.Vector) *mat.Dense {

	c := geometry.Centroid3D(pts)
	mean := 0.0

	for _, p := range pts {
		mean += p.Sub(c).Norm()
	}

	mean /= float64(len(pts))

	s := 1.0
	if mean > 0 {
		s = math.Sqrt(3) / mean
	}

	return mat.NewDense(4, 4, []float64{
		s, 0, 0, -s * c.X,
		0, s, 0, -s * c.Y,
		0, 0, s, -s * c.Z,
		0, 0, 0, 1,
	})
}

// apply2D applies a 3x3 homogeneous transform to a point
func apply2D(t mat.Matrix, p r2.Point) r2.Point {
	w := t.At(2, 0)*p.X + t.At(2, 1)*p.Y + t.At(2, 2)
	return r2.Point{
		X: (t.At(0, 0)*p.X + t.At(0, 1)*p.Y + t.At(0, 2)) / w,
		Y: (t.At(1, 0)*p.X + t.At(1, 1)*p.Y + t.At(1, 2)) / w,
	}
}

// apply3D applies a 4x4 homogeneous similarity to a point
func apply3D(t mat.Matrix, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: t.At(0, 0)*p.X + t.At(0, 1)*p.Y + t.At(0, 2)*p.Z + t.At(0, 3),
		Y: t.At(1, 0)*p.X + t.At(1, 1)*p.Y + t.At(1, 2)*p.Z + t.At(1, 3),
		Z: t.At(2, 0)*p.X + t.At(2, 1)*p.Y + t.At(2, 2)*p.Z + t.At(2, 3),
	}
}

// homography estimates H mapping plane points to image points, such that
// image ~ H·[x y 1], with the normalized direct linear transform
func homography(plane, image []r2.Point) (*mat.Dense, error) {

	tp := normalize2D(plane)
	ti := normalize2D(image)

	data := make([]float64, 0, 18*len(plane))

	for i := range plane {
		p := apply2D(tp, plane[i])
		q := apply2D(ti, image[i])
		data = append(data,
			-p.X, -p.Y, -1, 0, 0, 0, q.X*p.X, q.X*p.Y, q.X,
			0, 0, 0, -p.X, -p.Y, -1, q.Y*p.X, q.Y*p.Y, q.Y,
		)
	}

	rows := 2 * len(plane)
	if rows < 9 {
		// pad to a square system so the full SVD exposes the null space
		data = append(data, make([]float64, 9*(9-rows))...)
		rows = 9
	}

	h, err := nullVector(mat.NewDense(rows, 9, data))

	if err != nil {
		return nil, err
	}

	// H = Ti^-1 · Hn · Tp
	var tiInv mat.Dense

	if err := tiInv.Inverse(ti); err != nil {
		return nil, errors.Wrap(err, "failed to invert image normalization")
	}

	var tmp, out mat.Dense
	tmp.Mul(&tiInv, mat.NewDense(3, 3, h))
	out.Mul(&tmp, tp)

	return &out, nil
}

// planarPose recovers the pose of coplanar object points from their
// undistorted normalized image coordinates.  The points are expressed in an
// in-plane basis found by SVD, a homography is fitted and decomposed into
// rotation and translation
func planarPose(object []r3.Vector, image []r2.Point, basis *mat.Dense) (pose, error) {

	c := geometry.Centroid3D(object)
	e1 := r3.Vector{X: basis.At(0, 0), Y: basis.At(1, 0), Z: basis.At(2, 0)}
	e2 := r3.Vector{X: basis.At(0, 1), Y: basis.At(1, 1), Z: basis.At(2, 1)}
	e3 := e1.Cross(e2)

	plane := make([]r2.Point, len(object))

	for i, p := range object {
		d := p.Sub(c)
		plane[i] = r2.Point{X: d.Dot(e1), Y: d.Dot(e2)}
	}

	h, err := homography(plane, image)

	if err != nil {
		return pose{}, err
	}

	h1 := r3.Vector{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := r3.Vector{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := r3.Vector{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}

	norm := h1.Norm() + h2.Norm()

	if norm == 0 || h3.Z == 0 {
		return pose{}, errors.New("homography is singular")
	}

	// the plane origin (centroid) must lie in front of the camera
	lambda := math.Copysign(2/norm, h3.Z)

	r1 := h1.Mul(lambda)
	r2v := h2.Mul(lambda)
	r3v := r1.Cross(r2v)

	rp, err := geometry.Orthonormalize(mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	}))

	if err != nil {
		return pose{}, err
	}

	// object = c + B·plane, so R = Rp·Bᵀ and t = tp - R·c
	b := mat.NewDense(3, 3, []float64{
		e1.X, e2.X, e3.X,
		e1.Y, e2.Y, e3.Y,
		e1.Z, e2.Z, e3.Z,
	})

	rot := mat.NewDense(3, 3, nil)
	rot.Mul(rp, b.T())

	t := h3.Mul(lambda).Sub(geometry.Rotate(rot, c))

	return pose{rot: rot, t: t}, nil
}

// generalPose recovers the pose of non-coplanar object points by fitting
// the 3x4 projection matrix with the normalized direct linear transform
func generalPose(object []r3.Vector, image []r2.Point) (pose, error) {

	u := normalize3D(object)
	ti := normalize2D(image)

	data := make([]float64, 0, 24*len(object))

	for i := range object {
		p := apply3D(u, object[i])
		q := apply2D(ti, image[i])
		data = append(data,
			p.X, p.Y, p.Z, 1, 0, 0, 0, 0, -q.X*p.X, -q.X*p.Y, -q.X*p.Z, -q.X,
			0, 0, 0, 0, p.X, p.Y, p.Z, 1, -q.Y*p.X, -q.Y*p.Y, -q.Y*p.Z, -q.Y,
		)
	}

	v, err := nullVector(mat.NewDense(2*len(object), 12, data))

	if err != nil {
		return pose{}, err
	}

	// P = Ti^-1 · Pn · U
	var tiInv mat.Dense

	if err := tiInv.Inverse(ti); err != nil {
		return pose{}, errors.Wrap(err, "failed to invert image normalization")
	}

	var tmp, p mat.Dense
	tmp.Mul(&tiInv, mat.NewDense(3, 4, v))
	p.Mul(&tmp, u)

	m := mat.DenseCopyOf(p.Slice(0, 3, 0, 3))
	scale := math.Cbrt(mat.Det(m))

	if scale == 0 || math.IsNaN(scale) {
		return pose{}, errors.New("projection matrix is singular")
	}

	m.Scale(1/scale, m)

	rot, err := geometry.Orthonormalize(m)

	if err != nil {
		return pose{}, err
	}

	t := r3.Vector{X: p.At(0, 3), Y: p.At(1, 3), Z: p.At(2, 3)}.Mul(1 / scale)

	return pose{rot: rot, t: t}, nil
}

// spread returns the singular values and right singular vectors of the
// centered object points, largest first
func spread(object []r3.Vector) ([]float64, *mat.Dense, error) {

	c := geometry.Centroid3D(object)
	data := make([]float64, 0, 3*len(object))

	for _, p := range object {
		d := p.Sub(c)
		data = append(data, d.X, d.Y, d.Z)
	}

	var svd mat.SVD

	if ok := svd.Factorize(mat.NewDense(len(object), 3, data), mat.SVDFull); !ok {
		return nil, nil, errors.New("failed to factorize object points")
	}

	var v mat.Dense
	svd.VTo(&v)

	return svd.Values(nil), &v, nil
}
