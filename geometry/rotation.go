package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// small angle below which the rotation vector conversions use their first
// order approximations
const smallAngle = 1e-12

// Radians converts degrees to radians
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// RotationX returns the rotation matrix about the X axis by rad radians
func RotationX(rad float64) *mat.Dense {
	s, c := math.Sincos(rad)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// RotationY returns the rotation matrix about the Y axis by rad radians
func RotationY(rad float64) *mat.Dense {
	s, c := math.Sincos(rad)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

// RotationZ returns the rotation matrix about the Z axis by rad radians
func RotationZ(rad float64) *mat.Dense {
	s, c := math.Sincos(rad)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// EulerXYZ returns the rotation that first rotates a point about X by rx,
// then about Y by ry and finally about Z by rz.  Angles are in degrees and
// the combined matrix is Rz·Ry·Rx
func EulerXYZ(rx, ry, rz float64) *mat.Dense {

	var zy, zyx mat.Dense
	zy.Mul(RotationZ(Radians(rz)), RotationY(Radians(ry)))
	zyx.Mul(&zy, RotationX(Radians(rx)))

	return &zyx
}

// Rotate applies the 3x3 rotation rot to p
func Rotate(rot mat.Matrix, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: rot.At(0, 0)*p.X + rot.At(0, 1)*p.Y + rot.At(0, 2)*p.Z,
		Y: rot.At(1, 0)*p.X + rot.At(1, 1)*p.Y + rot.At(1, 2)*p.Z,
		Z: rot.At(2, 0)*p.X + rot.At(2, 1)*p.Y + rot.At(2, 2)*p.Z,
	}
}

// skew returns the cross product matrix [v]x
func skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// RotationFromVector converts an axis-angle rotation vector, whose length is
// the angle in radians, into a rotation matrix using Rodrigues' formula
func RotationFromVector(rvec r3.Vector) *mat.Dense {

	theta := rvec.Norm()
	rot := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})

	if theta < smallAngle {
		rot.Add(rot, skew(rvec))
		return rot
	}

	k := rvec.Mul(1 / theta)
	s, c := math.Sincos(theta)

	// R = cI + (1-c)kk' + s[k]x
	kv := mat.NewVecDense(3, []float64{k.X, k.Y, k.Z})
	var outer mat.Dense
	outer.Outer(1-c, kv, kv)

	var sk mat.Dense
	sk.Scale(s, skew(k))

	rot.Scale(c, rot)
	rot.Add(rot, &outer)
	rot.Add(rot, &sk)

	return rot
}

// RotationToVector converts a rotation matrix into its axis-angle rotation
// vector.  It is the inverse of RotationFromVector for angles in [0, π]
func RotationToVector(rot mat.Matrix) r3.Vector {

	r := rot.At
	cosTheta := (r(0, 0) + r(1, 1) + r(2, 2) - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)

	// w = 2 sin(theta) k
	w := r3.Vector{
		X: r(2, 1) - r(1, 2),
		Y: r(0, 2) - r(2, 0),
		Z: r(1, 0) - r(0, 1),
	}

	if theta < smallAngle {
		return w.Mul(0.5)
	}

	if math.Pi-theta > 1e-6 {
		return w.Mul(theta / (2 * math.Sin(theta)))
	}

	// near π the skew part vanishes, recover the axis from R = 2kk' - I
	k := r3.Vector{
		X: math.Sqrt(math.Max(0, (r(0, 0)+1)/2)),
		Y: math.Sqrt(math.Max(0, (r(1, 1)+1)/2)),
		Z: math.Sqrt(math.Max(0, (r(2, 2)+1)/2)),
	}

	switch k.LargestComponent() {
	case r3.XAxis:
		k.Y = math.Copysign(k.Y, r(0, 1)+r(1, 0))
		k.Z = math.Copysign(k.Z, r(0, 2)+r(2, 0))
	case r3.YAxis:
		k.X = math.Copysign(k.X, r(0, 1)+r(1, 0))
		k.Z = math.Copysign(k.Z, r(1, 2)+r(2, 1))
	default:
		k.X = math.Copysign(k.X, r(0, 2)+r(2, 0))
		k.Y = math.Copysign(k.Y, r(1, 2)+r(2, 1))
	}

	return k.Normalize().Mul(theta)
}

// Orthonormalize returns the rotation matrix closest to the 3x3 matrix m in
// the Frobenius sense
func Orthonormalize(m mat.Matrix) (*mat.Dense, error) {

	var svd mat.SVD

	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize rotation estimate")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	rot := mat.NewDense(3, 3, nil)
	rot.Mul(&u, v.T())

	if mat.Det(rot) < 0 {
		// reflect through the smallest singular direction
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		rot.Mul(&u, v.T())
	}

	return rot, nil
}
