package protocol

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// At returns the element in row r and column c.
func (r Rotation) At(row, col int) float64 {
	return r[col*3+row]
}

// Matrix returns the rotation as a dense 3x3 matrix.
func (r Rotation) Matrix() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			m.Set(row, col, r.At(row, col))
		}
	}
	return m
}

func RotationFromMatrix(m mat.Matrix) Rotation {
	var r Rotation
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			r[col*3+row] = m.At(row, col)
		}
	}
	return r
}

// Quaternion converts the rotation into a unit quaternion with Real as w.
func (r Rotation) Quaternion() quat.Number {
	var w, x, y, z float64
	tr := r[0] + r[4] + r[8]
	switch {
	case tr > 0:
		s := math.Sqrt(1 + tr)
		w = 0.5 * s
		s = 0.5 / s
		x = (r[5] - r[7]) * s
		y = (r[6] - r[2]) * s
		z = (r[1] - r[3]) * s
	case r[0] > r[4] && r[0] > r[8]:
		s := math.Sqrt(1 + r[0] - r[4] - r[8])
		x = 0.5 * s
		s = 0.5 / s
		y = (r[1] + r[3]) * s
		z = (r[2] + r[6]) * s
		w = (r[5] - r[7]) * s
	case r[4] > r[8]:
		s := math.Sqrt(1 - r[0] + r[4] - r[8])
		y = 0.5 * s
		s = 0.5 / s
		x = (r[1] + r[3]) * s
		z = (r[5] + r[7]) * s
		w = (r[6] - r[2]) * s
	default:
		s := math.Sqrt(1 - r[0] - r[4] + r[8])
		z = 0.5 * s
		s = 0.5 / s
		x = (r[2] + r[6]) * s
		y = (r[5] + r[7]) * s
		w = (r[1] - r[3]) * s
	}
	return quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
}

// RotationFromQuaternion builds a rotation matrix from q. q does not need to be
// normalized; the zero quaternion maps to the identity.
func RotationFromQuaternion(q quat.Number) Rotation {
	n := quat.Abs(q)
	if n == 0 {
		return Identity
	}
	q = quat.Scale(1/n, q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	var r Rotation
	set := func(row, col int, v float64) { r[col*3+row] = v }
	set(0, 0, 1-2*(y*y+z*z))
	set(0, 1, 2*(x*y-z*w))
	set(0, 2, 2*(x*z+y*w))
	set(1, 0, 2*(x*y+z*w))
	set(1, 1, 1-2*(x*x+z*z))
	set(1, 2, 2*(y*z-x*w))
	set(2, 0, 2*(x*z-y*w))
	set(2, 1, 2*(y*z+x*w))
	set(2, 2, 1-2*(x*x+y*y))
	return r
}
