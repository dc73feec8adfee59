package posemath

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned by Invert when the matrix has no usable inverse.
var ErrSingular = errors.New("posemath: matrix is singular")

// Mat4 is a 4x4 row-major matrix: element (r, c) lives at index r*4+c.
type Mat4 [16]float64

// Identity returns the 4x4 identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns element (r, c).
func (m Mat4) At(r, c int) float64 {
	return m[r*4+c]
}

// Multiply returns a*b. With column vectors this applies b first, so
// Multiply(projection, Multiply(view, model)) is the usual MVP.
func Multiply(a, b Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = a[r*4]*b[c] + a[r*4+1]*b[4+c] + a[r*4+2]*b[8+c] + a[r*4+3]*b[12+c]
		}
	}
	return out
}

// MulVec4 returns m*v for a column vector v. Pass w=0 to transform a
// direction and w=1 to transform a point.
func MulVec4(m Mat4, v [4]float64) [4]float64 {
	var out [4]float64
	for r := 0; r < 4; r++ {
		out[r] = m[r*4]*v[0] + m[r*4+1]*v[1] + m[r*4+2]*v[2] + m[r*4+3]*v[3]
	}
	return out
}

// Invert returns the inverse of m.
//
// Precondition: m must be invertible. View matrices built from a tracked
// camera pose always are; ErrSingular is returned for anything else and the
// returned matrix must not be used.
func Invert(m Mat4) (Mat4, error) {
	src := mat.NewDense(4, 4, m[:])
	var inv mat.Dense
	if err := inv.Inverse(src); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return Mat4{}, ErrSingular
		}
		// Ill-conditioned but finite: gonum still computed a result.
	}
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = inv.At(r, c)
		}
	}
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Mat4{}, ErrSingular
		}
	}
	return out, nil
}

// Transpose returns the transpose of m.
func Transpose(m Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = m[r*4+c]
		}
	}
	return out
}

// ColumnMajor32 converts m to the column-major float32 layout shader
// uniforms expect.
func (m Mat4) ColumnMajor32() [16]float32 {
	var out [16]float32
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = float32(m[r*4+c])
		}
	}
	return out
}

// ApproxEqual reports whether every element of a and b differs by at most eps.
func ApproxEqual(a, b Mat4, eps float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}
