package transform

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Frame rotations (passive, Vallado's ROT1/ROT2/ROT3): the matrix expresses
// a fixed vector in a frame rotated by angle about the given axis.

// ROT1 returns the frame rotation about the X axis.
func ROT1(angle float64) *mat.Dense {
	s, c := math.Sincos(angle)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, s,
		0, -s, c,
	})
}

// ROT2 returns the frame rotation about the Y axis.
func ROT2(angle float64) *mat.Dense {
	s, c := math.Sincos(angle)
	return mat.NewDense(3, 3, []float64{
		c, 0, -s,
		0, 1, 0,
		s, 0, c,
	})
}

// ROT3 returns the frame rotation about the Z axis.
func ROT3(angle float64) *mat.Dense {
	s, c := math.Sincos(angle)
	return mat.NewDense(3, 3, []float64{
		c, s, 0,
		-s, c, 0,
		0, 0, 1,
	})
}

// Compose multiplies rotations left to right: Compose(A, B, C) = A·B·C.
func Compose(ms ...mat.Matrix) *mat.Dense {
	out := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	for _, m := range ms {
		var next mat.Dense
		next.Mul(out, m)
		out = &next
	}
	return out
}

// Apply multiplies the 3x3 matrix m by v.
func Apply(m mat.Matrix, v r3.Vec) r3.Vec {
	in := mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
	var out mat.VecDense
	out.MulVec(m, in)
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Columns builds the matrix whose columns are a, b and c. With orthonormal
// columns this maps local coordinates into the frame the columns are
// expressed in.
func Columns(a, b, c r3.Vec) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a.X, b.X, c.X,
		a.Y, b.Y, c.Y,
		a.Z, b.Z, c.Z,
	})
}
