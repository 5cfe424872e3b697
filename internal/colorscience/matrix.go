package colorscience

import "math"

const identityEpsilon = 1e-6

// Matrix3 is a row-major 3x3 color correction matrix mapping sensor RGB
// to the output color space.
type Matrix3 [9]float64

// Identity3 returns the identity color correction matrix.
func Identity3() Matrix3 {
	return Matrix3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// IsIdentity reports whether the matrix is identity within epsilon.
func (m Matrix3) IsIdentity() bool {
	id := Identity3()
	for i := range m {
		if math.Abs(m[i]-id[i]) > identityEpsilon {
			return false
		}
	}
	return true
}

// IsZero reports whether every entry is zero, the value of an unset matrix.
func (m Matrix3) IsZero() bool {
	for i := range m {
		if m[i] != 0 {
			return false
		}
	}
	return true
}
