package core

import "math"

const defaultEpsilon = 1e-12

// NearlyEqual reports whether a and b are equal within eps.
func NearlyEqual(a, b, eps float64) bool {
	if eps <= 0 {
		eps = defaultEpsilon
	}

	diff := math.Abs(a - b)
	if diff <= eps {
		return true
	}

	largest := math.Max(math.Abs(a), math.Abs(b))
	if largest == 0 {
		return diff <= eps
	}

	return diff/largest <= eps
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// AbsSq returns |z|^2 without the square root of cmplx.Abs.
func AbsSq(z complex128) float64 {
	return real(z)*real(z) + imag(z)*imag(z)
}

// Phasor returns exp(i*theta).
func Phasor(theta float64) complex128 {
	s, c := math.Sincos(theta)
	return complex(c, s)
}
