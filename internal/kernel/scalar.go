package kernel

import (
	"math"
	"math/cmplx"
)

// Abs returns the absolute value of a scalar as float64.
func Abs[T Scalar](v T) float64 {
	switch x := any(v).(type) {
	case float32:
		return math.Abs(float64(x))
	case float64:
		return math.Abs(x)
	case complex64:
		return cmplx.Abs(complex128(x))
	case complex128:
		return cmplx.Abs(x)
	}
	panic("kernel: unsupported scalar type")
}

// ConjVal returns the complex conjugate of a scalar; real types pass through.
func ConjVal[T Scalar](v T) T {
	switch x := any(v).(type) {
	case complex64:
		c := complex128(x)
		return any(complex64(cmplx.Conj(c))).(T)
	case complex128:
		return any(cmplx.Conj(x)).(T)
	}
	return v
}

// IsComplex reports whether T is a complex type.
func IsComplex[T Scalar]() bool {
	var dummy T
	switch any(dummy).(type) {
	case complex64, complex128:
		return true
	}
	return false
}

// FromComplex128 converts a complex128 to T, discarding the imaginary part
// when T is real.
func FromComplex128[T Scalar](c complex128) T {
	var dummy T
	switch any(dummy).(type) {
	case float32:
		return any(float32(real(c))).(T)
	case float64:
		return any(real(c)).(T)
	case complex64:
		return any(complex64(c)).(T)
	case complex128:
		return any(c).(T)
	}
	panic("kernel: unsupported scalar type")
}

// ToComplex128 converts a scalar to complex128.
func ToComplex128[T Scalar](v T) complex128 {
	switch x := any(v).(type) {
	case float32:
		return complex(float64(x), 0)
	case float64:
		return complex(x, 0)
	case complex64:
		return complex128(x)
	case complex128:
		return x
	}
	panic("kernel: unsupported scalar type")
}

// ConvertSlice converts element types via complex128. The imaginary part is
// discarded when To is real; callers decide whether that deserves a warning.
func ConvertSlice[To, From Scalar](in []From) []To {
	out := make([]To, len(in))
	for i, v := range in {
		out[i] = FromComplex128[To](ToComplex128(v))
	}
	return out
}

// Norm computes the ord-norm over flat data.
// ord 0 counts nonzero entries, ±Inf give max/min absolute value,
// any other ord gives (sum |x|^ord)^(1/ord).
func Norm[T Scalar](data []T, ord float64) float64 {
	switch {
	case ord == 0:
		n := 0.0
		for _, v := range data {
			if v != 0 {
				n++
			}
		}
		return n
	case math.IsInf(ord, 1):
		m := 0.0
		for _, v := range data {
			if a := Abs(v); a > m {
				m = a
			}
		}
		return m
	case math.IsInf(ord, -1):
		m := math.Inf(1)
		for _, v := range data {
			if a := Abs(v); a < m {
				m = a
			}
		}
		if math.IsInf(m, 1) {
			return 0
		}
		return m
	case ord == 2:
		s := 0.0
		for _, v := range data {
			a := Abs(v)
			s += a * a
		}
		return math.Sqrt(s)
	default:
		s := 0.0
		for _, v := range data {
			s += math.Pow(Abs(v), ord)
		}
		return math.Pow(s, 1/ord)
	}
}
