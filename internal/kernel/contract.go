package kernel

import (
	"fmt"

	"github.com/qspace-ml/qspace/internal/parallel"
)

// cfg is the shared parallelism configuration for dense kernels.
// Parallelism here is an implementation detail: callers observe purely
// synchronous, value-oriented behavior.
var cfg = parallel.DefaultConfig()

// Tensordot contracts the last k axes of a with the first k axes of b.
// Both views are reshaped to matrices and multiplied row-major.
func Tensordot[T Scalar](a, b Dense[T], k int) Dense[T] {
	ra, rb := len(a.Shape), len(b.Shape)
	if k < 0 || k > ra || k > rb {
		panic(fmt.Sprintf("kernel: cannot contract %d axes of shapes %v, %v", k, a.Shape, b.Shape))
	}
	kk := 1
	for i := 0; i < k; i++ {
		if a.Shape[ra-k+i] != b.Shape[i] {
			panic(fmt.Sprintf("kernel: contracted axes disagree: %v vs %v", a.Shape, b.Shape))
		}
		kk *= b.Shape[i]
	}
	outShape := make([]int, 0, ra+rb-2*k)
	outShape = append(outShape, a.Shape[:ra-k]...)
	outShape = append(outShape, b.Shape[k:]...)
	m := NumElements(a.Shape[:ra-k])
	n := NumElements(b.Shape[k:])
	out := Zeros[T](outShape)
	parallel.For(m, func(i int) {
		arow := a.Data[i*kk : (i+1)*kk]
		orow := out.Data[i*n : (i+1)*n]
		for l := 0; l < kk; l++ {
			av := arow[l]
			if av == 0 {
				continue
			}
			brow := b.Data[l*n : (l+1)*n]
			for j := range orow {
				orow[j] += av * brow[j]
			}
		}
	}, cfg)
	return out
}

// AddInto accumulates src into dst elementwise; shapes must agree.
func AddInto[T Scalar](dst, src Dense[T]) {
	if len(dst.Data) != len(src.Data) {
		panic("kernel: size mismatch in AddInto")
	}
	for i, v := range src.Data {
		dst.Data[i] += v
	}
}

// Outer forms the tensor product of two blocks on disjoint axes.
func Outer[T Scalar](a, b Dense[T]) Dense[T] {
	outShape := make([]int, 0, len(a.Shape)+len(b.Shape))
	outShape = append(outShape, a.Shape...)
	outShape = append(outShape, b.Shape...)
	out := Zeros[T](outShape)
	nb := len(b.Data)
	parallel.For(len(a.Data), func(i int) {
		av := a.Data[i]
		row := out.Data[i*nb : (i+1)*nb]
		for j, bv := range b.Data {
			row[j] = av * bv
		}
	}, cfg)
	return out
}

// Dot returns the flat elementwise dot product of two equally sized blocks.
// No complex conjugation is applied.
func Dot[T Scalar](a, b Dense[T]) T {
	if len(a.Data) != len(b.Data) {
		panic("kernel: size mismatch in Dot")
	}
	var s T
	for i, v := range a.Data {
		s += v * b.Data[i]
	}
	return s
}
