// Package kernel provides the dense per-block payloads and the numeric
// primitives operating on them. Blocks are small row-major tensors; all
// structural bookkeeping (charges, sectors) happens above this package.
package kernel

import "fmt"

// Scalar is the constraint for supported block element types.
type Scalar interface {
	~float32 | ~float64 | ~complex64 | ~complex128
}

// Dense is a dense row-major tensor holding the payload of one block.
// A rank-0 Dense has an empty shape and exactly one element.
type Dense[T Scalar] struct {
	Shape []int
	Data  []T
}

// NumElements returns the total number of elements for a shape.
// An empty shape describes a scalar with one element.
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Strides calculates row-major strides for the shape.
func Strides(shape []int) []int {
	strides := make([]int, len(shape))
	if len(shape) == 0 {
		return strides
	}
	strides[len(shape)-1] = 1
	for i := len(shape) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * shape[i+1]
	}
	return strides
}

// Zeros creates a zero-initialized block with the given shape.
func Zeros[T Scalar](shape []int) Dense[T] {
	return Dense[T]{
		Shape: append([]int(nil), shape...),
		Data:  make([]T, NumElements(shape)),
	}
}

// FromSlice creates a block wrapping data. The slice is not copied.
// Panics if the length does not match the shape; callers validate sizes.
func FromSlice[T Scalar](data []T, shape []int) Dense[T] {
	if len(data) != NumElements(shape) {
		panic(fmt.Sprintf("kernel: shape %v requires %d elements, got %d", shape, NumElements(shape), len(data)))
	}
	return Dense[T]{Shape: append([]int(nil), shape...), Data: data}
}

// Clone returns a deep copy of the block.
func (d Dense[T]) Clone() Dense[T] {
	cp := Dense[T]{
		Shape: append([]int(nil), d.Shape...),
		Data:  make([]T, len(d.Data)),
	}
	copy(cp.Data, d.Data)
	return cp
}

// Rank returns the number of axes.
func (d Dense[T]) Rank() int { return len(d.Shape) }

// Size returns the number of stored elements.
func (d Dense[T]) Size() int { return len(d.Data) }

// WithShape reinterprets the data under a new shape of equal size.
// The data is shared, not copied.
func (d Dense[T]) WithShape(shape []int) Dense[T] {
	if NumElements(shape) != len(d.Data) {
		panic(fmt.Sprintf("kernel: cannot reshape %v to %v", d.Shape, shape))
	}
	return Dense[T]{Shape: append([]int(nil), shape...), Data: d.Data}
}

// offset computes the flat offset of a multi-index.
func (d Dense[T]) offset(idx []int) int {
	if len(idx) != len(d.Shape) {
		panic(fmt.Sprintf("kernel: index rank %d does not match shape %v", len(idx), d.Shape))
	}
	off := 0
	stride := 1
	for i := len(d.Shape) - 1; i >= 0; i-- {
		if idx[i] < 0 || idx[i] >= d.Shape[i] {
			panic(fmt.Sprintf("kernel: index %v out of bounds for shape %v", idx, d.Shape))
		}
		off += idx[i] * stride
		stride *= d.Shape[i]
	}
	return off
}

// At returns the element at a multi-index.
func (d Dense[T]) At(idx ...int) T { return d.Data[d.offset(idx)] }

// Set assigns the element at a multi-index.
func (d Dense[T]) Set(v T, idx ...int) { d.Data[d.offset(idx)] = v }

// MaxAbs returns the largest absolute value of the block, 0 for empty data.
func (d Dense[T]) MaxAbs() float64 {
	m := 0.0
	for _, v := range d.Data {
		if a := Abs(v); a > m {
			m = a
		}
	}
	return m
}
