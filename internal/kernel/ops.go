package kernel

import "fmt"

// Transpose permutes the axes of a block, copying into a fresh buffer.
func Transpose[T Scalar](d Dense[T], axes []int) Dense[T] {
	if len(axes) != len(d.Shape) {
		panic(fmt.Sprintf("kernel: transpose axes %v do not match shape %v", axes, d.Shape))
	}
	newShape := make([]int, len(axes))
	for i, a := range axes {
		newShape[i] = d.Shape[a]
	}
	out := Zeros[T](newShape)
	if len(d.Data) == 0 {
		return out
	}
	oldStrides := Strides(d.Shape)
	idx := make([]int, len(newShape))
	for pos := range out.Data {
		src := 0
		for i, a := range axes {
			src += idx[i] * oldStrides[a]
		}
		out.Data[pos] = d.Data[src]
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < newShape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

// CopyInto places src into dst at the given per-axis offsets.
// src and dst must have equal rank and src must fit.
func CopyInto[T Scalar](dst Dense[T], src Dense[T], offsets []int) {
	if len(src.Shape) != len(dst.Shape) || len(offsets) != len(dst.Shape) {
		panic("kernel: rank mismatch in CopyInto")
	}
	if len(src.Data) == 0 {
		return
	}
	dstStrides := Strides(dst.Shape)
	r := len(src.Shape)
	if r == 0 {
		dst.Data[0] = src.Data[0]
		return
	}
	run := src.Shape[r-1]
	outer := len(src.Data) / run
	idx := make([]int, r-1)
	srcOff := 0
	for o := 0; o < outer; o++ {
		dstOff := offsets[r-1]
		for i := 0; i < r-1; i++ {
			dstOff += (idx[i] + offsets[i]) * dstStrides[i]
		}
		copy(dst.Data[dstOff:dstOff+run], src.Data[srcOff:srcOff+run])
		srcOff += run
		for i := r - 2; i >= 0; i-- {
			idx[i]++
			if idx[i] < src.Shape[i] {
				break
			}
			idx[i] = 0
		}
	}
}

// Extract copies the sub-block [starts[i], ends[i]) of each axis.
func Extract[T Scalar](src Dense[T], starts, ends []int) Dense[T] {
	r := len(src.Shape)
	if len(starts) != r || len(ends) != r {
		panic("kernel: rank mismatch in Extract")
	}
	outShape := make([]int, r)
	for i := range starts {
		outShape[i] = ends[i] - starts[i]
	}
	out := Zeros[T](outShape)
	if len(out.Data) == 0 {
		return out
	}
	if r == 0 {
		out.Data[0] = src.Data[0]
		return out
	}
	srcStrides := Strides(src.Shape)
	run := outShape[r-1]
	outer := len(out.Data) / run
	idx := make([]int, r-1)
	dstOff := 0
	for o := 0; o < outer; o++ {
		srcOff := starts[r-1]
		for i := 0; i < r-1; i++ {
			srcOff += (idx[i] + starts[i]) * srcStrides[i]
		}
		copy(out.Data[dstOff:dstOff+run], src.Data[srcOff:srcOff+run])
		dstOff += run
		for i := r - 2; i >= 0; i-- {
			idx[i]++
			if idx[i] < outShape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

// axisSplit returns the element counts before, at and after an axis.
func axisSplit(shape []int, axis int) (pre, n, post int) {
	pre, n, post = 1, shape[axis], 1
	for _, d := range shape[:axis] {
		pre *= d
	}
	for _, d := range shape[axis+1:] {
		post *= d
	}
	return pre, n, post
}

// Compress keeps the indices of an axis where mask is true.
func Compress[T Scalar](d Dense[T], axis int, mask []bool) Dense[T] {
	if len(mask) != d.Shape[axis] {
		panic("kernel: mask length mismatch in Compress")
	}
	keep := make([]int, 0, len(mask))
	for i, m := range mask {
		if m {
			keep = append(keep, i)
		}
	}
	outShape := append([]int(nil), d.Shape...)
	outShape[axis] = len(keep)
	out := Zeros[T](outShape)
	pre, _, post := axisSplit(d.Shape, axis)
	srcAxisStride := d.Shape[axis] * post
	dstAxisStride := len(keep) * post
	for p := 0; p < pre; p++ {
		for j, k := range keep {
			copy(out.Data[p*dstAxisStride+j*post:p*dstAxisStride+(j+1)*post],
				d.Data[p*srcAxisStride+k*post:p*srcAxisStride+k*post+post])
		}
	}
	return out
}

// TakeIndex fixes one index of an axis and drops that axis.
func TakeIndex[T Scalar](d Dense[T], axis, index int) Dense[T] {
	pre, n, post := axisSplit(d.Shape, axis)
	if index < 0 || index >= n {
		panic(fmt.Sprintf("kernel: index %d out of range for axis size %d", index, n))
	}
	outShape := make([]int, 0, len(d.Shape)-1)
	outShape = append(outShape, d.Shape[:axis]...)
	outShape = append(outShape, d.Shape[axis+1:]...)
	out := Zeros[T](outShape)
	for p := 0; p < pre; p++ {
		copy(out.Data[p*post:(p+1)*post], d.Data[p*n*post+index*post:p*n*post+index*post+post])
	}
	return out
}

// CopyAxisSlice copies the hyperplane src[..., srcIndex, ...] of an axis
// into dst[..., dstIndex, ...]. dst and src must agree on all other axes.
func CopyAxisSlice[T Scalar](dst Dense[T], dstIndex int, src Dense[T], srcIndex, axis int) {
	pre, nd, post := axisSplit(dst.Shape, axis)
	_, ns, _ := axisSplit(src.Shape, axis)
	for p := 0; p < pre; p++ {
		copy(dst.Data[p*nd*post+dstIndex*post:p*nd*post+dstIndex*post+post],
			src.Data[p*ns*post+srcIndex*post:p*ns*post+srcIndex*post+post])
	}
}

// ScaleAxisInPlace multiplies each hyperplane i of an axis by s[i].
func ScaleAxisInPlace[T Scalar](d Dense[T], axis int, s []T) {
	pre, n, post := axisSplit(d.Shape, axis)
	if len(s) != n {
		panic("kernel: scale vector length mismatch")
	}
	for p := 0; p < pre; p++ {
		for i := 0; i < n; i++ {
			row := d.Data[p*n*post+i*post : p*n*post+(i+1)*post]
			for j := range row {
				row[j] *= s[i]
			}
		}
	}
}

// Squeeze removes the listed axes, which must have size 1.
func Squeeze[T Scalar](d Dense[T], axes []int) Dense[T] {
	drop := make(map[int]bool, len(axes))
	for _, a := range axes {
		if d.Shape[a] != 1 {
			panic(fmt.Sprintf("kernel: cannot squeeze axis %d of size %d", a, d.Shape[a]))
		}
		drop[a] = true
	}
	outShape := make([]int, 0, len(d.Shape)-len(axes))
	for i, s := range d.Shape {
		if !drop[i] {
			outShape = append(outShape, s)
		}
	}
	out := d.Clone()
	return out.WithShape(outShape)
}

// ConjInPlace complex-conjugates every element; a no-op for real types.
func ConjInPlace[T Scalar](d Dense[T]) {
	if !IsComplex[T]() {
		return
	}
	for i, v := range d.Data {
		d.Data[i] = ConjVal(v)
	}
}
