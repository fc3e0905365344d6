// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conserved

import (
	"github.com/qspace-ml/qspace/charge"
	"github.com/qspace-ml/qspace/internal/kernel"
)

// Operand is what an assignment or operator can take on its right-hand
// side: another array, a plain dense buffer, or a scalar broadcast to the
// whole region. Resolve the kind once here instead of re-dispatching inside
// every operation.
type Operand[T Scalar] struct {
	arr    *Array[T]
	dense  kernel.Dense[T]
	scalar T
	kind   operandKind
}

type operandKind int

const (
	operandArray operandKind = iota
	operandDense
	operandScalar
)

// ArrayOperand wraps an array.
func ArrayOperand[T Scalar](a *Array[T]) Operand[T] {
	return Operand[T]{arr: a, kind: operandArray}
}

// DenseOperand wraps a row-major dense buffer with the given shape.
func DenseOperand[T Scalar](data []T, shape []int) Operand[T] {
	return Operand[T]{dense: kernel.FromSlice(data, shape), kind: operandDense}
}

// ScalarOperand broadcasts a single value.
func ScalarOperand[T Scalar](v T) Operand[T] {
	return Operand[T]{scalar: v, kind: operandScalar}
}

func (o Operand[T]) checkShape(shape []int) error {
	var got []int
	switch o.kind {
	case operandScalar:
		return nil
	case operandDense:
		got = o.dense.Shape
	case operandArray:
		got = o.arr.Shape()
	}
	if len(got) != len(shape) {
		return &ShapeMismatchError{Expected: shape, Got: got}
	}
	for i := range shape {
		if got[i] != shape[i] {
			return &ShapeMismatchError{Expected: shape, Got: got}
		}
	}
	return nil
}

func (o Operand[T]) at(idx []int) T {
	switch o.kind {
	case operandScalar:
		return o.scalar
	case operandDense:
		return o.dense.At(idx...)
	default:
		v, err := o.arr.At(idx...)
		if err != nil {
			panic(err)
		}
		return v
	}
}

// UnaryBlockwise applies f independently to a copy of every stored block's
// data and returns the result. f must map zero data to zero data, since
// absent blocks stay absent; it receives a private copy it may transform in
// place, and must return data of unchanged length.
func UnaryBlockwise[T Scalar](a *Array[T], f func(x []T) []T) *Array[T] {
	out := a.Copy()
	out.IUnaryBlockwise(f)
	return out
}

// IUnaryBlockwise applies f to every stored block's data in place.
func (a *Array[T]) IUnaryBlockwise(f func(x []T) []T) {
	a.ensureOwned()
	for i := range a.blocks {
		res := f(a.blocks[i].Data)
		if len(res) != len(a.blocks[i].Data) {
			panic("conserved: blockwise function changed the block size")
		}
		a.blocks[i].Data = res
	}
}

// checkBinaryCompatible verifies that two arrays have pairwise equal legs
// and the same total charge.
func checkBinaryCompatible[T Scalar](a, b *Array[T]) error {
	if a.Rank() != b.Rank() {
		return &IncompatibleLegError{AxisA: a.Rank(), AxisB: b.Rank(),
			Reason: configErrorf("ranks differ")}
	}
	for ax := range a.legs {
		if err := a.legs[ax].CheckEqual(b.legs[ax]); err != nil {
			return &IncompatibleLegError{AxisA: ax, AxisB: ax, Reason: err}
		}
	}
	if !a.qtotal.Equal(b.qtotal) {
		return &IncompatibleChargeError{Charge: b.qtotal, QTotal: a.qtotal}
	}
	return nil
}

// BinaryBlockwise combines two arrays with identical legs elementwise. The
// block tables are merge-joined in canonical order; a row stored on only
// one side is combined against an explicit zero block, since f need not
// vanish on zero input. f must not modify its arguments and must return
// data of the matched length.
func BinaryBlockwise[T Scalar](a, b *Array[T], f func(x, y []T) []T) (*Array[T], error) {
	if err := checkBinaryCompatible(a, b); err != nil {
		return nil, err
	}
	as, bs := a, b
	if !as.sorted {
		as = as.Clone()
		as.SortQData()
	}
	if !bs.sorted {
		bs = bs.Clone()
		bs.SortQData()
	}

	out := ZerosLike(as)
	i, j := 0, 0
	emit := func(row []int, x, y []T, shape []int) {
		res := f(x, y)
		if len(res) != kernel.NumElements(shape) {
			panic("conserved: blockwise function changed the block size")
		}
		out.rows = append(out.rows, append([]int(nil), row...))
		out.blocks = append(out.blocks, kernel.FromSlice(res, shape))
	}
	for i < len(as.rows) && j < len(bs.rows) {
		switch charge.CompareLastMajor(as.rows[i], bs.rows[j]) {
		case 0:
			emit(as.rows[i], as.blocks[i].Data, bs.blocks[j].Data, as.blocks[i].Shape)
			i++
			j++
		case -1:
			emit(as.rows[i], as.blocks[i].Data, make([]T, as.blocks[i].Size()), as.blocks[i].Shape)
			i++
		default:
			emit(bs.rows[j], make([]T, bs.blocks[j].Size()), bs.blocks[j].Data, bs.blocks[j].Shape)
			j++
		}
	}
	for ; i < len(as.rows); i++ {
		emit(as.rows[i], as.blocks[i].Data, make([]T, as.blocks[i].Size()), as.blocks[i].Shape)
	}
	for ; j < len(bs.rows); j++ {
		emit(bs.rows[j], make([]T, bs.blocks[j].Size()), bs.blocks[j].Data, bs.blocks[j].Shape)
	}
	out.sorted = true
	return out, nil
}

// IBinaryBlockwise is the mutating variant of BinaryBlockwise. The receiver
// is replaced wholesale, so it is never left partially combined.
func (a *Array[T]) IBinaryBlockwise(b *Array[T], f func(x, y []T) []T) error {
	out, err := BinaryBlockwise(a, b, f)
	if err != nil {
		return err
	}
	*a = *out
	return nil
}

func addData[T Scalar](x, y []T) []T {
	res := make([]T, len(x))
	for k := range x {
		res[k] = x[k] + y[k]
	}
	return res
}

func subData[T Scalar](x, y []T) []T {
	res := make([]T, len(x))
	for k := range x {
		res[k] = x[k] - y[k]
	}
	return res
}

// Add returns a + b.
func Add[T Scalar](a, b *Array[T]) (*Array[T], error) {
	return BinaryBlockwise(a, b, addData[T])
}

// IAdd sets a to a + b.
func (a *Array[T]) IAdd(b *Array[T]) error { return a.IBinaryBlockwise(b, addData[T]) }

// Sub returns a - b.
func Sub[T Scalar](a, b *Array[T]) (*Array[T], error) {
	return BinaryBlockwise(a, b, subData[T])
}

// ISub sets a to a - b.
func (a *Array[T]) ISub(b *Array[T]) error { return a.IBinaryBlockwise(b, subData[T]) }

// Scale returns s * a.
func Scale[T Scalar](a *Array[T], s T) *Array[T] {
	return UnaryBlockwise(a, func(x []T) []T {
		for k := range x {
			x[k] *= s
		}
		return x
	})
}

// IScale multiplies every stored element by s.
func (a *Array[T]) IScale(s T) {
	a.IUnaryBlockwise(func(x []T) []T {
		for k := range x {
			x[k] *= s
		}
		return x
	})
}

// Neg returns -a.
func Neg[T Scalar](a *Array[T]) *Array[T] { return Scale(a, -1) }

// Div returns a / s. Division by an exact zero fails with ErrDivideByZero.
func Div[T Scalar](a *Array[T], s T) (*Array[T], error) {
	if s == 0 {
		return nil, ErrDivideByZero
	}
	return Scale(a, 1/s), nil
}

// IDiv divides every stored element by s. The receiver is unmodified when
// s is zero.
func (a *Array[T]) IDiv(s T) error {
	if s == 0 {
		return ErrDivideByZero
	}
	a.IScale(1 / s)
	return nil
}

// Conj returns the complex conjugate: data conjugated, every leg
// conjugated, total charge negated, labels conjugated ("a" to "a*" and
// back).
func Conj[T Scalar](a *Array[T]) *Array[T] {
	out := a.Copy()
	out.IConj()
	return out
}

// IConj conjugates the receiver in place.
func (a *Array[T]) IConj() {
	a.ensureOwned()
	for i := range a.blocks {
		kernel.ConjInPlace(a.blocks[i])
	}
	legs := make([]*charge.Leg, len(a.legs))
	for i, l := range a.legs {
		legs[i] = l.Conj()
	}
	a.legs = legs
	a.qtotal = a.Info().Neg(a.qtotal)
	labels := make([]string, len(a.labels))
	for i, lb := range a.labels {
		labels[i] = conjLabel(lb)
	}
	a.labels = labels
}

// Norm returns the ord-norm over the stored entries: ord 0 counts nonzero
// entries, +Inf and -Inf take the largest and smallest magnitude, any other
// positive ord is the elementwise p-norm. Absent blocks do not contribute.
func Norm[T Scalar](a *Array[T], ord float64) float64 {
	var all []T
	for i := range a.blocks {
		all = append(all, a.blocks[i].Data...)
	}
	return kernel.Norm(all, ord)
}

// ScaleAxis returns a with every element multiplied by the factor of its
// dense index along the given axis. factors has one entry per index.
func ScaleAxis[T Scalar](a *Array[T], axis int, factors []T) (*Array[T], error) {
	out := a.Copy()
	if err := out.IScaleAxis(axis, factors); err != nil {
		return nil, err
	}
	return out, nil
}

// IScaleAxis is the mutating variant of ScaleAxis. On error the receiver is
// unmodified.
func (a *Array[T]) IScaleAxis(axis int, factors []T) error {
	if axis < 0 || axis >= a.Rank() {
		return invalidIndexf("axis %d out of range for rank %d", axis, a.Rank())
	}
	if len(factors) != a.legs[axis].Len() {
		return configErrorf("%d factors for axis %d of length %d", len(factors), axis, a.legs[axis].Len())
	}
	a.ensureOwned()
	for i, row := range a.rows {
		begin, end := a.legs[axis].SliceOf(row[axis])
		kernel.ScaleAxisInPlace(a.blocks[i], axis, factors[begin:end])
	}
	return nil
}
