// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conserved

import (
	"sort"
	"sync/atomic"

	"github.com/qspace-ml/qspace/charge"
	"github.com/qspace-ml/qspace/internal/kernel"
)

// blockContractionOps counts the dense block contractions performed by
// Inner and Tensordot. The sparse engine should only ever pay for block
// pairs that actually contribute; this counter makes that observable.
var blockContractionOps atomic.Int64

// BlockContractionOps returns the number of dense block contractions
// performed since the last reset.
func BlockContractionOps() int64 { return blockContractionOps.Load() }

// ResetBlockContractionOps zeroes the diagnostic contraction counter.
func ResetBlockContractionOps() { blockContractionOps.Store(0) }

// Outer returns the outer product: the result carries a's legs followed by
// b's, with qtotal(a) + qtotal(b). Every pair of stored blocks contributes;
// no charge filtering is needed, since every combination is automatically
// compatible with the summed total charge.
func Outer[T Scalar](a, b *Array[T]) (*Array[T], error) {
	if !a.Info().Equal(b.Info()) {
		return nil, configErrorf("operands carry different charge natures")
	}
	legs := append(a.Legs(), b.Legs()...)
	out, err := Zeros[T](legs, a.Info().Fuse(a.qtotal, b.qtotal))
	if err != nil {
		return nil, err
	}
	out.labels = dedupeLabels(append(a.Labels(), b.Labels()...))

	as, bs := ensureSorted(a), ensureSorted(b)
	for j, rowB := range bs.rows {
		for i, rowA := range as.rows {
			row := make([]int, 0, len(rowA)+len(rowB))
			row = append(append(row, rowA...), rowB...)
			out.rows = append(out.rows, row)
			out.blocks = append(out.blocks, kernel.Outer(as.blocks[i], bs.blocks[j]))
		}
	}
	// b's columns are the most significant, so the double loop emits rows
	// in canonical order
	out.sorted = true
	return out, nil
}

func ensureSorted[T Scalar](a *Array[T]) *Array[T] {
	if a.sorted {
		return a
	}
	s := a.Clone()
	s.SortQData()
	return s
}

// Inner fully contracts two arrays of equal rank, axis i of a against axis
// i of b, down to a scalar. The legs must be pairwise contractible. When
// qtotal(a) + qtotal(b) is nonzero the result is exactly zero and no block
// is touched.
func Inner[T Scalar](a, b *Array[T]) (T, error) {
	var zero T
	if a.Rank() != b.Rank() {
		return zero, configErrorf("ranks %d and %d differ", a.Rank(), b.Rank())
	}
	for ax := range a.legs {
		if err := a.legs[ax].CheckContractible(b.legs[ax]); err != nil {
			return zero, &IncompatibleLegError{AxisA: ax, AxisB: ax, Reason: err}
		}
	}
	if !a.Info().Fuse(a.qtotal, b.qtotal).IsZero() {
		return zero, nil
	}

	// one mixed-radix key per full sector row; canonical table order is
	// ascending key order
	strides := make([]int, a.Rank())
	acc := 1
	for ax := 0; ax < a.Rank(); ax++ {
		strides[ax] = acc
		acc *= a.legs[ax].SectorCount()
	}
	key := func(row []int) int {
		k := 0
		for ax, s := range row {
			k += s * strides[ax]
		}
		return k
	}
	as, bs := ensureSorted(a), ensureSorted(b)
	var sum T
	i, j := 0, 0
	for i < len(as.rows) && j < len(bs.rows) {
		ki, kj := key(as.rows[i]), key(bs.rows[j])
		switch {
		case ki < kj:
			i++
		case ki > kj:
			j++
		default:
			sum += kernel.Dot(as.blocks[i], bs.blocks[j])
			blockContractionOps.Add(1)
			i++
			j++
		}
	}
	return sum, nil
}

// InnerAxes fully contracts a against b with an explicit axis matching:
// axis axesA[i] of a is contracted with axis axesB[i] of b.
func InnerAxes[T Scalar](a, b *Array[T], axesA, axesB []int) (T, error) {
	var zero T
	if len(axesA) != len(axesB) || len(axesA) != a.Rank() || b.Rank() != a.Rank() {
		return zero, configErrorf("inner contraction needs a full axis matching")
	}
	perm := make([]int, b.Rank())
	seen := make([]bool, b.Rank())
	for i, axA := range axesA {
		if axA < 0 || axA >= a.Rank() || axesB[i] < 0 || axesB[i] >= b.Rank() {
			return zero, invalidIndexf("axis pair (%d, %d) out of range", axA, axesB[i])
		}
		if seen[axA] {
			return zero, invalidIndexf("axis %d matched twice", axA)
		}
		seen[axA] = true
		perm[axA] = axesB[i]
	}
	bt, err := b.Transpose(perm)
	if err != nil {
		return zero, err
	}
	return Inner(a, bt)
}

// Tensordot contracts the trailing k axes of a against the leading k axes
// of b, pairwise in order. k = 0 is the outer product; contracting every
// axis of both operands yields a scalar, which Inner handles.
//
// Only block pairs whose contracted sectors match and whose kept charges
// are compatible with the result's qtotal are contracted; group pairs with
// no matching contracted sector are skipped without creating zero blocks.
func Tensordot[T Scalar](a, b *Array[T], k int) (*Array[T], error) {
	if k < 0 || k > a.Rank() || k > b.Rank() {
		return nil, configErrorf("cannot contract %d axes of ranks %d and %d", k, a.Rank(), b.Rank())
	}
	if k == 0 {
		return Outer(a, b)
	}
	if k == a.Rank() && k == b.Rank() {
		return nil, invalidIndexf("full contraction yields a scalar, use Inner")
	}
	if !a.Info().Equal(b.Info()) {
		return nil, configErrorf("operands carry different charge natures")
	}
	keptA := a.Rank() - k
	keptB := b.Rank() - k
	for i := 0; i < k; i++ {
		if err := a.legs[keptA+i].CheckContractible(b.legs[i]); err != nil {
			return nil, &IncompatibleLegError{AxisA: keptA + i, AxisB: i, Reason: err}
		}
	}

	legs := append(a.Legs()[:keptA:keptA], b.Legs()[k:]...)
	out, err := Zeros[T](legs, a.Info().Fuse(a.qtotal, b.qtotal))
	if err != nil {
		return nil, err
	}
	out.labels = dedupeLabels(append(a.Labels()[:keptA:keptA], b.Labels()[k:]...))

	// shared mixed-radix strides over the contracted sector counts
	strides := make([]int, k)
	acc := 1
	for i := 0; i < k; i++ {
		strides[i] = acc
		acc *= b.legs[i].SectorCount()
	}
	sumKeyA := func(row []int) int {
		key := 0
		for i := 0; i < k; i++ {
			key += row[keptA+i] * strides[i]
		}
		return key
	}
	sumKeyB := func(row []int) int {
		key := 0
		for i := 0; i < k; i++ {
			key += row[i] * strides[i]
		}
		return key
	}

	// a: order by kept row first, summed key second
	ordA := make([]int, len(a.rows))
	for i := range ordA {
		ordA[i] = i
	}
	sort.SliceStable(ordA, func(x, y int) bool {
		rx, ry := a.rows[ordA[x]], a.rows[ordA[y]]
		if c := charge.CompareLastMajor(rx[:keptA], ry[:keptA]); c != 0 {
			return c < 0
		}
		return sumKeyA(rx) < sumKeyA(ry)
	})
	// b: canonical order already is (kept row dominant, summed key second)
	bs := ensureSorted(b)

	type group struct {
		kept    []int
		entries []int // indices into the operand's block table
		q       charge.Vector
	}
	groupBy := func(op *Array[T], ord []int, legOffset int, keptOf func([]int) []int) []group {
		var gs []group
		for _, bi := range ord {
			kept := keptOf(op.rows[bi])
			if len(gs) == 0 || charge.CompareLastMajor(gs[len(gs)-1].kept, kept) != 0 {
				qs := make([]charge.Vector, 0, len(kept))
				for i := range kept {
					qs = append(qs, op.legs[legOffset+i].EffectiveCharge(kept[i]))
				}
				gs = append(gs, group{kept: kept, q: op.Info().Fuse(qs...)})
			}
			g := &gs[len(gs)-1]
			g.entries = append(g.entries, bi)
		}
		return gs
	}
	groupsA := groupBy(a, ordA, 0, func(row []int) []int { return row[:keptA] })
	ordB := make([]int, len(bs.rows))
	for i := range ordB {
		ordB[i] = i
	}
	groupsB := groupBy(bs, ordB, k, func(row []int) []int { return row[k:] })

	info := a.Info()
	for gbIdx := range groupsB {
		gb := &groupsB[gbIdx]
		for gaIdx := range groupsA {
			ga := &groupsA[gaIdx]
			if !info.Fuse(ga.q, gb.q).Equal(out.qtotal) {
				continue
			}
			// merge-join the sorted summed keys of both groups
			var res kernel.Dense[T]
			have := false
			i, j := 0, 0
			for i < len(ga.entries) && j < len(gb.entries) {
				ka := sumKeyA(a.rows[ga.entries[i]])
				kb := sumKeyB(bs.rows[gb.entries[j]])
				switch {
				case ka < kb:
					i++
				case ka > kb:
					j++
				default:
					prod := kernel.Tensordot(a.blocks[ga.entries[i]], bs.blocks[gb.entries[j]], k)
					blockContractionOps.Add(1)
					if have {
						kernel.AddInto(res, prod)
					} else {
						res = prod
						have = true
					}
					i++
					j++
				}
			}
			if !have {
				continue
			}
			row := make([]int, 0, keptA+keptB)
			row = append(append(row, ga.kept...), gb.kept...)
			out.rows = append(out.rows, row)
			out.blocks = append(out.blocks, res)
		}
	}
	// outer loop over b's kept rows, inner over a's: canonical order
	out.sorted = true
	return out, nil
}

// TensordotAxes contracts an explicit ordered axis list of a against a
// matching list of b. Both operands are transposed into the standard form
// first when needed.
func TensordotAxes[T Scalar](a, b *Array[T], axesA, axesB []int) (*Array[T], error) {
	if len(axesA) != len(axesB) {
		return nil, configErrorf("%d axes of a against %d of b", len(axesA), len(axesB))
	}
	permA, err := moveToBack(a.Rank(), axesA)
	if err != nil {
		return nil, err
	}
	permB, err := moveToFront(b.Rank(), axesB)
	if err != nil {
		return nil, err
	}
	at, err := a.Transpose(permA)
	if err != nil {
		return nil, err
	}
	bt, err := b.Transpose(permB)
	if err != nil {
		return nil, err
	}
	return Tensordot(at, bt, len(axesA))
}

// Matvec contracts the last axis of a matrix-like array against the first
// axis of a vector-like one.
func Matvec[T Scalar](m, v *Array[T]) (*Array[T], error) {
	return Tensordot(m, v, 1)
}

func moveToBack(rank int, axes []int) ([]int, error) {
	picked, err := checkAxes(rank, axes)
	if err != nil {
		return nil, err
	}
	perm := make([]int, 0, rank)
	for ax := 0; ax < rank; ax++ {
		if !picked[ax] {
			perm = append(perm, ax)
		}
	}
	return append(perm, axes...), nil
}

func moveToFront(rank int, axes []int) ([]int, error) {
	picked, err := checkAxes(rank, axes)
	if err != nil {
		return nil, err
	}
	perm := append([]int(nil), axes...)
	for ax := 0; ax < rank; ax++ {
		if !picked[ax] {
			perm = append(perm, ax)
		}
	}
	return perm, nil
}

func checkAxes(rank int, axes []int) ([]bool, error) {
	picked := make([]bool, rank)
	for _, ax := range axes {
		if ax < 0 || ax >= rank {
			return nil, invalidIndexf("axis %d out of range for rank %d", ax, rank)
		}
		if picked[ax] {
			return nil, invalidIndexf("axis %d contracted twice", ax)
		}
		picked[ax] = true
	}
	return picked, nil
}
