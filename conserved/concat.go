// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conserved

import (
	"github.com/qspace-ml/qspace/charge"
	"github.com/qspace-ml/qspace/internal/kernel"
)

// Concatenate stacks arrays along one axis. All other legs must be pairwise
// equal and the total charges must match. The stacked leg keeps every
// operand's sectors in operand order; an operand whose stacked leg carries
// the opposite sign flag is re-expressed first, so equal effective charges
// suffice.
func Concatenate[T Scalar](arrays []*Array[T], axis int) (*Array[T], error) {
	if len(arrays) == 0 {
		return nil, configErrorf("nothing to concatenate")
	}
	first := arrays[0]
	if axis < 0 || axis >= first.Rank() {
		return nil, invalidIndexf("axis %d out of range for rank %d", axis, first.Rank())
	}
	qconj := first.legs[axis].QConj()
	info := first.Info()
	stacked := make([]*charge.Leg, len(arrays))
	for n, a := range arrays {
		if a.Rank() != first.Rank() {
			return nil, configErrorf("operand %d has rank %d, want %d", n, a.Rank(), first.Rank())
		}
		if !a.qtotal.Equal(first.qtotal) {
			return nil, &IncompatibleChargeError{Charge: a.qtotal, QTotal: first.qtotal}
		}
		for ax := range a.legs {
			if ax == axis {
				continue
			}
			if err := a.legs[ax].CheckEqual(first.legs[ax]); err != nil {
				return nil, &IncompatibleLegError{AxisA: ax, AxisB: ax, Reason: err}
			}
		}
		l := a.legs[axis]
		if l.QConj() != qconj {
			l = l.ConjCharges()
		}
		stacked[n] = l
	}

	// stack the sector tables with index shifts
	slices := []int{0}
	var charges []charge.Vector
	secShift := make([]int, len(arrays))
	for n, l := range stacked {
		secShift[n] = len(charges)
		for s := 0; s < l.SectorCount(); s++ {
			charges = append(charges, l.SectorCharge(s))
			slices = append(slices, slices[len(slices)-1]+l.SectorSize(s))
		}
	}
	newLeg, err := charge.NewLeg(info, slices, charges, qconj)
	if err != nil {
		return nil, err
	}

	legs := first.Legs()
	legs[axis] = newLeg
	out, err := Zeros[T](legs, first.qtotal)
	if err != nil {
		return nil, err
	}
	copy(out.labels, first.labels)
	for n, a := range arrays {
		for i, row := range a.rows {
			newRow := append([]int(nil), row...)
			newRow[axis] += secShift[n]
			out.rows = append(out.rows, newRow)
			out.blocks = append(out.blocks, a.blocks[i].Clone())
		}
	}
	out.sorted = false
	out.SortQData()
	return out, nil
}

// GridConcat concatenates a two-dimensional grid of arrays: each grid row
// is joined along axes[1], then the results are joined along axes[0]. The
// grid must be rectangular with no nil entries.
func GridConcat[T Scalar](grid [][]*Array[T], axes [2]int) (*Array[T], error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, configErrorf("empty grid")
	}
	rows := make([]*Array[T], len(grid))
	for i, gr := range grid {
		if len(gr) != len(grid[0]) {
			return nil, configErrorf("grid row %d has %d entries, want %d", i, len(gr), len(grid[0]))
		}
		for j, e := range gr {
			if e == nil {
				return nil, configErrorf("grid entry (%d, %d) is nil", i, j)
			}
		}
		r, err := Concatenate(gr, axes[1])
		if err != nil {
			return nil, err
		}
		rows[i] = r
	}
	return Concatenate(rows, axes[0])
}

// GridOuter embeds a two-dimensional grid of equal-legged arrays into two
// extra leading axes described by rowLeg and colLeg: the result at grid
// position (i, j) is grid[i][j]. nil entries are zero. The total charge is
// derived from the first non-nil entry; every other entry must be
// charge-consistent with its grid position.
func GridOuter[T Scalar](grid [][]*Array[T], rowLeg, colLeg *charge.Leg) (*Array[T], error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, configErrorf("empty grid")
	}
	if rowLeg.Len() != len(grid) {
		return nil, configErrorf("row leg length %d for %d grid rows", rowLeg.Len(), len(grid))
	}
	var proto *Array[T]
	var qtotal charge.Vector
	for i, gr := range grid {
		if len(gr) != len(grid[0]) {
			return nil, configErrorf("grid row %d has %d entries, want %d", i, len(gr), len(grid[0]))
		}
		if colLeg.Len() != len(gr) {
			return nil, configErrorf("column leg length %d for %d grid columns", colLeg.Len(), len(gr))
		}
		for j, e := range gr {
			if e == nil {
				continue
			}
			if proto == nil {
				proto = e
				qtotal = e.Info().Fuse(e.qtotal, rowLeg.ChargeOf(i), colLeg.ChargeOf(j))
			}
		}
	}
	if proto == nil {
		return nil, configErrorf("grid has no entries")
	}

	legs := append([]*charge.Leg{rowLeg, colLeg}, proto.legs...)
	out, err := Zeros[T](legs, qtotal)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 2+proto.Rank())
	copy(labels[2:], proto.labels)
	out.labels = labels

	for i, gr := range grid {
		rowSec := rowLeg.SectorOf(i)
		rowBegin, _ := rowLeg.SliceOf(rowSec)
		for j, e := range gr {
			if e == nil {
				continue
			}
			for ax := range proto.legs {
				if err := e.legs[ax].CheckEqual(proto.legs[ax]); err != nil {
					return nil, &IncompatibleLegError{AxisA: ax, AxisB: ax, Reason: err}
				}
			}
			colSec := colLeg.SectorOf(j)
			colBegin, _ := colLeg.SliceOf(colSec)
			for bi, row := range e.rows {
				newRow := make([]int, 0, out.Rank())
				newRow = append(newRow, rowSec, colSec)
				newRow = append(newRow, row...)
				dst, err := out.getBlockInsert(newRow)
				if err != nil {
					return nil, err
				}
				offsets := make([]int, out.Rank())
				offsets[0] = i - rowBegin
				offsets[1] = j - colBegin
				src := e.blocks[bi].WithShape(append([]int{1, 1}, e.blocks[bi].Shape...))
				kernel.CopyInto(*dst, src, offsets)
			}
		}
	}
	out.SortQData()
	return out, nil
}

// GridOuterLeg derives the grid leg GridOuter needs along one grid axis
// (0 for rows, 1 for columns) from the entries' total charges, given the
// other grid leg, the intended result total charge and the sign flag of
// the derived leg. Every index of the derived axis needs at least one
// non-nil entry.
func GridOuterLeg[T Scalar](grid [][]*Array[T], axis int, other *charge.Leg, qtotal charge.Vector, qconj int) (*charge.Leg, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, configErrorf("empty grid")
	}
	if axis != 0 && axis != 1 {
		return nil, invalidIndexf("grid axis %d out of range", axis)
	}
	n := len(grid)
	if axis == 1 {
		n = len(grid[0])
	}
	info := other.Info()
	qtotal = info.MakeValid(qtotal)
	flat := make([]charge.Vector, n)
	for d := 0; d < n; d++ {
		var entry *Array[T]
		var otherIdx int
		if axis == 0 {
			for j, e := range grid[d] {
				if e != nil {
					entry, otherIdx = e, j
					break
				}
			}
		} else {
			for i := range grid {
				if grid[i][d] != nil {
					entry, otherIdx = grid[i][d], i
					break
				}
			}
		}
		if entry == nil {
			return nil, configErrorf("no grid entry along derived index %d", d)
		}
		eff := info.Sub(info.Sub(qtotal, entry.qtotal), other.ChargeOf(otherIdx))
		flat[d] = info.AdjustSign(eff, qconj)
	}
	return charge.FromFlat(info, flat, qconj)
}

// DiagScalar returns s times the identity on the given leg: a rank-2 array
// with legs [leg, leg.Conj()] and zero total charge.
func DiagScalar[T Scalar](s T, leg *charge.Leg) *Array[T] {
	out, err := Zeros[T]([]*charge.Leg{leg, leg.Conj()}, nil)
	if err != nil {
		panic(err)
	}
	if s == 0 {
		return out
	}
	for sec := 0; sec < leg.SectorCount(); sec++ {
		n := leg.SectorSize(sec)
		blk := kernel.Zeros[T]([]int{n, n})
		for i := 0; i < n; i++ {
			blk.Set(s, i, i)
		}
		out.rows = append(out.rows, []int{sec, sec})
		out.blocks = append(out.blocks, blk)
	}
	out.sorted = true
	return out
}

// Diag returns the diagonal matrix of a dense vector on the given leg,
// with legs [leg, leg.Conj()] and zero total charge. Empty diagonal
// sectors are not stored.
func Diag[T Scalar](v []T, leg *charge.Leg) (*Array[T], error) {
	if len(v) != leg.Len() {
		return nil, &ShapeMismatchError{Expected: []int{leg.Len()}, Got: []int{len(v)}}
	}
	out, err := Zeros[T]([]*charge.Leg{leg, leg.Conj()}, nil)
	if err != nil {
		return nil, err
	}
	for sec := 0; sec < leg.SectorCount(); sec++ {
		begin, end := leg.SliceOf(sec)
		n := end - begin
		blk := kernel.Zeros[T]([]int{n, n})
		nonzero := false
		for i := 0; i < n; i++ {
			blk.Set(v[begin+i], i, i)
			if v[begin+i] != 0 {
				nonzero = true
			}
		}
		if !nonzero {
			continue
		}
		out.rows = append(out.rows, []int{sec, sec})
		out.blocks = append(out.blocks, blk)
	}
	out.sorted = true
	return out, nil
}

// EyeLike returns the identity on the leg of one axis of a.
func EyeLike[T Scalar](a *Array[T], axis int) (*Array[T], error) {
	if axis < 0 || axis >= a.Rank() {
		return nil, invalidIndexf("axis %d out of range for rank %d", axis, a.Rank())
	}
	return DiagScalar[T](1, a.legs[axis]), nil
}
