// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conserved

import (
	"github.com/pkg/errors"

	"github.com/qspace-ml/qspace/charge"
	"github.com/qspace-ml/qspace/internal/kernel"
)

// Transpose returns the array with axes reordered: result axis i is the
// receiver's axis perm[i].
func (a *Array[T]) Transpose(perm []int) (*Array[T], error) {
	out := a.Clone()
	if err := out.ITranspose(perm); err != nil {
		return nil, err
	}
	return out, nil
}

// ITranspose is the mutating variant of Transpose. On error the receiver is
// unmodified.
func (a *Array[T]) ITranspose(perm []int) error {
	if len(perm) != a.Rank() {
		return configErrorf("permutation of length %d for rank %d", len(perm), a.Rank())
	}
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return invalidIndexf("invalid axis permutation %v", perm)
		}
		seen[p] = true
	}
	identity := true
	for i, p := range perm {
		if i != p {
			identity = false
			break
		}
	}
	if identity {
		return nil
	}

	a.ensureOwned()
	legs := make([]*charge.Leg, len(perm))
	labels := make([]string, len(perm))
	for i, p := range perm {
		legs[i] = a.legs[p]
		labels[i] = a.labels[p]
	}
	rows := make([][]int, len(a.rows))
	blocks := make([]kernel.Dense[T], len(a.blocks))
	for bi, row := range a.rows {
		newRow := make([]int, len(perm))
		for i, p := range perm {
			newRow[i] = row[p]
		}
		rows[bi] = newRow
		blocks[bi] = kernel.Transpose(a.blocks[bi], perm)
	}
	a.legs = legs
	a.labels = labels
	a.rows = rows
	a.blocks = blocks
	a.sorted = false
	a.SortQData()
	return nil
}

// SwapAxes exchanges two axes.
func (a *Array[T]) SwapAxes(i, j int) (*Array[T], error) {
	if i < 0 || i >= a.Rank() || j < 0 || j >= a.Rank() {
		return nil, invalidIndexf("axes %d, %d out of range for rank %d", i, j, a.Rank())
	}
	perm := make([]int, a.Rank())
	for k := range perm {
		perm[k] = k
	}
	perm[i], perm[j] = j, i
	return a.Transpose(perm)
}

// ISwapAxes is the mutating variant of SwapAxes.
func (a *Array[T]) ISwapAxes(i, j int) error {
	if i < 0 || i >= a.Rank() || j < 0 || j >= a.Rank() {
		return invalidIndexf("axes %d, %d out of range for rank %d", i, j, a.Rank())
	}
	perm := make([]int, a.Rank())
	for k := range perm {
		perm[k] = k
	}
	perm[i], perm[j] = j, i
	return a.ITranspose(perm)
}

// SortLegCharge brings legs into canonical per-axis order: where sortAxes
// is set, the axis' sectors are stably reordered by charge; where bunchAxes
// is set, adjacent equal-charge sectors are merged afterwards. It returns
// the new array and the flat index permutation applied to each axis
// (result index i came from perm[ax][i]; identity where nothing moved).
func (a *Array[T]) SortLegCharge(sortAxes, bunchAxes []bool) (*Array[T], [][]int, error) {
	if len(sortAxes) != a.Rank() || len(bunchAxes) != a.Rank() {
		return nil, nil, configErrorf("flag lists of length %d, %d for rank %d", len(sortAxes), len(bunchAxes), a.Rank())
	}
	out := a.Clone()
	out.ensureOwned()
	perms := make([][]int, a.Rank())
	for ax := 0; ax < a.Rank(); ax++ {
		identity := make([]int, a.legs[ax].Len())
		for i := range identity {
			identity[i] = i
		}
		perms[ax] = identity
		if sortAxes[ax] && !out.legs[ax].IsSorted() {
			sorted, secPerm, flatPerm := out.legs[ax].Sort()
			inv := charge.InversePerm(secPerm)
			for _, row := range out.rows {
				row[ax] = inv[row[ax]]
			}
			out.legs[ax] = sorted
			out.sorted = false
			perms[ax] = flatPerm
		}
		if bunchAxes[ax] {
			out.bunchAxis(ax)
		}
	}
	out.SortQData()
	return out, perms, nil
}

// bunchAxis merges adjacent equal-charge sectors of one axis, merging the
// affected blocks into larger ones at their sub-offsets.
func (a *Array[T]) bunchAxis(ax int) {
	newLeg, sectorMap := a.legs[ax].Bunch()
	if newLeg.SectorCount() == a.legs[ax].SectorCount() {
		a.legs[ax] = newLeg
		return
	}
	oldLeg := a.legs[ax]
	a.legs[ax] = newLeg

	type slot struct {
		row []int
		blk kernel.Dense[T]
	}
	var order []string
	merged := make(map[string]*slot)
	for i, row := range a.rows {
		newRow := append([]int(nil), row...)
		newRow[ax] = sectorMap[row[ax]]
		key := rowKey(newRow)
		s, ok := merged[key]
		if !ok {
			s = &slot{row: newRow, blk: kernel.Zeros[T](a.blockShape(newRow))}
			merged[key] = s
			order = append(order, key)
		}
		oldBegin, _ := oldLeg.SliceOf(row[ax])
		newBegin, _ := newLeg.SliceOf(newRow[ax])
		offsets := make([]int, len(row))
		offsets[ax] = oldBegin - newBegin
		kernel.CopyInto(s.blk, a.blocks[i], offsets)
	}
	a.rows = a.rows[:0]
	a.blocks = a.blocks[:0]
	for _, key := range order {
		s := merged[key]
		a.rows = append(a.rows, s.row)
		a.blocks = append(a.blocks, s.blk)
	}
	a.sorted = false
}

func rowKey(row []int) string {
	b := make([]byte, 0, len(row)*3)
	for _, s := range row {
		b = append(b, byte(s), byte(s>>8), byte(s>>16), '|')
	}
	return string(b)
}

// GaugeTotalCharge shifts the charges of one axis so that the total charge
// becomes newQTotal. The dense content is unchanged; only the bookkeeping
// moves between the leg and qtotal.
func (a *Array[T]) GaugeTotalCharge(axis int, newQTotal charge.Vector) (*Array[T], error) {
	if axis < 0 || axis >= a.Rank() {
		return nil, invalidIndexf("axis %d out of range for rank %d", axis, a.Rank())
	}
	info := a.Info()
	want := info.MakeValid(newQTotal)
	diff := info.Sub(want, a.qtotal)
	old := a.legs[axis]
	qconj := old.QConj()
	charges := make([]charge.Vector, old.SectorCount())
	slices := make([]int, old.SectorCount()+1)
	for s := 0; s < old.SectorCount(); s++ {
		stored := old.SectorCharge(s)
		shifted := make(charge.Vector, len(stored))
		for k := range stored {
			shifted[k] = stored[k] + qconj*diff[k]
		}
		charges[s] = info.MakeValid(shifted)
		_, slices[s+1] = old.SliceOf(s)
	}
	newLeg, err := charge.NewLeg(info, slices, charges, qconj)
	if err != nil {
		return nil, err
	}
	out := a.Clone()
	out.legs[axis] = newLeg
	out.qtotal = want
	return out, nil
}

// Squeeze removes the listed axes, all of which must have length one. With
// no axes given every length-one axis is removed. The charge of each
// removed position moves into the total charge. At least one axis must
// remain.
func (a *Array[T]) Squeeze(axes ...int) (*Array[T], error) {
	if len(axes) == 0 {
		for ax, l := range a.legs {
			if l.Len() == 1 {
				axes = append(axes, ax)
			}
		}
	}
	drop := make(map[int]bool, len(axes))
	qtotal := a.qtotal
	for _, ax := range axes {
		if ax < 0 || ax >= a.Rank() {
			return nil, invalidIndexf("axis %d out of range for rank %d", ax, a.Rank())
		}
		if drop[ax] {
			return nil, invalidIndexf("axis %d squeezed twice", ax)
		}
		if a.legs[ax].Len() != 1 {
			return nil, invalidIndexf("axis %d has length %d, cannot squeeze", ax, a.legs[ax].Len())
		}
		drop[ax] = true
		qtotal = a.Info().Sub(qtotal, a.legs[ax].EffectiveCharge(0))
	}
	if len(drop) == 0 {
		return a.Clone(), nil
	}
	if len(drop) == a.Rank() {
		return nil, invalidIndexf("cannot squeeze all axes, use At")
	}

	var legs []*charge.Leg
	var labels []string
	for ax, l := range a.legs {
		if !drop[ax] {
			legs = append(legs, l)
			labels = append(labels, a.labels[ax])
		}
	}
	out, err := Zeros[T](legs, qtotal)
	if err != nil {
		return nil, err
	}
	out.labels = labels
	dropList := make([]int, 0, len(drop))
	for ax := range drop {
		dropList = append(dropList, ax)
	}
	for i, row := range a.rows {
		newRow := make([]int, 0, out.Rank())
		for ax, s := range row {
			if !drop[ax] {
				newRow = append(newRow, s)
			}
		}
		out.rows = append(out.rows, newRow)
		out.blocks = append(out.blocks, kernel.Squeeze(a.blocks[i], dropList))
	}
	out.sorted = false
	out.SortQData()
	return out, nil
}

// PurgeZeros removes blocks whose largest magnitude is at most cutoff.
func (a *Array[T]) PurgeZeros(cutoff float64) {
	a.ensureOwned()
	keptRows := a.rows[:0]
	keptBlocks := a.blocks[:0]
	for i, row := range a.rows {
		if a.blocks[i].MaxAbs() > cutoff {
			keptRows = append(keptRows, row)
			keptBlocks = append(keptBlocks, a.blocks[i])
		}
	}
	a.rows = keptRows
	a.blocks = keptBlocks
}

// IsCompletelyBlocked reports whether every leg is sorted and bunched, so
// that a sector row is uniquely determined by its charges.
func (a *Array[T]) IsCompletelyBlocked() bool {
	for _, l := range a.legs {
		if !l.IsBlocked() {
			return false
		}
	}
	return true
}

// Convert changes the element type of an array. Converting complex data to
// a real type fails if any stored entry has a nonzero imaginary part.
func Convert[To, From Scalar](a *Array[From]) (*Array[To], error) {
	if kernel.IsComplex[From]() && !kernel.IsComplex[To]() {
		for i := range a.blocks {
			for _, v := range a.blocks[i].Data {
				if imag(kernel.ToComplex128(v)) != 0 {
					return nil, errors.New("conserved: cannot convert complex data with nonzero imaginary part to a real type")
				}
			}
		}
	}
	out, err := Zeros[To](a.legs, a.qtotal)
	if err != nil {
		return nil, err
	}
	copy(out.labels, a.labels)
	for i, row := range a.rows {
		out.rows = append(out.rows, append([]int(nil), row...))
		out.blocks = append(out.blocks, kernel.FromSlice(
			kernel.ConvertSlice[To](a.blocks[i].Data), a.blocks[i].Shape))
	}
	out.sorted = a.sorted
	return out, nil
}
