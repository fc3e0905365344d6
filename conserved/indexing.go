// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conserved

import (
	"sort"

	"github.com/qspace-ml/qspace/charge"
	"github.com/qspace-ml/qspace/internal/kernel"
)

// At returns the element at a fully-specified multi-index. Positions whose
// block is absent hold the zero element.
func (a *Array[T]) At(idx ...int) (T, error) {
	var zero T
	row, offsets, err := a.resolveIndex(idx)
	if err != nil {
		return zero, err
	}
	pos, found := a.findRow(row)
	if !found {
		return zero, nil
	}
	return a.blocks[pos].At(offsets...), nil
}

// SetAt assigns the element at a fully-specified multi-index, inserting a
// zero-filled block when the position's sector row is charge-compatible and
// absent. Writing to a charge-incompatible position fails with
// IncompatibleChargeError.
func (a *Array[T]) SetAt(v T, idx ...int) error {
	row, offsets, err := a.resolveIndex(idx)
	if err != nil {
		return err
	}
	blk, err := a.getBlockInsert(row)
	if err != nil {
		return err
	}
	blk.Set(v, offsets...)
	return nil
}

func (a *Array[T]) resolveIndex(idx []int) (row, offsets []int, err error) {
	if len(idx) != a.Rank() {
		return nil, nil, invalidIndexf("got %d indices for rank %d", len(idx), a.Rank())
	}
	row = make([]int, len(idx))
	offsets = make([]int, len(idx))
	for ax, i := range idx {
		if i < 0 || i >= a.legs[ax].Len() {
			return nil, nil, invalidIndexf("index %d out of range for axis %d of length %d", i, ax, a.legs[ax].Len())
		}
		s := a.legs[ax].SectorOf(i)
		begin, _ := a.legs[ax].SliceOf(s)
		row[ax] = s
		offsets[ax] = i - begin
	}
	return row, offsets, nil
}

// TakeSlice fixes the listed axes at the given dense indices, reducing the
// rank. The charge of each fixed position is subtracted from the total
// charge. At least one axis must remain.
func (a *Array[T]) TakeSlice(axes, indices []int) (*Array[T], error) {
	if len(axes) != len(indices) {
		return nil, configErrorf("%d axes for %d indices", len(axes), len(indices))
	}
	if len(axes) >= a.Rank() {
		return nil, invalidIndexf("cannot fix all %d axes, use At", a.Rank())
	}
	fixed := make(map[int]int, len(axes)) // axis -> sector
	offset := make(map[int]int, len(axes))
	qtotal := a.qtotal
	for i, ax := range axes {
		if ax < 0 || ax >= a.Rank() {
			return nil, invalidIndexf("axis %d out of range for rank %d", ax, a.Rank())
		}
		if _, dup := fixed[ax]; dup {
			return nil, invalidIndexf("axis %d fixed twice", ax)
		}
		j := indices[i]
		if j < 0 || j >= a.legs[ax].Len() {
			return nil, invalidIndexf("index %d out of range for axis %d", j, ax)
		}
		s := a.legs[ax].SectorOf(j)
		begin, _ := a.legs[ax].SliceOf(s)
		fixed[ax] = s
		offset[ax] = j - begin
		qtotal = a.Info().Sub(qtotal, a.legs[ax].EffectiveCharge(s))
	}

	var legs []*charge.Leg
	var labels []string
	for ax, l := range a.legs {
		if _, ok := fixed[ax]; !ok {
			legs = append(legs, l)
			labels = append(labels, a.labels[ax])
		}
	}
	out, err := Zeros[T](legs, qtotal)
	if err != nil {
		return nil, err
	}
	out.labels = labels

	for i, row := range a.rows {
		match := true
		for ax, s := range fixed {
			if row[ax] != s {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		newRow := make([]int, 0, out.Rank())
		for ax, s := range row {
			if _, ok := fixed[ax]; !ok {
				newRow = append(newRow, s)
			}
		}
		blk := a.blocks[i]
		// fix axes from the back so earlier axis numbers stay valid
		fixedAxes := make([]int, 0, len(fixed))
		for ax := range fixed {
			fixedAxes = append(fixedAxes, ax)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(fixedAxes)))
		for _, ax := range fixedAxes {
			blk = kernel.TakeIndex(blk, ax, offset[ax])
		}
		out.rows = append(out.rows, newRow)
		out.blocks = append(out.blocks, blk)
	}
	out.sorted = false
	out.SortQData()
	return out, nil
}

// Project restricts the listed axes to the indices where the corresponding
// mask is true. Sectors that lose every index vanish from the new legs.
func (a *Array[T]) Project(axes []int, masks [][]bool) (*Array[T], error) {
	out := a.Clone()
	if err := out.IProject(axes, masks); err != nil {
		return nil, err
	}
	return out, nil
}

// IProject is the mutating variant of Project. On error the receiver is
// unmodified.
func (a *Array[T]) IProject(axes []int, masks [][]bool) error {
	if len(axes) != len(masks) {
		return configErrorf("%d axes for %d masks", len(axes), len(masks))
	}
	type proj struct {
		leg        *charge.Leg
		sectorMap  []int
		blockMasks [][]bool
	}
	projs := make(map[int]proj, len(axes))
	for i, ax := range axes {
		if ax < 0 || ax >= a.Rank() {
			return invalidIndexf("axis %d out of range for rank %d", ax, a.Rank())
		}
		if _, dup := projs[ax]; dup {
			return invalidIndexf("axis %d projected twice", ax)
		}
		leg, sectorMap, blockMasks, err := a.legs[ax].Project(masks[i])
		if err != nil {
			return err
		}
		projs[ax] = proj{leg: leg, sectorMap: sectorMap, blockMasks: blockMasks}
	}

	a.ensureOwned()
	legs := append([]*charge.Leg(nil), a.legs...)
	for ax, p := range projs {
		legs[ax] = p.leg
	}
	var rows [][]int
	var blocks []kernel.Dense[T]
	for i, row := range a.rows {
		newRow := append([]int(nil), row...)
		dropped := false
		for ax, p := range projs {
			ns := p.sectorMap[row[ax]]
			if ns == -1 {
				dropped = true
				break
			}
			newRow[ax] = ns
		}
		if dropped {
			continue
		}
		blk := a.blocks[i]
		for ax, p := range projs {
			blk = kernel.Compress(blk, ax, p.blockMasks[row[ax]])
		}
		rows = append(rows, newRow)
		blocks = append(blocks, blk)
	}
	// sector order is preserved per axis, so sortedness survives
	a.legs = legs
	a.rows = rows
	a.blocks = blocks
	return nil
}

// Permute reorders the dense indices of one axis: the result satisfies
// result[..., i, ...] == a[..., perm[i], ...]. perm must be a bijection on
// the axis length. The axis is re-sectored from the permuted charges.
func (a *Array[T]) Permute(perm []int, axis int) (*Array[T], error) {
	if axis < 0 || axis >= a.Rank() {
		return nil, invalidIndexf("axis %d out of range for rank %d", axis, a.Rank())
	}
	n := a.legs[axis].Len()
	if len(perm) != n {
		return nil, configErrorf("permutation of length %d for axis of length %d", len(perm), n)
	}
	seen := make([]bool, n)
	for _, p := range perm {
		if p < 0 || p >= n || seen[p] {
			return nil, invalidIndexf("invalid permutation of axis %d", axis)
		}
		seen[p] = true
	}

	oldFlat := a.legs[axis].ToFlat()
	newFlat := make([]charge.Vector, n)
	for i, p := range perm {
		newFlat[i] = oldFlat[p]
	}
	newLeg, err := charge.FromFlat(a.Info(), newFlat, a.legs[axis].QConj())
	if err != nil {
		return nil, err
	}

	legs := append([]*charge.Leg(nil), a.legs...)
	legs[axis] = newLeg
	out, err := Zeros[T](legs, a.qtotal)
	if err != nil {
		return nil, err
	}
	copy(out.labels, a.labels)

	// group source blocks by their sector on the permuted axis
	byOldSec := make(map[int][]int)
	for i, row := range a.rows {
		byOldSec[row[axis]] = append(byOldSec[row[axis]], i)
	}
	for i := 0; i < n; i++ {
		j := perm[i]
		oldSec := a.legs[axis].SectorOf(j)
		oldBegin, _ := a.legs[axis].SliceOf(oldSec)
		newSec := newLeg.SectorOf(i)
		newBegin, _ := newLeg.SliceOf(newSec)
		for _, bi := range byOldSec[oldSec] {
			newRow := append([]int(nil), a.rows[bi]...)
			newRow[axis] = newSec
			dst, err := out.getBlockInsert(newRow)
			if err != nil {
				return nil, err
			}
			kernel.CopyAxisSlice(*dst, i-newBegin, a.blocks[bi], j-oldBegin, axis)
		}
	}
	out.PurgeZeros(0)
	return out, nil
}

// Selector selects indices along one axis in Get and Set.
type Selector interface{ isSelector() }

// Fix picks a single index and removes the axis.
type Fix int

// All keeps the whole axis.
type All struct{}

// Range keeps the half-open index range [Start, Stop).
type Range struct{ Start, Stop int }

// RangeStep keeps indices Start, Start+Step, ... short of Stop. A negative
// Step walks downward, with Stop exclusive (use Stop = -1 to reach index 0).
type RangeStep struct{ Start, Stop, Step int }

// Mask keeps the indices where the mask is true.
type Mask []bool

// Pick keeps the listed indices in the listed order. Indices must be
// distinct; a non-ascending order reorders the axis.
type Pick []int

// Ellipsis expands to All for every axis not otherwise selected. At most
// one Ellipsis may appear.
type Ellipsis struct{}

func (Fix) isSelector()       {}
func (All) isSelector()       {}
func (Range) isSelector()     {}
func (RangeStep) isSelector() {}
func (Mask) isSelector()      {}
func (Pick) isSelector()      {}
func (Ellipsis) isSelector()  {}

// indexList expands a selector to the picked indices of an axis of length n.
func indexList(sel Selector, n, axis int) ([]int, error) {
	switch s := sel.(type) {
	case All:
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	case Range:
		if s.Start < 0 || s.Stop > n || s.Start >= s.Stop {
			return nil, invalidIndexf("range [%d, %d) invalid for axis %d of length %d", s.Start, s.Stop, axis, n)
		}
		out := make([]int, 0, s.Stop-s.Start)
		for i := s.Start; i < s.Stop; i++ {
			out = append(out, i)
		}
		return out, nil
	case RangeStep:
		if s.Step == 0 {
			return nil, configErrorf("zero step on axis %d", axis)
		}
		var out []int
		if s.Step > 0 {
			for i := s.Start; i < s.Stop; i += s.Step {
				out = append(out, i)
			}
		} else {
			for i := s.Start; i > s.Stop; i += s.Step {
				out = append(out, i)
			}
		}
		for _, i := range out {
			if i < 0 || i >= n {
				return nil, invalidIndexf("stepped range leaves axis %d of length %d", axis, n)
			}
		}
		if len(out) == 0 {
			return nil, invalidIndexf("empty stepped range on axis %d", axis)
		}
		return out, nil
	case Mask:
		if len(s) != n {
			return nil, invalidIndexf("mask of length %d for axis %d of length %d", len(s), axis, n)
		}
		var out []int
		for i, keep := range s {
			if keep {
				out = append(out, i)
			}
		}
		if len(out) == 0 {
			return nil, invalidIndexf("mask keeps nothing on axis %d", axis)
		}
		return out, nil
	case Pick:
		if len(s) == 0 {
			return nil, invalidIndexf("empty pick on axis %d", axis)
		}
		seen := make(map[int]bool, len(s))
		for _, i := range s {
			if i < 0 || i >= n {
				return nil, invalidIndexf("picked index %d out of range for axis %d of length %d", i, axis, n)
			}
			if seen[i] {
				return nil, invalidIndexf("index %d picked twice on axis %d", i, axis)
			}
			seen[i] = true
		}
		return append([]int(nil), s...), nil
	default:
		return nil, configErrorf("selector %T cannot be expanded", sel)
	}
}

// expandSelectors fills an Ellipsis with All selectors and checks arity.
func expandSelectors(sels []Selector, rank int) ([]Selector, error) {
	ellipsis := -1
	for i, s := range sels {
		if _, ok := s.(Ellipsis); ok {
			if ellipsis >= 0 {
				return nil, invalidIndexf("more than one ellipsis")
			}
			ellipsis = i
		}
	}
	if ellipsis < 0 {
		if len(sels) != rank {
			return nil, invalidIndexf("got %d selectors for rank %d", len(sels), rank)
		}
		return sels, nil
	}
	if len(sels)-1 > rank {
		return nil, invalidIndexf("got %d selectors for rank %d", len(sels)-1, rank)
	}
	out := make([]Selector, 0, rank)
	out = append(out, sels[:ellipsis]...)
	for i := 0; i < rank-(len(sels)-1); i++ {
		out = append(out, All{})
	}
	out = append(out, sels[ellipsis+1:]...)
	return out, nil
}

// Get indexes the array with one selector per axis. Fix selectors reduce
// the rank; the remaining selectors restrict or reorder their axes. At
// least one axis must survive.
func (a *Array[T]) Get(sels ...Selector) (*Array[T], error) {
	sels, err := expandSelectors(sels, a.Rank())
	if err != nil {
		return nil, err
	}

	cur := a
	var fixAxes, fixIdx []int
	for ax, s := range sels {
		if f, ok := s.(Fix); ok {
			fixAxes = append(fixAxes, ax)
			fixIdx = append(fixIdx, int(f))
		}
	}
	if len(fixAxes) > 0 {
		cur, err = a.TakeSlice(fixAxes, fixIdx)
		if err != nil {
			return nil, err
		}
	}

	// selectors for the surviving axes, in order
	var remaining []Selector
	for _, s := range sels {
		if _, ok := s.(Fix); !ok {
			remaining = append(remaining, s)
		}
	}

	var prAxes []int
	var prMasks [][]bool
	type reorder struct {
		axis int
		perm []int
	}
	var reorders []reorder
	for ax, s := range remaining {
		if _, ok := s.(All); ok {
			continue
		}
		picked, err := indexList(s, cur.legs[ax].Len(), ax)
		if err != nil {
			return nil, err
		}
		mask := make([]bool, cur.legs[ax].Len())
		for _, i := range picked {
			mask[i] = true
		}
		prAxes = append(prAxes, ax)
		prMasks = append(prMasks, mask)
		if !sort.IntsAreSorted(picked) {
			// positions within the projected axis, in picked order
			sorted := append([]int(nil), picked...)
			sort.Ints(sorted)
			rank := make(map[int]int, len(sorted))
			for r, i := range sorted {
				rank[i] = r
			}
			perm := make([]int, len(picked))
			for r, i := range picked {
				perm[r] = rank[i]
			}
			reorders = append(reorders, reorder{axis: ax, perm: perm})
		}
	}
	if len(prAxes) > 0 {
		cur, err = cur.Project(prAxes, prMasks)
		if err != nil {
			return nil, err
		}
	}
	for _, r := range reorders {
		cur, err = cur.Permute(r.perm, r.axis)
		if err != nil {
			return nil, err
		}
	}
	if cur == a {
		cur = a.Clone()
	}
	return cur, nil
}

// Set assigns the operand into the region selected by sels, overwriting
// every selected position. Assigning a nonzero value at a charge-
// incompatible position fails with IncompatibleChargeError; the receiver
// may then be left partially assigned. Blocks that become identically zero
// are removed.
func (a *Array[T]) Set(sels []Selector, op Operand[T]) error {
	sels, err := expandSelectors(sels, a.Rank())
	if err != nil {
		return err
	}
	lists := make([][]int, a.Rank())
	opShape := make([]int, 0, a.Rank())
	for ax, s := range sels {
		if f, ok := s.(Fix); ok {
			if int(f) < 0 || int(f) >= a.legs[ax].Len() {
				return invalidIndexf("index %d out of range for axis %d", int(f), ax)
			}
			lists[ax] = []int{int(f)}
			continue
		}
		picked, err := indexList(s, a.legs[ax].Len(), ax)
		if err != nil {
			return err
		}
		lists[ax] = picked
		opShape = append(opShape, len(picked))
	}
	if err := op.checkShape(opShape); err != nil {
		return err
	}

	a.ensureOwned()
	idx := make([]int, a.Rank())
	opIdx := make([]int, len(opShape))
	target := make([]int, a.Rank())
	for {
		k := 0
		for ax, s := range sels {
			target[ax] = lists[ax][idx[ax]]
			if _, ok := s.(Fix); !ok {
				opIdx[k] = idx[ax]
				k++
			}
		}
		v := op.at(opIdx)
		if v != 0 {
			if err := a.SetAt(v, target...); err != nil {
				return err
			}
		} else {
			// zero writes only touch existing blocks
			row, offsets, err := a.resolveIndex(target)
			if err != nil {
				return err
			}
			if pos, found := a.findRow(row); found {
				a.blocks[pos].Set(0, offsets...)
			}
		}
		ax := 0
		for ; ax < a.Rank(); ax++ {
			idx[ax]++
			if idx[ax] < len(lists[ax]) {
				break
			}
			idx[ax] = 0
		}
		if ax == a.Rank() {
			break
		}
	}
	a.PurgeZeros(0)
	return nil
}
