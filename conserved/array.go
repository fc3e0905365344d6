// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conserved

import (
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qspace-ml/qspace/charge"
	"github.com/qspace-ml/qspace/internal/kernel"
)

// Scalar constrains the element types an Array can hold.
type Scalar = kernel.Scalar

// Array is a block-sparse tensor. Only blocks whose sector charges sum to
// qtotal are stored; rows[i] holds one sector index per axis for blocks[i].
//
// Legs are immutable once attached. The block table is copy-on-write under
// Clone: structural edits copy it first, but block payloads stay shared, so
// elementwise mutation through a shallow copy is a documented hazard.
type Array[T Scalar] struct {
	legs   []*charge.Leg
	qtotal charge.Vector
	labels []string // one per axis, empty string means unlabeled

	rows   [][]int
	blocks []kernel.Dense[T]
	sorted bool
	shared bool // block table aliased by a shallow copy
}

// Zeros creates an array with the given legs and total charge and no stored
// blocks. A nil qtotal means zero total charge.
func Zeros[T Scalar](legs []*charge.Leg, qtotal charge.Vector) (*Array[T], error) {
	if len(legs) == 0 {
		return nil, configErrorf("an array needs at least one leg")
	}
	info := legs[0].Info()
	for i, l := range legs[1:] {
		if !info.Equal(l.Info()) {
			return nil, configErrorf("leg %d carries a different charge nature", i+1)
		}
	}
	return &Array[T]{
		legs:   append([]*charge.Leg(nil), legs...),
		qtotal: info.MakeValid(qtotal),
		labels: make([]string, len(legs)),
		sorted: true,
	}, nil
}

// ZerosLike creates an empty array with the same legs, total charge and
// labels as a.
func ZerosLike[T Scalar](a *Array[T]) *Array[T] {
	out, err := Zeros[T](a.legs, a.qtotal)
	if err != nil {
		panic(err)
	}
	copy(out.labels, a.labels)
	return out
}

// FromDense builds an array from a row-major dense buffer. The buffer shape
// is fixed by the legs. If qtotal is nil it is detected from the first entry
// whose magnitude exceeds cutoff; when no entry does, a zero total charge is
// assumed and a warning is logged. Entries at charge-incompatible positions
// are dropped, with a warning when their magnitude exceeds cutoff.
func FromDense[T Scalar](data []T, legs []*charge.Leg, qtotal charge.Vector, cutoff float64) (*Array[T], error) {
	a, err := Zeros[T](legs, qtotal)
	if err != nil {
		return nil, err
	}
	shape := a.Shape()
	if len(data) != kernel.NumElements(shape) {
		return nil, &ShapeMismatchError{Expected: shape, Got: []int{len(data)}}
	}
	full := kernel.FromSlice(data, shape)
	if qtotal == nil {
		a.qtotal = detectQTotal(full, legs, cutoff)
	}

	// extract every charge-compatible block; rows come in canonical order,
	// so keeping the slice order keeps the table sorted
	rows := a.allCompatibleRows()
	extracted := make([]kernel.Dense[T], len(rows))
	kept := make([]bool, len(rows))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			starts, ends := a.blockSlices(row)
			blk := kernel.Extract(full, starts, ends)
			if blk.MaxAbs() > 0 {
				extracted[i] = blk
				kept[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()
	for i, row := range rows {
		if kept[i] {
			a.rows = append(a.rows, row)
			a.blocks = append(a.blocks, extracted[i])
		}
	}
	a.sorted = true

	if dropped := a.droppedMagnitude(full); dropped > cutoff {
		logger.Warn("dropping charge-incompatible dense entries",
			zap.Float64("maxAbs", dropped),
			zap.Float64("cutoff", cutoff))
	}
	return a, nil
}

// FromDenseTrivial wraps a dense buffer as an array with one zero-charge
// sector per axis and zero total charge.
func FromDenseTrivial[T Scalar](data []T, shape []int) (*Array[T], error) {
	info := charge.Trivial()
	legs := make([]*charge.Leg, len(shape))
	for i, n := range shape {
		if n <= 0 {
			return nil, configErrorf("axis %d has non-positive length %d", i, n)
		}
		legs[i] = charge.TrivialLeg(info, n, 1)
	}
	return FromDense(data, legs, charge.Vector{}, 0)
}

// detectQTotal derives the total charge from the first entry of the buffer
// whose magnitude exceeds cutoff.
func detectQTotal[T Scalar](full kernel.Dense[T], legs []*charge.Leg, cutoff float64) charge.Vector {
	info := legs[0].Info()
	strides := kernel.Strides(full.Shape)
	for flat, v := range full.Data {
		if kernel.Abs(v) <= cutoff {
			continue
		}
		qs := make([]charge.Vector, len(legs))
		for ax, l := range legs {
			idx := (flat / strides[ax]) % full.Shape[ax]
			qs[ax] = l.ChargeOf(idx)
		}
		return info.Fuse(qs...)
	}
	logger.Warn("no dense entry above cutoff, assuming zero total charge",
		zap.Float64("cutoff", cutoff))
	return info.MakeValid(nil)
}

// droppedMagnitude returns the largest magnitude of an entry of full that
// lies outside the charge-compatible blocks.
func (a *Array[T]) droppedMagnitude(full kernel.Dense[T]) float64 {
	rebuilt := a.ToDense()
	m := 0.0
	for i, v := range full.Data {
		if d := kernel.Abs(v - rebuilt[i]); d > m {
			m = d
		}
	}
	return m
}

// allCompatibleRows enumerates every sector row whose charge equals qtotal,
// in canonical order (first axis fastest).
func (a *Array[T]) allCompatibleRows() [][]int {
	var out [][]int
	row := make([]int, a.Rank())
	for {
		if a.rowCharge(row).Equal(a.qtotal) {
			out = append(out, append([]int(nil), row...))
		}
		ax := 0
		for ; ax < len(row); ax++ {
			row[ax]++
			if row[ax] < a.legs[ax].SectorCount() {
				break
			}
			row[ax] = 0
		}
		if ax == len(row) {
			break
		}
	}
	return out
}

// Rank returns the number of axes.
func (a *Array[T]) Rank() int { return len(a.legs) }

// Shape returns the dense length of every axis.
func (a *Array[T]) Shape() []int {
	shape := make([]int, len(a.legs))
	for i, l := range a.legs {
		shape[i] = l.Len()
	}
	return shape
}

// Info returns the charge nature shared by all legs.
func (a *Array[T]) Info() *charge.Info { return a.legs[0].Info() }

// QTotal returns the total charge. The returned vector must not be modified.
func (a *Array[T]) QTotal() charge.Vector { return a.qtotal }

// Leg returns the leg of one axis.
func (a *Array[T]) Leg(axis int) *charge.Leg { return a.legs[axis] }

// Legs returns a copy of the leg list.
func (a *Array[T]) Legs() []*charge.Leg { return append([]*charge.Leg(nil), a.legs...) }

// BlockCount returns the number of stored blocks.
func (a *Array[T]) BlockCount() int { return len(a.blocks) }

// IsSorted reports whether the block table is in canonical order.
func (a *Array[T]) IsSorted() bool { return a.sorted }

// Clone returns a shallow copy: legs, labels and total charge are copied,
// the block table and payloads are shared copy-on-write. Structural edits
// on either value copy the table first; elementwise in-place edits write
// through to both.
func (a *Array[T]) Clone() *Array[T] {
	out := *a
	out.legs = append([]*charge.Leg(nil), a.legs...)
	out.qtotal = a.qtotal.Clone()
	out.labels = append([]string(nil), a.labels...)
	out.shared = true
	a.shared = true
	return &out
}

// Copy returns a deep copy sharing nothing mutable with the receiver.
func (a *Array[T]) Copy() *Array[T] {
	out := a.Clone()
	out.ensureOwned()
	for i := range out.blocks {
		out.blocks[i] = out.blocks[i].Clone()
	}
	return out
}

// ensureOwned copies the block table if it is aliased by a shallow copy.
// Payload data stays shared.
func (a *Array[T]) ensureOwned() {
	if !a.shared {
		return
	}
	rows := make([][]int, len(a.rows))
	for i, r := range a.rows {
		rows[i] = append([]int(nil), r...)
	}
	a.rows = rows
	a.blocks = append([]kernel.Dense[T](nil), a.blocks...)
	a.shared = false
}

// rowCharge returns the canonical charge of a sector row.
func (a *Array[T]) rowCharge(row []int) charge.Vector {
	qs := make([]charge.Vector, len(row))
	for ax, s := range row {
		qs[ax] = a.legs[ax].EffectiveCharge(s)
	}
	return a.Info().Fuse(qs...)
}

// blockShape returns the dense shape of the block at a sector row.
func (a *Array[T]) blockShape(row []int) []int {
	shape := make([]int, len(row))
	for ax, s := range row {
		shape[ax] = a.legs[ax].SectorSize(s)
	}
	return shape
}

// blockSlices returns the dense index ranges covered by a sector row.
func (a *Array[T]) blockSlices(row []int) (starts, ends []int) {
	starts = make([]int, len(row))
	ends = make([]int, len(row))
	for ax, s := range row {
		starts[ax], ends[ax] = a.legs[ax].SliceOf(s)
	}
	return starts, ends
}

// findRow locates a sector row in the block table. When the table is sorted
// this is a binary search and pos is the insertion point on a miss.
func (a *Array[T]) findRow(row []int) (pos int, found bool) {
	if a.sorted {
		pos = sort.Search(len(a.rows), func(i int) bool {
			return charge.CompareLastMajor(a.rows[i], row) >= 0
		})
		found = pos < len(a.rows) && charge.CompareLastMajor(a.rows[pos], row) == 0
		return pos, found
	}
	for i, r := range a.rows {
		if charge.CompareLastMajor(r, row) == 0 {
			return i, true
		}
	}
	return len(a.rows), false
}

// getBlockInsert returns the block stored at row, inserting a zero block if
// the row is charge-compatible and absent. A sorted table stays sorted.
func (a *Array[T]) getBlockInsert(row []int) (*kernel.Dense[T], error) {
	pos, found := a.findRow(row)
	if found {
		return &a.blocks[pos], nil
	}
	q := a.rowCharge(row)
	if !q.Equal(a.qtotal) {
		return nil, &IncompatibleChargeError{Row: append([]int(nil), row...), Charge: q, QTotal: a.qtotal}
	}
	a.ensureOwned()
	blk := kernel.Zeros[T](a.blockShape(row))
	a.rows = append(a.rows, nil)
	copy(a.rows[pos+1:], a.rows[pos:])
	a.rows[pos] = append([]int(nil), row...)
	a.blocks = append(a.blocks, kernel.Dense[T]{})
	copy(a.blocks[pos+1:], a.blocks[pos:])
	a.blocks[pos] = blk
	return &a.blocks[pos], nil
}

// SortQData brings the block table into canonical order. A no-op when the
// table is already sorted.
func (a *Array[T]) SortQData() {
	if a.sorted {
		return
	}
	a.ensureOwned()
	perm := make([]int, len(a.rows))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return charge.CompareLastMajor(a.rows[perm[i]], a.rows[perm[j]]) < 0
	})
	rows := make([][]int, len(a.rows))
	blocks := make([]kernel.Dense[T], len(a.blocks))
	for newI, oldI := range perm {
		rows[newI] = a.rows[oldI]
		blocks[newI] = a.blocks[oldI]
	}
	a.rows = rows
	a.blocks = blocks
	a.sorted = true
}

// ToDense expands the array to a row-major dense buffer of the full shape.
func (a *Array[T]) ToDense() []T {
	full := kernel.Zeros[T](a.Shape())
	for i, row := range a.rows {
		starts, _ := a.blockSlices(row)
		kernel.CopyInto(full, a.blocks[i], starts)
	}
	return full.Data
}

// Validate checks every structural invariant of the array.
func (a *Array[T]) Validate() error {
	if len(a.legs) == 0 {
		return configErrorf("array has no legs")
	}
	info := a.Info()
	if !info.IsValid(a.qtotal) {
		return configErrorf("total charge %v is not canonical", a.qtotal)
	}
	for i, l := range a.legs {
		if !info.Equal(l.Info()) {
			return configErrorf("leg %d carries a different charge nature", i)
		}
		if err := l.Validate(); err != nil {
			return err
		}
	}
	if len(a.labels) != len(a.legs) {
		return configErrorf("%d labels for %d legs", len(a.labels), len(a.legs))
	}
	seen := make(map[string]int)
	for ax, lb := range a.labels {
		if lb == "" {
			continue
		}
		if prev, ok := seen[lb]; ok {
			return invalidIndexf("label %q set on axes %d and %d", lb, prev, ax)
		}
		seen[lb] = ax
	}
	if len(a.rows) != len(a.blocks) {
		return configErrorf("%d rows for %d blocks", len(a.rows), len(a.blocks))
	}
	for i, row := range a.rows {
		if len(row) != a.Rank() {
			return configErrorf("row %d has %d entries for rank %d", i, len(row), a.Rank())
		}
		for ax, s := range row {
			if s < 0 || s >= a.legs[ax].SectorCount() {
				return invalidIndexf("row %d references sector %d of axis %d", i, s, ax)
			}
		}
		if q := a.rowCharge(row); !q.Equal(a.qtotal) {
			return &IncompatibleChargeError{Row: row, Charge: q, QTotal: a.qtotal}
		}
		want := a.blockShape(row)
		got := a.blocks[i].Shape
		if len(want) != len(got) {
			return &ShapeMismatchError{Expected: want, Got: got}
		}
		for ax := range want {
			if want[ax] != got[ax] {
				return &ShapeMismatchError{Expected: want, Got: got}
			}
		}
		if a.sorted && i > 0 {
			if charge.CompareLastMajor(a.rows[i-1], row) >= 0 {
				return configErrorf("block table marked sorted but rows %d and %d are out of order", i-1, i)
			}
		}
		if !a.sorted {
			for j := 0; j < i; j++ {
				if charge.CompareLastMajor(a.rows[j], row) == 0 {
					return configErrorf("rows %d and %d reference the same sector combination", j, i)
				}
			}
		}
	}
	return nil
}
