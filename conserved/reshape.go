// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conserved

import (
	"sort"

	"github.com/qspace-ml/qspace/charge"
	"github.com/qspace-ml/qspace/internal/kernel"
)

// MakePipe fuses the legs of the listed axes into a single leg with the
// given sign flag, without touching the array. The result can be passed to
// CombineLegs via CombineOpts to reuse one pipe across arrays.
func (a *Array[T]) MakePipe(axes []int, qconj int) (*charge.Leg, error) {
	legs := make([]*charge.Leg, len(axes))
	for i, ax := range axes {
		if ax < 0 || ax >= a.Rank() {
			return nil, invalidIndexf("axis %d out of range for rank %d", ax, a.Rank())
		}
		legs[i] = a.legs[ax]
	}
	return charge.NewPipe(legs, qconj)
}

// CombineOpts tunes CombineLegs.
type CombineOpts struct {
	// Pipes supplies a pre-built fused leg per group; nil entries are built
	// on the fly. A supplied pipe must have been fused from legs equal to
	// the group's legs, in group order.
	Pipes []*charge.Leg
	// QConj gives the sign flag per built pipe; defaults to +1.
	QConj []int
}

// CombineLegs fuses each group of axes into one leg. The array is first
// transposed, if necessary, so every group is contiguous in group order;
// groups are placed at the position of their first-listed axis relative to
// the other surviving axes. Fused axis labels join the member labels as
// "(a.b)", with "?N" placeholders for unlabeled members.
func CombineLegs[T Scalar](a *Array[T], groups [][]int, opts *CombineOpts) (*Array[T], error) {
	if opts == nil {
		opts = &CombineOpts{}
	}
	if opts.Pipes != nil && len(opts.Pipes) != len(groups) {
		return nil, configErrorf("%d pipes for %d groups", len(opts.Pipes), len(groups))
	}
	if opts.QConj != nil && len(opts.QConj) != len(groups) {
		return nil, configErrorf("%d sign flags for %d groups", len(opts.QConj), len(groups))
	}
	inGroup := make(map[int]int) // axis -> group
	for g, group := range groups {
		if len(group) == 0 {
			return nil, configErrorf("group %d is empty", g)
		}
		for _, ax := range group {
			if ax < 0 || ax >= a.Rank() {
				return nil, invalidIndexf("axis %d out of range for rank %d", ax, a.Rank())
			}
			if _, dup := inGroup[ax]; dup {
				return nil, invalidIndexf("axis %d combined twice", ax)
			}
			inGroup[ax] = g
		}
	}

	// order the output: every item sits at the position of its first axis
	type item struct {
		axes  []int
		group int // -1 for a kept axis
	}
	var items []item
	for ax := 0; ax < a.Rank(); ax++ {
		if g, ok := inGroup[ax]; ok {
			if groups[g][0] == ax {
				items = append(items, item{axes: groups[g], group: g})
			}
			continue
		}
		items = append(items, item{axes: []int{ax}, group: -1})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].axes[0] < items[j].axes[0] })

	perm := make([]int, 0, a.Rank())
	for _, it := range items {
		perm = append(perm, it.axes...)
	}
	tr, err := a.Transpose(perm)
	if err != nil {
		return nil, err
	}

	// build or validate one pipe per group
	pipes := make([]*charge.Leg, len(groups))
	for g, group := range groups {
		if opts.Pipes != nil && opts.Pipes[g] != nil {
			p := opts.Pipes[g]
			if !p.IsFused() || p.Fusion().NLegs() != len(group) {
				return nil, configErrorf("supplied pipe %d does not fuse %d legs", g, len(group))
			}
			for i, ax := range group {
				if err := p.Fusion().MemberLeg(i).CheckEqual(a.legs[ax]); err != nil {
					return nil, &IncompatibleLegError{AxisA: ax, AxisB: ax, Reason: err}
				}
			}
			pipes[g] = p
			continue
		}
		qconj := 1
		if opts.QConj != nil {
			qconj = opts.QConj[g]
		}
		members := make([]*charge.Leg, len(group))
		for i, ax := range group {
			members[i] = a.legs[ax]
		}
		pipes[g], err = charge.NewPipe(members, qconj)
		if err != nil {
			return nil, err
		}
	}

	// assemble the output legs and labels over the transposed order
	var legs []*charge.Leg
	var labels []string
	type span struct {
		begin, n int // axis range in the transposed array
		group    int // -1 for a kept axis
	}
	var spans []span
	at := 0
	for _, it := range items {
		if it.group < 0 {
			legs = append(legs, tr.legs[at])
			labels = append(labels, tr.labels[at])
			spans = append(spans, span{begin: at, n: 1, group: -1})
			at++
			continue
		}
		members := make([]string, len(it.axes))
		for i := range it.axes {
			members[i] = tr.labels[at+i]
		}
		legs = append(legs, pipes[it.group])
		labels = append(labels, fuseLabels(members, it.axes))
		spans = append(spans, span{begin: at, n: len(it.axes), group: it.group})
		at += len(it.axes)
	}

	// fused sectors carry the canonical sum of their members' effective
	// charges, so fusing never moves qtotal
	out, err := Zeros[T](legs, tr.qtotal)
	if err != nil {
		return nil, err
	}
	out.labels = labels

	// re-key and merge blocks
	type slot struct {
		row []int
		blk kernel.Dense[T]
	}
	merged := make(map[string]*slot)
	var order []string
	for bi, row := range tr.rows {
		newRow := make([]int, len(spans))
		offsets := make([]int, len(spans))
		newShape := make([]int, len(spans))
		flatShape := make([]int, len(spans))
		ok := true
		for si, sp := range spans {
			if sp.group < 0 {
				s := row[sp.begin]
				newRow[si] = s
				newShape[si] = legs[si].SectorSize(s)
				flatShape[si] = tr.blocks[bi].Shape[sp.begin]
				continue
			}
			member := row[sp.begin : sp.begin+sp.n]
			fr, found := pipes[sp.group].Fusion().LookupRow(member)
			if !found {
				ok = false
				break
			}
			newRow[si] = fr.Fused
			offsets[si] = fr.Beg
			newShape[si] = legs[si].SectorSize(fr.Fused)
			flatShape[si] = fr.End - fr.Beg
		}
		if !ok {
			return nil, configErrorf("block row %v has no slot in the supplied pipes", row)
		}
		key := rowKey(newRow)
		s, have := merged[key]
		if !have {
			s = &slot{row: newRow, blk: kernel.Zeros[T](newShape)}
			merged[key] = s
			order = append(order, key)
		}
		// collapse each group's contiguous axes row-major, then place the
		// flat segment at its sub-offset
		kernel.CopyInto(s.blk, tr.blocks[bi].WithShape(flatShape), offsets)
	}
	for _, key := range order {
		s := merged[key]
		out.rows = append(out.rows, s.row)
		out.blocks = append(out.blocks, s.blk)
	}
	out.sorted = false
	out.SortQData()
	return out, nil
}

// CombineLegsByLabels is CombineLegs with the groups given as label lists.
func CombineLegsByLabels[T Scalar](a *Array[T], groups [][]string, opts *CombineOpts) (*Array[T], error) {
	axGroups := make([][]int, len(groups))
	for g, labels := range groups {
		axes, err := a.AxesByLabels(labels)
		if err != nil {
			return nil, err
		}
		axGroups[g] = axes
	}
	return CombineLegs(a, axGroups, opts)
}

// SplitLegs splits the listed fused axes back into their member legs, with
// no axes given every fused axis. Sub-blocks whose largest magnitude is at
// most cutoff are dropped; genuine data always clears this, only structural
// zeros introduced by the earlier grouping fall below it.
func SplitLegs[T Scalar](a *Array[T], axes []int, cutoff float64) (*Array[T], error) {
	if len(axes) == 0 {
		for ax, l := range a.legs {
			if l.IsFused() {
				axes = append(axes, ax)
			}
		}
		if len(axes) == 0 {
			return a.Clone(), nil
		}
	}
	split := make(map[int]*charge.Fusion, len(axes))
	for _, ax := range axes {
		if ax < 0 || ax >= a.Rank() {
			return nil, invalidIndexf("axis %d out of range for rank %d", ax, a.Rank())
		}
		if !a.legs[ax].IsFused() {
			return nil, invalidIndexf("axis %d is not a fused leg", ax)
		}
		if _, dup := split[ax]; dup {
			return nil, invalidIndexf("axis %d split twice", ax)
		}
		split[ax] = a.legs[ax].Fusion()
	}

	var legs []*charge.Leg
	var labels []string
	for ax, l := range a.legs {
		f, ok := split[ax]
		if !ok {
			legs = append(legs, l)
			labels = append(labels, a.labels[ax])
			continue
		}
		members := splitLabel(a.labels[ax])
		for i, m := range f.Legs() {
			legs = append(legs, m)
			if members != nil {
				labels = append(labels, members[i])
			} else {
				labels = append(labels, "")
			}
		}
	}
	out, err := Zeros[T](legs, a.qtotal)
	if err != nil {
		return nil, err
	}
	if err := out.SetLabels(dedupeLabels(labels)); err != nil {
		return nil, err
	}

	for bi, row := range a.rows {
		// candidate fusion rows per axis: one for a plain axis, all the
		// contributing rows for a split axis
		type choice struct {
			rows []charge.FusionRow
		}
		choices := make([]choice, a.Rank())
		for ax := range row {
			if f, ok := split[ax]; ok {
				var frs []charge.FusionRow
				for _, ri := range f.RowsOf(row[ax]) {
					frs = append(frs, f.Row(ri))
				}
				choices[ax] = choice{rows: frs}
			} else {
				choices[ax] = choice{rows: []charge.FusionRow{{}}}
			}
		}
		pick := make([]int, a.Rank())
		for {
			starts := make([]int, a.Rank())
			ends := make([]int, a.Rank())
			var newRow []int
			var subShape []int
			for ax := range row {
				fr := choices[ax].rows[pick[ax]]
				if f, ok := split[ax]; ok {
					starts[ax], ends[ax] = fr.Beg, fr.End
					for i, s := range fr.Sectors {
						newRow = append(newRow, s)
						subShape = append(subShape, f.MemberLeg(i).SectorSize(s))
					}
				} else {
					starts[ax], ends[ax] = 0, a.blocks[bi].Shape[ax]
					newRow = append(newRow, row[ax])
					subShape = append(subShape, a.blocks[bi].Shape[ax])
				}
			}
			sub := kernel.Extract(a.blocks[bi], starts, ends)
			if sub.MaxAbs() > cutoff {
				out.rows = append(out.rows, newRow)
				out.blocks = append(out.blocks, sub.WithShape(subShape))
			}
			ax := 0
			for ; ax < a.Rank(); ax++ {
				pick[ax]++
				if pick[ax] < len(choices[ax].rows) {
					break
				}
				pick[ax] = 0
			}
			if ax == a.Rank() {
				break
			}
		}
	}
	out.sorted = false
	out.SortQData()
	return out, nil
}

// dedupeLabels clears duplicate labels so a split result stays valid even
// when two pipes carried members with the same name.
func dedupeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := append([]string(nil), labels...)
	for i, lb := range out {
		if lb == "" {
			continue
		}
		if seen[lb] {
			out[i] = ""
			continue
		}
		seen[lb] = true
	}
	return out
}
