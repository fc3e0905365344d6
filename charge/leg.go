// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package charge

import (
	"sort"

	"github.com/pkg/errors"
)

// Leg describes the charge structure of one tensor axis: a partition of the
// index range into contiguous sectors, a canonical charge vector per sector,
// and a sign flag deciding whether the stored charges count toward the total
// as stored (+1) or negated (-1).
//
// A Leg obtained from fusing several axes additionally carries a *Fusion
// describing how member sector combinations map into the fused sectors.
//
// Legs are immutable. All derived legs (Conj, Sort, Bunch, Project) are new
// values sharing no mutable state with the receiver.
type Leg struct {
	info    *Info
	qconj   int
	slices  []int    // len = SectorCount()+1, slices[0]=0, slices[end]=Len()
	charges []Vector // one canonical vector per sector
	fused   *Fusion  // nil for plain legs

	sorted  bool
	bunched bool
}

// NewLeg builds a leg from explicit sector boundaries and per-sector charges.
// slices must start at 0, be strictly increasing, and have one more entry
// than charges.
func NewLeg(info *Info, slices []int, charges []Vector, qconj int) (*Leg, error) {
	if qconj != 1 && qconj != -1 {
		return nil, errors.Errorf("charge: qconj must be +1 or -1, got %d", qconj)
	}
	if len(slices) != len(charges)+1 {
		return nil, errors.Errorf("charge: %d slice boundaries for %d sectors", len(slices), len(charges))
	}
	if len(slices) == 0 || slices[0] != 0 {
		return nil, errors.New("charge: slices must start at 0")
	}
	cs := make([]Vector, len(charges))
	for i, c := range charges {
		if slices[i+1] <= slices[i] {
			return nil, errors.Errorf("charge: sector %d is empty or reversed", i)
		}
		if !info.IsValid(c) {
			return nil, errors.Errorf("charge: sector %d carries a non-canonical charge %v", i, c)
		}
		cs[i] = c.Clone()
	}
	l := &Leg{
		info:    info,
		qconj:   qconj,
		slices:  append([]int(nil), slices...),
		charges: cs,
	}
	l.sorted = l.computeSorted()
	l.bunched = l.computeBunched()
	return l, nil
}

// FromFlat builds a leg from one charge vector per index, grouping equal
// consecutive vectors into sectors. Vectors are canonicalized.
func FromFlat(info *Info, flat []Vector, qconj int) (*Leg, error) {
	if len(flat) == 0 {
		return nil, errors.New("charge: cannot build a leg from zero indices")
	}
	slices := []int{0}
	var charges []Vector
	cur := info.MakeValid(flat[0])
	for i := 1; i < len(flat); i++ {
		q := info.MakeValid(flat[i])
		if !q.Equal(cur) {
			slices = append(slices, i)
			charges = append(charges, cur)
			cur = q
		}
	}
	slices = append(slices, len(flat))
	charges = append(charges, cur)
	return NewLeg(info, slices, charges, qconj)
}

// FromSizes builds a leg from per-sector sizes and charges.
func FromSizes(info *Info, sizes []int, charges []Vector, qconj int) (*Leg, error) {
	slices := make([]int, len(sizes)+1)
	for i, s := range sizes {
		slices[i+1] = slices[i] + s
	}
	return NewLeg(info, slices, charges, qconj)
}

// TrivialLeg returns a leg of the given length with a single zero-charge
// sector.
func TrivialLeg(info *Info, length, qconj int) *Leg {
	l, err := NewLeg(info, []int{0, length}, []Vector{info.MakeValid(nil)}, qconj)
	if err != nil {
		panic(err)
	}
	return l
}

// Len returns the dense length of the axis.
func (l *Leg) Len() int { return l.slices[len(l.slices)-1] }

// SectorCount returns the number of sectors.
func (l *Leg) SectorCount() int { return len(l.charges) }

// Info returns the charge nature of the leg.
func (l *Leg) Info() *Info { return l.info }

// QConj returns the sign flag of the leg.
func (l *Leg) QConj() int { return l.qconj }

// IsFused reports whether the leg carries fusion metadata.
func (l *Leg) IsFused() bool { return l.fused != nil }

// Fusion returns the fusion metadata, or nil for a plain leg.
func (l *Leg) Fusion() *Fusion { return l.fused }

// ToLeg returns the leg with any fusion metadata dropped, forgetting how
// its sectors were assembled. The sector table is shared.
func (l *Leg) ToLeg() *Leg {
	if l.fused == nil {
		return l
	}
	plain := *l
	plain.fused = nil
	return &plain
}

// SliceOf returns the half-open dense index range [begin, end) of a sector.
func (l *Leg) SliceOf(sector int) (begin, end int) {
	return l.slices[sector], l.slices[sector+1]
}

// SectorSize returns the dense size of a sector.
func (l *Leg) SectorSize(sector int) int {
	return l.slices[sector+1] - l.slices[sector]
}

// SectorCharge returns the stored charge vector of a sector. The returned
// slice must not be modified.
func (l *Leg) SectorCharge(sector int) Vector { return l.charges[sector] }

// EffectiveCharge returns the qconj-weighted canonical charge of a sector,
// i.e. the amount the sector contributes to a total charge.
func (l *Leg) EffectiveCharge(sector int) Vector {
	return l.info.AdjustSign(l.charges[sector], l.qconj)
}

// SectorOf returns the sector containing a dense index.
func (l *Leg) SectorOf(index int) int {
	if index < 0 || index >= l.Len() {
		panic("charge: dense index out of range")
	}
	// first boundary strictly above index, minus one
	return sort.SearchInts(l.slices, index+1) - 1
}

// ChargeOf returns the effective charge of the sector containing a dense
// index.
func (l *Leg) ChargeOf(index int) Vector {
	return l.EffectiveCharge(l.SectorOf(index))
}

// ToFlat expands the leg to one stored charge vector per dense index.
func (l *Leg) ToFlat() []Vector {
	flat := make([]Vector, l.Len())
	for s, q := range l.charges {
		for i := l.slices[s]; i < l.slices[s+1]; i++ {
			flat[i] = q
		}
	}
	return flat
}

// IsSorted reports whether the sector charges are in canonical order.
func (l *Leg) IsSorted() bool { return l.sorted }

// IsBunched reports whether no two consecutive sectors carry equal charges.
func (l *Leg) IsBunched() bool { return l.bunched }

// IsBlocked reports whether distinct sectors always carry distinct charges,
// i.e. the leg is sorted and bunched.
func (l *Leg) IsBlocked() bool { return l.sorted && l.bunched }

func (l *Leg) computeSorted() bool {
	for i := 1; i < len(l.charges); i++ {
		if CompareLastMajor(l.charges[i-1], l.charges[i]) > 0 {
			return false
		}
	}
	return true
}

func (l *Leg) computeBunched() bool {
	for i := 1; i < len(l.charges); i++ {
		if l.charges[i-1].Equal(l.charges[i]) {
			return false
		}
	}
	return true
}

// Conj returns the leg with the sign flag flipped. The stored charges are
// unchanged, so the effective charges negate.
func (l *Leg) Conj() *Leg {
	out := *l
	out.qconj = -l.qconj
	out.fused = nil
	if l.fused != nil {
		out.fused = l.fused.conj()
	}
	return &out
}

// ConjCharges returns a leg with the same effective charges but the opposite
// sign flag: the stored charges are negated along with qconj.
func (l *Leg) ConjCharges() *Leg {
	charges := make([]Vector, len(l.charges))
	for i, q := range l.charges {
		charges[i] = l.info.Neg(q)
	}
	out, err := NewLeg(l.info, l.slices, charges, -l.qconj)
	if err != nil {
		panic(err)
	}
	return out
}

// Sort returns a plain leg with the sectors reordered into canonical charge
// order, together with the stable permutation applied to the sectors
// (perm[new] = old) and the induced permutation of dense indices
// (flatPerm[new] = old). Fusion metadata does not survive sorting.
func (l *Leg) Sort() (sorted *Leg, perm []int, flatPerm []int) {
	n := l.SectorCount()
	perm = make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return CompareLastMajor(l.charges[perm[i]], l.charges[perm[j]]) < 0
	})
	slices := make([]int, n+1)
	charges := make([]Vector, n)
	flatPerm = make([]int, 0, l.Len())
	for newSec, oldSec := range perm {
		sz := l.SectorSize(oldSec)
		slices[newSec+1] = slices[newSec] + sz
		charges[newSec] = l.charges[oldSec]
		for i := l.slices[oldSec]; i < l.slices[oldSec+1]; i++ {
			flatPerm = append(flatPerm, i)
		}
	}
	out, err := NewLeg(l.info, slices, charges, l.qconj)
	if err != nil {
		panic(err)
	}
	return out, perm, flatPerm
}

// Bunch returns a plain leg with consecutive equal-charge sectors merged,
// together with a map from old sector index to the sector it was merged
// into.
func (l *Leg) Bunch() (bunched *Leg, sectorMap []int) {
	n := l.SectorCount()
	sectorMap = make([]int, n)
	slices := []int{0}
	var charges []Vector
	for s := 0; s < n; s++ {
		if s > 0 && l.charges[s].Equal(l.charges[s-1]) {
			sectorMap[s] = sectorMap[s-1]
			slices[len(slices)-1] = l.slices[s+1]
			continue
		}
		sectorMap[s] = len(charges)
		charges = append(charges, l.charges[s])
		slices = append(slices, l.slices[s+1])
	}
	out, err := NewLeg(l.info, slices, charges, l.qconj)
	if err != nil {
		panic(err)
	}
	return out, sectorMap
}

// Project restricts the leg to the dense indices where mask is true. It
// returns the projected plain leg, a per-sector map from old sector index to
// new (-1 for sectors that vanish entirely), and the per-sector boolean
// sub-masks for slicing block payloads.
func (l *Leg) Project(mask []bool) (*Leg, []int, [][]bool, error) {
	if len(mask) != l.Len() {
		return nil, nil, nil, errors.Errorf("charge: mask length %d does not match leg length %d", len(mask), l.Len())
	}
	n := l.SectorCount()
	sectorMap := make([]int, n)
	blockMasks := make([][]bool, n)
	slices := []int{0}
	var charges []Vector
	for s := 0; s < n; s++ {
		sub := mask[l.slices[s]:l.slices[s+1]]
		kept := 0
		for _, m := range sub {
			if m {
				kept++
			}
		}
		blockMasks[s] = sub
		if kept == 0 {
			sectorMap[s] = -1
			continue
		}
		sectorMap[s] = len(charges)
		charges = append(charges, l.charges[s])
		slices = append(slices, slices[len(slices)-1]+kept)
	}
	if len(charges) == 0 {
		return nil, nil, nil, errors.New("charge: projection keeps no indices")
	}
	out, err := NewLeg(l.info, slices, charges, l.qconj)
	if err != nil {
		return nil, nil, nil, err
	}
	return out, sectorMap, blockMasks, nil
}

// CheckEqual reports whether two legs are interchangeable: same charge
// nature, same sign flag, same sector structure and stored charges.
func (l *Leg) CheckEqual(o *Leg) error {
	if !l.info.Equal(o.info) {
		return errors.New("charge: legs carry different charge natures")
	}
	if l.qconj != o.qconj {
		return errors.Errorf("charge: legs carry opposite qconj (%d vs %d)", l.qconj, o.qconj)
	}
	if l.SectorCount() != o.SectorCount() {
		return errors.Errorf("charge: legs have %d vs %d sectors", l.SectorCount(), o.SectorCount())
	}
	for s := range l.charges {
		if l.slices[s+1] != o.slices[s+1] {
			return errors.Errorf("charge: sector %d boundary differs (%d vs %d)", s, l.slices[s+1], o.slices[s+1])
		}
		if !l.charges[s].Equal(o.charges[s]) {
			return errors.Errorf("charge: sector %d charge differs (%v vs %v)", s, l.charges[s], o.charges[s])
		}
	}
	return nil
}

// CheckContractible reports whether the receiver can be contracted with o:
// same charge nature, opposite sign flags, identical sector structure and
// stored charges. Stored charges match directly because the opposite qconj
// already provides the cancellation.
func (l *Leg) CheckContractible(o *Leg) error {
	if !l.info.Equal(o.info) {
		return errors.New("charge: legs carry different charge natures")
	}
	if l.qconj != -o.qconj {
		return errors.Errorf("charge: contracted legs need opposite qconj, got %d and %d", l.qconj, o.qconj)
	}
	if l.SectorCount() != o.SectorCount() {
		return errors.Errorf("charge: legs have %d vs %d sectors", l.SectorCount(), o.SectorCount())
	}
	for s := range l.charges {
		if l.slices[s+1] != o.slices[s+1] {
			return errors.Errorf("charge: sector %d boundary differs (%d vs %d)", s, l.slices[s+1], o.slices[s+1])
		}
		if !l.charges[s].Equal(o.charges[s]) {
			return errors.Errorf("charge: sector %d charge differs (%v vs %v)", s, l.charges[s], o.charges[s])
		}
	}
	return nil
}

// Validate checks the internal consistency of the leg.
func (l *Leg) Validate() error {
	if l.qconj != 1 && l.qconj != -1 {
		return errors.Errorf("charge: invalid qconj %d", l.qconj)
	}
	if len(l.slices) != len(l.charges)+1 || l.slices[0] != 0 {
		return errors.New("charge: malformed sector boundaries")
	}
	for s, q := range l.charges {
		if l.slices[s+1] <= l.slices[s] {
			return errors.Errorf("charge: sector %d is empty or reversed", s)
		}
		if !l.info.IsValid(q) {
			return errors.Errorf("charge: sector %d carries a non-canonical charge %v", s, q)
		}
	}
	if l.fused != nil {
		if err := l.fused.validate(l); err != nil {
			return err
		}
	}
	return nil
}
