// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package charge

import (
	"sort"

	"github.com/pkg/errors"
)

// FusionRow records where one combination of member sectors lands inside a
// fused leg: the member sector indices, the fused sector they contribute to,
// and the half-open offset range [Beg, End) within that fused sector.
type FusionRow struct {
	Beg, End int
	Sectors  []int
	Fused    int
}

// Fusion is the bookkeeping attached to a leg obtained by fusing several
// member legs. It maps every combination of member sectors to its slot in
// the fused leg and back.
type Fusion struct {
	legs    []*Leg
	rows    []FusionRow
	secRows [][]int // per fused sector, indices into rows
	strides []int   // row-major over member sector counts, last member fastest
	lookup  map[int]int
}

// NewPipe fuses the given legs into a single leg with the given sign flag.
// The fused leg is always sorted and bunched; the dense index of the fused
// leg runs over member indices in row-major order, last member fastest.
func NewPipe(legs []*Leg, qconj int) (*Leg, error) {
	if len(legs) == 0 {
		return nil, errors.New("charge: cannot fuse zero legs")
	}
	if qconj != 1 && qconj != -1 {
		return nil, errors.Errorf("charge: qconj must be +1 or -1, got %d", qconj)
	}
	info := legs[0].Info()
	for _, l := range legs[1:] {
		if !info.Equal(l.Info()) {
			return nil, errors.New("charge: fused legs carry different charge natures")
		}
	}

	counts := make([]int, len(legs))
	nComb := 1
	for i, l := range legs {
		counts[i] = l.SectorCount()
		nComb *= counts[i]
	}
	strides := make([]int, len(legs))
	strides[len(legs)-1] = 1
	for i := len(legs) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * counts[i+1]
	}

	type combo struct {
		sectors []int
		charge  Vector // stored charge of the fused sector
		size    int
	}
	combos := make([]combo, 0, nComb)
	idx := make([]int, len(legs))
	for {
		eff := make(Vector, info.QNumber())
		size := 1
		for i, l := range legs {
			q := l.EffectiveCharge(idx[i])
			for k := range eff {
				eff[k] += q[k]
			}
			size *= l.SectorSize(idx[i])
		}
		combos = append(combos, combo{
			sectors: append([]int(nil), idx...),
			charge:  info.AdjustSign(eff, qconj),
			size:    size,
		})
		// advance, last member fastest
		j := len(idx) - 1
		for ; j >= 0; j-- {
			idx[j]++
			if idx[j] < counts[j] {
				break
			}
			idx[j] = 0
		}
		if j < 0 {
			break
		}
	}

	perm := make([]int, len(combos))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return CompareLastMajor(combos[perm[i]].charge, combos[perm[j]].charge) < 0
	})

	f := &Fusion{
		legs:    append([]*Leg(nil), legs...),
		strides: strides,
		lookup:  make(map[int]int, len(combos)),
	}
	slices := []int{0}
	var charges []Vector
	offset := 0 // within the current fused sector
	for _, ci := range perm {
		c := combos[ci]
		if len(charges) == 0 || !charges[len(charges)-1].Equal(c.charge) {
			charges = append(charges, c.charge)
			slices = append(slices, slices[len(slices)-1])
			f.secRows = append(f.secRows, nil)
			offset = 0
		}
		fs := len(charges) - 1
		row := FusionRow{
			Beg:     offset,
			End:     offset + c.size,
			Sectors: c.sectors,
			Fused:   fs,
		}
		offset += c.size
		slices[len(slices)-1] += c.size
		key := 0
		for i, s := range c.sectors {
			key += s * strides[i]
		}
		f.lookup[key] = len(f.rows)
		f.secRows[fs] = append(f.secRows[fs], len(f.rows))
		f.rows = append(f.rows, row)
	}

	out, err := NewLeg(info, slices, charges, qconj)
	if err != nil {
		return nil, err
	}
	out.fused = f
	return out, nil
}

// NLegs returns the number of member legs.
func (f *Fusion) NLegs() int { return len(f.legs) }

// Legs returns the member legs.
func (f *Fusion) Legs() []*Leg { return append([]*Leg(nil), f.legs...) }

// MemberLeg returns one member leg.
func (f *Fusion) MemberLeg(i int) *Leg { return f.legs[i] }

// Rows returns the number of member sector combinations.
func (f *Fusion) Rows() int { return len(f.rows) }

// Row returns one combination row. The Sectors slice must not be modified.
func (f *Fusion) Row(i int) FusionRow { return f.rows[i] }

// RowsOf returns the indices of the rows contributing to one fused sector.
func (f *Fusion) RowsOf(fusedSector int) []int { return f.secRows[fusedSector] }

// LookupRow finds the row for a combination of member sectors.
func (f *Fusion) LookupRow(sectors []int) (FusionRow, bool) {
	key := 0
	for i, s := range sectors {
		key += s * f.strides[i]
	}
	ri, ok := f.lookup[key]
	if !ok {
		return FusionRow{}, false
	}
	return f.rows[ri], true
}

// conj flips the sign flag of all member legs so that splitting a conjugated
// fused leg yields the conjugates of the original members.
func (f *Fusion) conj() *Fusion {
	out := &Fusion{
		legs:    make([]*Leg, len(f.legs)),
		rows:    f.rows,
		secRows: f.secRows,
		strides: f.strides,
		lookup:  f.lookup,
	}
	for i, l := range f.legs {
		out.legs[i] = l.Conj()
	}
	return out
}

func (f *Fusion) validate(fused *Leg) error {
	n := 1
	for _, l := range f.legs {
		n *= l.Len()
	}
	if n != fused.Len() {
		return errors.Errorf("charge: fused leg length %d does not match member product %d", fused.Len(), n)
	}
	if len(f.secRows) != fused.SectorCount() {
		return errors.New("charge: fusion rows do not cover all fused sectors")
	}
	for _, row := range f.rows {
		size := 1
		for i, s := range row.Sectors {
			if s < 0 || s >= f.legs[i].SectorCount() {
				return errors.Errorf("charge: fusion row references sector %d of member %d", s, i)
			}
			size *= f.legs[i].SectorSize(s)
		}
		if row.End-row.Beg != size {
			return errors.Errorf("charge: fusion row span %d does not match member block size %d", row.End-row.Beg, size)
		}
	}
	return nil
}
