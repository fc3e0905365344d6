package charge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustInfo(t *testing.T, mod []int) *Info {
	t.Helper()
	ci, err := NewInfo(mod, nil)
	require.NoError(t, err)
	return ci
}

func TestInfoMakeValid(t *testing.T) {
	ci := mustInfo(t, []int{0, 2, 3})

	assert.Equal(t, Vector{0, 0, 0}, ci.MakeValid(nil))
	assert.Equal(t, Vector{-5, 1, 2}, ci.MakeValid(Vector{-5, 3, -1}))
	assert.True(t, ci.IsValid(Vector{7, 1, 0}))
	assert.False(t, ci.IsValid(Vector{7, 2, 0}))
}

func TestInfoRejectsNegativeModulus(t *testing.T) {
	_, err := NewInfo([]int{-1}, nil)
	assert.Error(t, err)
}

func TestInfoFuseSubNeg(t *testing.T) {
	ci := mustInfo(t, []int{0, 4})

	sum := ci.Fuse(Vector{1, 3}, Vector{2, 2})
	assert.Equal(t, Vector{3, 1}, sum)
	assert.Equal(t, Vector{-1, 1}, ci.Sub(Vector{1, 3}, Vector{2, 2}))
	assert.Equal(t, Vector{-1, 1}, ci.Neg(Vector{1, 3}))
	assert.Equal(t, Vector{-1, 1}, ci.AdjustSign(Vector{1, 3}, -1))
	assert.Equal(t, Vector{1, 3}, ci.AdjustSign(Vector{1, 3}, 1))
}

func TestCompareLastMajor(t *testing.T) {
	// last component dominates
	assert.Equal(t, -1, CompareLastMajor([]int{9, 0}, []int{0, 1}))
	assert.Equal(t, 1, CompareLastMajor([]int{1, 2}, []int{0, 2}))
	assert.Equal(t, 0, CompareLastMajor([]int{3, 3}, []int{3, 3}))
}

func TestInversePerm(t *testing.T) {
	perm := []int{2, 0, 3, 1}
	inv := InversePerm(perm)
	for newI, oldI := range perm {
		assert.Equal(t, newI, inv[oldI])
	}
}

func TestLegFromFlatGroupsRuns(t *testing.T) {
	ci := mustInfo(t, []int{0})
	l, err := FromFlat(ci, []Vector{{-1}, {-1}, {0}, {0}, {0}, {1}}, 1)
	require.NoError(t, err)

	assert.Equal(t, 6, l.Len())
	assert.Equal(t, 3, l.SectorCount())
	assert.Equal(t, Vector{0}, l.SectorCharge(1))
	beg, end := l.SliceOf(1)
	assert.Equal(t, 2, beg)
	assert.Equal(t, 5, end)
	assert.True(t, l.IsSorted())
	assert.True(t, l.IsBunched())
	assert.True(t, l.IsBlocked())
	require.NoError(t, l.Validate())
}

func TestLegSectorOfAndChargeOf(t *testing.T) {
	ci := mustInfo(t, []int{0})
	l, err := FromSizes(ci, []int{2, 3, 1}, []Vector{{-1}, {0}, {1}}, -1)
	require.NoError(t, err)

	assert.Equal(t, 0, l.SectorOf(0))
	assert.Equal(t, 1, l.SectorOf(2))
	assert.Equal(t, 1, l.SectorOf(4))
	assert.Equal(t, 2, l.SectorOf(5))
	// qconj -1 flips the stored charge
	assert.Equal(t, Vector{1}, l.ChargeOf(0))
	assert.Equal(t, Vector{-1}, l.EffectiveCharge(2))
	assert.Panics(t, func() { l.SectorOf(6) })
}

func TestLegToFlatRoundTrip(t *testing.T) {
	ci := mustInfo(t, []int{3})
	flat := []Vector{{2}, {2}, {0}, {1}, {1}, {1}}
	l, err := FromFlat(ci, flat, 1)
	require.NoError(t, err)
	assert.Equal(t, flat, l.ToFlat())
	assert.False(t, l.IsSorted())
}

func TestLegSort(t *testing.T) {
	ci := mustInfo(t, []int{0})
	l, err := FromSizes(ci, []int{1, 2, 1}, []Vector{{1}, {-1}, {0}}, 1)
	require.NoError(t, err)

	sorted, perm, flatPerm := l.Sort()
	assert.Equal(t, []int{1, 2, 0}, perm)
	assert.Equal(t, []int{1, 2, 3, 0}, flatPerm)
	assert.True(t, sorted.IsSorted())
	assert.Equal(t, Vector{-1}, sorted.SectorCharge(0))
	assert.Equal(t, 2, sorted.SectorSize(0))
	assert.Equal(t, l.Len(), sorted.Len())
}

func TestLegBunch(t *testing.T) {
	ci := mustInfo(t, []int{0})
	l, err := FromSizes(ci, []int{2, 1, 3, 2}, []Vector{{0}, {0}, {1}, {1}}, 1)
	require.NoError(t, err)
	assert.False(t, l.IsBunched())

	b, sectorMap := l.Bunch()
	assert.Equal(t, []int{0, 0, 1, 1}, sectorMap)
	assert.Equal(t, 2, b.SectorCount())
	assert.Equal(t, 3, b.SectorSize(0))
	assert.Equal(t, 5, b.SectorSize(1))
	assert.True(t, b.IsBlocked())
}

func TestLegProject(t *testing.T) {
	ci := mustInfo(t, []int{0})
	l, err := FromSizes(ci, []int{2, 2, 2}, []Vector{{-1}, {0}, {1}}, 1)
	require.NoError(t, err)

	mask := []bool{true, false, false, false, true, true}
	p, sectorMap, blockMasks, err := l.Project(mask)
	require.NoError(t, err)
	assert.Equal(t, []int{0, -1, 1}, sectorMap)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 1, p.SectorSize(0))
	assert.Equal(t, 2, p.SectorSize(1))
	assert.Equal(t, []bool{true, false}, blockMasks[0])
	assert.Equal(t, Vector{1}, p.SectorCharge(1))
}

func TestLegProjectAllDropped(t *testing.T) {
	ci := mustInfo(t, []int{0})
	l, err := FromSizes(ci, []int{2}, []Vector{{0}}, 1)
	require.NoError(t, err)
	_, _, _, err = l.Project([]bool{false, false})
	assert.Error(t, err)
}

func TestLegConj(t *testing.T) {
	ci := mustInfo(t, []int{0})
	l, err := FromSizes(ci, []int{1, 1}, []Vector{{-1}, {1}}, 1)
	require.NoError(t, err)

	c := l.Conj()
	assert.Equal(t, -1, c.QConj())
	assert.Equal(t, Vector{-1}, c.SectorCharge(0))
	assert.Equal(t, Vector{1}, c.EffectiveCharge(0))

	cc := l.ConjCharges()
	assert.Equal(t, -1, cc.QConj())
	assert.Equal(t, Vector{1}, cc.SectorCharge(0))
	assert.Equal(t, Vector{-1}, cc.EffectiveCharge(0))
}

func TestCheckContractible(t *testing.T) {
	ci := mustInfo(t, []int{0})
	l, err := FromSizes(ci, []int{2, 3}, []Vector{{-1}, {1}}, 1)
	require.NoError(t, err)

	assert.NoError(t, l.CheckContractible(l.Conj()))
	assert.Error(t, l.CheckContractible(l))

	other, err := FromSizes(ci, []int{2, 3}, []Vector{{-1}, {2}}, -1)
	require.NoError(t, err)
	assert.Error(t, l.CheckContractible(other))

	shifted, err := FromSizes(ci, []int{3, 2}, []Vector{{-1}, {1}}, -1)
	require.NoError(t, err)
	assert.Error(t, l.CheckContractible(shifted))
}

func TestTrivialLeg(t *testing.T) {
	l := TrivialLeg(Trivial(), 4, 1)
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, 1, l.SectorCount())
	assert.Equal(t, Vector{}, l.SectorCharge(0))
}

func TestNewPipeStructure(t *testing.T) {
	ci := mustInfo(t, []int{0})
	a, err := FromSizes(ci, []int{1, 2}, []Vector{{-1}, {1}}, 1)
	require.NoError(t, err)
	b, err := FromSizes(ci, []int{2, 1}, []Vector{{0}, {1}}, 1)
	require.NoError(t, err)

	fused, err := NewPipe([]*Leg{a, b}, 1)
	require.NoError(t, err)
	require.True(t, fused.IsFused())
	assert.Equal(t, a.Len()*b.Len(), fused.Len())
	assert.True(t, fused.IsBlocked())
	require.NoError(t, fused.Validate())

	f := fused.Fusion()
	assert.Equal(t, 2, f.NLegs())
	assert.Equal(t, 4, f.Rows())

	plain := fused.ToLeg()
	assert.False(t, plain.IsFused())
	assert.Equal(t, fused.Len(), plain.Len())
	require.NoError(t, plain.CheckEqual(fused))

	// every member combination is findable and lands where its row says
	total := 0
	for s := 0; s < fused.SectorCount(); s++ {
		secSize := 0
		for _, ri := range f.RowsOf(s) {
			row := f.Row(ri)
			got, ok := f.LookupRow(row.Sectors)
			require.True(t, ok)
			assert.Equal(t, row, got)
			assert.Equal(t, s, row.Fused)
			secSize += row.End - row.Beg
		}
		assert.Equal(t, fused.SectorSize(s), secSize)
		total += secSize
	}
	assert.Equal(t, fused.Len(), total)
}

func TestNewPipeCharges(t *testing.T) {
	ci := mustInfo(t, []int{0})
	a, err := FromSizes(ci, []int{1, 1}, []Vector{{-1}, {1}}, 1)
	require.NoError(t, err)

	fused, err := NewPipe([]*Leg{a, a}, -1)
	require.NoError(t, err)
	f := fused.Fusion()

	// effective fused charge is the sum of member effective charges
	for ri := 0; ri < f.Rows(); ri++ {
		row := f.Row(ri)
		want := ci.Fuse(
			a.EffectiveCharge(row.Sectors[0]),
			a.EffectiveCharge(row.Sectors[1]),
		)
		assert.Equal(t, want, fused.EffectiveCharge(row.Fused))
	}
}

func TestPipeConjKeepsMembersConjugated(t *testing.T) {
	ci := mustInfo(t, []int{0})
	a, err := FromSizes(ci, []int{1, 1}, []Vector{{-1}, {1}}, 1)
	require.NoError(t, err)
	fused, err := NewPipe([]*Leg{a, a}, 1)
	require.NoError(t, err)

	c := fused.Conj()
	require.True(t, c.IsFused())
	assert.Equal(t, -1, c.QConj())
	assert.Equal(t, -1, c.Fusion().MemberLeg(0).QConj())
	require.NoError(t, c.Validate())
}
