package conserved

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qspace-ml/qspace/charge"
)

// u1 returns a charge nature with a single unbounded quantity.
func u1(t *testing.T) *charge.Info {
	t.Helper()
	ci, err := charge.NewInfo([]int{0}, nil)
	require.NoError(t, err)
	return ci
}

// z2 returns a single two-valued cyclic charge.
func z2(t *testing.T) *charge.Info {
	t.Helper()
	ci, err := charge.NewInfo([]int{2}, nil)
	require.NoError(t, err)
	return ci
}

func leg(t *testing.T, ci *charge.Info, sizes []int, qs [][]int, qconj int) *charge.Leg {
	t.Helper()
	charges := make([]charge.Vector, len(qs))
	for i, q := range qs {
		charges[i] = q
	}
	l, err := charge.FromSizes(ci, sizes, charges, qconj)
	require.NoError(t, err)
	return l
}

func fromDense(t *testing.T, data []float64, legs []*charge.Leg, qtotal charge.Vector) *Array[float64] {
	t.Helper()
	a, err := FromDense(data, legs, qtotal, 1e-12)
	require.NoError(t, err)
	require.NoError(t, a.Validate())
	return a
}

// identity2 builds the rank-2 identity over one two-valued cyclic charge,
// legs [l, l.Conj()], zero total charge.
func identity2(t *testing.T) *Array[float64] {
	t.Helper()
	ci := z2(t)
	l := leg(t, ci, []int{1, 1}, [][]int{{0}, {1}}, 1)
	return fromDense(t, []float64{1, 0, 0, 1}, []*charge.Leg{l, l.Conj()}, charge.Vector{0})
}

func TestFromDenseIdentityStoresTwoBlocks(t *testing.T) {
	id := identity2(t)

	require.Equal(t, 2, id.BlockCount())
	assert.Equal(t, [][]int{{0, 0}, {1, 1}}, id.rows)
	for i := range id.blocks {
		assert.Equal(t, []int{1, 1}, id.blocks[i].Shape)
		assert.Equal(t, []float64{1}, id.blocks[i].Data)
	}
	assert.True(t, id.IsSorted())
}

func TestSetAtOffDiagonalRaisesIncompatibleCharge(t *testing.T) {
	id := identity2(t)

	err := id.SetAt(3.0, 0, 1)
	var icErr *IncompatibleChargeError
	require.ErrorAs(t, err, &icErr)

	// the diagonal stays writable
	require.NoError(t, id.SetAt(3.0, 1, 1))
	v, err := id.At(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestToDenseRoundTrip(t *testing.T) {
	ci := u1(t)
	l1 := leg(t, ci, []int{2, 1}, [][]int{{-1}, {1}}, 1)
	l2 := leg(t, ci, []int{1, 2}, [][]int{{-1}, {1}}, -1)
	// only charge-compatible entries are set, so the round trip is exact
	data := []float64{
		1, 0, 0,
		4, 0, 0,
		0, 5, 6,
	}
	a, err := FromDense(data, []*charge.Leg{l1, l2}, charge.Vector{0}, 1e-12)
	require.NoError(t, err)

	back, err := FromDense(a.ToDense(), a.Legs(), a.QTotal(), 1e-12)
	require.NoError(t, err)
	assert.Equal(t, a.rows, back.rows)
	assert.Equal(t, a.ToDense(), back.ToDense())
}

func TestFromDenseDetectsQTotal(t *testing.T) {
	ci := u1(t)
	l := leg(t, ci, []int{1, 1}, [][]int{{1}, {-1}}, 1)
	// the only entry sits at (up, down): total charge 2
	a, err := FromDense([]float64{0, 1, 0, 0}, []*charge.Leg{l, l.Conj()}, nil, 1e-12)
	require.NoError(t, err)
	assert.Equal(t, charge.Vector{2}, a.QTotal())
	assert.Equal(t, 1, a.BlockCount())
}

func TestFromDenseShapeMismatch(t *testing.T) {
	ci := u1(t)
	l := leg(t, ci, []int{2}, [][]int{{0}}, 1)
	_, err := FromDense([]float64{1, 2, 3}, []*charge.Leg{l, l}, charge.Vector{0}, 0)
	var smErr *ShapeMismatchError
	require.ErrorAs(t, err, &smErr)
}

func TestFromDenseTrivial(t *testing.T) {
	a, err := FromDenseTrivial([]float64{1, 2, 3, 4, 5, 6}, []int{2, 3})
	require.NoError(t, err)
	require.NoError(t, a.Validate())
	assert.Equal(t, []int{2, 3}, a.Shape())
	assert.Equal(t, 1, a.BlockCount())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, a.ToDense())
}

func TestCloneCopyOnWrite(t *testing.T) {
	id := identity2(t)
	cp := id.Clone()

	// structural edit on the clone leaves the original's table alone
	cp.PurgeZeros(10) // removes everything
	assert.Equal(t, 0, cp.BlockCount())
	assert.Equal(t, 2, id.BlockCount())
	require.NoError(t, id.Validate())
}

func TestCopyIsDeep(t *testing.T) {
	id := identity2(t)
	cp := id.Copy()
	require.NoError(t, cp.SetAt(7.0, 0, 0))

	v, err := id.At(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestZerosLikeKeepsLabels(t *testing.T) {
	id := identity2(t)
	require.NoError(t, id.SetLabels([]string{"a", "a*"}))
	z := ZerosLike(id)
	assert.Equal(t, []string{"a", "a*"}, z.Labels())
	assert.Equal(t, 0, z.BlockCount())
	assert.Equal(t, id.QTotal(), z.QTotal())
}

func TestSortQData(t *testing.T) {
	id := identity2(t)
	id.ensureOwned()
	// scramble by hand
	id.rows[0], id.rows[1] = id.rows[1], id.rows[0]
	id.blocks[0], id.blocks[1] = id.blocks[1], id.blocks[0]
	id.sorted = false

	id.SortQData()
	assert.Equal(t, [][]int{{0, 0}, {1, 1}}, id.rows)
	require.NoError(t, id.Validate())
}

func TestValidateCatchesBadCharge(t *testing.T) {
	id := identity2(t)
	id.ensureOwned()
	id.rows[0][1] = 1 // off-diagonal row with a diagonal payload shape
	var icErr *IncompatibleChargeError
	assert.ErrorAs(t, id.Validate(), &icErr)
}

func TestLabelAccessors(t *testing.T) {
	id := identity2(t)
	require.NoError(t, id.SetLabels([]string{"p", "p*"}))

	ax, err := id.AxisByLabel("p*")
	require.NoError(t, err)
	assert.Equal(t, 1, ax)

	axes, err := id.AxesByLabels([]string{"p*", "p"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, axes)

	_, err = id.AxisByLabel("q")
	var iiErr *InvalidIndexError
	assert.ErrorAs(t, err, &iiErr)

	assert.Error(t, id.SetLabels([]string{"x", "x"}))
	require.NoError(t, id.SetLabel(0, "row"))
	assert.Equal(t, []string{"row", "p*"}, id.Labels())
}
