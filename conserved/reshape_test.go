package conserved

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qspace-ml/qspace/charge"
)

// rank4 builds a rank-4 array [p, p*, p, p*] over U(1), the shape of a
// two-site operator, with several compatible entries set.
func rank4(t *testing.T) *Array[float64] {
	t.Helper()
	ci := u1(t)
	p := leg(t, ci, []int{1, 1}, [][]int{{1}, {-1}}, 1)
	legs := []*charge.Leg{p, p.Conj(), p, p.Conj()}
	a, err := Zeros[float64](legs, nil)
	require.NoError(t, err)
	v := 1.0
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 2; k++ {
				for m := 0; m < 2; m++ {
					if err := a.SetAt(v, i, j, k, m); err == nil {
						v++
					}
				}
			}
		}
	}
	require.NoError(t, a.SetLabels([]string{"i", "i*", "j", "j*"}))
	require.NoError(t, a.Validate())
	return a
}

func TestCombineSplitRoundTrip(t *testing.T) {
	a := rank4(t)
	da := a.ToDense()

	comb, err := CombineLegs(a, [][]int{{0, 2}, {1, 3}}, &CombineOpts{QConj: []int{1, -1}})
	require.NoError(t, err)
	require.NoError(t, comb.Validate())
	assert.Equal(t, 2, comb.Rank())
	assert.Equal(t, []int{4, 4}, comb.Shape())
	assert.Equal(t, a.QTotal(), comb.QTotal())
	assert.Equal(t, []string{"(i.j)", "(i*.j*)"}, comb.Labels())

	back, err := SplitLegs(comb, nil, 0)
	require.NoError(t, err)
	require.NoError(t, back.Validate())
	assert.Equal(t, []string{"i", "j", "i*", "j*"}, back.Labels())

	// combining (0,2)(1,3) reordered the axes to i, j, i*, j*
	restored, err := back.Transpose([]int{0, 2, 1, 3})
	require.NoError(t, err)
	assert.Equal(t, da, restored.ToDense())
}

func TestCombineLegsMergesBlocks(t *testing.T) {
	a := rank4(t)
	comb, err := CombineLegs(a, [][]int{{0, 2}, {1, 3}}, nil)
	require.NoError(t, err)
	// the fused legs are blocked, so distinct member combinations with
	// equal charge share one merged block
	assert.True(t, comb.IsCompletelyBlocked())
	assert.Less(t, comb.BlockCount(), a.BlockCount())
}

func TestCombineContiguousGroupSkipsTranspose(t *testing.T) {
	a := rank4(t)
	da := a.ToDense()
	comb, err := CombineLegs(a, [][]int{{2, 3}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 4}, comb.Shape())
	assert.Equal(t, []string{"i", "i*", "(j.j*)"}, comb.Labels())

	back, err := SplitLegs(comb, []int{2}, 0)
	require.NoError(t, err)
	assert.Equal(t, da, back.ToDense())
}

func TestCombineWithSuppliedPipe(t *testing.T) {
	a := rank4(t)
	pipe, err := a.MakePipe([]int{0, 2}, 1)
	require.NoError(t, err)

	comb, err := CombineLegs(a, [][]int{{0, 2}}, &CombineOpts{Pipes: []*charge.Leg{pipe}})
	require.NoError(t, err)
	require.NoError(t, comb.Validate())
	assert.True(t, comb.Leg(0).IsFused())

	// a pipe fused from other legs is rejected
	other, err := a.MakePipe([]int{1, 3}, 1)
	require.NoError(t, err)
	_, err = CombineLegs(a, [][]int{{0, 2}}, &CombineOpts{Pipes: []*charge.Leg{other}})
	assert.Error(t, err)
}

func TestSplitPlainLegFails(t *testing.T) {
	a := rank4(t)
	_, err := SplitLegs(a, []int{0}, 0)
	var iiErr *InvalidIndexError
	assert.ErrorAs(t, err, &iiErr)
}

func TestSplitWithoutFusedAxesIsACopy(t *testing.T) {
	a := rank4(t)
	cp, err := SplitLegs(a, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, a.ToDense(), cp.ToDense())
}

func TestCombineRejectsDuplicateAxis(t *testing.T) {
	a := rank4(t)
	_, err := CombineLegs(a, [][]int{{0, 1}, {1, 3}}, nil)
	assert.Error(t, err)
}
