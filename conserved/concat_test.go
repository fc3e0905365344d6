// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conserved

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qspace-ml/qspace/charge"
)

func TestConcatenateAgainstDense(t *testing.T) {
	a := identity2(t)
	b := Scale(a, 2)

	out, err := Concatenate([]*Array[float64]{a, b}, 0)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	assert.Equal(t, []int{4, 2}, out.Shape())
	assert.Equal(t, a.QTotal(), out.QTotal())
	assert.True(t, out.IsSorted())
	assert.Equal(t, []float64{
		1, 0,
		0, 1,
		2, 0,
		0, 2,
	}, out.ToDense())
}

func TestConcatenateReexpressesOppositeSignLeg(t *testing.T) {
	a := identity2(t)
	// same effective charges on axis 0, opposite sign flag
	flipped := a.Leg(0).ConjCharges()
	b := fromDense(t, []float64{2, 0, 0, 2},
		[]*charge.Leg{flipped, a.Leg(1)}, charge.Vector{0})

	out, err := Concatenate([]*Array[float64]{a, b}, 0)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	assert.Equal(t, 1, out.Leg(0).QConj())
	assert.Equal(t, []float64{
		1, 0,
		0, 1,
		2, 0,
		0, 2,
	}, out.ToDense())
}

func TestConcatenateRejectsMismatches(t *testing.T) {
	a := identity2(t)

	_, err := Concatenate[float64](nil, 0)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	var iiErr *InvalidIndexError
	_, err = Concatenate([]*Array[float64]{a, a}, 2)
	assert.ErrorAs(t, err, &iiErr)

	shifted, err := a.GaugeTotalCharge(0, charge.Vector{1})
	require.NoError(t, err)
	_, err = Concatenate([]*Array[float64]{a, shifted}, 0)
	var icErr *IncompatibleChargeError
	assert.ErrorAs(t, err, &icErr)

	tr, err := a.Transpose([]int{1, 0})
	require.NoError(t, err)
	_, err = Concatenate([]*Array[float64]{a, tr}, 0)
	var ilErr *IncompatibleLegError
	assert.ErrorAs(t, err, &ilErr)
}

func TestGridConcatBlockMatrix(t *testing.T) {
	a := identity2(t)
	grid := [][]*Array[float64]{
		{a, Scale(a, 2)},
		{Scale(a, 3), Scale(a, 4)},
	}
	out, err := GridConcat(grid, [2]int{0, 1})
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	assert.Equal(t, []int{4, 4}, out.Shape())
	dense := out.ToDense()
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			factor := float64(2*i + j + 1)
			assert.Equal(t, factor, denseAt(dense, []int{4, 4}, 2*i, 2*j))
			assert.Equal(t, factor, denseAt(dense, []int{4, 4}, 2*i+1, 2*j+1))
			assert.Equal(t, 0.0, denseAt(dense, []int{4, 4}, 2*i, 2*j+1))
		}
	}

	_, err = GridConcat([][]*Array[float64]{{a, a}, {a}}, [2]int{0, 1})
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	_, err = GridConcat([][]*Array[float64]{{a, nil}}, [2]int{0, 1})
	assert.ErrorAs(t, err, &cfgErr)
}

func TestGridOuterWithDerivedLeg(t *testing.T) {
	ci := u1(t)
	l := leg(t, ci, []int{1, 1}, [][]int{{1}, {-1}}, 1)
	legs := []*charge.Leg{l, l.Conj()}
	up := fromDense(t, []float64{0, 1, 0, 0}, legs, charge.Vector{2})
	down := fromDense(t, []float64{0, 0, 1, 0}, legs, charge.Vector{-2})
	grid := [][]*Array[float64]{{up, down}}
	rowLeg := charge.TrivialLeg(ci, 1, 1)

	colLeg, err := GridOuterLeg(grid, 1, rowLeg, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, charge.Vector{-2}, colLeg.ChargeOf(0))
	assert.Equal(t, charge.Vector{2}, colLeg.ChargeOf(1))

	out, err := GridOuter(grid, rowLeg, colLeg)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	assert.Equal(t, []int{1, 2, 2, 2}, out.Shape())
	assert.Equal(t, charge.Vector{0}, out.QTotal())

	v, err := out.At(0, 0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	v, err = out.At(0, 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	v, err = out.At(0, 0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestGridOuterLegNeedsAnEntryPerIndex(t *testing.T) {
	ci := u1(t)
	l := leg(t, ci, []int{1, 1}, [][]int{{1}, {-1}}, 1)
	up := fromDense(t, []float64{0, 1, 0, 0},
		[]*charge.Leg{l, l.Conj()}, charge.Vector{2})
	rowLeg := charge.TrivialLeg(ci, 1, 1)
	_, err := GridOuterLeg([][]*Array[float64]{{up, nil}}, 1, rowLeg, nil, 1)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestDiagMatchesScaleAxis(t *testing.T) {
	a := chain(t)
	factors := []float64{1, 2, 3, 4}
	d, err := Diag(factors, a.Leg(0))
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	viaDot, err := Tensordot(d, a, 1)
	require.NoError(t, err)
	viaScale, err := ScaleAxis(a, 0, factors)
	require.NoError(t, err)
	assert.Equal(t, viaScale.ToDense(), viaDot.ToDense())
}

func TestDiagSkipsEmptySectors(t *testing.T) {
	a := chain(t)
	d, err := Diag([]float64{0, 1, 1, 0}, a.Leg(0))
	require.NoError(t, err)
	require.NoError(t, d.Validate())
	assert.Equal(t, 1, d.BlockCount())

	_, err = Diag([]float64{1, 2}, a.Leg(0))
	var smErr *ShapeMismatchError
	assert.ErrorAs(t, err, &smErr)
}

func TestEyeLikeIsContractionIdentity(t *testing.T) {
	a := chain(t)
	e, err := EyeLike(a, 0)
	require.NoError(t, err)
	out, err := Tensordot(e, a, 1)
	require.NoError(t, err)
	assert.Equal(t, a.ToDense(), out.ToDense())

	_, err = EyeLike(a, 7)
	var iiErr *InvalidIndexError
	assert.ErrorAs(t, err, &iiErr)
}

func TestDiagScalarIsScaledIdentity(t *testing.T) {
	a := chain(t)
	d := DiagScalar(2.0, a.Leg(0))
	require.NoError(t, d.Validate())
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			v, err := d.At(i, j)
			require.NoError(t, err)
			if i == j {
				assert.Equal(t, 2.0, v)
			} else {
				assert.Equal(t, 0.0, v)
			}
		}
	}
	assert.Equal(t, 0, DiagScalar(0.0, a.Leg(0)).BlockCount())
}
