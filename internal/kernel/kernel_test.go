package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerosAndIndexing(t *testing.T) {
	d := Zeros[float64]([]int{2, 3})
	require.Equal(t, 6, d.Size())
	d.Set(5, 1, 2)
	assert.Equal(t, 5.0, d.At(1, 2))
	assert.Equal(t, 0.0, d.At(0, 0))
}

func TestRankZero(t *testing.T) {
	d := Zeros[float64](nil)
	require.Equal(t, 1, d.Size())
	d.Set(3.5)
	assert.Equal(t, 3.5, d.At())
}

func TestTranspose(t *testing.T) {
	d := FromSlice([]float64{1, 2, 3, 4, 5, 6}, []int{2, 3})
	tr := Transpose(d, []int{1, 0})
	assert.Equal(t, []int{3, 2}, tr.Shape)
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, tr.Data)
}

func TestTransposeRank3(t *testing.T) {
	d := Zeros[float64]([]int{2, 3, 4})
	for i := range d.Data {
		d.Data[i] = float64(i)
	}
	tr := Transpose(d, []int{2, 0, 1})
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 4; k++ {
				assert.Equal(t, d.At(i, j, k), tr.At(k, i, j))
			}
		}
	}
}

func TestCopyIntoAndExtract(t *testing.T) {
	dst := Zeros[float64]([]int{4, 4})
	src := FromSlice([]float64{1, 2, 3, 4}, []int{2, 2})
	CopyInto(dst, src, []int{1, 2})
	assert.Equal(t, 1.0, dst.At(1, 2))
	assert.Equal(t, 4.0, dst.At(2, 3))
	assert.Equal(t, 0.0, dst.At(0, 0))

	back := Extract(dst, []int{1, 2}, []int{3, 4})
	assert.Equal(t, src.Data, back.Data)
}

func TestCompress(t *testing.T) {
	d := FromSlice([]float64{1, 2, 3, 4, 5, 6}, []int{2, 3})
	c := Compress(d, 1, []bool{true, false, true})
	assert.Equal(t, []int{2, 2}, c.Shape)
	assert.Equal(t, []float64{1, 3, 4, 6}, c.Data)
}

func TestTakeIndex(t *testing.T) {
	d := FromSlice([]float64{1, 2, 3, 4, 5, 6}, []int{2, 3})
	row := TakeIndex(d, 0, 1)
	assert.Equal(t, []int{3}, row.Shape)
	assert.Equal(t, []float64{4, 5, 6}, row.Data)
	col := TakeIndex(d, 1, 2)
	assert.Equal(t, []float64{3, 6}, col.Data)
}

func TestScaleAxisInPlace(t *testing.T) {
	d := FromSlice([]float64{1, 2, 3, 4}, []int{2, 2})
	ScaleAxisInPlace(d, 1, []float64{10, 100})
	assert.Equal(t, []float64{10, 200, 30, 400}, d.Data)
}

func TestTensordotMatrix(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3, 4}, []int{2, 2})
	b := FromSlice([]float64{5, 6, 7, 8}, []int{2, 2})
	c := Tensordot(a, b, 1)
	require.Equal(t, []int{2, 2}, c.Shape)
	assert.Equal(t, []float64{19, 22, 43, 50}, c.Data)
}

func TestTensordotFull(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3, 4}, []int{2, 2})
	b := FromSlice([]float64{5, 6, 7, 8}, []int{2, 2})
	c := Tensordot(a, b, 2)
	require.Equal(t, 0, c.Rank())
	assert.Equal(t, 70.0, c.Data[0])
}

func TestOuter(t *testing.T) {
	a := FromSlice([]float64{1, 2}, []int{2})
	b := FromSlice([]float64{3, 4, 5}, []int{3})
	c := Outer(a, b)
	assert.Equal(t, []int{2, 3}, c.Shape)
	assert.Equal(t, []float64{3, 4, 5, 6, 8, 10}, c.Data)
}

func TestDotComplex(t *testing.T) {
	a := FromSlice([]complex128{1 + 1i, 2}, []int{2})
	b := FromSlice([]complex128{1 - 1i, 3}, []int{2})
	assert.Equal(t, complex128(8), Dot(a, b))
}

func TestNorm(t *testing.T) {
	data := []float64{3, -4, 0}
	assert.InDelta(t, 5.0, Norm(data, 2), 1e-12)
	assert.InDelta(t, 2.0, Norm(data, 0), 1e-12)
	assert.InDelta(t, 4.0, Norm(data, math.Inf(1)), 1e-12)
	assert.InDelta(t, 0.0, Norm(data, math.Inf(-1)), 1e-12)
}

func TestConjInPlace(t *testing.T) {
	d := FromSlice([]complex128{1 + 2i, 3 - 4i}, []int{2})
	ConjInPlace(d)
	assert.Equal(t, []complex128{1 - 2i, 3 + 4i}, d.Data)

	r := FromSlice([]float64{1, 2}, []int{2})
	ConjInPlace(r)
	assert.Equal(t, []float64{1, 2}, r.Data)
}

func TestConvertSlice(t *testing.T) {
	out := ConvertSlice[complex128]([]float64{1, 2})
	assert.Equal(t, []complex128{1, 2}, out)
	back := ConvertSlice[float64](out)
	assert.Equal(t, []float64{1, 2}, back)
}
