package frame

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hours(start time.Time, n int) []time.Time {
	index := make([]time.Time, n)
	for i := range index {
		index[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return index
}

func TestFrame_SetAndSelect(t *testing.T) {
	f := New(hours(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 3))
	require.NoError(t, f.Set("a", []float64{1, 2, 3}))
	require.NoError(t, f.Set("b", []float64{4, 5, 6}))

	assert.Equal(t, []string{"a", "b"}, f.Names())
	assert.Error(t, f.Set("c", []float64{1}), "length mismatch must be rejected")

	sel, err := f.Select([]string{"b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, sel.Names())

	_, err = f.Select([]string{"b", "zzz"})
	assert.Error(t, err)
}

func TestFrame_SetReplaceKeepsPosition(t *testing.T) {
	f := New(hours(time.Now(), 2))
	require.NoError(t, f.Set("a", []float64{1, 2}))
	require.NoError(t, f.Set("b", []float64{3, 4}))
	require.NoError(t, f.Set("a", []float64{9, 9}))

	assert.Equal(t, []string{"a", "b"}, f.Names())
	a, _ := f.Column("a")
	assert.Equal(t, []float64{9, 9}, a)
}

func TestFrame_FilterAndSort(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	index := []time.Time{base.Add(2 * time.Hour), base, base.Add(time.Hour)}
	f, err := FromColumns(index, []string{"x"}, map[string][]float64{"x": {3, 1, 2}})
	require.NoError(t, err)

	sorted := f.SortByTime()
	x, _ := sorted.Column("x")
	assert.Equal(t, []float64{1, 2, 3}, x)

	kept, err := sorted.Filter([]bool{true, false, true})
	require.NoError(t, err)
	x, _ = kept.Column("x")
	assert.Equal(t, []float64{1, 3}, x)
}

func TestFrame_EqualTreatsNaNAsEqual(t *testing.T) {
	index := hours(time.Now(), 2)
	a, _ := FromColumns(index, []string{"x"}, map[string][]float64{"x": {1, math.NaN()}})
	b, _ := FromColumns(index, []string{"x"}, map[string][]float64{"x": {1, math.NaN()}})
	c, _ := FromColumns(index, []string{"x"}, map[string][]float64{"x": {1, 2}})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestPresent(t *testing.T) {
	assert.Equal(t, []float64{1, 3}, Present([]float64{1, math.NaN(), 3}))
	assert.Empty(t, Present(NaNs(4)))
}
