package ols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormula_ASTM(t *testing.T) {
	f, err := ParseFormula("P ~ E + I(E * E) + I(E * T_a) + I(E * v) -1")
	require.NoError(t, err)

	assert.False(t, f.Intercept)
	assert.Equal(t, []string{"E", "I(E * E)", "I(E * T_a)", "I(E * v)"}, f.Labels())
	assert.Equal(t, []string{"E", "P", "T_a", "v"}, f.Variables())
	assert.Equal(t, []string{"E", "T_a", "v"}, f.InputVariables())
}

func TestParseFormula_Bifacial(t *testing.T) {
	f, err := ParseFormula("P ~ I(E_front + E_rear) + I(I(E_front+E_rear) * E_front) + I(I(E_front+E_rear) * E_rear) + I(I(E_front+E_rear) * T_a) + I(I(E_front+E_rear) * v) -1")
	require.NoError(t, err)
	require.Equal(t, 5, f.Width())

	cols := map[string][]float64{"E_front": {600}, "E_rear": {100}, "T_a": {20}, "v": {2}}
	row := make([]float64, 5)
	f.designRow(cols, 0, row)
	assert.Equal(t, []float64{700, 700 * 600, 700 * 100, 700 * 20, 700 * 2}, row)
}

func TestParseFormula_Intercepts(t *testing.T) {
	tests := []struct {
		src       string
		intercept bool
		width     int
	}{
		{"y ~ x", true, 2},
		{"y ~ x + 0", false, 1},
		{"y ~ -1 + x", false, 1},
		{"y ~ x - 1 + 1", true, 2},
		{"y ~ x + x:z", true, 3},
		{"y ~ x + z - z", true, 2},
		{"y ~ x + x", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			f, err := ParseFormula(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.intercept, f.Intercept)
			assert.Equal(t, tt.width, f.Width())
		})
	}
}

func TestParseFormula_Arithmetic(t *testing.T) {
	f, err := ParseFormula("y ~ I(-(a - 2) / 4 * b) - 1")
	require.NoError(t, err)
	row := make([]float64, 1)
	f.designRow(map[string][]float64{"a": {10}, "b": {3}}, 0, row)
	assert.InDelta(t, -6.0, row[0], 1e-12)
}

func TestParseFormula_Errors(t *testing.T) {
	for _, src := range []string{
		"",
		"y x",
		"y ~ I(x",
		"y ~ x $ z",
		"y ~ 0",
		"y ~ x +",
	} {
		_, err := ParseFormula(src)
		assert.Error(t, err, src)
	}
}
