package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvcaptest/adapters/ols"
	"pvcaptest/domain/core"
	"pvcaptest/domain/refcond"
	apperrors "pvcaptest/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"CAPTEST_STUDY_FILE", "CAPTEST_PERIOD", "CAPTEST_MIN_ROWS", "CAPTEST_WORKERS", "DATABASE_DRIVER", "DATABASE_URL"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Zero(t, cfg.Run.Workers)
	assert.Empty(t, cfg.Run.Period)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CAPTEST_PERIOD", "Daily")
	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))

	t.Setenv("CAPTEST_PERIOD", "Weekly")
	t.Setenv("CAPTEST_WORKERS", "-2")
	_, err = Load()
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))

	t.Setenv("CAPTEST_WORKERS", "")
	t.Setenv("DATABASE_DRIVER", "mysql")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CAPTEST_MIN_ROWS=12\n"), 0o600))
	t.Setenv("CAPTEST_MIN_ROWS", "")
	os.Unsetenv("CAPTEST_MIN_ROWS")
	require.NoError(t, LoadEnvFile(path))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Run.MinRows)
}

const equivalentStudy = `
model:
  model_type: DNV_Bifi_ASTM
  conf_level: 0.9
reference:
  kind: equivalent_position
  default_rc: {E_front: mean, E_rear: mean, T_a: p60, v: median}
  e_cell_rc: 480
  e_cell_colname: GlobCell
  e_globbakunshd_rc: null
  e_globbakunshd_rcs: {"1990-01-01": 26.98}
  e_globbakunshd_colname: GlobBakUnshd
  bifaciality: 0.7
  model: ASTM E2848+Erear
  bifi_position: Outboard
  override_rcs: null
columns:
  redundant_data:
    redundant_columns: {}
  computed_columns:
    E_front:
      computed_function: Linear
      computed_value_columns: {GlobInc: 1.0}
      cf_params: {}
dataset:
  path: sim.csv
  format: pvsyst
run:
  period: Monthly
  min_rows: null
  workers: null
`

func TestParseStudy_EquivalentPosition(t *testing.T) {
	s, err := ParseStudy([]byte(equivalentStudy))
	require.NoError(t, err)

	ep, ok := s.Reference.Provider.(*refcond.EquivalentPosition)
	require.True(t, ok)
	assert.Nil(t, ep.RearRC)
	assert.Equal(t, 26.98, ep.RearRCs["1990-01-01"])
	assert.Equal(t, "p60", ep.DefaultRC["T_a"].String())
	assert.Equal(t, "480", ep.ECellRC.String())

	spec, err := s.ModelSpec()
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2a", "a2b", "a3", "a4"}, spec.CoefNames)
	assert.Equal(t, 0.9, spec.ConfLevel)

	p, periodic, err := s.Period()
	require.NoError(t, err)
	assert.True(t, periodic)
	assert.Equal(t, "MonthBegin", p.ColumnName())
	assert.Nil(t, s.Run.MinRows)
}

func TestParseStudy_OverrideWithFallback(t *testing.T) {
	doc := `
model: {model_type: ASTM_E2848, conf_level: 0.95}
reference:
  kind: override
  table:
    "All@2024-02-01": {E: 700, T_a: 25, v: 2}
  fallback:
    kind: fixed
    reference_inputs: {E: 680, T_a: 20, v: 3.5}
columns: {computed_columns: {}}
run: {period: null}
`
	s, err := ParseStudy([]byte(doc))
	require.NoError(t, err)
	ot, ok := s.Reference.Provider.(*refcond.OverrideTable)
	require.True(t, ok)
	assert.Equal(t, []string{"E", "T_a", "v"}, ot.ReferenceVariables())
	rc, err := ot.ReferenceCondition(core.DatasetKey("All"), nil)
	require.NoError(t, err)
	assert.Equal(t, 680.0, rc["E"])

	_, periodic, err := s.Period()
	require.NoError(t, err)
	assert.False(t, periodic)
}

func TestParseStudy_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown kind": `
model: {model_type: ASTM_E2848, conf_level: 0.95}
reference: {kind: tabulated}
`,
		"unknown function": `
model: {model_type: ASTM_E2848, conf_level: 0.95}
reference: {kind: fixed, reference_inputs: {E: 1}}
columns:
  computed_columns:
    E: {computed_function: Quadratic, computed_value_columns: {GlobInc: 1}}
`,
		"unknown field": `
model: {model_type: ASTM_E2848, conf_level: 0.95, intercept: true}
reference: {kind: fixed, reference_inputs: {E: 1}}
`,
		"missing reference": `
model: {model_type: ASTM_E2848, conf_level: 0.95}
`,
		"bad period": `
model: {model_type: ASTM_E2848, conf_level: 0.95}
reference: {kind: fixed, reference_inputs: {E: 1}}
run: {period: Daily}
`,
		"bad topology": `
model: {model_type: ASTM_E2848, conf_level: 0.95}
reference:
  kind: equivalent_position
  e_cell_colname: GlobCell
  model: ASTM E2848
  bifi_position: Outboard
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStudy([]byte(doc))
			require.Error(t, err)
			assert.True(t, core.IsConfigurationError(err) || core.IsReferenceConditionError(err) ||
				apperrors.GetCode(err) == apperrors.CodeConfigInvalid, "%v", err)
		})
	}
}

func TestDefaultStudy_RoundTrip(t *testing.T) {
	out, err := MarshalStudy(DefaultStudy())
	require.NoError(t, err)
	assert.Contains(t, string(out), "kind: fixed")
	assert.Contains(t, string(out), "sheet: null")
	assert.Contains(t, string(out), "min_rows: null")

	s, err := ParseStudy(out)
	require.NoError(t, err)
	ti, err := s.TestInfo(ols.NewEngine())
	require.NoError(t, err)
	assert.Equal(t, []string{"E", "P", "T_a", "v"}, ti.Spec.ModelColumns().Sorted())
	assert.Equal(t, []string{"a1", "a2", "a3", "a4"}, ti.Spec.CoefNames)
}

func TestApply(t *testing.T) {
	s := DefaultStudy()
	s.Apply(RunConfig{Period: "Weekly", MinRows: 8, Workers: 4})
	assert.Equal(t, "Weekly", *s.Run.Period)
	assert.Equal(t, 8, *s.Run.MinRows)
	assert.Equal(t, 4, *s.Run.Workers)

	s.Apply(RunConfig{Workers: 1})
	assert.Equal(t, 1, *s.Run.Workers)
	assert.Equal(t, 8, *s.Run.MinRows)
}
