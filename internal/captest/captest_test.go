package captest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvcaptest/adapters/ols"
	"pvcaptest/domain/columns"
	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/domain/refcond"
	"pvcaptest/ports"
)

const expectedFit = 51.3333333

var sixRowColumns = map[string][]float64{
	"EOutInv": {1, 2, 3, 3.5, 4, 5},
	"GlobInc": {10, 20, 30, 34, 40, 50},
	"T_Amb":   {35, 35, 35, 36, 35, 34},
	"WindVel": {3, 3, 3, 3.1, 3, 3.2},
}

var sixRowNames = []string{"EOutInv", "GlobInc", "T_Amb", "WindVel"}

func hourly(start time.Time, n int) []time.Time {
	index := make([]time.Time, n)
	for i := range index {
		index[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return index
}

// monthsOfSixRows repeats the six-row dataset at the start of each month,
// dropping the last drop[i] rows of month i.
func monthsOfSixRows(t *testing.T, months int, drop ...int) *frame.Frame {
	t.Helper()
	var index []time.Time
	cols := make(map[string][]float64)
	for m := 0; m < months; m++ {
		n := 6
		if m < len(drop) {
			n -= drop[m]
		}
		start := time.Date(2024, time.Month(1+m), 1, 0, 0, 0, 0, time.UTC)
		index = append(index, hourly(start, n)...)
		for _, name := range sixRowNames {
			cols[name] = append(cols[name], sixRowColumns[name][:n]...)
		}
	}
	f, err := frame.FromColumns(index, sixRowNames, cols)
	require.NoError(t, err)
	return f
}

func newTestInfo(t *testing.T) *TestInfo {
	t.Helper()
	linear := func(col string) columns.ComputedColumn {
		return columns.ComputedColumn{Function: columns.Linear, Inputs: map[string]float64{col: 1}}
	}
	median := func(col string) columns.RedundantColumn {
		return columns.RedundantColumn{Function: columns.Median, Inputs: []string{col}}
	}
	red, err := columns.NewRedundantSet(map[string]columns.RedundantColumn{
		"GlobInc": median("GlobInc"),
		"T_Amb":   median("T_Amb"),
		"WindVel": median("WindVel"),
	})
	require.NoError(t, err)
	cs, err := columns.NewComputedSet(red, map[string]columns.ComputedColumn{
		"E":   linear("GlobInc"),
		"T_a": linear("T_Amb"),
		"v":   linear("WindVel"),
		"P":   linear("EOutInv"),
	})
	require.NoError(t, err)

	info, err := LookupModel(ModelASTME2848)
	require.NoError(t, err)
	spec, err := NewModelSpec(info, refcond.NewFixed(map[string]float64{"E": 680, "T_a": 20, "v": 3.5}), 0.9)
	require.NoError(t, err)
	ti, err := NewTestInfo(spec, cs, ols.NewEngine())
	require.NoError(t, err)
	return ti
}

func assertExpectedFit(t *testing.T, p ports.Prediction) {
	t.Helper()
	assert.InEpsilon(t, expectedFit, p.Fit, 1e-5)
	assert.InEpsilon(t, expectedFit, p.Lower, 1e-5)
	assert.InEpsilon(t, expectedFit, p.Upper, 1e-5)
}

func TestNewModelSpec_Validation(t *testing.T) {
	info := DefaultModels[ModelASTME2848]
	ref := refcond.NewFixed(map[string]float64{"E": 1})

	_, err := NewModelSpec(info, nil, 0.9)
	assert.ErrorIs(t, err, core.ErrInvalidSpec)
	_, err = NewModelSpec(info, ref, 1)
	assert.ErrorIs(t, err, core.ErrInvalidSpec)
	_, err = NewModelSpec(ModelInfo{OutputName: "P"}, ref, 0.9)
	assert.ErrorIs(t, err, core.ErrInvalidSpec)
	_, err = LookupModel("PVUSA")
	assert.ErrorIs(t, err, core.ErrInvalidSpec)

	spec, err := NewModelSpec(info, ref, 0.9)
	require.NoError(t, err)
	assert.Equal(t, []string{"E", "P"}, spec.ModelColumns().Sorted())
	assert.Equal(t, 3, spec.DefaultMinRows())
}

func TestRunModels_SingleGroup(t *testing.T) {
	ti := newTestInfo(t)
	data := monthsOfSixRows(t, 1)

	seq, err := RunModels(ti, Whole(OneDataset("All", data)), columns.NewSet(data.Names()...), nil, FitConf)
	require.NoError(t, err)
	results, err := Collect(seq)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.DatasetKey("All"), results[0].Key)
	assertExpectedFit(t, results[0].Value)

	table, err := Combine(seq, []string{"All"}, false)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, []string{"All"}, table.KeyValues(0))
}

func TestRunModels_MissingColumnsAbort(t *testing.T) {
	ti := newTestInfo(t)
	data := monthsOfSixRows(t, 1)

	seq, err := RunModels(ti, Whole(OneDataset("All", data)), columns.NewSet("EOutInv", "GlobInc"), nil, FitConf)
	assert.Nil(t, seq)
	var mce *core.MissingColumnsError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, []string{"T_Amb", "WindVel"}, mce.Columns)
}

func TestRunPeriodic_Monthly(t *testing.T) {
	ti := newTestInfo(t)
	data := monthsOfSixRows(t, 2)

	seq, err := RunPeriodic(ti, PeriodicRun{Period: frame.Monthly}, OneDataset("One", data), columns.NewSet(data.Names()...), FitConf)
	require.NoError(t, err)
	table, err := Combine(seq, []string{"One", frame.Monthly.ColumnName()}, true)
	require.NoError(t, err)

	require.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"MonthBegin"}, table.KeyNames)
	assert.Equal(t, []string{"2024-02-01"}, table.KeyValues(1))
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), table.Rows[1].Key.Period)
	for _, r := range table.Rows {
		assertExpectedFit(t, r.Prediction)
	}
}

func TestPeriodic_Threshold(t *testing.T) {
	data := monthsOfSixRows(t, 2, 0, 1)

	var keys []string
	for p := range Periodic(OneDataset("One", data), frame.Monthly, 6) {
		keys = append(keys, p.Key.String())
	}
	assert.Equal(t, []string{"One@2024-01-01"}, keys)

	keys = nil
	for p := range Periodic(OneDataset("One", data), frame.Monthly, 5) {
		keys = append(keys, p.Key.String())
	}
	assert.Equal(t, []string{"One@2024-01-01", "One@2024-02-01"}, keys)

	ti := newTestInfo(t)
	assert.Equal(t, 5, PeriodicRun{}.Threshold(ti))
	assert.Equal(t, 9, PeriodicRun{MinRows: 9}.Threshold(ti))
}

func TestRunModels_StopsEarly(t *testing.T) {
	ti := newTestInfo(t)
	data := monthsOfSixRows(t, 3)

	calls := 0
	counting := func(ti *TestInfo, res *columns.Resolution, d *Derived) (ports.Prediction, error) {
		calls++
		return FitConf(ti, res, d)
	}
	seq, err := RunPeriodic(ti, PeriodicRun{Period: frame.Monthly}, OneDataset("One", data), columns.NewSet(data.Names()...), counting)
	require.NoError(t, err)
	for r, err := range seq {
		require.NoError(t, err)
		assert.Equal(t, "One@2024-01-01", r.Key.String())
		break
	}
	assert.Equal(t, 1, calls)
}

func TestRunModels_QC(t *testing.T) {
	ti := newTestInfo(t)
	data := monthsOfSixRows(t, 1)
	cols := columns.NewSet(data.Names()...)

	var seen []string
	var seenCols []string
	keepAll := func(key core.PartitionKey, raw *frame.Frame) (*frame.Frame, error) {
		seen = append(seen, key.String())
		seenCols = raw.Names()
		return raw, nil
	}
	seq, err := RunModels(ti, Whole(OneDataset("All", data)), cols, keepAll, FitConf)
	require.NoError(t, err)
	results, err := Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, []string{"All"}, seen)
	assert.Equal(t, sixRowNames, seenCols)
	assertExpectedFit(t, results[0].Value)

	dropBright := func(_ core.PartitionKey, raw *frame.Frame) (*frame.Frame, error) {
		g, _ := raw.Column("GlobInc")
		keep := make([]bool, len(g))
		for i, v := range g {
			keep[i] = v < 45
		}
		return raw.Filter(keep)
	}
	full, err := RunModels(ti, Whole(OneDataset("All", data)), cols, dropBright, FitFull)
	require.NoError(t, err)
	models, err := Collect(full)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, 5, models[0].Value.Combined.Len())
	assert.Equal(t, 5, models[0].Value.Computed.Len())

	failing := func(core.PartitionKey, *frame.Frame) (*frame.Frame, error) {
		return nil, errors.New("bad flags")
	}
	seq, err = RunModels(ti, Whole(OneDataset("All", data)), cols, failing, FitConf)
	require.NoError(t, err)
	_, err = Collect(seq)
	assert.ErrorContains(t, err, "bad flags")
}

func TestFullModel(t *testing.T) {
	ti := newTestInfo(t)
	data := monthsOfSixRows(t, 1)

	seq, err := RunModels(ti, Whole(OneDataset("All", data)), columns.NewSet(data.Names()...), nil, FitFull)
	require.NoError(t, err)
	results, err := Collect(seq)
	require.NoError(t, err)
	require.Len(t, results, 1)

	fm := results[0].Value
	assert.Equal(t, map[string]float64{"E": 680, "T_a": 20, "v": 3.5}, fm.Reference)
	assert.Equal(t, []string{"E", "T_a", "v"}, fm.Model.InputNames())
	assert.Equal(t, []string{"EOutInv"}, fm.Resolution.CombinePassthrough())
	assert.Equal(t, 6, fm.Combined.Len())

	p, err := fm.Predict()
	require.NoError(t, err)
	assertExpectedFit(t, p)

	x, y, err := fm.MarginalData("E")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30, 34, 40, 50}, x)
	require.Len(t, y, 6)
	// the fit is exact and linear in E at fixed T_a and v
	for i, r := range fm.Fit.Residuals() {
		assert.InDelta(t, 0, r.Value, 1e-9)
		assert.InDelta(t, x[i]*p.Fit/680, y[i], 1e-6)
	}

	_, _, err = fm.MarginalData("GlobInc")
	assert.Error(t, err)
}

func TestCollectParallel_PreservesOrder(t *testing.T) {
	ti := newTestInfo(t)
	data := monthsOfSixRows(t, 4)
	cols := columns.NewSet(data.Names()...)
	parts := Periodic(OneDataset("One", data), frame.Monthly, 5)

	seq, err := RunModels(ti, parts, cols, nil, FitConf)
	require.NoError(t, err)
	want, err := Collect(seq)
	require.NoError(t, err)

	got, err := CollectParallel(context.Background(), ti, parts, cols, nil, FitConf, 2)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := range want {
		assert.Equal(t, want[i].Key, got[i].Key)
		assert.InEpsilon(t, want[i].Value.Fit, got[i].Value.Fit, 1e-12)
	}
}

func TestCollectParallel_FirstErrorWins(t *testing.T) {
	ti := newTestInfo(t)
	data := monthsOfSixRows(t, 3)
	cols := columns.NewSet(data.Names()...)

	failFeb := func(ti *TestInfo, res *columns.Resolution, d *Derived) (ports.Prediction, error) {
		if d.Key.Period.Month() == time.February {
			return ports.Prediction{}, core.NewReferenceConditionError("no data for %s", d.Key)
		}
		return FitConf(ti, res, d)
	}
	_, err := CollectParallel(context.Background(), ti, Periodic(OneDataset("One", data), frame.Monthly, 5), cols, nil, failFeb, 3)
	assert.True(t, core.IsReferenceConditionError(err))
}

type stubFit struct{ p ports.Prediction }

func (s stubFit) Predict(map[string]float64, float64) (ports.Prediction, error) { return s.p, nil }
func (s stubFit) Summary() ports.FitSummary                                     { return ports.FitSummary{} }
func (s stubFit) Residuals() []ports.Residual                                   { return nil }

func TestCompare(t *testing.T) {
	meas := stubFit{ports.Prediction{Fit: 990, Lower: 960, Upper: 1020}}
	target := stubFit{ports.Prediction{Fit: 1000, Lower: 960, Upper: 1040}}

	c, err := Compare(meas, target, map[string]float64{"E": 800}, 0.97, 0.9)
	require.NoError(t, err)
	assert.InDelta(t, 0.99, c.Metric.Fit, 1e-12)
	spread := 0.99 * math.Hypot(30.0/990, 40.0/1000)
	assert.InDelta(t, 0.99-spread, c.Metric.Lower, 1e-12)
	assert.InDelta(t, 0.99+spread, c.Metric.Upper, 1e-12)
	assert.True(t, c.Passed())
	assert.Contains(t, c.String(), "PASS")

	c.PassValue = 1.0
	assert.False(t, c.Passed())
	assert.Contains(t, c.String(), "FAIL")

	_, err = Compare(meas, stubFit{}, nil, 1, 0.9)
	assert.ErrorContains(t, err, "target prediction is zero")
	_, err = Compare(stubFit{}, target, nil, 1, 0.9)
	assert.ErrorContains(t, err, "measured prediction is zero")
}
