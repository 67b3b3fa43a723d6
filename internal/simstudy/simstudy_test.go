package simstudy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvcaptest/adapters/ols"
	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/domain/refcond"
)

var monoRun = RunInfo{
	PRJ:         "Test Bifi SAT_Project.PRJ",
	Variant:     "SAT Az0 (mono)",
	SystemLabel: "SAT1",
	NearAlbedo:  math.NaN(),
	Height:      math.NaN(),
	GCR:         0.493,
}

var bifiRun = RunInfo{
	PRJ:         "Test Bifi SAT_Project.PRJ",
	Variant:     "SAT Az0 (bifi)",
	BifiSim:     true,
	SystemLabel: "SAT1",
	NearAlbedo:  0.2,
	Bifaciality: 0.7,
	Height:      2.0,
	GCR:         0.493,
}

var monoCase = SampleCase{
	Description: "Monofacial",
	SimType:     "Monofacial",
	Model:       refcond.ModelE2848,
	Position:    refcond.PositionNA,
	QC:          QCDefault,
	PRJ:         monoRun.PRJ,
	Variant:     monoRun.Variant,
}

// simulated builds daily noon rows over the given number of months with
// a smooth, nonlinear power response.
func simulated(t *testing.T, months int) *frame.Frame {
	t.Helper()
	names := []string{"GlobInc", "GlobEff", "GlobHor", "DiffHor", "PhiAng", "T_Amb", "WindVel", "EOutInv"}
	cols := make(map[string][]float64)
	var index []time.Time
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for d := 0; ; d++ {
		ts := start.AddDate(0, 0, d)
		if ts.Month() > time.Month(months) || ts.Year() > 2024 {
			break
		}
		index = append(index, ts)
		e := 420 + 17*float64(d%29)
		ta := 18 + float64(d%7)
		v := 1 + 0.5*float64(d%5)
		cols["GlobInc"] = append(cols["GlobInc"], e)
		cols["GlobEff"] = append(cols["GlobEff"], 0.97*e+float64(d%3))
		cols["GlobHor"] = append(cols["GlobHor"], 0.8*e)
		cols["DiffHor"] = append(cols["DiffHor"], 100)
		cols["PhiAng"] = append(cols["PhiAng"], float64(d%11)*5-25)
		cols["T_Amb"] = append(cols["T_Amb"], ta)
		cols["WindVel"] = append(cols["WindVel"], v)
		p := e*(1-0.004*(ta+e/40-25)) + 0.02*v*e/10 + 0.5*math.Sin(float64(d))
		cols["EOutInv"] = append(cols["EOutInv"], p)
	}
	f, err := frame.FromColumns(index, names, cols)
	require.NoError(t, err)
	return f
}

func TestMarkQC(t *testing.T) {
	index := []time.Time{time.Unix(0, 0), time.Unix(3600, 0), time.Unix(7200, 0), time.Unix(10800, 0)}
	f, err := frame.FromColumns(index, []string{"GlobInc", "EOutInv", "E_rear_outboard"}, map[string][]float64{
		"GlobInc":         {500, 300, math.NaN(), 800},
		"EOutInv":         {50, 40, 60, 100},
		"E_rear_outboard": {50, 100, 100, 100},
	})
	require.NoError(t, err)

	flags, err := MarkQC(f, QCDefault)
	require.NoError(t, err)
	assert.Equal(t, []Flag{FlagOK, FlagLowGlobInc, FlagLowGlobInc, FlagClippedPower}, flags)

	flags, err = MarkQC(f, QCERear75)
	require.NoError(t, err)
	assert.Equal(t, []Flag{FlagLowERear, FlagLowGlobInc, FlagLowGlobInc, FlagClippedPower}, flags)
	assert.Equal(t, map[string]int{"Low E_rear": 1, "Low GlobInc": 2, "Clipped power": 1}, CountFlags(flags))

	_, err = MarkQC(f, "Strict")
	assert.Error(t, err)

	kept, err := ApplyQC(f, []Flag{FlagOK, FlagLowGlobInc, FlagOK, FlagClippedPower})
	require.NoError(t, err)
	assert.Equal(t, 2, kept.Len())
	g, _ := kept.Column("GlobInc")
	assert.Equal(t, 500.0, g[0])
}

func TestAugment_Mono(t *testing.T) {
	data := simulated(t, 1)
	aug, err := Augment(data, monoRun, 0.5)
	require.NoError(t, err)

	eff, _ := aug.Column("GlobEff")
	cell, _ := aug.Column("GlobCell")
	assert.Equal(t, eff, cell)
	df, _ := aug.Column("DiffuseFraction")
	hor, _ := aug.Column("GlobHor")
	assert.InDelta(t, 100/hor[0], df[0], 1e-12)
	tilt, _ := aug.Column("Tilt")
	assert.Equal(t, 25.0, tilt[0])

	assert.False(t, data.Has("GlobCell"), "input frame modified")
	assert.False(t, aug.Has("E_rear_outboard"))
}

func bifiRows(t *testing.T) *frame.Frame {
	t.Helper()
	names := []string{
		"GlobInc", "GlobHor", "DiffHor", "PhiAng", "GlobBak", "BackShd",
		"AzSol", "HSol", "GlobGnd", "BkVFLss", "DifSBak", "BmIncBk",
	}
	f, err := frame.FromColumns([]time.Time{time.Unix(0, 0), time.Unix(3600, 0)}, names, map[string][]float64{
		"GlobInc": {800, 0},
		"GlobHor": {500, 0},
		"DiffHor": {100, 0},
		"PhiAng":  {0, -45},
		"GlobBak": {90, 0},
		"BackShd": {10, 0},
		"AzSol":   {0, 0},
		"HSol":    {30, -5},
		"GlobGnd": {300, 0},
		"BkVFLss": {0, 0},
		"DifSBak": {12, 0},
		"BmIncBk": {0, 0},
	})
	require.NoError(t, err)
	return f
}

func TestAugment_Bifacial(t *testing.T) {
	aug, err := Augment(bifiRows(t), bifiRun, 0.5)
	require.NoError(t, err)

	unshd, _ := aug.Column("GlobBakUnshd")
	assert.Equal(t, 100.0, unshd[0])
	cell, _ := aug.Column("GlobCell")
	assert.InDelta(t, 800+0.7*90, cell[0], 1e-9)
	rear, _ := aug.Column("E_rear_outboard")
	assert.Greater(t, rear[0], 12.0)
	assert.Equal(t, 0.0, rear[1])

	ft := bifiRun
	ft.SystemLabel = "FT25"
	aug, err = Augment(bifiRows(t), ft, 0.5)
	require.NoError(t, err)
	rear, _ = aug.Column("E_rear_outboard")
	assert.Equal(t, []float64{100, 0}, rear)

	bad := bifiRun
	bad.SystemLabel = "Carport"
	_, err = Augment(bifiRows(t), bad, 0.5)
	assert.Error(t, err)
}

func TestModelSpecForCase(t *testing.T) {
	spec, err := ModelSpecForCase(monoCase, monoRun, CaseOptions{RCCalc: refcond.Mean()})
	require.NoError(t, err)
	assert.Equal(t, 0.95, spec.ConfLevel)
	assert.Equal(t, []string{"E", "GlobCell", "P", "T_a", "v"}, spec.ModelColumns().Sorted())

	rearCase := monoCase
	rearCase.Model = refcond.ModelE2848Rear
	rearCase.Position = refcond.PositionOutboard
	spec, err = ModelSpecForCase(rearCase, bifiRun, CaseOptions{RCCalc: refcond.P60(), ConfLevel: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "DNV_Bifi_ASTM", spec.ModelType)
	assert.Equal(t, 11, spec.DefaultMinRows())

	badCase := monoCase
	badCase.Position = refcond.PositionUnder
	_, err = ModelSpecForCase(badCase, monoRun, CaseOptions{RCCalc: refcond.Mean()})
	assert.True(t, core.IsConfigurationError(err) || core.IsReferenceConditionError(err))

	badCase.Model = "PVUSA"
	_, err = ModelSpecForCase(badCase, monoRun, CaseOptions{RCCalc: refcond.Mean()})
	assert.ErrorIs(t, err, core.ErrInvalidSpec)
}

func TestPeriodicFits_Mono(t *testing.T) {
	qr, err := NewQCResult(monoRun, simulated(t, 2), QCDefault, 0.5)
	require.NoError(t, err)
	assert.Less(t, qr.QCData.Len(), qr.Augmented.Len())

	spec, err := ModelSpecForCase(monoCase, monoRun, CaseOptions{RCCalc: refcond.Mean()})
	require.NoError(t, err)

	table, err := PeriodicFits(monoCase, qr, frame.Monthly, spec, ols.NewEngine())
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"MonthBegin"}, table.KeyNames)
	assert.Equal(t, []string{"2024-02-01"}, table.KeyValues(1))
	for _, r := range table.Rows {
		assert.False(t, math.IsNaN(r.Fit))
		assert.Less(t, r.Lower, r.Fit)
		assert.Greater(t, r.Upper, r.Fit)
	}

	models, err := PeriodicModels(monoCase, qr, frame.Monthly, spec, ols.NewEngine())
	require.NoError(t, err)
	require.Len(t, models, 2)
	p, err := models[0].Value.Predict()
	require.NoError(t, err)
	assert.InDelta(t, table.Rows[0].Fit, p.Fit, 1e-9)
	assert.Contains(t, models[0].Value.Reference, "E")
}

func TestSampleCaptests(t *testing.T) {
	direct, combined, err := SampleCaptests(ols.NewEngine())
	require.NoError(t, err)
	assert.Empty(t, direct.Columns.Redundant.Keys())
	assert.Equal(t, []string{"GlobInc", "T_Amb", "WindVel"}, combined.Columns.Redundant.Keys().Sorted())
}
