package columns

import (
	"math"

	"github.com/montanaflynn/stats"

	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/domain/outboard"
)

// RedundantFunc reduces interchangeable input columns to one column, row by row.
type RedundantFunc func(f *frame.Frame, inputs []string, params map[string]any) ([]float64, error)

// ComputedFunc derives one column from weighted input columns and float parameters.
type ComputedFunc func(f *frame.Frame, inputs map[string]float64, params map[string]float64) ([]float64, error)

// Registered function identifiers.
const (
	Median         = "median"
	Linear         = "Linear"
	OutboardSATPOA = "Outboard_PVsyst_SAT_POA"
)

const (
	kindRedundant = "redundant"
	kindComputed  = "computed"
)

type computedFunction struct {
	fn    ComputedFunc
	check func(inputs map[string]float64, params map[string]float64) error
}

// The registries are fixed at compile time and never written.
var redundantFunctions = map[string]RedundantFunc{
	Median: rfMedian,
}

var computedFunctions = map[string]computedFunction{
	Linear:         {fn: cfLinear},
	OutboardSATPOA: {fn: cfOutboardSATPOA, check: checkOutboardArgs},
}

// LookupRedundant returns the redundant function registered under name.
func LookupRedundant(name string) (RedundantFunc, error) {
	fn, ok := redundantFunctions[name]
	if !ok {
		return nil, &core.UnknownFunctionError{Kind: kindRedundant, Name: name}
	}
	return fn, nil
}

// LookupComputed returns the computed function registered under name.
func LookupComputed(name string) (ComputedFunc, error) {
	cf, ok := computedFunctions[name]
	if !ok {
		return nil, &core.UnknownFunctionError{Kind: kindComputed, Name: name}
	}
	return cf.fn, nil
}

// RedundantFunctionNames lists the registered redundant functions.
func RedundantFunctionNames() []string { return sortedKeys(redundantFunctions) }

// ComputedFunctionNames lists the registered computed functions.
func ComputedFunctionNames() []string { return sortedKeys(computedFunctions) }

// columnsOf fetches the named columns, reporting every absent one.
func columnsOf(f *frame.Frame, names []string) ([][]float64, error) {
	out := make([][]float64, len(names))
	var missing []string
	for i, name := range names {
		values, ok := f.Column(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		out[i] = values
	}
	if len(missing) > 0 {
		return nil, core.NewMissingColumnsError(missing)
	}
	return out, nil
}

// rfMedian takes the row median over the non-missing inputs.
func rfMedian(f *frame.Frame, inputs []string, _ map[string]any) ([]float64, error) {
	if len(inputs) == 0 {
		return frame.NaNs(f.Len()), nil
	}
	cols, err := columnsOf(f, inputs)
	if err != nil {
		return nil, err
	}
	out := make([]float64, f.Len())
	row := make(stats.Float64Data, 0, len(cols))
	for r := range out {
		row = row[:0]
		for _, c := range cols {
			if !math.IsNaN(c[r]) {
				row = append(row, c[r])
			}
		}
		if len(row) == 0 {
			out[r] = math.NaN()
			continue
		}
		m, err := stats.Median(row)
		if err != nil {
			return nil, err
		}
		out[r] = m
	}
	return out, nil
}

// cfLinear is the weighted sum of its inputs. A missing input makes the row missing.
func cfLinear(f *frame.Frame, inputs map[string]float64, _ map[string]float64) ([]float64, error) {
	if len(inputs) == 0 {
		return frame.NaNs(f.Len()), nil
	}
	names := sortedKeys(inputs)
	cols, err := columnsOf(f, names)
	if err != nil {
		return nil, err
	}
	out := make([]float64, f.Len())
	for i, name := range names {
		w := inputs[name]
		for r, v := range cols[i] {
			out[r] += w * v
		}
	}
	return out, nil
}

var (
	outboardColumns = []string{"AzSol", "BkVFLss", "BmIncBk", "DifSBak", "GlobGnd", "GlobHor", "HSol", "PhiAng"}
	outboardParams  = []string{"GCR", "NearAlbedo", "height", "offset"}
)

func checkOutboardArgs(inputs map[string]float64, params map[string]float64) error {
	var cols, prms []string
	for _, c := range outboardColumns {
		if _, ok := inputs[c]; !ok {
			cols = append(cols, c)
		}
	}
	for _, p := range outboardParams {
		if _, ok := params[p]; !ok {
			prms = append(prms, p)
		}
	}
	if len(cols) > 0 || len(prms) > 0 {
		return &core.MissingParameterError{Function: OutboardSATPOA, Columns: cols, Params: prms}
	}
	return nil
}

// cfOutboardSATPOA estimates the rear irradiance at an outboard sensor on a
// single-axis tracker. Input weights are ignored; only the column names matter.
func cfOutboardSATPOA(f *frame.Frame, inputs map[string]float64, params map[string]float64) ([]float64, error) {
	if err := checkOutboardArgs(inputs, params); err != nil {
		return nil, err
	}
	geom := outboard.Geometry{
		Height:     params["height"],
		Offset:     params["offset"],
		GCR:        params["GCR"],
		NearAlbedo: params["NearAlbedo"],
	}
	if err := geom.Validate(); err != nil {
		return nil, core.NewInvalidSpecError(OutboardSATPOA, err.Error())
	}
	cols, err := columnsOf(f, outboardColumns)
	if err != nil {
		return nil, err
	}
	out := make([]float64, f.Len())
	for r := range out {
		out[r] = outboard.RearIrradiance(outboard.Sample{
			AzSol:   cols[0][r],
			BkVFLss: cols[1][r],
			BmIncBk: cols[2][r],
			DifSBak: cols[3][r],
			GlobGnd: cols[4][r],
			GlobHor: cols[5][r],
			HSol:    cols[6][r],
			PhiAng:  cols[7][r],
		}, geom)
	}
	return out, nil
}
