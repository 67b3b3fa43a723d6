package simstudy

import (
	"fmt"
	"iter"

	"pvcaptest/domain/columns"
	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/domain/refcond"
	"pvcaptest/internal/captest"
	"pvcaptest/ports"
)

// SampleCase is one row of a study: which simulation to test, with which
// model and sensor position, under which QC.
type SampleCase struct {
	Description string `yaml:"description"`
	SimType     string `yaml:"sim_type"`
	Model       string `yaml:"model"`
	Position    string `yaml:"position"`
	QC          string `yaml:"qc"`
	PRJ         string `yaml:"prj"`
	Variant     string `yaml:"variant"`
}

// RunInfoKey matches RunInfo.Key.
func (sc SampleCase) RunInfoKey() string { return sc.PRJ + "/" + sc.Variant }

var modelCatalogue = map[string]string{
	refcond.ModelE2848:     captest.ModelASTME2848,
	refcond.ModelE2848Rear: captest.ModelDNVBifiASTM,
}

// CaseOptions are the reference-condition choices shared by the cases of a study.
type CaseOptions struct {
	RCCalc    refcond.Rule
	RearRC    *refcond.Rule
	RearRCs   map[string]float64
	Overrides map[string]map[string]float64
	ConfLevel float64
}

// ModelSpecForCase builds the equivalent-position model spec for sc. Every
// variable is aggregated with opts.RCCalc.
func ModelSpecForCase(sc SampleCase, ri RunInfo, opts CaseOptions) (*captest.ModelSpec, error) {
	name, ok := modelCatalogue[sc.Model]
	if !ok {
		return nil, core.NewInvalidSpecError("model", fmt.Sprintf("unexpected model %q", sc.Model))
	}
	info, err := captest.LookupModel(name)
	if err != nil {
		return nil, err
	}
	defaults := map[string]refcond.Rule{"T_a": opts.RCCalc, "v": opts.RCCalc}
	if sc.Model == refcond.ModelE2848 {
		defaults["E"] = opts.RCCalc
	} else {
		defaults["E_front"] = opts.RCCalc
		defaults["E_rear"] = opts.RCCalc
	}
	ep := &refcond.EquivalentPosition{
		DefaultRC:   defaults,
		ECellRC:     opts.RCCalc,
		ECellColumn: "GlobCell",
		RearRC:      opts.RearRC,
		RearRCs:     opts.RearRCs,
		RearColumn:  "GlobBakUnshd",
		Bifaciality: ri.Bifaciality,
		Model:       sc.Model,
		Position:    sc.Position,
		Overrides:   opts.Overrides,
	}
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	conf := opts.ConfLevel
	if conf == 0 {
		conf = 0.95
	}
	return captest.NewModelSpec(info, ep, conf)
}

// BuildTestInfo maps each model variable one-to-one onto its simulation
// column. Simulations have no redundant sensors, so the redundant layer is
// empty.
func BuildTestInfo(spec *captest.ModelSpec, model, position string, engine ports.ModelEngine) (*captest.TestInfo, error) {
	scc, err := refcond.SCCMap(model, position)
	if err != nil {
		return nil, err
	}
	cols := make(map[string]columns.ComputedColumn, len(scc))
	for modelVar, dataVar := range scc {
		cols[modelVar] = columns.ComputedColumn{
			Function: columns.Linear,
			Inputs:   map[string]float64{dataVar: 1},
			Params:   map[string]float64{},
		}
	}
	cs, err := columns.NewComputedSet(&columns.RedundantSet{}, cols)
	if err != nil {
		return nil, err
	}
	return captest.NewTestInfo(spec, cs, engine)
}

// QCResult is an augmented simulation and its quality-checked subset.
type QCResult struct {
	QCData    *frame.Frame
	Flags     []Flag
	Augmented *frame.Frame
	RunInfo   RunInfo
	Offset    float64
}

// NewQCResult augments data, marks it with method and keeps the good rows.
func NewQCResult(ri RunInfo, data *frame.Frame, method string, offset float64) (*QCResult, error) {
	aug, err := Augment(data, ri, offset)
	if err != nil {
		return nil, fmt.Errorf("augment %s: %w", ri.Key(), err)
	}
	flags, err := MarkQC(aug, method)
	if err != nil {
		return nil, err
	}
	qc, err := ApplyQC(aug, flags)
	if err != nil {
		return nil, err
	}
	return &QCResult{QCData: qc, Flags: flags, Augmented: aug, RunInfo: ri, Offset: offset}, nil
}

func caseResults[T any](sc SampleCase, qr *QCResult, period frame.Period, spec *captest.ModelSpec, engine ports.ModelEngine, extract captest.Extractor[T]) (iter.Seq2[captest.Result[T], error], error) {
	ti, err := BuildTestInfo(spec, sc.Model, sc.Position, engine)
	if err != nil {
		return nil, err
	}
	return captest.RunPeriodic(ti, captest.PeriodicRun{Period: period},
		captest.OneDataset(captest.AllDataset, qr.QCData), columns.NewSet(qr.QCData.Names()...), extract)
}

// PeriodicModels fits one full model per period of a sample case.
func PeriodicModels(sc SampleCase, qr *QCResult, period frame.Period, spec *captest.ModelSpec, engine ports.ModelEngine) ([]captest.Result[*captest.FullModel], error) {
	seq, err := caseResults(sc, qr, period, spec, engine, captest.FitFull)
	if err != nil {
		return nil, err
	}
	return captest.Collect(seq)
}

// PeriodicFits is the per-period prediction table of a sample case, keyed by
// period start.
func PeriodicFits(sc SampleCase, qr *QCResult, period frame.Period, spec *captest.ModelSpec, engine ports.ModelEngine) (*captest.Table, error) {
	seq, err := caseResults(sc, qr, period, spec, engine, captest.FitConf)
	if err != nil {
		return nil, err
	}
	return captest.Combine(seq, []string{captest.AllDataset, period.ColumnName()}, true)
}

// SampleCaptests returns two ASTM E2848 tests at a fixed reference condition
// over raw columns: one reading the dataset directly, one combining the
// weather columns through medians first.
func SampleCaptests(engine ports.ModelEngine) (direct, combined *captest.TestInfo, err error) {
	spec, err := captest.NewModelSpec(captest.DefaultModels[captest.ModelASTME2848],
		refcond.NewFixed(map[string]float64{"E": 680, "T_a": 20, "v": 3.5}), 0.95)
	if err != nil {
		return nil, nil, err
	}
	linear := func(col string) columns.ComputedColumn {
		return columns.ComputedColumn{Function: columns.Linear, Inputs: map[string]float64{col: 1}, Params: map[string]float64{}}
	}
	median := func(col string) columns.RedundantColumn {
		return columns.RedundantColumn{Function: columns.Median, Inputs: []string{col}, Params: map[string]any{}}
	}
	computed := map[string]columns.ComputedColumn{
		"E":   linear("GlobInc"),
		"T_a": linear("T_Amb"),
		"v":   linear("WindVel"),
		"P":   linear("EOutInv"),
	}

	cs0, err := columns.NewComputedSet(&columns.RedundantSet{}, computed)
	if err != nil {
		return nil, nil, err
	}
	if direct, err = captest.NewTestInfo(spec, cs0, engine); err != nil {
		return nil, nil, err
	}

	red, err := columns.NewRedundantSet(map[string]columns.RedundantColumn{
		"GlobInc": median("GlobInc"),
		"T_Amb":   median("T_Amb"),
		"WindVel": median("WindVel"),
	})
	if err != nil {
		return nil, nil, err
	}
	cs1, err := columns.NewComputedSet(red, computed)
	if err != nil {
		return nil, nil, err
	}
	if combined, err = captest.NewTestInfo(spec, cs1, engine); err != nil {
		return nil, nil, err
	}
	return direct, combined, nil
}
