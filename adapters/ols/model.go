// Package ols fits ordinary least squares models described by formulas over
// frames, and predicts with intervals for a new observation.
package ols

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/ports"
)

// rcond is the relative singular value cutoff used to decide the design rank.
const rcond = 1e-15

// Engine builds OLS models. It implements ports.ModelEngine.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// NewModel parses the formula and checks its columns against data.
func (e *Engine) NewModel(data *frame.Frame, def ports.ModelDefinition) (ports.Model, error) {
	return NewModel(data, def)
}

// Model is an OLS model bound to a frame.
type Model struct {
	data    *frame.Frame
	def     ports.ModelDefinition
	formula *Formula
}

// NewModel validates def against data without fitting.
func NewModel(data *frame.Frame, def ports.ModelDefinition) (*Model, error) {
	f, err := ParseFormula(def.Formula)
	if err != nil {
		return nil, core.NewInvalidSpecError("formula", err.Error())
	}
	if len(def.CoefLabels) > 0 && len(def.CoefLabels) != f.Width() {
		return nil, core.NewInvalidSpecError("coef_names",
			fmt.Sprintf("%d labels for %d design columns %v", len(def.CoefLabels), f.Width(), f.Labels()))
	}
	var missing []string
	for _, v := range f.Variables() {
		if !data.Has(v) {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return nil, core.NewMissingColumnsError(missing)
	}
	return &Model{data: data, def: def, formula: f}, nil
}

func (m *Model) InputNames() []string {
	if len(m.def.InputNames) > 0 {
		return append([]string(nil), m.def.InputNames...)
	}
	return m.formula.InputVariables()
}

func (m *Model) OutputName() string { return m.def.OutputName }

// Formula returns the parsed formula.
func (m *Model) Formula() *Formula { return m.formula }

func (m *Model) labels() []string {
	if len(m.def.CoefLabels) > 0 {
		return m.def.CoefLabels
	}
	return m.formula.Labels()
}

func (m *Model) Fit() (ports.ModelFit, error) {
	return m.fit()
}

func (m *Model) fit() (*Fit, error) {
	cols := make(map[string][]float64)
	for _, v := range m.formula.Variables() {
		cols[v], _ = m.data.Column(v)
	}

	p := m.formula.Width()
	design := make([]float64, p)
	var xs, ys []float64
	var rows []int
	for r := 0; r < m.data.Len(); r++ {
		y := m.formula.Response.eval(cols, r)
		if math.IsNaN(y) {
			continue
		}
		m.formula.designRow(cols, r, design)
		if hasNaN(design) {
			continue
		}
		xs = append(xs, design...)
		ys = append(ys, y)
		rows = append(rows, r)
	}
	n := len(ys)
	if n == 0 {
		return nil, fmt.Errorf("%w: no complete rows for %s", core.ErrInsufficientData, m.formula.Source)
	}

	X := mat.NewDense(n, p, xs)
	Y := mat.NewDense(n, 1, ys)

	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDThin); !ok {
		return nil, fmt.Errorf("SVD factorization failed for %s", m.formula.Source)
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, fmt.Errorf("%w: design matrix for %s is zero", core.ErrInsufficientData, m.formula.Source)
	}
	var B mat.Dense
	svd.SolveTo(&B, Y, rank)
	beta := mat.Col(nil, 0, &B)

	// (X'X)^+ = V_r diag(1/s^2) V_r'
	var V mat.Dense
	svd.VTo(&V)
	s := svd.Values(nil)
	xtxInv := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			var sum float64
			for k := 0; k < rank; k++ {
				sum += V.At(i, k) * V.At(j, k) / (s[k] * s[k])
			}
			xtxInv.SetSym(i, j, sum)
		}
	}

	fitted := make([]float64, n)
	resid := make([]ports.Residual, n)
	var rss float64
	for i := 0; i < n; i++ {
		fitted[i] = mat.Dot(X.RowView(i), mat.NewVecDense(p, beta))
		e := ys[i] - fitted[i]
		resid[i] = ports.Residual{Row: rows[i], Value: e}
		rss += e * e
	}

	return &Fit{
		model:  m,
		beta:   beta,
		xtxInv: xtxInv,
		rss:    rss,
		tss:    totalSS(ys, m.formula.Intercept),
		n:      n,
		rank:   rank,
		resid:  resid,
	}, nil
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// totalSS is centered when the model has an intercept and uncentered otherwise.
func totalSS(ys []float64, centered bool) float64 {
	var mean float64
	if centered {
		for _, y := range ys {
			mean += y
		}
		mean /= float64(len(ys))
	}
	var tss float64
	for _, y := range ys {
		d := y - mean
		tss += d * d
	}
	return tss
}

// Fit is a fitted OLS model. It implements ports.ModelFit.
type Fit struct {
	model  *Model
	beta   []float64
	xtxInv *mat.SymDense
	rss    float64
	tss    float64
	n      int
	rank   int
	resid  []ports.Residual
}

// ResidualDF is the residual degrees of freedom, n - rank.
func (f *Fit) ResidualDF() int { return f.n - f.rank }

// Scale is the residual variance estimate, NaN without residual degrees of freedom.
func (f *Fit) Scale() float64 {
	if f.ResidualDF() <= 0 {
		return math.NaN()
	}
	return f.rss / float64(f.ResidualDF())
}

// Coefficients returns the estimates keyed by coefficient label.
func (f *Fit) Coefficients() map[string]float64 {
	out := make(map[string]float64, len(f.beta))
	for i, l := range f.model.labels() {
		out[l] = f.beta[i]
	}
	return out
}

// Predict evaluates the fit at reference. The bounds are a two-sided
// prediction interval for a single new observation.
func (f *Fit) Predict(reference map[string]float64, confLevel float64) (ports.Prediction, error) {
	if !(confLevel > 0 && confLevel < 1) {
		return ports.Prediction{}, fmt.Errorf("confidence level must be in (0, 1), got %g", confLevel)
	}
	x0, err := f.referenceRow(reference)
	if err != nil {
		return ports.Prediction{}, err
	}
	p := len(f.beta)
	xv := mat.NewVecDense(p, x0)
	fit := mat.Dot(xv, mat.NewVecDense(p, f.beta))

	df := f.ResidualDF()
	if df <= 0 {
		return ports.Prediction{Fit: fit, Lower: math.NaN(), Upper: math.NaN()}, nil
	}
	leverage := mat.Inner(xv, f.xtxInv, xv)
	se := math.Sqrt(f.Scale() * (1 + leverage))
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}.Quantile(1 - (1-confLevel)/2)
	return ports.Prediction{Fit: fit, Lower: fit - t*se, Upper: fit + t*se}, nil
}

// PredictPoint evaluates the fit at reference without an interval.
func (f *Fit) PredictPoint(reference map[string]float64) (float64, error) {
	x0, err := f.referenceRow(reference)
	if err != nil {
		return math.NaN(), err
	}
	var fit float64
	for i, b := range f.beta {
		fit += b * x0[i]
	}
	return fit, nil
}

func (f *Fit) referenceRow(reference map[string]float64) ([]float64, error) {
	cols := make(map[string][]float64)
	var missing []string
	for _, v := range f.model.formula.InputVariables() {
		val, ok := reference[v]
		if !ok {
			missing = append(missing, v)
			continue
		}
		cols[v] = []float64{val}
	}
	if len(missing) > 0 {
		return nil, core.NewMissingColumnsError(missing)
	}
	x0 := make([]float64, len(f.beta))
	f.model.formula.designRow(cols, 0, x0)
	return x0, nil
}

func (f *Fit) Summary() ports.FitSummary {
	p := len(f.beta)
	sum := ports.FitSummary{
		Labels:       append([]string(nil), f.model.labels()...),
		Coefficients: append([]float64(nil), f.beta...),
		StdErrors:    make([]float64, p),
		TValues:      make([]float64, p),
		RSquared:     math.NaN(),
		Observations: f.n,
		ResidualDF:   f.ResidualDF(),
		Rank:         f.rank,
	}
	if f.tss > 0 {
		sum.RSquared = 1 - f.rss/f.tss
	}
	scale := f.Scale()
	for i := 0; i < p; i++ {
		sum.StdErrors[i] = math.Sqrt(scale * f.xtxInv.At(i, i))
		sum.TValues[i] = f.beta[i] / sum.StdErrors[i]
	}
	return sum
}

func (f *Fit) Residuals() []ports.Residual {
	return append([]ports.Residual(nil), f.resid...)
}
