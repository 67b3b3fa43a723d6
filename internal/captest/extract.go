package captest

import (
	"fmt"
	"math"

	"pvcaptest/domain/columns"
	"pvcaptest/ports"
)

// FitConf fits the partition's model and predicts at its reference
// condition with the model's confidence level.
func FitConf(ti *TestInfo, res *columns.Resolution, d *Derived) (ports.Prediction, error) {
	fm, err := FitFull(ti, res, d)
	if err != nil {
		return ports.Prediction{}, err
	}
	return fm.Predict()
}

// FullModel keeps every intermediate of one partition's fit.
type FullModel struct {
	Spec       *ModelSpec
	Resolution *columns.Resolution
	*Derived
	Reference map[string]float64
	Model     ports.Model
	Fit       ports.ModelFit
}

// FitFull builds and fits the model, keeping the intermediates.
func FitFull(ti *TestInfo, res *columns.Resolution, d *Derived) (*FullModel, error) {
	ref, err := ti.Spec.ReferenceInputs(d.Key, d.Computed)
	if err != nil {
		return nil, err
	}
	model, err := ti.Spec.BuildModel(ti.Engine, d.Computed, ref)
	if err != nil {
		return nil, err
	}
	fit, err := model.Fit()
	if err != nil {
		return nil, err
	}
	return &FullModel{
		Spec:       ti.Spec,
		Resolution: res,
		Derived:    d,
		Reference:  ref,
		Model:      model,
		Fit:        fit,
	}, nil
}

// Predict evaluates the fit at the reference condition.
func (m *FullModel) Predict() (ports.Prediction, error) {
	return m.Fit.Predict(m.Reference, m.Spec.ConfLevel)
}

// MarginalData returns, for each fitted row, the value of variable and the
// partial residual: the prediction with only variable taken from the row
// (every other input held at reference) plus the row's residual.
func (m *FullModel) MarginalData(variable string) (x, y []float64, err error) {
	if _, ok := m.Reference[variable]; !ok {
		return nil, nil, fmt.Errorf("%q is not a model input (have %v)", variable, m.Model.InputNames())
	}
	col, ok := m.Computed.Column(variable)
	if !ok {
		return nil, nil, fmt.Errorf("%q is not in the computed data", variable)
	}
	point := make(map[string]float64, len(m.Reference))
	for k, v := range m.Reference {
		point[k] = v
	}
	for _, r := range m.Fit.Residuals() {
		point[variable] = col[r.Row]
		p, err := m.Fit.Predict(point, m.Spec.ConfLevel)
		if err != nil {
			return nil, nil, err
		}
		if math.IsNaN(p.Fit) {
			continue
		}
		x = append(x, col[r.Row])
		y = append(y, p.Fit+r.Value)
	}
	return x, y, nil
}
