package captest

import (
	"fmt"
	"math"

	"pvcaptest/ports"
)

// Comparison rates a measured fit against a target fit at one reference
// condition. The metric is the ratio of the two predictions. Its bounds
// combine the relative half-widths of both prediction intervals in
// quadrature, not the absolute half-widths, and scale the result by the
// ratio. Both predictions must be non-zero.
type Comparison struct {
	Measured  ports.Prediction
	Target    ports.Prediction
	Metric    ports.Prediction
	PassValue float64
}

// Compare evaluates both fits at reference.
func Compare(measured, target ports.ModelFit, reference map[string]float64, passValue, confLevel float64) (*Comparison, error) {
	meas, err := measured.Predict(reference, confLevel)
	if err != nil {
		return nil, fmt.Errorf("measured: %w", err)
	}
	tgt, err := target.Predict(reference, confLevel)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	if tgt.Fit == 0 {
		return nil, fmt.Errorf("target prediction is zero at %v", reference)
	}
	if meas.Fit == 0 {
		return nil, fmt.Errorf("measured prediction is zero at %v", reference)
	}
	ratio := meas.Fit / tgt.Fit
	rel := math.Hypot((meas.Upper-meas.Fit)/meas.Fit, (tgt.Upper-tgt.Fit)/tgt.Fit)
	spread := math.Abs(ratio) * rel
	return &Comparison{
		Measured:  meas,
		Target:    tgt,
		Metric:    ports.Prediction{Fit: ratio, Lower: ratio - spread, Upper: ratio + spread},
		PassValue: passValue,
	}, nil
}

// Passed reports whether the metric reaches the pass value.
func (c *Comparison) Passed() bool {
	return c.PassValue <= c.Metric.Fit
}

func (c *Comparison) String() string {
	m := c.Metric
	if c.Passed() {
		return fmt.Sprintf("PASS: %g <= %.4f [%.4f, %.4f]", c.PassValue, m.Fit, m.Lower, m.Upper)
	}
	return fmt.Sprintf("FAIL: %.4f [%.4f, %.4f] < %g", m.Fit, m.Lower, m.Upper, c.PassValue)
}
