package refcond

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
)

// PredictAt fits y = a + b·x by least squares over the rows of data where both
// columns are valid and returns a + b·refX.
func PredictAt(data *frame.Frame, y, x string, refX float64) (float64, error) {
	ys, err := columnValues(data, y)
	if err != nil {
		return math.NaN(), err
	}
	xs, err := columnValues(data, x)
	if err != nil {
		return math.NaN(), err
	}
	var xv, yv []float64
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		xv = append(xv, xs[i])
		yv = append(yv, ys[i])
	}
	if len(xv) < 2 {
		return math.NaN(), core.NewReferenceConditionError("%s ~ %s needs at least 2 valid rows, have %d", y, x, len(xv))
	}
	alpha, beta := stat.LinearRegression(xv, yv, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return math.NaN(), core.NewReferenceConditionError("%s ~ %s is undetermined: %s has no variance", y, x, x)
	}
	return alpha + beta*refX, nil
}

func columnValues(data *frame.Frame, name string) ([]float64, error) {
	values, ok := data.Column(name)
	if !ok {
		return nil, core.NewReferenceConditionError("column %q not in partition data", name)
	}
	return values, nil
}
