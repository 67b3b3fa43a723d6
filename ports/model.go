package ports

import (
	"pvcaptest/domain/frame"
)

// ModelDefinition is everything needed to build one regression model over a
// partition's derived data.
type ModelDefinition struct {
	Formula    string
	InputNames []string
	OutputName string
	CoefLabels []string
}

// ModelEngine builds regression models. Building does not fit.
type ModelEngine interface {
	NewModel(data *frame.Frame, def ModelDefinition) (Model, error)
}

// Model is a regression model bound to its data.
type Model interface {
	Fit() (ModelFit, error)
	InputNames() []string
	OutputName() string
}

// ModelFit is a fitted model that can be evaluated at reference conditions.
type ModelFit interface {
	// Predict evaluates the fit at reference with a two-sided interval at
	// confLevel for a new observation.
	Predict(reference map[string]float64, confLevel float64) (Prediction, error)
	Summary() FitSummary
	Residuals() []Residual
}

// Prediction is a point estimate with lower and upper bounds.
type Prediction struct {
	Fit   float64 `json:"fit" db:"fit"`
	Lower float64 `json:"lwr" db:"lwr"`
	Upper float64 `json:"upr" db:"upr"`
}

// Residual is the residual of one data row used in the fit.
type Residual struct {
	Row   int
	Value float64
}

// FitSummary describes the estimated coefficients.
type FitSummary struct {
	Labels       []string
	Coefficients []float64
	StdErrors    []float64
	TValues      []float64
	RSquared     float64
	Observations int
	ResidualDF   int
	Rank         int
}
