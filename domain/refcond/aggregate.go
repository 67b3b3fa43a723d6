// Package refcond provides reference conditions: the points in model input
// space at which fitted capacity models are evaluated.
package refcond

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"
	"gopkg.in/yaml.v3"

	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
)

// Aggregation labels accepted by ParseRule.
const (
	AggMean   = "mean"
	AggMedian = "median"
	AggP60    = "p60"
)

// Rule turns a partition's column into one reference value: a statistic of
// the column, or a constant that ignores the data.
type Rule struct {
	label    string
	constant float64
}

// Constant returns a rule that always yields v.
func Constant(v float64) Rule { return Rule{constant: v} }

// Mean, Median and P60 aggregate the non-missing values of a column.
func Mean() Rule   { return Rule{label: AggMean} }
func Median() Rule { return Rule{label: AggMedian} }
func P60() Rule    { return Rule{label: AggP60} }

// ParseRule accepts an aggregation label or a number.
func ParseRule(s string) (Rule, error) {
	switch s {
	case AggMean, AggMedian, AggP60:
		return Rule{label: s}, nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Constant(v), nil
	}
	return Rule{}, core.NewReferenceConditionError("unexpected aggregation label %q", s)
}

// IsConstant reports whether the rule ignores the data.
func (r Rule) IsConstant() bool { return r.label == "" }

func (r Rule) String() string {
	if r.IsConstant() {
		return strconv.FormatFloat(r.constant, 'g', -1, 64)
	}
	return r.label
}

// Apply evaluates the rule over values. NaNs are ignored; a column with no
// valid values cannot be aggregated.
func (r Rule) Apply(values []float64) (float64, error) {
	if r.IsConstant() {
		return r.constant, nil
	}
	data := frame.Present(values)
	if len(data) == 0 {
		return math.NaN(), core.NewReferenceConditionError("no valid values to aggregate with %q", r.label)
	}
	switch r.label {
	case AggMean:
		return stats.Mean(data)
	case AggMedian:
		return stats.Median(data)
	case AggP60:
		return Quantile(data, 0.6), nil
	default:
		return math.NaN(), core.NewReferenceConditionError("unexpected aggregation label %q", r.label)
	}
}

// Quantile interpolates linearly between order statistics at position
// (n-1)·p, the default definition in most statistics packages.
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	h := float64(len(sorted)-1) * p
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// MarshalYAML writes labels as strings and constants as numbers.
func (r Rule) MarshalYAML() (interface{}, error) {
	if r.IsConstant() {
		return r.constant, nil
	}
	return r.label, nil
}

func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: aggregation rule must be a scalar", node.Line)
	}
	parsed, err := ParseRule(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*r = parsed
	return nil
}
