package refcond

import (
	"maps"
	"sort"

	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
)

// Fixed returns the same reference condition for every partition.
type Fixed struct {
	Inputs map[string]float64 `yaml:"reference_inputs"`
}

// NewFixed copies inputs.
func NewFixed(inputs map[string]float64) *Fixed {
	return &Fixed{Inputs: maps.Clone(inputs)}
}

func (f *Fixed) ReferenceVariables() []string {
	vars := make([]string, 0, len(f.Inputs))
	for k := range f.Inputs {
		vars = append(vars, k)
	}
	sort.Strings(vars)
	return vars
}

// ReferenceCondition returns a copy of the fixed inputs.
func (f *Fixed) ReferenceCondition(core.PartitionKey, *frame.Frame) (map[string]float64, error) {
	return maps.Clone(f.Inputs), nil
}
