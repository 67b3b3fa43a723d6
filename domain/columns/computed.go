package columns

import (
	"fmt"

	"pvcaptest/domain/frame"
)

// ComputedColumn derives a model variable from weighted input columns and
// named float parameters. Every input at a timestamp must be valid for the
// output to be valid there.
type ComputedColumn struct {
	Function string             `yaml:"computed_function"`
	Inputs   map[string]float64 `yaml:"computed_value_columns"`
	Params   map[string]float64 `yaml:"cf_params"`
}

// Validate checks the function identifier and, where the function declares
// them, its required inputs and parameters.
func (c ComputedColumn) Validate() error {
	cf, ok := computedFunctions[c.Function]
	if !ok {
		_, err := LookupComputed(c.Function)
		return err
	}
	if cf.check != nil {
		return cf.check(c.Inputs, c.Params)
	}
	return nil
}

// Compute evaluates the column over f.
func (c ComputedColumn) Compute(f *frame.Frame) ([]float64, error) {
	fn, err := LookupComputed(c.Function)
	if err != nil {
		return nil, err
	}
	return fn(f, c.Inputs, c.Params)
}

// ComputedSet maps model variable names to computed specifications, layered
// over the redundant set that feeds it.
type ComputedSet struct {
	Redundant *RedundantSet             `yaml:"redundant_data"`
	Columns   map[string]ComputedColumn `yaml:"computed_columns"`
}

// NewComputedSet validates both layers before returning the set.
func NewComputedSet(redundant *RedundantSet, cols map[string]ComputedColumn) (*ComputedSet, error) {
	s := &ComputedSet{Redundant: redundant, Columns: cols}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ComputedSet) Validate() error {
	for _, name := range sortedKeys(s.Columns) {
		if err := s.Columns[name].Validate(); err != nil {
			return fmt.Errorf("computed column %q: %w", name, err)
		}
	}
	return s.Redundant.Validate()
}

// Keys returns the computed column names.
func (s *ComputedSet) Keys() Set {
	return NewSet(sortedKeys(s.Columns)...)
}

// Dependencies is the union of the inputs of every computed column.
func (s *ComputedSet) Dependencies() Set {
	deps := NewSet()
	for _, c := range s.Columns {
		for name := range c.Inputs {
			deps.Add(name)
		}
	}
	return deps
}

// SeekColumns splits missing into the computed columns that satisfy it and
// the names still needed from the redundant layer and below.
func (s *ComputedSet) SeekColumns(missing Set) (matched, expanded Set) {
	matched = missing.Intersect(s.Keys())
	return matched, missing.Minus(matched).Union(s.Dependencies())
}

// Compute evaluates every computed column over f, then appends the passthrough
// columns that no computed column overwrote.
func (s *ComputedSet) Compute(f *frame.Frame, passthrough []string) (*frame.Frame, error) {
	out := frame.New(f.Index())
	for _, name := range sortedKeys(s.Columns) {
		values, err := s.Columns[name].Compute(f)
		if err != nil {
			return nil, fmt.Errorf("computed column %q: %w", name, err)
		}
		if err := out.Set(name, values); err != nil {
			return nil, err
		}
	}
	if err := appendPassthrough(out, f, passthrough); err != nil {
		return nil, err
	}
	return out, nil
}
