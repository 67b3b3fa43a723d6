package columns

import (
	"fmt"

	"pvcaptest/domain/frame"
)

// RedundantColumn merges interchangeable input columns, such as several
// pyranometers on one plane, into a single logical column. As few as one
// valid input per row is enough for the output row to be valid.
type RedundantColumn struct {
	Function string         `yaml:"redundant_function"`
	Inputs   []string       `yaml:"redundant_value_columns"`
	Params   map[string]any `yaml:"rf_params"`
}

// Validate checks that the function identifier is registered.
func (c RedundantColumn) Validate() error {
	_, err := LookupRedundant(c.Function)
	return err
}

// Combine evaluates the column over f.
func (c RedundantColumn) Combine(f *frame.Frame) ([]float64, error) {
	fn, err := LookupRedundant(c.Function)
	if err != nil {
		return nil, err
	}
	return fn(f, c.Inputs, c.Params)
}

// RedundantSet maps output column names to their redundant specifications.
type RedundantSet struct {
	Columns map[string]RedundantColumn `yaml:"redundant_columns"`
}

// NewRedundantSet validates every column before returning the set.
func NewRedundantSet(cols map[string]RedundantColumn) (*RedundantSet, error) {
	s := &RedundantSet{Columns: cols}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects unregistered functions, reporting the first by column name.
func (s *RedundantSet) Validate() error {
	if s == nil {
		return nil
	}
	for _, name := range sortedKeys(s.Columns) {
		if err := s.Columns[name].Validate(); err != nil {
			return fmt.Errorf("redundant column %q: %w", name, err)
		}
	}
	return nil
}

// Keys returns the output column names.
func (s *RedundantSet) Keys() Set {
	if s == nil {
		return NewSet()
	}
	return NewSet(sortedKeys(s.Columns)...)
}

// Dependencies is the union of the inputs of every column in the set.
func (s *RedundantSet) Dependencies() Set {
	deps := NewSet()
	if s == nil {
		return deps
	}
	for _, c := range s.Columns {
		deps.Add(c.Inputs...)
	}
	return deps
}

// SeekColumns splits missing into the names this layer provides and the names
// still needed upstream. The upstream set carries the inputs of every column
// in the set, not only the matched ones.
func (s *RedundantSet) SeekColumns(missing Set) (matched, expanded Set) {
	matched = missing.Intersect(s.Keys())
	return matched, missing.Minus(matched).Union(s.Dependencies())
}

// Combine evaluates every redundant column over f and appends the
// passthrough columns unchanged. A derived column wins over a passthrough
// column of the same name. The result shares f's index.
func (s *RedundantSet) Combine(f *frame.Frame, passthrough []string) (*frame.Frame, error) {
	out := frame.New(f.Index())
	if s != nil {
		for _, name := range sortedKeys(s.Columns) {
			values, err := s.Columns[name].Combine(f)
			if err != nil {
				return nil, fmt.Errorf("redundant column %q: %w", name, err)
			}
			if err := out.Set(name, values); err != nil {
				return nil, err
			}
		}
	}
	if err := appendPassthrough(out, f, passthrough); err != nil {
		return nil, err
	}
	return out, nil
}

// appendPassthrough copies the named columns of src that dst does not already hold.
func appendPassthrough(dst, src *frame.Frame, names []string) error {
	var need []string
	for _, name := range names {
		if !dst.Has(name) {
			need = append(need, name)
		}
	}
	cols, err := columnsOf(src, need)
	if err != nil {
		return err
	}
	for i, name := range need {
		if err := dst.Set(name, cols[i]); err != nil {
			return err
		}
	}
	return nil
}
