package columns

import (
	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
)

// SeekDatasetColumns matches missing against the raw dataset columns. Any
// name left in remaining cannot be provided by the dataset.
func SeekDatasetColumns(dataset Set, missing Set) (matched, remaining Set) {
	matched = missing.Intersect(dataset)
	return matched, missing.Minus(matched)
}

// Resolution records how the model columns map onto each layer. It is
// recomputed per run and never persisted.
type Resolution struct {
	Model            Set // model variables and output
	Computed         Set // model columns provided by computed columns
	ComputedMissing  Set // names the redundant layer must supply
	Redundant        Set // names provided by redundant columns
	RedundantMissing Set // names the dataset must supply
	Dataset          Set // dataset columns used
}

// Resolve walks the computed, redundant and dataset layers in order. It fails
// with a MissingColumnsError naming every column no layer provides.
func Resolve(model Set, computed *ComputedSet, dataset Set) (*Resolution, error) {
	r := &Resolution{Model: model}
	r.Computed, r.ComputedMissing = computed.SeekColumns(model)
	r.Redundant, r.RedundantMissing = computed.Redundant.SeekColumns(r.ComputedMissing)
	var remaining Set
	r.Dataset, remaining = SeekDatasetColumns(dataset, r.RedundantMissing)
	if len(remaining) > 0 {
		return nil, core.NewMissingColumnsError(remaining.Sorted())
	}
	return r, nil
}

// CombinePassthrough lists the dataset columns carried unchanged through the
// redundant layer.
func (r *Resolution) CombinePassthrough() []string {
	return r.RedundantMissing.Minus(r.Redundant).Sorted()
}

// ComputePassthrough lists the columns carried unchanged through the computed
// layer. Redundant outputs are carried only when the model reads them directly.
func (r *Resolution) ComputePassthrough() []string {
	return r.ComputedMissing.Minus(r.Redundant.Minus(r.Model)).Sorted()
}

// Derive runs the redundant and computed layers over f, returning both frames.
func (s *ComputedSet) Derive(f *frame.Frame, r *Resolution) (combined, computed *frame.Frame, err error) {
	combined, err = s.Redundant.Combine(f, r.CombinePassthrough())
	if err != nil {
		return nil, nil, err
	}
	computed, err = s.Compute(combined, r.ComputePassthrough())
	if err != nil {
		return nil, nil, err
	}
	return combined, computed, nil
}
