// Package captest runs capacity test regressions over partitions of PV
// plant data: it resolves and derives the model columns, obtains reference
// conditions, fits one model per partition and extracts predictions.
package captest

import (
	"fmt"
	"sort"

	"pvcaptest/domain/columns"
	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/ports"
)

// ModelInfo is the data-only part of a model specification.
type ModelInfo struct {
	ModelType  string   `yaml:"model_type"`
	Formula    string   `yaml:"formula"`
	CoefNames  []string `yaml:"coef_names"`
	OutputName string   `yaml:"output_col_name"`
}

// Model catalogue keys.
const (
	ModelASTME2848   = "ASTM_E2848"
	ModelDNVBifiASTM = "DNV_Bifi_ASTM"
)

// DefaultModels are the regression models of ASTM E2848 and its bifacial
// extension with separate front and rear irradiance.
var DefaultModels = map[string]ModelInfo{
	ModelASTME2848: {
		ModelType:  ModelASTME2848,
		Formula:    "P ~ E + I(E * E) + I(E * T_a) + I(E * v) -1",
		CoefNames:  []string{"a1", "a2", "a3", "a4"},
		OutputName: "P",
	},
	ModelDNVBifiASTM: {
		ModelType: ModelDNVBifiASTM,
		Formula: "P ~ I(E_front + E_rear) " +
			"+ I(I(E_front+E_rear) * E_front) " +
			"+ I(I(E_front+E_rear) * E_rear) " +
			"+ I(I(E_front+E_rear) * T_a) " +
			"+ I(I(E_front+E_rear) * v) " +
			"-1",
		CoefNames:  []string{"a1", "a2a", "a2b", "a3", "a4"},
		OutputName: "P",
	},
}

// LookupModel returns a catalogue entry.
func LookupModel(name string) (ModelInfo, error) {
	info, ok := DefaultModels[name]
	if !ok {
		return ModelInfo{}, core.NewInvalidSpecError("model_type", fmt.Sprintf("unknown model %q", name))
	}
	return info, nil
}

// ModelSpec binds a model to its reference condition provider and
// confidence level. It is not modified after construction.
type ModelSpec struct {
	ModelInfo
	Reference ports.ReferenceCondition
	ConfLevel float64
}

// NewModelSpec validates the parts of a model specification.
func NewModelSpec(info ModelInfo, ref ports.ReferenceCondition, confLevel float64) (*ModelSpec, error) {
	if ref == nil {
		return nil, core.NewInvalidSpecError("reference_spec", "is required")
	}
	if info.Formula == "" {
		return nil, core.NewInvalidSpecError("formula", "is required")
	}
	if info.OutputName == "" {
		return nil, core.NewInvalidSpecError("output_col_name", "is required")
	}
	if !(confLevel > 0 && confLevel < 1) {
		return nil, core.NewInvalidSpecError("conf_level", fmt.Sprintf("must be in (0, 1), got %g", confLevel))
	}
	return &ModelSpec{ModelInfo: info, Reference: ref, ConfLevel: confLevel}, nil
}

// ModelColumns are the reference variables and the output column.
func (s *ModelSpec) ModelColumns() columns.Set {
	cols := columns.NewSet(s.Reference.ReferenceVariables()...)
	cols.Add(s.OutputName)
	return cols
}

// DefaultMinRows is the smallest partition worth fitting: two more rows
// than there are reference variables.
func (s *ModelSpec) DefaultMinRows() int {
	return len(s.Reference.ReferenceVariables()) + 2
}

// ReferenceInputs asks the provider for the partition's reference condition.
func (s *ModelSpec) ReferenceInputs(key core.PartitionKey, data *frame.Frame) (map[string]float64, error) {
	return s.Reference.ReferenceCondition(key, data)
}

// BuildModel builds, without fitting, the regression over data.
func (s *ModelSpec) BuildModel(engine ports.ModelEngine, data *frame.Frame, reference map[string]float64) (ports.Model, error) {
	inputs := make([]string, 0, len(reference))
	for k := range reference {
		inputs = append(inputs, k)
	}
	sort.Strings(inputs)
	return engine.NewModel(data, ports.ModelDefinition{
		Formula:    s.Formula,
		InputNames: inputs,
		OutputName: s.OutputName,
		CoefLabels: s.CoefNames,
	})
}
