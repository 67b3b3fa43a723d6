package refcond

import (
	"fmt"
	"maps"
	"sort"

	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
)

// EquivalentPosition derives reference conditions that stay comparable across
// sensor placements. All irradiance references are anchored to one reference
// value of cell-plane irradiance (ECellColumn); each model's irradiance
// variables are then mapped to the value they take when the cell sees it.
type EquivalentPosition struct {
	// DefaultRC gives the rule per model variable. Irradiance variables are
	// derived; the rest are aggregated over their mapped column.
	DefaultRC   map[string]Rule `yaml:"default_rc"`
	ECellRC     Rule            `yaml:"e_cell_rc"`
	ECellColumn string          `yaml:"e_cell_colname"`

	// Unshaded rear irradiance reference for bifacial models: a per-partition
	// value from RearRCs, else RearRC applied to RearColumn.
	RearRC     *Rule              `yaml:"e_globbakunshd_rc"`
	RearRCs    map[string]float64 `yaml:"e_globbakunshd_rcs"`
	RearColumn string             `yaml:"e_globbakunshd_colname"`

	Bifaciality float64 `yaml:"bifaciality"`
	Model       string  `yaml:"model"`
	Position    string  `yaml:"bifi_position"`

	// Overrides replace the whole computation for matching partitions.
	Overrides map[string]map[string]float64 `yaml:"override_rcs"`
}

// Validate checks the model and position pairing and that every default
// variable maps to a data column.
func (e *EquivalentPosition) Validate() error {
	scc, err := SCCMap(e.Model, e.Position)
	if err != nil {
		return err
	}
	if e.ECellColumn == "" {
		return core.NewInvalidSpecError("e_cell_colname", "must be set")
	}
	for v := range e.DefaultRC {
		if _, ok := scc[v]; !ok {
			return core.NewInvalidSpecError("default_rc", fmt.Sprintf("variable %q has no data column for %s/%s", v, e.Model, e.Position))
		}
	}
	if e.Model == ModelE2848Rear && e.RearColumn == "" {
		return core.NewInvalidSpecError("e_globbakunshd_colname", "must be set for "+ModelE2848Rear)
	}
	return nil
}

// ReferenceVariables includes the irradiance columns the derivation reads.
func (e *EquivalentPosition) ReferenceVariables() []string {
	switch e.Model {
	case ModelE2848:
		return []string{"E", "T_a", "v", "GlobCell"}
	case ModelE2848Rear:
		return []string{
			"E_front", "E_rear", "T_a", "v", "GlobCell",
			"GlobEff", "GlobBak", "GlobBakUnshd", "E_rear_outboard",
		}
	default:
		return nil
	}
}

func (e *EquivalentPosition) ReferenceCondition(key core.PartitionKey, data *frame.Frame) (map[string]float64, error) {
	if rc, ok := lookupOverride(e.Overrides, key); ok {
		return maps.Clone(rc), nil
	}
	scc, err := SCCMap(e.Model, e.Position)
	if err != nil {
		return nil, err
	}
	cell, err := e.applyRule(e.ECellRC, data, e.ECellColumn)
	if err != nil {
		return nil, err
	}

	result := make(map[string]float64)
	if eCol, ok := scc["E"]; ok {
		switch e.Position {
		case PositionNA:
			result["E"], err = PredictAt(data, eCol, e.ECellColumn, cell)
			if err != nil {
				return nil, err
			}
		case PositionRefModule:
			result["E"] = cell
		}
	} else {
		if err := e.bifacialReference(key, data, scc, cell, result); err != nil {
			return nil, err
		}
	}

	vars := make([]string, 0, len(e.DefaultRC))
	for v := range e.DefaultRC {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	for _, v := range vars {
		switch v {
		case "E", "E_front", "E_rear":
			continue
		}
		col, ok := scc[v]
		if !ok {
			return nil, core.NewReferenceConditionError("variable %q has no data column for %s/%s", v, e.Model, e.Position)
		}
		if result[v], err = e.applyRule(e.DefaultRC[v], data, col); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// bifacialReference back-solves the front irradiance that, together with the
// modeled rear contribution, puts the cell at its reference value.
func (e *EquivalentPosition) bifacialReference(key core.PartitionKey, data *frame.Frame, scc map[string]string, cell float64, result map[string]float64) error {
	var rear float64
	if v, ok := lookupOverride(e.RearRCs, key); ok {
		rear = v
	} else if e.RearRC != nil {
		var err error
		if rear, err = e.applyRule(*e.RearRC, data, e.RearColumn); err != nil {
			return err
		}
	} else {
		return core.NewReferenceConditionError("no rear irradiance reference for partition %s: set e_globbakunshd_rc or an e_globbakunshd_rcs entry", key)
	}

	globBak, err := PredictAt(data, "GlobBak", e.RearColumn, rear)
	if err != nil {
		return err
	}
	globEff := cell - e.Bifaciality*globBak
	front, err := PredictAt(data, scc["E_front"], "GlobEff", globEff)
	if err != nil {
		return err
	}

	var eRear float64
	switch scc["E_rear"] {
	case e.RearColumn:
		eRear = rear
	case "E_rear_outboard":
		if eRear, err = PredictAt(data, "E_rear_outboard", e.RearColumn, rear); err != nil {
			return err
		}
	default:
		return core.NewReferenceConditionError("rear column %q cannot be derived from %q", scc["E_rear"], e.RearColumn)
	}

	result["E_front"] = front
	result["E_rear"] = eRear
	return nil
}

func (e *EquivalentPosition) applyRule(r Rule, data *frame.Frame, column string) (float64, error) {
	if r.IsConstant() {
		return r.Apply(nil)
	}
	values, err := columnValues(data, column)
	if err != nil {
		return 0, err
	}
	v, err := r.Apply(values)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", column, err)
	}
	return v, nil
}
