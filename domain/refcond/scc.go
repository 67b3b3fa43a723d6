package refcond

import (
	"pvcaptest/domain/core"
)

// Regression model topologies.
const (
	ModelE2848     = "ASTM E2848"
	ModelE2848Rear = "ASTM E2848+Erear"
)

// Irradiance sensor positions.
const (
	PositionNA        = "N/A"
	PositionRefModule = "Ref. Module"
	PositionUnder     = "Under"
	PositionOutboard  = "Outboard"
)

// SCCMap maps each model variable to the data column it is taken from for
// the given model topology and sensor position.
func SCCMap(model, position string) (map[string]string, error) {
	m := map[string]string{
		"P":   "EOutInv",
		"T_a": "T_Amb",
		"v":   "WindVel",
	}
	switch model {
	case ModelE2848:
		switch position {
		case PositionRefModule:
			m["E"] = "GlobCell"
		case PositionNA:
			m["E"] = "GlobInc"
		default:
			return nil, core.NewReferenceConditionError("unexpected position %q for model %s", position, model)
		}
	case ModelE2848Rear:
		m["E_front"] = "GlobInc"
		switch position {
		case PositionOutboard:
			m["E_rear"] = "E_rear_outboard"
		case PositionUnder:
			m["E_rear"] = "GlobBakUnshd"
		default:
			return nil, core.NewReferenceConditionError("unexpected position %q for model %s", position, model)
		}
	default:
		return nil, core.NewReferenceConditionError("unexpected model %q", model)
	}
	return m, nil
}
