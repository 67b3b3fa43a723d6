package refcond

import (
	"maps"
	"sort"

	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/ports"
)

// OverrideTable maps partition keys to explicit reference conditions. Keys
// are matched as "dataset@YYYY-MM-DD", then the bare period, then the dataset
// name for unpartitioned data. Partitions without an entry go to Fallback.
type OverrideTable struct {
	Table    map[string]map[string]float64 `yaml:"table"`
	Fallback ports.ReferenceCondition      `yaml:"-"`
}

// lookupOverride finds the most specific entry of table that addresses key.
func lookupOverride[V any](table map[string]V, key core.PartitionKey) (V, bool) {
	for _, k := range key.LookupKeys() {
		if v, ok := table[k]; ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (o *OverrideTable) ReferenceVariables() []string {
	if o.Fallback != nil {
		return o.Fallback.ReferenceVariables()
	}
	seen := make(map[string]struct{})
	for _, rc := range o.Table {
		for k := range rc {
			seen[k] = struct{}{}
		}
	}
	vars := make([]string, 0, len(seen))
	for k := range seen {
		vars = append(vars, k)
	}
	sort.Strings(vars)
	return vars
}

func (o *OverrideTable) ReferenceCondition(key core.PartitionKey, data *frame.Frame) (map[string]float64, error) {
	if rc, ok := lookupOverride(o.Table, key); ok {
		return maps.Clone(rc), nil
	}
	if o.Fallback == nil {
		return nil, core.NewReferenceConditionError("no override for partition %s", key)
	}
	return o.Fallback.ReferenceCondition(key, data)
}
