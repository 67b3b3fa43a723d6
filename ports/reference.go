package ports

import (
	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
)

// ReferenceCondition supplies the model inputs at which a partition's fit is
// evaluated.
type ReferenceCondition interface {
	// ReferenceVariables lists the keys ReferenceCondition returns, plus any
	// columns the provider reads that must be carried through derivation.
	ReferenceVariables() []string
	ReferenceCondition(key core.PartitionKey, data *frame.Frame) (map[string]float64, error)
}
