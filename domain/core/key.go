package core

import (
	"time"
)

// PeriodLayout formats period keys (the first instant of the period).
const PeriodLayout = "2006-01-02"

// PartitionKey identifies a data partition: the dataset it came from and,
// once resampled, the start of its period.
type PartitionKey struct {
	Dataset string
	Period  time.Time
}

// DatasetKey returns a key for an unpartitioned dataset.
func DatasetKey(name string) PartitionKey {
	return PartitionKey{Dataset: name}
}

// HasPeriod reports whether the key refers to a resampled period.
func (k PartitionKey) HasPeriod() bool {
	return !k.Period.IsZero()
}

// PeriodString returns the period start as YYYY-MM-DD, or "" for whole datasets.
func (k PartitionKey) PeriodString() string {
	if !k.HasPeriod() {
		return ""
	}
	return k.Period.Format(PeriodLayout)
}

// String renders "dataset" or "dataset@YYYY-MM-DD". Override tables are keyed
// by this form.
func (k PartitionKey) String() string {
	if !k.HasPeriod() {
		return k.Dataset
	}
	return k.Dataset + "@" + k.PeriodString()
}

// LookupKeys lists the table keys that may address this partition, most
// specific first.
func (k PartitionKey) LookupKeys() []string {
	if !k.HasPeriod() {
		return []string{k.Dataset}
	}
	return []string{k.String(), k.PeriodString()}
}
