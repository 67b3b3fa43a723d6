package captest

import (
	"iter"

	"pvcaptest/domain/columns"
	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/internal"
)

// AllDataset names a dataset that was loaded as a single frame.
const AllDataset = "All"

// Datasets is a keyed stream of raw (QC'd) frames.
type Datasets = iter.Seq2[string, *frame.Frame]

// OneDataset treats a single frame as a stream of one.
func OneDataset(name string, f *frame.Frame) Datasets {
	return func(yield func(string, *frame.Frame) bool) {
		yield(name, f)
	}
}

// Whole keys each dataset as a single partition.
func Whole(src Datasets) iter.Seq[Partition] {
	return func(yield func(Partition) bool) {
		for name, f := range src {
			if !yield(Partition{Key: core.DatasetKey(name), Data: f}) {
				return
			}
		}
	}
}

// Periodic splits each dataset into calendar periods and drops periods with
// fewer than minRows rows.
func Periodic(src Datasets, period frame.Period, minRows int) iter.Seq[Partition] {
	log := internal.DefaultLogger.With("Periodic")
	return func(yield func(Partition) bool) {
		for name, f := range src {
			for start, part := range f.Resample(period) {
				key := core.PartitionKey{Dataset: name, Period: start}
				if part.Len() < minRows {
					log.Debug("dropping %s: %d rows, need %d", key, part.Len(), minRows)
					continue
				}
				if !yield(Partition{Key: key, Data: part}) {
					return
				}
			}
		}
	}
}

// PeriodicRun configures a periodic capacity test over a dataset stream.
type PeriodicRun struct {
	Period frame.Period
	// MinRows is the partition size threshold; zero means two more than the
	// number of reference variables.
	MinRows int
	QC      QCFunc
}

// Threshold is the effective minimum partition size.
func (pr PeriodicRun) Threshold(ti *TestInfo) int {
	if pr.MinRows > 0 {
		return pr.MinRows
	}
	return ti.Spec.DefaultMinRows()
}

// Partitions returns the retained partitions of src.
func (pr PeriodicRun) Partitions(ti *TestInfo, src Datasets) iter.Seq[Partition] {
	return Periodic(src, pr.Period, pr.Threshold(ti))
}

// RunPeriodic runs extract over every retained period of src. datasetCols is
// the set of columns every dataset in src is guaranteed to have.
func RunPeriodic[T any](ti *TestInfo, pr PeriodicRun, src Datasets, datasetCols columns.Set, extract Extractor[T]) (iter.Seq2[Result[T], error], error) {
	return RunModels(ti, pr.Partitions(ti, src), datasetCols, pr.QC, extract)
}
