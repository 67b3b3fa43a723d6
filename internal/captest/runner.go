package captest

import (
	"fmt"
	"iter"

	"pvcaptest/domain/columns"
	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/internal"
	"pvcaptest/ports"
)

// Partition is one keyed slice of a dataset.
type Partition struct {
	Key  core.PartitionKey
	Data *frame.Frame
}

// Result pairs a partition key with what was extracted from its model.
type Result[T any] struct {
	Key   core.PartitionKey
	Value T
}

// QCFunc filters a partition's raw data before the redundant and computed
// layers run, so it sees the dataset's own sensor columns.
type QCFunc func(key core.PartitionKey, raw *frame.Frame) (*frame.Frame, error)

// Derived is a partition after the redundant and computed layers ran.
type Derived struct {
	Key      core.PartitionKey
	Combined *frame.Frame
	Computed *frame.Frame
}

// Extractor turns a derived partition into a result. It gets everything a
// fit needs and decides what to do with it.
type Extractor[T any] func(ti *TestInfo, res *columns.Resolution, d *Derived) (T, error)

// TestInfo is a capacity test definition: the model to fit and how its
// columns are derived from raw data.
type TestInfo struct {
	Spec    *ModelSpec
	Columns *columns.ComputedSet
	Engine  ports.ModelEngine

	log *internal.Logger
}

// NewTestInfo validates the column definitions and binds the model engine.
func NewTestInfo(spec *ModelSpec, cols *columns.ComputedSet, engine ports.ModelEngine) (*TestInfo, error) {
	if spec == nil {
		return nil, core.NewInvalidSpecError("model_spec", "is required")
	}
	if engine == nil {
		return nil, core.NewInvalidSpecError("engine", "is required")
	}
	if cols == nil {
		cols = &columns.ComputedSet{}
	}
	if err := cols.Validate(); err != nil {
		return nil, err
	}
	return &TestInfo{
		Spec:    spec,
		Columns: cols,
		Engine:  engine,
		log:     internal.DefaultLogger.With("Runner"),
	}, nil
}

// Resolve maps the model columns onto datasets that have datasetCols.
func (ti *TestInfo) Resolve(datasetCols columns.Set) (*columns.Resolution, error) {
	return columns.Resolve(ti.Spec.ModelColumns(), ti.Columns, datasetCols)
}

// Derive applies qc to the raw partition, then runs the redundant and
// computed layers.
func (ti *TestInfo) Derive(p Partition, res *columns.Resolution, qc QCFunc) (*Derived, error) {
	data := p.Data
	if qc != nil {
		var err error
		data, err = qc(p.Key, data)
		if err != nil {
			return nil, fmt.Errorf("partition %s: qc: %w", p.Key, err)
		}
	}
	combined, computed, err := ti.Columns.Derive(data, res)
	if err != nil {
		return nil, fmt.Errorf("partition %s: %w", p.Key, err)
	}
	return &Derived{Key: p.Key, Combined: combined, Computed: computed}, nil
}

func runOne[T any](ti *TestInfo, res *columns.Resolution, p Partition, qc QCFunc, extract Extractor[T]) (T, error) {
	var zero T
	d, err := ti.Derive(p, res, qc)
	if err != nil {
		return zero, err
	}
	v, err := extract(ti, res, d)
	if err != nil {
		return zero, fmt.Errorf("partition %s: %w", p.Key, err)
	}
	return v, nil
}

// RunModels resolves the model columns against datasetCols, then returns a
// lazy sequence with one result per partition, in partition order.
// Resolution errors are returned immediately. A failing partition yields its
// error and ends the sequence.
func RunModels[T any](ti *TestInfo, partitions iter.Seq[Partition], datasetCols columns.Set, qc QCFunc, extract Extractor[T]) (iter.Seq2[Result[T], error], error) {
	res, err := ti.Resolve(datasetCols)
	if err != nil {
		return nil, err
	}
	ti.log.Debug("model columns %v: computed %v, redundant %v, dataset %v",
		res.Model.Sorted(), res.Computed.Sorted(), res.Redundant.Sorted(), res.Dataset.Sorted())

	return func(yield func(Result[T], error) bool) {
		for p := range partitions {
			v, err := runOne(ti, res, p, qc, extract)
			if err != nil {
				yield(Result[T]{Key: p.Key}, err)
				return
			}
			ti.log.Trace("fitted %s", p.Key)
			if !yield(Result[T]{Key: p.Key, Value: v}, nil) {
				return
			}
		}
	}, nil
}

// Collect drains a result sequence, stopping at the first error.
func Collect[T any](results iter.Seq2[Result[T], error]) ([]Result[T], error) {
	var out []Result[T]
	for r, err := range results {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
