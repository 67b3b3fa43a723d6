package captest

import (
	"context"
	"iter"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"pvcaptest/domain/columns"
)

// CollectParallel fits partitions on up to workers goroutines and returns
// the results in partition order. The partitions are read up front. The
// first failure cancels the remaining work and is returned.
func CollectParallel[T any](ctx context.Context, ti *TestInfo, partitions iter.Seq[Partition], datasetCols columns.Set, qc QCFunc, extract Extractor[T], workers int) ([]Result[T], error) {
	res, err := ti.Resolve(datasetCols)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var parts []Partition
	for p := range partitions {
		parts = append(parts, p)
	}
	out := make([]Result[T], len(parts))
	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)

	for i, p := range parts {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			v, err := runOne(ti, res, p, qc, extract)
			if err != nil {
				return err
			}
			out[i] = Result[T]{Key: p.Key, Value: v}
			ti.log.Trace("fitted %s", p.Key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
