package ports

import (
	"context"

	"pvcaptest/domain/frame"
)

// DatasetReader loads a time-indexed dataset from a file.
type DatasetReader interface {
	ReadDataset(ctx context.Context, path string) (*frame.Frame, error)
}
