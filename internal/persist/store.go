// Package persist is the durable side of the recording pipeline: run
// metadata and monitor sample streams, written during a run and queryable
// after it.
package persist

import (
	"context"
	"errors"

	"neuroplate/internal/model"
)

var ErrUnknownRun = errors.New("unknown run")

// Store accepts recorded buffers keyed by run and monitor identity. Writes
// within a buffer preserve timestamp order; reads return samples ordered by
// time, then by write order within a timestamp.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	WriteSamples(ctx context.Context, runID, monitor string, samples []model.Sample) error
	ReadSamples(ctx context.Context, runID, monitor string, t0, t1 float64) ([]model.Sample, error)
	Close() error
}
