package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"neuroplate/internal/model"
	"neuroplate/internal/persist"
)

// ErrBackpressureTimeout is fatal: the persistence queue stayed full past
// the configured bound. The run aborts cleanly rather than drop samples;
// determinism of the recorded series wins over latency.
var ErrBackpressureTimeout = errors.New("persistence backpressure timeout")

type flushJob struct {
	monitor string
	samples []model.Sample
}

// Flusher writes buffers to the store from a single background goroutine
// behind a bounded queue. Enqueue blocks when the queue is full, up to the
// backpressure timeout.
type Flusher struct {
	store   persist.Store
	runID   string
	timeout time.Duration

	jobs chan flushJob
	done chan struct{}

	mu      sync.Mutex
	failure error
}

func NewFlusher(store persist.Store, runID string, queueSize int, timeout time.Duration) *Flusher {
	if queueSize < 1 {
		queueSize = 16
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	f := &Flusher{
		store:   store,
		runID:   runID,
		timeout: timeout,
		jobs:    make(chan flushJob, queueSize),
		done:    make(chan struct{}),
	}
	go f.loop()
	return f
}

func (f *Flusher) loop() {
	defer close(f.done)
	for job := range f.jobs {
		if err := f.store.WriteSamples(context.Background(), f.runID, job.monitor, job.samples); err != nil {
			f.mu.Lock()
			if f.failure == nil {
				f.failure = fmt.Errorf("write samples for monitor %s: %w", job.monitor, err)
			}
			f.mu.Unlock()
		}
	}
}

// Enqueue hands a completed buffer to the background writer. Blocks while
// the queue is full; fails with ErrBackpressureTimeout once the bound is
// exceeded for the configured duration.
func (f *Flusher) Enqueue(monitor string, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := f.Failure(); err != nil {
		return err
	}
	job := flushJob{monitor: monitor, samples: samples}
	select {
	case f.jobs <- job:
		return nil
	default:
	}
	timer := time.NewTimer(f.timeout)
	defer timer.Stop()
	select {
	case f.jobs <- job:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: queue full for %s", ErrBackpressureTimeout, f.timeout)
	}
}

// Failure reports the first asynchronous write error, if any.
func (f *Flusher) Failure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure
}

// Close drains the queue, stops the writer, and surfaces any write error.
// Safe to call once; the run's Close path guarantees it runs on every exit.
func (f *Flusher) Close() error {
	close(f.jobs)
	<-f.done
	return f.Failure()
}
