package persist

import (
	"context"
	"sort"
	"sync"

	"neuroplate/internal/model"
)

type sampleKey struct {
	runID   string
	monitor string
}

type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]model.RunRecord
	order   []string
	samples map[sampleKey][]model.Sample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]model.RunRecord)
	s.order = nil
	s.samples = make(map[sampleKey][]model.Sample)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.runs[id])
	}
	return out, nil
}

func (s *MemoryStore) WriteSamples(_ context.Context, runID, monitor string, samples []model.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sampleKey{runID: runID, monitor: monitor}
	s.samples[key] = append(s.samples[key], samples...)
	return nil
}

func (s *MemoryStore) ReadSamples(_ context.Context, runID, monitor string, t0, t1 float64) ([]model.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.samples[sampleKey{runID: runID, monitor: monitor}]
	out := make([]model.Sample, 0, len(all))
	for _, sample := range all {
		if sample.Time >= t0 && sample.Time <= t1 {
			out = append(out, sample)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
