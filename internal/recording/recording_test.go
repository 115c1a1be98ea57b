package recording

import (
	"context"
	"errors"
	"testing"
	"time"

	"neuroplate/internal/model"
	"neuroplate/internal/persist"
	"neuroplate/internal/solver"
	"neuroplate/internal/topology"
)

func newTestTopology(t *testing.T) (*topology.Topology, *solver.LeakyIntegrator) {
	t.Helper()
	topo := topology.New()
	units := []model.Unit{
		{ID: 1, Position: model.Vec3{}},
		{ID: 2, Position: model.Vec3{X: 1}},
	}
	if err := topo.AddGroup("culture", units, nil); err != nil {
		t.Fatalf("add group: %v", err)
	}
	sv := solver.NewLeakyIntegrator()
	for _, u := range units {
		if err := sv.AddUnit(u.ID, nil); err != nil {
			t.Fatalf("add unit: %v", err)
		}
	}
	return topo, sv
}

func TestMonitorValidation(t *testing.T) {
	if _, err := NewMonitor(MonitorSpec{Units: []model.UnitID{1}, Variables: []string{"v"}}); err == nil {
		t.Fatal("unnamed monitor accepted")
	}
	if _, err := NewMonitor(MonitorSpec{Name: "m", Variables: []string{"v"}}); err == nil {
		t.Fatal("monitor without targets accepted")
	}
	if _, err := NewMonitor(MonitorSpec{Name: "m", Units: []model.UnitID{1}}); err == nil {
		t.Fatal("monitor without variables accepted")
	}
}

func TestSamplingCadence(t *testing.T) {
	topo, sv := newTestTopology(t)
	m, err := NewMonitor(MonitorSpec{
		Name: "m", Units: []model.UnitID{1}, Variables: []string{"v"}, EverySteps: 3,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	for step := 0; step < 10; step++ {
		if m.due(step) {
			m.sample(step, float64(step)*0.1, topo, sv)
		}
	}
	samples := m.take()
	// Steps 0, 3, 6, 9.
	if len(samples) != 4 {
		t.Fatalf("got %d samples, want 4", len(samples))
	}
	for i, step := range []int{0, 3, 6, 9} {
		if samples[i].Step != step {
			t.Fatalf("sample %d recorded step %d, want %d", i, samples[i].Step, step)
		}
	}
}

func TestAbsentMarkerForUnknownVariable(t *testing.T) {
	topo, sv := newTestTopology(t)
	m, _ := NewMonitor(MonitorSpec{
		Name: "m", Units: []model.UnitID{1}, Variables: []string{"v", "conductance"},
	})
	m.sample(0, 0, topo, sv)
	samples := m.take()
	if len(samples) != 2 {
		t.Fatalf("got %d samples", len(samples))
	}
	if samples[0].Variable != "v" || samples[0].Absent {
		t.Fatalf("known variable marked absent: %+v", samples[0])
	}
	if samples[1].Variable != "conductance" || !samples[1].Absent {
		t.Fatalf("unknown variable not marked absent: %+v", samples[1])
	}
}

func TestConnectionMonitorSurvivesPrune(t *testing.T) {
	topo, sv := newTestTopology(t)
	id, err := topo.Connect(1, 2, 0.7, 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	m, _ := NewMonitor(MonitorSpec{
		Name: "weights", Conns: []model.ConnID{id}, Variables: []string{"weight"},
	})

	m.sample(0, 0, topo, sv)
	if err := topo.Disconnect(id); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	m.sample(1, 0.1, topo, sv)

	samples := m.take()
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].Absent || samples[0].Value != 0.7 {
		t.Fatalf("pre-prune sample: %+v", samples[0])
	}
	if !samples[1].Absent {
		t.Fatalf("post-prune sample not marked absent: %+v", samples[1])
	}
	if samples[1].Target != int(id) || samples[1].Step != 1 {
		t.Fatalf("post-prune sample misaligned: %+v", samples[1])
	}
}

func TestFlusherRoundTrip(t *testing.T) {
	store := persist.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	f := NewFlusher(store, "run-1", 4, time.Second)

	samples := []model.Sample{
		{Kind: model.TargetUnit, Target: 1, Step: 0, Time: 0, Variable: "v", Value: 0.5},
		{Kind: model.TargetUnit, Target: 1, Step: 1, Time: 0.1, Variable: "v", Value: 0.6},
	}
	if err := f.Enqueue("m", samples); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := store.ReadSamples(context.Background(), "run-1", "m", 0, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Value != 0.5 || got[1].Value != 0.6 {
		t.Fatalf("round trip: %+v", got)
	}
}

// blockingStore freezes WriteSamples until released, to drive the
// backpressure path.
type blockingStore struct {
	persist.Store
	release chan struct{}
}

func (s *blockingStore) WriteSamples(ctx context.Context, runID, monitor string, samples []model.Sample) error {
	<-s.release
	return s.Store.WriteSamples(ctx, runID, monitor, samples)
}

func TestBackpressureTimeout(t *testing.T) {
	mem := persist.NewMemoryStore()
	_ = mem.Init(context.Background())
	blocked := &blockingStore{Store: mem, release: make(chan struct{})}

	f := NewFlusher(blocked, "run-1", 1, 20*time.Millisecond)
	sample := []model.Sample{{Kind: model.TargetUnit, Target: 1, Variable: "v"}}

	// First buffer is picked up by the writer and blocks there; second fills
	// the queue; third must time out.
	var err error
	for i := 0; i < 3; i++ {
		if err = f.Enqueue("m", sample); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrBackpressureTimeout) {
		t.Fatalf("expected ErrBackpressureTimeout, got %v", err)
	}
	close(blocked.release)
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

type failingStore struct {
	persist.Store
}

func (s *failingStore) WriteSamples(context.Context, string, string, []model.Sample) error {
	return errors.New("disk gone")
}

func TestFlusherSurfacesWriteFailure(t *testing.T) {
	mem := persist.NewMemoryStore()
	_ = mem.Init(context.Background())
	f := NewFlusher(&failingStore{Store: mem}, "run-1", 4, time.Second)

	sample := []model.Sample{{Kind: model.TargetUnit, Target: 1, Variable: "v"}}
	_ = f.Enqueue("m", sample)
	err := f.Close()
	if err == nil {
		t.Fatal("write failure not surfaced")
	}
}

func TestCoordinatorThresholdFlush(t *testing.T) {
	topo, sv := newTestTopology(t)
	store := persist.NewMemoryStore()
	_ = store.Init(context.Background())
	f := NewFlusher(store, "run-1", 8, time.Second)

	c := NewCoordinator(f, 3)
	err := c.Add(MonitorSpec{Name: "m", Units: []model.UnitID{1, 2}, Variables: []string{"v"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(MonitorSpec{Name: "m", Units: []model.UnitID{1}, Variables: []string{"v"}}); err == nil {
		t.Fatal("duplicate monitor accepted")
	}

	// Two samples per step; threshold 3 trips on step 1 with 4 buffered.
	for step := 0; step < 3; step++ {
		if err := c.Sample(step, float64(step)*0.1, topo, sv); err != nil {
			t.Fatalf("sample step %d: %v", step, err)
		}
	}
	if err := c.FlushAll(); err != nil {
		t.Fatalf("flush all: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := store.ReadSamples(context.Background(), "run-1", "m", 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("got %d samples, want 6", len(got))
	}
	for i, s := range got {
		if s.Step != i/2 {
			t.Fatalf("sample %d out of order: %+v", i, s)
		}
	}
}
