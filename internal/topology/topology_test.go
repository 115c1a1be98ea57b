package topology

import (
	"errors"
	"testing"

	"neuroplate/internal/model"
)

func buildUnits(n int) []model.Unit {
	units := make([]model.Unit, 0, n)
	for i := 1; i <= n; i++ {
		units = append(units, model.Unit{ID: model.UnitID(i)})
	}
	return units
}

func TestAddGroupDuplicate(t *testing.T) {
	topo := New()
	if err := topo.AddGroup("exc", buildUnits(3), nil); err != nil {
		t.Fatalf("add group: %v", err)
	}
	err := topo.AddGroup("exc", []model.Unit{{ID: 10}}, nil)
	if !errors.Is(err, ErrDuplicateGroup) {
		t.Fatalf("expected ErrDuplicateGroup, got %v", err)
	}
}

func TestConnectUnknownUnit(t *testing.T) {
	topo := New()
	_ = topo.AddGroup("exc", buildUnits(2), nil)

	if _, err := topo.Connect(1, 99, 0.5, 1); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit for target, got %v", err)
	}
	if _, err := topo.Connect(99, 1, 0.5, 1); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit for source, got %v", err)
	}
}

func TestConnectDisconnect(t *testing.T) {
	topo := New()
	_ = topo.AddGroup("exc", buildUnits(3), nil)

	c1, err := topo.Connect(1, 2, 0.5, 1)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	c2, err := topo.Connect(1, 3, 0.7, 1)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c1 == c2 {
		t.Fatal("connection identities must be unique")
	}

	out, err := topo.NeighborsOut(1)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(out) != 2 || out[0].ID != c1 || out[1].ID != c2 {
		t.Fatalf("unexpected neighbors: %+v", out)
	}

	if err := topo.Disconnect(c1); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	out, _ = topo.NeighborsOut(1)
	if len(out) != 1 || out[0].ID != c2 {
		t.Fatalf("pruned connection still visible: %+v", out)
	}

	if err := topo.Disconnect(c1); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestSelfLoopsAndDuplicateEdgesAllowed(t *testing.T) {
	topo := New()
	_ = topo.AddGroup("exc", buildUnits(2), nil)

	if _, err := topo.Connect(1, 1, 0.1, 1); err != nil {
		t.Fatalf("self loop rejected: %v", err)
	}
	if _, err := topo.Connect(1, 2, 0.1, 1); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := topo.Connect(1, 2, 0.2, 1); err != nil {
		t.Fatalf("duplicate edge rejected: %v", err)
	}
	if topo.ConnectionCount() != 3 {
		t.Fatalf("expected 3 connections, got %d", topo.ConnectionCount())
	}
}

func TestQueuedEditsApplyAtBoundary(t *testing.T) {
	topo := New()
	_ = topo.AddGroup("exc", buildUnits(2), nil)

	topo.QueueConnect(1, 2, 0.5, 1)
	if topo.ConnectionCount() != 0 {
		t.Fatal("queued connect applied early")
	}
	if topo.QueuedCount() != 1 {
		t.Fatalf("expected 1 queued edit, got %d", topo.QueuedCount())
	}

	if err := topo.ApplyQueued(); err != nil {
		t.Fatalf("apply queued: %v", err)
	}
	if topo.ConnectionCount() != 1 {
		t.Fatal("queued connect not applied at boundary")
	}
	if topo.QueuedCount() != 0 {
		t.Fatal("queue not drained")
	}

	conns := topo.Connections()
	topo.QueueDisconnect(conns[0].ID)
	if err := topo.ApplyQueued(); err != nil {
		t.Fatalf("apply queued disconnect: %v", err)
	}
	if topo.ConnectionCount() != 0 {
		t.Fatal("queued disconnect not applied")
	}
}

func TestQueuedEditFailureStopsDrain(t *testing.T) {
	topo := New()
	_ = topo.AddGroup("exc", buildUnits(2), nil)

	topo.QueueConnect(1, 99, 0.5, 1)
	topo.QueueConnect(1, 2, 0.5, 1)
	if err := topo.ApplyQueued(); err == nil {
		t.Fatal("expected queued connect to unknown unit to fail")
	}
	// The remaining edit survives for the next boundary.
	if topo.QueuedCount() != 1 {
		t.Fatalf("expected 1 remaining edit, got %d", topo.QueuedCount())
	}
	if err := topo.ApplyQueued(); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if !topo.Connected(1, 2) {
		t.Fatal("surviving edit not applied")
	}
}

func TestWatcherSeesUnitAdditions(t *testing.T) {
	topo := New()
	var seen []model.UnitID
	topo.Watch(watcherFunc(func(id model.UnitID, _ model.Vec3) {
		seen = append(seen, id)
	}))

	_ = topo.AddGroup("exc", buildUnits(3), nil)
	if len(seen) != 3 {
		t.Fatalf("watcher saw %d additions, want 3", len(seen))
	}
}

type watcherFunc func(model.UnitID, model.Vec3)

func (f watcherFunc) UnitAdded(id model.UnitID, pos model.Vec3) { f(id, pos) }
