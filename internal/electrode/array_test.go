package electrode

import (
	"math"
	"testing"

	"neuroplate/internal/model"
	"neuroplate/internal/space"
)

func TestInfluenceSetCachedAndInvalidated(t *testing.T) {
	ix := space.NewIndex(10)
	_ = ix.Insert(1, model.Vec3{X: 1})
	_ = ix.Insert(2, model.Vec3{X: 2})

	array := NewArray(ix, ScaleEqualShare)
	e := array.Add(model.Vec3{})

	got, err := array.InfluenceSet(e, 5)
	if err != nil {
		t.Fatalf("influence set: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 units, got %v", got)
	}

	// A unit added inside the cached radius must invalidate the cache.
	_ = ix.Insert(3, model.Vec3{X: 3})
	array.UnitAdded(3, model.Vec3{X: 3})
	got, _ = array.InfluenceSet(e, 5)
	if len(got) != 3 {
		t.Fatalf("cache not refreshed after in-radius addition, got %v", got)
	}

	// A unit added outside the radius leaves the cache alone, and the
	// result stays correct either way.
	_ = ix.Insert(4, model.Vec3{X: 50})
	array.UnitAdded(4, model.Vec3{X: 50})
	got, _ = array.InfluenceSet(e, 5)
	if len(got) != 3 {
		t.Fatalf("out-of-radius addition changed influence set: %v", got)
	}
}

func TestInfluenceSetUnknownElectrode(t *testing.T) {
	array := NewArray(space.NewIndex(10), ScaleEqualShare)
	if _, err := array.InfluenceSet(99, 5); err == nil {
		t.Fatal("expected unknown electrode error")
	}
}

func TestStimulateEqualShare(t *testing.T) {
	ix := space.NewIndex(10)
	for i := 1; i <= 4; i++ {
		_ = ix.Insert(model.UnitID(i), model.Vec3{X: float64(i)})
	}
	array := NewArray(ix, ScaleEqualShare)
	e := array.Add(model.Vec3{})

	got := make(map[model.UnitID]float64)
	if err := array.Stimulate(e, 10, 2.0, func(id model.UnitID, v float64) {
		got[id] += v
	}); err != nil {
		t.Fatalf("stimulate: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 driven units, got %d", len(got))
	}
	for id, v := range got {
		if math.Abs(v-0.5) > 1e-12 {
			t.Fatalf("unit %d got %g, want 0.5", id, v)
		}
	}
}

func TestStimulateUniformPolicy(t *testing.T) {
	ix := space.NewIndex(10)
	_ = ix.Insert(1, model.Vec3{X: 1})
	_ = ix.Insert(2, model.Vec3{X: 2})
	array := NewArray(ix, ScaleUniform)
	e := array.Add(model.Vec3{})

	got := make(map[model.UnitID]float64)
	_ = array.Stimulate(e, 10, 2.0, func(id model.UnitID, v float64) {
		got[id] += v
	})
	for id, v := range got {
		if v != 2.0 {
			t.Fatalf("unit %d got %g, want 2.0", id, v)
		}
	}
}

func TestOverlappingElectrodesAddDrive(t *testing.T) {
	ix := space.NewIndex(10)
	_ = ix.Insert(1, model.Vec3{})
	array := NewArray(ix, ScaleUniform)
	e1 := array.Add(model.Vec3{X: 1})
	e2 := array.Add(model.Vec3{X: -1})

	total := 0.0
	apply := func(_ model.UnitID, v float64) { total += v }
	_ = array.Stimulate(e1, 5, 1.0, apply)
	_ = array.Stimulate(e2, 5, 0.5, apply)
	if total != 1.5 {
		t.Fatalf("overlapping drive must add, got %g", total)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != ScaleEqualShare {
		t.Fatalf("empty policy: %v %v", p, err)
	}
	if _, err := ParsePolicy("bogus"); err == nil {
		t.Fatal("expected unknown policy error")
	}
}

func TestCentroid(t *testing.T) {
	got := Centroid([]model.Vec3{{X: 0}, {X: 2}, {X: 4}})
	if got.X != 2 || got.Y != 0 || got.Z != 0 {
		t.Fatalf("unexpected centroid: %+v", got)
	}
}
