package organoid

import (
	"testing"

	"neuroplate/internal/electrode"
	"neuroplate/internal/model"
)

func baseSpec() Spec {
	return Spec{
		Seed:         42,
		Distribution: DistributionSphere,
		Extent:       100,
		Groups: []GroupSpec{
			{Name: "excitatory", Count: 30, Template: map[string]float64{"tau": 0.02}},
			{Name: "inhibitory", Count: 10, Template: map[string]float64{"tau": 0.01}},
		},
		Wiring: WiringSpec{
			Probability: 0.3,
			LengthScale: 40,
			WeightMin:   0.1,
			WeightMax:   0.5,
			DelayMin:    0.001,
			DelayMax:    0.002,
		},
	}
}

func TestBuildAssemblesGroups(t *testing.T) {
	b, err := Build(baseSpec(), electrode.ScaleEqualShare)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := b.Topology.UnitCount(); got != 40 {
		t.Fatalf("unit count %d, want 40", got)
	}
	if got := b.Topology.Groups(); len(got) != 2 || got[0] != "excitatory" || got[1] != "inhibitory" {
		t.Fatalf("groups: %v", got)
	}
	g, ok := b.Topology.Group("excitatory")
	if !ok || len(g.Units) != 30 {
		t.Fatalf("excitatory group: %+v", g)
	}
	// Identities are assigned sequentially across groups.
	if g.Units[0] != 1 || g.Units[29] != 30 {
		t.Fatalf("excitatory ids: %v", g.Units)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	a, err := Build(baseSpec(), electrode.ScaleEqualShare)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, err := Build(baseSpec(), electrode.ScaleEqualShare)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if len(a.Units) != len(b.Units) {
		t.Fatalf("unit counts differ: %d vs %d", len(a.Units), len(b.Units))
	}
	for i := range a.Units {
		if a.Units[i].Position != b.Units[i].Position {
			t.Fatalf("unit %d placed differently: %+v vs %+v", i, a.Units[i].Position, b.Units[i].Position)
		}
	}
	ca, cb := a.Topology.Connections(), b.Topology.Connections()
	if len(ca) != len(cb) {
		t.Fatalf("connection counts differ: %d vs %d", len(ca), len(cb))
	}
	for i := range ca {
		if ca[i] != cb[i] {
			t.Fatalf("connection %d differs: %+v vs %+v", i, ca[i], cb[i])
		}
	}

	spec := baseSpec()
	spec.Seed = 43
	c, err := Build(spec, electrode.ScaleEqualShare)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	same := true
	for i := range a.Units {
		if a.Units[i].Position != c.Units[i].Position {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical placements")
	}
}

func TestPlacementStaysInBounds(t *testing.T) {
	for _, distribution := range []string{DistributionCube, DistributionSphere, DistributionCluster} {
		spec := baseSpec()
		spec.Distribution = distribution
		spec.Groups = []GroupSpec{{Name: "g", Count: 200}}
		b, err := Build(spec, electrode.ScaleEqualShare)
		if err != nil {
			t.Fatalf("%s: build: %v", distribution, err)
		}
		center := model.Vec3{X: 50, Y: 50, Z: 50}
		for _, u := range b.Units {
			p := u.Position
			if p.X < 0 || p.X > 100 || p.Y < 0 || p.Y > 100 || p.Z < 0 || p.Z > 100 {
				t.Fatalf("%s: unit %d outside cube: %+v", distribution, u.ID, p)
			}
			if distribution == DistributionSphere && p.Dist(center) > 50+1e-9 {
				t.Fatalf("sphere: unit %d outside ball: %+v", u.ID, p)
			}
		}
	}
}

func TestWiringBoundsAndDisabled(t *testing.T) {
	b, err := Build(baseSpec(), electrode.ScaleEqualShare)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	conns := b.Topology.Connections()
	if len(conns) == 0 {
		t.Fatal("expected initial wiring at probability 0.3")
	}
	for _, c := range conns {
		if c.From == c.To {
			t.Fatalf("initial wiring made a self-loop: %+v", c)
		}
		if c.Weight < 0.1 || c.Weight > 0.5 {
			t.Fatalf("weight out of range: %+v", c)
		}
		if c.Delay < 0.001 || c.Delay > 0.002 {
			t.Fatalf("delay out of range: %+v", c)
		}
	}

	spec := baseSpec()
	spec.Wiring.Probability = 0
	quiet, err := Build(spec, electrode.ScaleEqualShare)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := quiet.Topology.ConnectionCount(); got != 0 {
		t.Fatalf("probability 0 still wired %d connections", got)
	}
}

func TestBuildValidation(t *testing.T) {
	spec := baseSpec()
	spec.Extent = 0
	if _, err := Build(spec, electrode.ScaleEqualShare); err == nil {
		t.Fatal("zero extent accepted")
	}

	spec = baseSpec()
	spec.Groups = nil
	if _, err := Build(spec, electrode.ScaleEqualShare); err == nil {
		t.Fatal("no groups accepted")
	}

	spec = baseSpec()
	spec.Distribution = "torus"
	if _, err := Build(spec, electrode.ScaleEqualShare); err == nil {
		t.Fatal("unknown distribution accepted")
	}

	spec = baseSpec()
	spec.Groups[0].Count = 0
	if _, err := Build(spec, electrode.ScaleEqualShare); err == nil {
		t.Fatal("zero count accepted")
	}
}

func TestIndexTracksPlacedUnits(t *testing.T) {
	b, err := Build(baseSpec(), electrode.ScaleEqualShare)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// A radius spanning the whole cube must see every unit.
	center := model.Vec3{X: 50, Y: 50, Z: 50}
	got := b.Index.QueryRadius(center, 200)
	if len(got) != len(b.Units) {
		t.Fatalf("index sees %d units, want %d", len(got), len(b.Units))
	}
}

func TestPlaceElectrodesCentroid(t *testing.T) {
	b, err := Build(baseSpec(), electrode.ScaleEqualShare)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ids, err := PlaceElectrodes(b, ElectrodeLayout{Kind: LayoutCentroid})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(ids) != 1 || b.Array.Len() != 1 {
		t.Fatalf("centroid layout placed %d electrodes", len(ids))
	}
	pos, err := b.Array.Position(ids[0])
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	// The centroid of a sphere placement sits near the cube center.
	if pos.Dist(model.Vec3{X: 50, Y: 50, Z: 50}) > 25 {
		t.Fatalf("centroid electrode far from center: %+v", pos)
	}
}

func TestPlaceElectrodesGrid(t *testing.T) {
	b, err := Build(baseSpec(), electrode.ScaleEqualShare)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ids, err := PlaceElectrodes(b, ElectrodeLayout{Kind: LayoutGrid, Rows: 2, Cols: 3, Z: 5, Spacing: 10})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(ids) != 6 {
		t.Fatalf("grid placed %d electrodes, want 6", len(ids))
	}
	last, err := b.Array.Position(ids[5])
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	want := model.Vec3{X: 20, Y: 10, Z: 5}
	if last != want {
		t.Fatalf("last grid electrode at %+v, want %+v", last, want)
	}

	if _, err := PlaceElectrodes(b, ElectrodeLayout{Kind: LayoutGrid}); err == nil {
		t.Fatal("grid without rows/cols accepted")
	}
	if _, err := PlaceElectrodes(b, ElectrodeLayout{Kind: "ring"}); err == nil {
		t.Fatal("unknown layout accepted")
	}
}
