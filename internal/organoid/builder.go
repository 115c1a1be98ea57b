// Package organoid builds the initial simulated culture: unit placement in
// 3D, group assembly, distance-dependent initial wiring, and electrode
// layouts. Everything is driven by a seeded source so a config and a seed
// reproduce the same organoid exactly.
package organoid

import (
	"fmt"
	"math"
	"math/rand"

	"neuroplate/internal/electrode"
	"neuroplate/internal/model"
	"neuroplate/internal/space"
	"neuroplate/internal/topology"
)

const (
	DistributionCube    = "cube"
	DistributionSphere  = "sphere"
	DistributionCluster = "cluster"
)

// GroupSpec is one neuron population to place.
type GroupSpec struct {
	Name     string
	Count    int
	Template map[string]float64
}

// WiringSpec controls initial connectivity: connection probability decays
// exponentially with distance over LengthScale, weights and delays are
// drawn uniformly from their ranges.
type WiringSpec struct {
	Probability float64
	LengthScale float64
	WeightMin   float64
	WeightMax   float64
	DelayMin    float64
	DelayMax    float64
}

// Spec describes the whole organoid.
type Spec struct {
	Seed         int64
	Distribution string
	Extent       float64
	Groups       []GroupSpec
	Wiring       WiringSpec
}

// Built is the assembled organoid: the live topology, the spatial index
// the electrode array targets through, and the array itself (electrodes
// added separately via PlaceElectrodes).
type Built struct {
	Topology *topology.Topology
	Index    *space.Index
	Array    *electrode.Array
	Units    []model.Unit
}

// Build assembles topology, spatial index, and electrode array from the
// spec. The array is registered as a topology watcher before any unit is
// inserted, so influence caches can never go stale unnoticed.
func Build(spec Spec, policy electrode.ScalePolicy) (*Built, error) {
	if spec.Extent <= 0 {
		return nil, fmt.Errorf("organoid extent must be > 0, got %g", spec.Extent)
	}
	if len(spec.Groups) == 0 {
		return nil, fmt.Errorf("at least one group is required")
	}
	switch spec.Distribution {
	case "", DistributionCube, DistributionSphere, DistributionCluster:
	default:
		return nil, fmt.Errorf("unsupported distribution: %s", spec.Distribution)
	}

	rng := rand.New(rand.NewSource(spec.Seed))
	topo := topology.New()
	// Cell size near a tenth of the extent keeps radius queries local at
	// organoid scale.
	index := space.NewIndex(spec.Extent / 10)
	array := electrode.NewArray(index, policy)
	topo.Watch(array)
	topo.Watch(indexWatcher{index})

	var all []model.Unit
	next := model.UnitID(1)
	for _, group := range spec.Groups {
		if group.Name == "" {
			return nil, fmt.Errorf("group name is required")
		}
		if group.Count < 1 {
			return nil, fmt.Errorf("group %s count must be >= 1, got %d", group.Name, group.Count)
		}
		units := make([]model.Unit, 0, group.Count)
		for i := 0; i < group.Count; i++ {
			units = append(units, model.Unit{
				ID:       next,
				Position: placeUnit(rng, spec.Distribution, spec.Extent),
				Params:   group.Template,
			})
			next++
		}
		if err := topo.AddGroup(group.Name, units, group.Template); err != nil {
			return nil, err
		}
		all = append(all, units...)
	}

	if err := wire(rng, topo, all, spec.Wiring); err != nil {
		return nil, err
	}

	return &Built{Topology: topo, Index: index, Array: array, Units: all}, nil
}

type indexWatcher struct {
	index *space.Index
}

func (w indexWatcher) UnitAdded(id model.UnitID, pos model.Vec3) {
	// Duplicate identities are rejected upstream by the topology.
	_ = w.index.Insert(id, pos)
}

func placeUnit(rng *rand.Rand, distribution string, extent float64) model.Vec3 {
	switch distribution {
	case DistributionSphere:
		// Rejection sample inside the ball of radius extent/2 around the
		// cube center.
		r := extent / 2
		center := model.Vec3{X: r, Y: r, Z: r}
		for {
			p := model.Vec3{
				X: rng.Float64() * extent,
				Y: rng.Float64() * extent,
				Z: rng.Float64() * extent,
			}
			if p.DistSq(center) <= r*r {
				return p
			}
		}
	case DistributionCluster:
		// Gaussian cluster around the cube center, clamped to the cube.
		r := extent / 2
		sigma := extent / 6
		return model.Vec3{
			X: clamp(r+rng.NormFloat64()*sigma, 0, extent),
			Y: clamp(r+rng.NormFloat64()*sigma, 0, extent),
			Z: clamp(r+rng.NormFloat64()*sigma, 0, extent),
		}
	default:
		return model.Vec3{
			X: rng.Float64() * extent,
			Y: rng.Float64() * extent,
			Z: rng.Float64() * extent,
		}
	}
}

func wire(rng *rand.Rand, topo *topology.Topology, units []model.Unit, spec WiringSpec) error {
	if spec.Probability <= 0 {
		return nil
	}
	scale := spec.LengthScale
	if scale <= 0 {
		scale = math.Inf(1)
	}
	for _, from := range units {
		for _, to := range units {
			if from.ID == to.ID {
				continue
			}
			p := spec.Probability * math.Exp(-from.Position.Dist(to.Position)/scale)
			if rng.Float64() >= p {
				continue
			}
			weight := uniformIn(rng, spec.WeightMin, spec.WeightMax)
			delay := uniformIn(rng, spec.DelayMin, spec.DelayMax)
			if _, err := topo.Connect(from.ID, to.ID, weight, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

func uniformIn(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
