// Package electrode models a fixed micro-electrode array over the organoid.
// Each electrode caches its influence set, the ordered units within its
// stimulation radius, computed through the spatial index.
package electrode

import (
	"errors"
	"fmt"

	"neuroplate/internal/model"
	"neuroplate/internal/space"
)

var (
	ErrUnknownElectrode = errors.New("unknown electrode")
	ErrUnknownPolicy    = errors.New("unknown stimulus scaling policy")
)

// ScalePolicy pins how a scalar drive is split across an influence set.
type ScalePolicy string

const (
	// ScaleEqualShare divides the drive by the influence-set size.
	ScaleEqualShare ScalePolicy = "equal_share"
	// ScaleUniform delivers the whole drive to every unit in range.
	ScaleUniform ScalePolicy = "uniform"
)

func ParsePolicy(name string) (ScalePolicy, error) {
	switch name {
	case "", string(ScaleEqualShare):
		return ScaleEqualShare, nil
	case string(ScaleUniform):
		return ScaleUniform, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownPolicy, name)
	}
}

type Array struct {
	index  *space.Index
	policy ScalePolicy

	electrodes map[model.ElectrodeID]model.Vec3
	order      []model.ElectrodeID
	next       model.ElectrodeID

	cache map[cacheKey][]model.UnitID
}

type cacheKey struct {
	id     model.ElectrodeID
	radius float64
}

func NewArray(index *space.Index, policy ScalePolicy) *Array {
	if policy == "" {
		policy = ScaleEqualShare
	}
	return &Array{
		index:      index,
		policy:     policy,
		electrodes: make(map[model.ElectrodeID]model.Vec3),
		next:       1,
		cache:      make(map[cacheKey][]model.UnitID),
	}
}

func (a *Array) Add(pos model.Vec3) model.ElectrodeID {
	id := a.next
	a.next++
	a.electrodes[id] = pos
	a.order = append(a.order, id)
	return id
}

func (a *Array) Position(id model.ElectrodeID) (model.Vec3, error) {
	pos, ok := a.electrodes[id]
	if !ok {
		return model.Vec3{}, fmt.Errorf("%w: %d", ErrUnknownElectrode, id)
	}
	return pos, nil
}

func (a *Array) IDs() []model.ElectrodeID {
	return append([]model.ElectrodeID(nil), a.order...)
}

func (a *Array) Len() int {
	return len(a.order)
}

// UnitAdded implements topology.UnitWatcher. A new unit inside a cached
// radius makes that cache entry stale; the entry is dropped and recomputed
// on next use.
func (a *Array) UnitAdded(_ model.UnitID, pos model.Vec3) {
	for key := range a.cache {
		center := a.electrodes[key.id]
		if center.DistSq(pos) <= key.radius*key.radius {
			delete(a.cache, key)
		}
	}
}

// InfluenceSet returns the ordered units within radius of the electrode,
// cached per (electrode, radius).
func (a *Array) InfluenceSet(id model.ElectrodeID, radius float64) ([]model.UnitID, error) {
	pos, ok := a.electrodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownElectrode, id)
	}
	key := cacheKey{id: id, radius: radius}
	if cached, ok := a.cache[key]; ok {
		return cached, nil
	}
	units := a.index.QueryRadius(pos, radius)
	a.cache[key] = units
	return units, nil
}

// Stimulate distributes drive across the electrode's influence set for the
// current step, calling apply once per unit with that unit's share. The
// orchestration layer never integrates drive; apply adds it to the unit's
// external-drive input on the solver. Overlapping electrodes within one
// step therefore contribute additively.
func (a *Array) Stimulate(id model.ElectrodeID, radius, drive float64, apply func(model.UnitID, float64)) error {
	units, err := a.InfluenceSet(id, radius)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return nil
	}
	perUnit := drive
	if a.policy == ScaleEqualShare {
		perUnit = drive / float64(len(units))
	}
	for _, unit := range units {
		apply(unit, perUnit)
	}
	return nil
}

// Centroid of the given positions; the organoid builder places single
// electrodes here by default.
func Centroid(positions []model.Vec3) model.Vec3 {
	if len(positions) == 0 {
		return model.Vec3{}
	}
	var sum model.Vec3
	for _, p := range positions {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(positions)))
}
