// Package plasticity mutates the organoid graph at checkpoints. Rules
// propose edits against stable snapshots; the engine resolves each batch
// deterministically and applies it atomically between solver advance and
// monitor sampling, so no monitor ever observes a half-applied batch.
package plasticity

import (
	"fmt"
	"math/rand"

	"neuroplate/internal/model"
	"neuroplate/internal/topology"
)

// TopologyView is the read-only topology surface rules evaluate against.
type TopologyView interface {
	UnitIDs() []model.UnitID
	Unit(model.UnitID) (model.Unit, bool)
	Connections() []model.Connection
	Connected(from, to model.UnitID) bool
}

// ActivityView is the read-only recent-activity surface.
type ActivityView interface {
	Mean(model.UnitID) float64
	CoActivity(u1, u2 model.UnitID) float64
	Steps() int
}

type EditKind string

const (
	EditGrow  EditKind = "grow"
	EditPrune EditKind = "prune"
)

// Edit is one proposed structural change. Grow edits carry endpoints and
// initial weight/delay; prune edits carry the connection identity.
type Edit struct {
	Kind   EditKind
	From   model.UnitID
	To     model.UnitID
	Weight float64
	Delay  float64
	Conn   model.ConnID
	Rule   string
}

// Rule is the shared evaluate contract. Implementations are registered
// explicitly on the engine; there is no reflection-driven discovery.
type Rule interface {
	Name() string
	Evaluate(topo TopologyView, activity ActivityView) ([]Edit, error)
}

// DistanceGrowth proposes a connection between two unconnected units when
// they sit within Radius of each other and their recent co-activity clears
// CoActivityMin. At most MaxPerCheckpoint proposals per evaluation, chosen
// deterministically from a seeded source.
type DistanceGrowth struct {
	Radius           float64
	CoActivityMin    float64
	Weight           float64
	Delay            float64
	MaxPerCheckpoint int
	Rand             *rand.Rand
}

func (r *DistanceGrowth) Name() string {
	return "distance_growth"
}

func (r *DistanceGrowth) Evaluate(topo TopologyView, activity ActivityView) ([]Edit, error) {
	if r.Radius <= 0 {
		return nil, fmt.Errorf("growth radius must be > 0, got %g", r.Radius)
	}
	limit := r.MaxPerCheckpoint
	if limit <= 0 {
		limit = 1
	}
	weight := r.Weight
	if weight == 0 {
		weight = 1
	}

	ids := topo.UnitIDs()
	var candidates []Edit
	for _, from := range ids {
		src, ok := topo.Unit(from)
		if !ok {
			continue
		}
		for _, to := range ids {
			if from == to || topo.Connected(from, to) {
				continue
			}
			dst, _ := topo.Unit(to)
			if src.Position.Dist(dst.Position) > r.Radius {
				continue
			}
			if activity.CoActivity(from, to) <= r.CoActivityMin {
				continue
			}
			candidates = append(candidates, Edit{
				Kind:   EditGrow,
				From:   from,
				To:     to,
				Weight: weight,
				Delay:  r.Delay,
				Rule:   r.Name(),
			})
		}
	}
	if len(candidates) <= limit {
		return candidates, nil
	}
	if r.Rand != nil {
		r.Rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	}
	return candidates[:limit], nil
}

// ActivityPruning removes a connection whose weight magnitude or endpoint
// co-activity has stayed below threshold for SustainSteps worth of
// checkpoints. The below-threshold streak is tracked per connection across
// evaluations; a recovering connection resets its streak.
type ActivityPruning struct {
	WeightMin     float64
	CoActivityMin float64
	SustainSteps  int

	streak map[model.ConnID]int
}

func (r *ActivityPruning) Name() string {
	return "activity_pruning"
}

func (r *ActivityPruning) Evaluate(topo TopologyView, activity ActivityView) ([]Edit, error) {
	if r.SustainSteps < 1 {
		r.SustainSteps = 1
	}
	if r.streak == nil {
		r.streak = make(map[model.ConnID]int)
	}

	live := make(map[model.ConnID]struct{})
	var edits []Edit
	for _, conn := range topo.Connections() {
		live[conn.ID] = struct{}{}
		weak := abs(conn.Weight) < r.WeightMin || activity.CoActivity(conn.From, conn.To) < r.CoActivityMin
		if !weak {
			delete(r.streak, conn.ID)
			continue
		}
		r.streak[conn.ID]++
		if r.streak[conn.ID] >= r.SustainSteps {
			edits = append(edits, Edit{Kind: EditPrune, Conn: conn.ID, Rule: r.Name()})
		}
	}
	// Drop streaks for connections pruned elsewhere.
	for id := range r.streak {
		if _, ok := live[id]; !ok {
			delete(r.streak, id)
		}
	}
	return edits, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// ensure the concrete topology satisfies the read surface rules depend on.
var _ TopologyView = (*topology.Topology)(nil)
