package plasticity

import "neuroplate/internal/model"

// ActivityTrace keeps exponential running averages of per-unit activity,
// fed once per step by the orchestrator from solver state. Co-activity of a
// unit pair is the product of the two averages; cheap, deterministic, and
// good enough to gate growth and pruning decisions.
type ActivityTrace struct {
	alpha float64
	mean  map[model.UnitID]float64
	steps int
}

// NewActivityTrace builds a trace whose averaging window is roughly
// windowSteps steps.
func NewActivityTrace(windowSteps int) *ActivityTrace {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &ActivityTrace{
		alpha: 2 / (float64(windowSteps) + 1),
		mean:  make(map[model.UnitID]float64),
	}
}

func (a *ActivityTrace) Observe(id model.UnitID, value float64) {
	prev := a.mean[id]
	a.mean[id] = prev + a.alpha*(value-prev)
}

func (a *ActivityTrace) Tick() {
	a.steps++
}

func (a *ActivityTrace) Steps() int {
	return a.steps
}

func (a *ActivityTrace) Mean(id model.UnitID) float64 {
	return a.mean[id]
}

func (a *ActivityTrace) CoActivity(u1, u2 model.UnitID) float64 {
	return a.mean[u1] * a.mean[u2]
}
