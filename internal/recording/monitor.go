// Package recording samples topology and solver state each step and moves
// completed buffers to the persistence stream without blocking the step
// loop, up to a bounded backpressure limit.
package recording

import (
	"fmt"

	"neuroplate/internal/model"
	"neuroplate/internal/solver"
	"neuroplate/internal/topology"
)

// Monitor records a variable list for a frozen identity set. Bindings are
// taken at creation; a target removed later is marked absent from that step
// onward, never dropped, so the timestamp series of every target stays
// aligned.
type Monitor struct {
	name      string
	units     []model.UnitID
	conns     []model.ConnID
	variables []string
	every     int

	buffer []model.Sample
}

// MonitorSpec describes one monitor. EverySteps <= 1 samples every step.
type MonitorSpec struct {
	Name       string
	Units      []model.UnitID
	Conns      []model.ConnID
	Variables  []string
	EverySteps int
}

func NewMonitor(spec MonitorSpec) (*Monitor, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("monitor name is required")
	}
	if len(spec.Units) == 0 && len(spec.Conns) == 0 {
		return nil, fmt.Errorf("monitor %s has no targets", spec.Name)
	}
	if len(spec.Variables) == 0 {
		return nil, fmt.Errorf("monitor %s has no variables", spec.Name)
	}
	every := spec.EverySteps
	if every < 1 {
		every = 1
	}
	return &Monitor{
		name:      spec.Name,
		units:     append([]model.UnitID(nil), spec.Units...),
		conns:     append([]model.ConnID(nil), spec.Conns...),
		variables: append([]string(nil), spec.Variables...),
		every:     every,
	}, nil
}

func (m *Monitor) Name() string {
	return m.name
}

func (m *Monitor) due(step int) bool {
	return step%m.every == 0
}

// sample appends this step's observations to the buffer. Connection
// monitors record the "weight" variable; a missing connection or a unit
// variable the solver does not expose yields an absent marker.
func (m *Monitor) sample(step int, t float64, topo *topology.Topology, sv solver.Solver) {
	for _, unit := range m.units {
		for _, variable := range m.variables {
			value, ok := sv.Value(unit, variable)
			m.buffer = append(m.buffer, model.Sample{
				Kind:     model.TargetUnit,
				Target:   int(unit),
				Step:     step,
				Time:     t,
				Variable: variable,
				Value:    value,
				Absent:   !ok,
			})
		}
	}
	for _, connID := range m.conns {
		conn, ok := topo.Connection(connID)
		m.buffer = append(m.buffer, model.Sample{
			Kind:     model.TargetConnection,
			Target:   int(connID),
			Step:     step,
			Time:     t,
			Variable: "weight",
			Value:    conn.Weight,
			Absent:   !ok,
		})
	}
}

func (m *Monitor) take() []model.Sample {
	out := m.buffer
	m.buffer = nil
	return out
}

func (m *Monitor) buffered() int {
	return len(m.buffer)
}
