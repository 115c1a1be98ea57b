package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"neuroplate/internal/model"
)

// Parameter keys understood by LeakyIntegrator. Unknown keys are ignored so
// group templates can carry parameters for richer engines.
const (
	ParamTau        = "tau"
	ParamRest       = "rest"
	ParamResistance = "resistance"
	ParamThreshold  = "threshold"
	ParamReset      = "reset"
)

// Exposed state variables.
const (
	VarV     = "v"
	VarSpike = "spike"
	VarDrive = "drive"
)

var (
	ErrUnknownSolverUnit = errors.New("unit not registered with solver")
	ErrUnknownVariable   = errors.New("unknown state variable")
	errNonFinite         = errors.New("non-finite state value")
)

type leakyUnit struct {
	tau        float64
	rest       float64
	resistance float64
	threshold  float64
	reset      float64
	fires      bool

	v     float64
	spike float64
	// drive accumulates injections for the next step; lastDrive is what the
	// previous Advance consumed, exposed as the observable "drive" variable.
	drive     float64
	lastDrive float64
}

// LeakyIntegrator integrates dv/dt = (-(v - rest) + R*I) / tau with forward
// Euler, with an optional threshold/reset spike mechanism when a threshold
// parameter is present. It is the reference collaborator behind the Solver
// boundary, not a biophysically faithful neuron.
type LeakyIntegrator struct {
	units map[model.UnitID]*leakyUnit
	order []model.UnitID
}

func NewLeakyIntegrator() *LeakyIntegrator {
	return &LeakyIntegrator{units: make(map[model.UnitID]*leakyUnit)}
}

func (s *LeakyIntegrator) AddUnit(id model.UnitID, params map[string]float64) error {
	if _, exists := s.units[id]; exists {
		return fmt.Errorf("unit %d already registered", id)
	}
	u := &leakyUnit{tau: 1, resistance: 1}
	if v, ok := params[ParamTau]; ok && v > 0 {
		u.tau = v
	}
	if v, ok := params[ParamRest]; ok {
		u.rest = v
		u.v = v
	}
	if v, ok := params[ParamResistance]; ok {
		u.resistance = v
	}
	if v, ok := params[ParamThreshold]; ok {
		u.threshold = v
		u.fires = true
		u.reset = u.rest
	}
	if v, ok := params[ParamReset]; ok {
		u.reset = v
	}
	s.units[id] = u
	s.order = append(s.order, id)
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	return nil
}

func (s *LeakyIntegrator) AddDrive(id model.UnitID, value float64) error {
	u, ok := s.units[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSolverUnit, id)
	}
	u.drive += value
	return nil
}

func (s *LeakyIntegrator) Advance(step int, dt float64) error {
	for _, id := range s.order {
		u := s.units[id]
		dv := (-(u.v - u.rest) + u.resistance*u.drive) / u.tau
		u.v += dv * dt
		u.spike = 0
		if u.fires && u.v >= u.threshold {
			u.v = u.reset
			u.spike = 1
		}
		if math.IsNaN(u.v) || math.IsInf(u.v, 0) {
			return &StepError{Step: step, Unit: id, Err: errNonFinite}
		}
		u.lastDrive = u.drive
		u.drive = 0
	}
	return nil
}

func (s *LeakyIntegrator) Value(id model.UnitID, variable string) (float64, bool) {
	u, ok := s.units[id]
	if !ok {
		return 0, false
	}
	switch variable {
	case VarV:
		return u.v, true
	case VarSpike:
		return u.spike, true
	case VarDrive:
		return u.lastDrive, true
	default:
		return 0, false
	}
}

func (s *LeakyIntegrator) SetValue(id model.UnitID, variable string, value float64) error {
	u, ok := s.units[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSolverUnit, id)
	}
	switch variable {
	case VarV:
		u.v = value
	case VarSpike:
		u.spike = value
	case VarDrive:
		u.drive = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownVariable, variable)
	}
	return nil
}

func (s *LeakyIntegrator) Variables() []string {
	return []string{VarV, VarSpike, VarDrive}
}
