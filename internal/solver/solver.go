// Package solver defines the boundary to the differential-equation
// integration engine. The orchestrator only ever talks to the Solver
// interface; LeakyIntegrator is the in-process reference engine used by the
// CLI and the test suite.
package solver

import (
	"fmt"

	"neuroplate/internal/model"
)

// Solver advances model state one step at a time and exposes state values
// by variable name and unit identity. Drive added via AddDrive applies to
// the next Advance only.
type Solver interface {
	AddUnit(id model.UnitID, params map[string]float64) error
	AddDrive(id model.UnitID, value float64) error
	Advance(step int, dt float64) error
	Value(id model.UnitID, variable string) (float64, bool)
	SetValue(id model.UnitID, variable string, value float64) error
	Variables() []string
}

// StepError reports a numeric failure with enough context to diagnose it:
// the step index and the offending unit. Never silently recovered.
type StepError struct {
	Step int
	Unit model.UnitID
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("solver failed at step %d, unit %d: %v", e.Step, e.Unit, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
