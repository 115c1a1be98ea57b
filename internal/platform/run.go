// Package platform owns the simulation session: the Run step loop with its
// fixed phase ordering, and the Platform registry that tracks active runs
// and routes control commands to them.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"neuroplate/internal/electrode"
	"neuroplate/internal/model"
	"neuroplate/internal/persist"
	"neuroplate/internal/plasticity"
	"neuroplate/internal/recording"
	"neuroplate/internal/solver"
	"neuroplate/internal/stimulus"
	"neuroplate/internal/topology"
)

var (
	ErrInvalidDuration = errors.New("duration must be a positive multiple of the step size")
	ErrRunClosed       = errors.New("run is closed")
)

type Command int

const (
	CommandPause Command = iota
	CommandContinue
	CommandStop
)

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonStopped  StopReason = "stopped"
	StopReasonShutdown StopReason = "shutdown"
)

// RunConfig assembles one run. Everything is validated up front; a
// malformed configuration fails at construction, not at first use.
type RunConfig struct {
	ID       string
	Topology *topology.Topology
	Array    *electrode.Array
	Solver   solver.Solver
	Store    persist.Store

	StepSize        float64
	ElectrodeRadius float64

	Scheduler *stimulus.Scheduler
	Engine    *plasticity.Engine

	// ActivityWindow sizes the running-activity averages feeding the
	// plasticity rules; ActivityVariable is the solver variable observed.
	ActivityWindow   int
	ActivityVariable string

	WeightRule plasticity.WeightConfig

	Monitors       []recording.MonitorSpec
	FlushThreshold int
	QueueSize      int
	FlushTimeout   time.Duration

	Control chan Command
	Log     *slog.Logger
}

// Run drives the simulation. Single-threaded and step-driven: the run loop
// is the only writer during a step; external topology edits go through the
// topology's mutation queue and land at step boundaries.
type Run struct {
	id    string
	cfg   RunConfig
	log   *slog.Logger
	sched *stimulus.Scheduler

	activity *plasticity.ActivityTrace
	coord    *recording.Coordinator
	flusher  *recording.Flusher

	// pendingSyn holds delayed synaptic deliveries keyed by target step.
	pendingSyn map[int][]synDelivery

	created string
	step    int
	closed  bool
	stopped bool
}

type synDelivery struct {
	to    model.UnitID
	value float64
}

func NewRun(ctx context.Context, cfg RunConfig) (*Run, error) {
	if cfg.Topology == nil {
		return nil, fmt.Errorf("topology is required")
	}
	if cfg.Solver == nil {
		return nil, fmt.Errorf("solver is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.StepSize <= 0 {
		return nil, fmt.Errorf("step size must be > 0, got %g", cfg.StepSize)
	}
	if cfg.Array != nil && cfg.ElectrodeRadius <= 0 {
		return nil, fmt.Errorf("electrode radius must be > 0 when an array is attached")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.ActivityWindow < 1 {
		cfg.ActivityWindow = 20
	}
	if cfg.ActivityVariable == "" {
		cfg.ActivityVariable = solver.VarSpike
	}

	sched := cfg.Scheduler
	if sched == nil {
		var err error
		sched, err = stimulus.NewScheduler(cfg.StepSize)
		if err != nil {
			return nil, err
		}
	}

	for _, id := range cfg.Topology.UnitIDs() {
		unit, _ := cfg.Topology.Unit(id)
		if err := cfg.Solver.AddUnit(id, unit.Params); err != nil {
			return nil, fmt.Errorf("register unit with solver: %w", err)
		}
	}

	if err := validateMonitorBindings(cfg); err != nil {
		return nil, err
	}

	flusher := recording.NewFlusher(cfg.Store, cfg.ID, cfg.QueueSize, cfg.FlushTimeout)
	coord := recording.NewCoordinator(flusher, cfg.FlushThreshold)
	for _, spec := range cfg.Monitors {
		if err := coord.Add(spec); err != nil {
			_ = flusher.Close()
			return nil, err
		}
	}

	r := &Run{
		id:         cfg.ID,
		cfg:        cfg,
		log:        cfg.Log,
		sched:      sched,
		activity:   plasticity.NewActivityTrace(cfg.ActivityWindow),
		coord:      coord,
		flusher:    flusher,
		pendingSyn: make(map[int][]synDelivery),
		created:    time.Now().UTC().Format(time.RFC3339),
	}

	record := model.RunRecord{
		ID:           r.id,
		CreatedAtUTC: r.created,
		StepSize:     cfg.StepSize,
		Units:        cfg.Topology.UnitCount(),
		Monitors:     coord.MonitorNames(),
		Status:       model.RunStatusFailed,
	}
	if cfg.Array != nil {
		record.Electrodes = cfg.Array.Len()
	}
	persist.Stamp(&record)
	if err := cfg.Store.SaveRun(ctx, record); err != nil {
		_ = flusher.Close()
		return nil, fmt.Errorf("save run record: %w", err)
	}

	return r, nil
}

// validateMonitorBindings rejects monitors that reference identities or
// variables that do not exist at construction. Absent markers cover only
// targets removed after binding.
func validateMonitorBindings(cfg RunConfig) error {
	exposed := make(map[string]struct{})
	for _, v := range cfg.Solver.Variables() {
		exposed[v] = struct{}{}
	}
	for _, spec := range cfg.Monitors {
		for _, id := range spec.Units {
			if _, ok := cfg.Topology.Unit(id); !ok {
				return fmt.Errorf("monitor %s: %w: %d", spec.Name, topology.ErrUnknownUnit, id)
			}
		}
		for _, id := range spec.Conns {
			if _, ok := cfg.Topology.Connection(id); !ok {
				return fmt.Errorf("monitor %s: %w: %d", spec.Name, topology.ErrUnknownConnection, id)
			}
		}
		if len(spec.Units) > 0 {
			for _, variable := range spec.Variables {
				if _, ok := exposed[variable]; !ok {
					return fmt.Errorf("monitor %s: solver does not expose variable %q", spec.Name, variable)
				}
			}
		}
	}
	return nil
}

func (r *Run) ID() string {
	return r.id
}

// Step returns the next step index to execute; Now is its simulation time.
func (r *Run) Step() int {
	return r.step
}

func (r *Run) Now() float64 {
	return float64(r.step) * r.cfg.StepSize
}

// Schedule places a waveform on an electrode at an absolute start time,
// checked against the current simulation time.
func (r *Run) Schedule(e model.ElectrodeID, w stimulus.Waveform, start float64) error {
	if r.cfg.Array == nil {
		return fmt.Errorf("run has no electrode array")
	}
	if _, err := r.cfg.Array.Position(e); err != nil {
		return err
	}
	return r.sched.Schedule(e, w, start, r.Now())
}

// Run advances the simulation by duration. Fails before the first step if
// duration is not a positive multiple of the step size. Cancellation and
// control commands take effect between steps only.
func (r *Run) Run(ctx context.Context, duration float64) error {
	if r.closed {
		return ErrRunClosed
	}
	steps, ok := stepsFor(duration, r.cfg.StepSize)
	if !ok {
		return fmt.Errorf("%w: duration=%g dt=%g", ErrInvalidDuration, duration, r.cfg.StepSize)
	}

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			r.stopped = true
			return err
		}
		stop, err := r.drainControl(ctx)
		if err != nil {
			r.stopped = true
			return err
		}
		if stop {
			r.stopped = true
			return nil
		}
		if err := r.advanceStep(); err != nil {
			return err
		}
	}
	return nil
}

// drainControl handles pause/continue/stop between steps. Pausing blocks
// until continue, stop, or cancellation arrives.
func (r *Run) drainControl(ctx context.Context) (stop bool, err error) {
	if r.cfg.Control == nil {
		return false, nil
	}
	for {
		select {
		case cmd := <-r.cfg.Control:
			switch cmd {
			case CommandStop:
				return true, nil
			case CommandPause:
				r.log.Info("run paused", "run", r.id, "step", r.step)
			pause:
				for {
					select {
					case <-ctx.Done():
						return false, ctx.Err()
					case next := <-r.cfg.Control:
						if next == CommandStop {
							return true, nil
						}
						if next == CommandContinue {
							r.log.Info("run continued", "run", r.id, "step", r.step)
							break pause
						}
					}
				}
			case CommandContinue:
			}
		default:
			return false, nil
		}
	}
}

// advanceStep executes the fixed per-step sequence: queued external edits
// land at the boundary, then (1) due stimuli apply drive, (2) the solver
// integrates, (3) plasticity runs if this is a checkpoint, (4) monitors
// sample, (5) full buffers move to the persistence stream.
func (r *Run) advanceStep() error {
	step := r.step
	now := r.Now()
	topo := r.cfg.Topology

	if err := topo.ApplyQueued(); err != nil {
		r.log.Warn("queued topology edit rejected", "run", r.id, "step", step, "err", err)
	}

	// (1) external drive: scheduled stimuli plus delayed synaptic input.
	if r.cfg.Array != nil {
		for _, d := range r.sched.Due(step) {
			if err := r.cfg.Array.Stimulate(d.Electrode, r.cfg.ElectrodeRadius, d.Amplitude, func(id model.UnitID, v float64) {
				_ = r.cfg.Solver.AddDrive(id, v)
			}); err != nil {
				return fmt.Errorf("stimulate at step %d: %w", step, err)
			}
		}
	}
	for _, syn := range r.pendingSyn[step] {
		_ = r.cfg.Solver.AddDrive(syn.to, syn.value)
	}
	delete(r.pendingSyn, step)

	// (2) integrate one step.
	if err := r.cfg.Solver.Advance(step, r.cfg.StepSize); err != nil {
		return err
	}
	r.observeActivity()
	if err := r.propagate(step); err != nil {
		return err
	}

	// (3) structural plasticity at checkpoints, atomically before sampling.
	if r.cfg.Engine != nil && r.cfg.Engine.IsCheckpoint(step) {
		result := r.cfg.Engine.RunCheckpoint(step, topo, r.activity)
		if result.Grown > 0 || result.Pruned > 0 {
			r.log.Info("plasticity checkpoint",
				"run", r.id, "step", step, "grown", result.Grown, "pruned", result.Pruned)
		}
	}

	// (4) monitors observe the post-mutation state.
	if err := r.coord.Sample(step, now, topo, r.cfg.Solver); err != nil {
		return err
	}
	if err := r.flusher.Failure(); err != nil {
		return err
	}

	r.step++
	return nil
}

// observeActivity feeds the running-average traces and applies per-step
// weight plasticity from the same observations.
func (r *Run) observeActivity() {
	value := func(id model.UnitID) float64 {
		v, _ := r.cfg.Solver.Value(id, r.cfg.ActivityVariable)
		return v
	}
	for _, id := range r.cfg.Topology.UnitIDs() {
		r.activity.Observe(id, value(id))
	}
	r.activity.Tick()
	if err := plasticity.ApplyWeightRules(r.cfg.Topology, value, r.cfg.WeightRule); err != nil {
		r.log.Warn("weight plasticity skipped", "run", r.id, "step", r.step, "err", err)
	}
}

// propagate schedules synaptic deliveries for units that spiked this step.
// A connection's delay rounds to whole steps, minimum one.
func (r *Run) propagate(step int) error {
	for _, conn := range r.cfg.Topology.Connections() {
		spike, ok := r.cfg.Solver.Value(conn.From, solver.VarSpike)
		if !ok || spike == 0 {
			continue
		}
		delaySteps := int(conn.Delay/r.cfg.StepSize + 0.5)
		if delaySteps < 1 {
			delaySteps = 1
		}
		target := step + delaySteps
		r.pendingSyn[target] = append(r.pendingSyn[target], synDelivery{to: conn.To, value: conn.Weight * spike})
	}
	return nil
}

// Close flushes remaining buffers, stops the background writer, and
// persists the final run record. Guaranteed by callers on every exit path;
// idempotent.
func (r *Run) Close(ctx context.Context, runErr error) error {
	if r.closed {
		return nil
	}
	r.closed = true

	flushErr := r.coord.FlushAll()
	closeErr := r.flusher.Close()

	status := model.RunStatusCompleted
	reason := string(StopReasonNormal)
	switch {
	case runErr != nil || flushErr != nil || closeErr != nil:
		status = model.RunStatusFailed
		if runErr != nil {
			reason = runErr.Error()
		} else if flushErr != nil {
			reason = flushErr.Error()
		} else {
			reason = closeErr.Error()
		}
	case r.stopped:
		status = model.RunStatusStopped
		reason = string(StopReasonStopped)
	}

	record := model.RunRecord{
		ID:           r.id,
		CreatedAtUTC: r.created,
		StepSize:     r.cfg.StepSize,
		Steps:        r.step,
		Units:        r.cfg.Topology.UnitCount(),
		Monitors:     r.coord.MonitorNames(),
		Status:       status,
		StopReason:   reason,
	}
	if r.cfg.Array != nil {
		record.Electrodes = r.cfg.Array.Len()
	}
	persist.Stamp(&record)
	saveErr := r.cfg.Store.SaveRun(ctx, record)

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return closeErr
	}
	return saveErr
}

// stepsFor converts a duration to a whole step count, rejecting durations
// that are not positive multiples of dt (within float tolerance).
func stepsFor(duration, dt float64) (int, bool) {
	if duration <= 0 || dt <= 0 {
		return 0, false
	}
	ratio := duration / dt
	steps := int(math.Floor(ratio + 0.5))
	if steps < 1 {
		return 0, false
	}
	if math.Abs(ratio-float64(steps)) > 1e-9*math.Max(1, ratio) {
		return 0, false
	}
	return steps, true
}
