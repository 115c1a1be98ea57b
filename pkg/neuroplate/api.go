// Package neuroplate is the public programmatic surface: build an organoid
// experiment from a configuration, execute it, and query the recordings it
// left behind. The CLI and notebook-style scripts both sit on this facade.
package neuroplate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"neuroplate/internal/config"
	"neuroplate/internal/electrode"
	"neuroplate/internal/model"
	"neuroplate/internal/organoid"
	"neuroplate/internal/persist"
	"neuroplate/internal/plasticity"
	"neuroplate/internal/platform"
	"neuroplate/internal/recording"
	"neuroplate/internal/solver"
	"neuroplate/internal/stimulus"
)

const defaultDBPath = "neuroplate.db"

type Options struct {
	StoreKind string
	DBPath    string
	Log       *slog.Logger
}

type Client struct {
	platform *platform.Platform
	log      *slog.Logger
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	path := opts.DBPath
	if path == "" {
		path = defaultDBPath
	}
	store, err := persist.NewStore(opts.StoreKind, path)
	if err != nil {
		return nil, err
	}
	p := platform.New(store)
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Client{platform: p, log: log}, nil
}

func (c *Client) Close() error {
	return c.platform.Shutdown(platform.StopReasonShutdown)
}

// RunSummary reports one executed experiment.
type RunSummary struct {
	RunID      string
	Steps      int
	Units      int
	Electrodes int
	Monitors   []string
	Status     string
}

// RunExperiment builds the organoid described by the experiment, wires the
// electrode array, scheduler, plasticity engine, and monitors, then drives
// the run to completion. The run is closed and the persistence stream
// flushed on every exit path.
func (c *Client) RunExperiment(ctx context.Context, exp config.Experiment) (RunSummary, error) {
	if err := exp.Validate(); err != nil {
		return RunSummary{}, err
	}

	built, electrodes, err := assemble(exp)
	if err != nil {
		return RunSummary{}, err
	}

	engine, err := buildEngine(exp, c.log)
	if err != nil {
		return RunSummary{}, err
	}

	monitors, err := monitorSpecs(exp, built)
	if err != nil {
		return RunSummary{}, err
	}

	runCfg := platform.RunConfig{
		ID:               uuid.NewString(),
		Topology:         built.Topology,
		Array:            built.Array,
		Solver:           solver.NewLeakyIntegrator(),
		Store:            c.platform.Store(),
		StepSize:         exp.Step,
		ElectrodeRadius:  exp.Electrodes.Radius,
		Engine:           engine,
		ActivityWindow:   exp.Plasticity.ActivityWindow,
		ActivityVariable: exp.Plasticity.ActivityVariable,
		WeightRule: plasticity.WeightConfig{
			Rule: exp.Plasticity.WeightRule,
			Rate: exp.Plasticity.WeightRate,
		},
		Monitors:       monitors,
		FlushThreshold: exp.Recording.FlushThreshold,
		QueueSize:      exp.Recording.QueueSize,
		FlushTimeout:   time.Duration(exp.Recording.FlushTimeoutMS) * time.Millisecond,
		Control:        make(chan platform.Command, 16),
		Log:            c.log,
	}
	if built.Array.Len() == 0 {
		runCfg.Array = nil
		runCfg.ElectrodeRadius = 0
	}

	run, err := platform.NewRun(ctx, runCfg)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.platform.RegisterRun(run.ID(), runCfg.Control); err != nil {
		_ = run.Close(ctx, err)
		return RunSummary{}, err
	}
	defer c.platform.UnregisterRun(run.ID())

	for _, stim := range exp.Stimuli {
		id, err := electrodeFor(electrodes, stim.Electrode)
		if err != nil {
			_ = run.Close(ctx, err)
			return RunSummary{}, err
		}
		if err := run.Schedule(id, waveformFor(exp.Step, stim), stim.Start); err != nil {
			_ = run.Close(ctx, err)
			return RunSummary{}, err
		}
	}

	runErr := run.Run(ctx, float64(exp.Steps)*exp.Step)
	closeErr := run.Close(ctx, runErr)
	if runErr != nil {
		return RunSummary{}, runErr
	}
	if closeErr != nil {
		return RunSummary{}, closeErr
	}

	return RunSummary{
		RunID:      run.ID(),
		Steps:      run.Step(),
		Units:      built.Topology.UnitCount(),
		Electrodes: built.Array.Len(),
		Monitors:   monitorNames(monitors),
		Status:     model.RunStatusCompleted,
	}, nil
}

// Runs lists stored run records, newest last.
func (c *Client) Runs(ctx context.Context) ([]model.RunRecord, error) {
	return c.platform.Store().ListRuns(ctx)
}

// Recordings reads back an ordered sample sequence for one run and monitor
// within a time range.
func (c *Client) Recordings(ctx context.Context, runID, monitor string, t0, t1 float64) ([]model.Sample, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if monitor == "" {
		return nil, fmt.Errorf("monitor name is required")
	}
	return c.platform.Store().ReadSamples(ctx, runID, monitor, t0, t1)
}

func assemble(exp config.Experiment) (*organoid.Built, []model.ElectrodeID, error) {
	policy, err := electrode.ParsePolicy(exp.Electrodes.Policy)
	if err != nil {
		return nil, nil, err
	}

	groups := make([]organoid.GroupSpec, 0, len(exp.Organoid.Groups))
	for _, g := range exp.Organoid.Groups {
		groups = append(groups, organoid.GroupSpec{Name: g.Name, Count: g.Count, Template: g.Template})
	}
	built, err := organoid.Build(organoid.Spec{
		Seed:         exp.Seed,
		Distribution: exp.Organoid.Distribution,
		Extent:       exp.Organoid.Extent,
		Groups:       groups,
		Wiring: organoid.WiringSpec{
			Probability: exp.Organoid.Wiring.Probability,
			LengthScale: exp.Organoid.Wiring.LengthScale,
			WeightMin:   exp.Organoid.Wiring.WeightMin,
			WeightMax:   exp.Organoid.Wiring.WeightMax,
			DelayMin:    exp.Organoid.Wiring.DelayMin,
			DelayMax:    exp.Organoid.Wiring.DelayMax,
		},
	}, policy)
	if err != nil {
		return nil, nil, err
	}

	var electrodes []model.ElectrodeID
	if exp.Electrodes.Layout != "" || len(exp.Stimuli) > 0 {
		electrodes, err = organoid.PlaceElectrodes(built, organoid.ElectrodeLayout{
			Kind:    exp.Electrodes.Layout,
			Rows:    exp.Electrodes.Rows,
			Cols:    exp.Electrodes.Cols,
			Z:       exp.Electrodes.Z,
			Spacing: exp.Electrodes.Spacing,
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return built, electrodes, nil
}

func buildEngine(exp config.Experiment, log *slog.Logger) (*plasticity.Engine, error) {
	p := exp.Plasticity
	if p.Growth == nil && p.Pruning == nil {
		return nil, nil
	}
	engine, err := plasticity.NewEngine(p.CheckpointInterval, log)
	if err != nil {
		return nil, err
	}
	if p.Pruning != nil {
		if err := engine.Register(&plasticity.ActivityPruning{
			WeightMin:     p.Pruning.WeightMin,
			CoActivityMin: p.Pruning.CoActivityMin,
			SustainSteps:  p.Pruning.SustainSteps,
		}); err != nil {
			return nil, err
		}
	}
	if p.Growth != nil {
		if err := engine.Register(&plasticity.DistanceGrowth{
			Radius:           p.Growth.Radius,
			CoActivityMin:    p.Growth.CoActivityMin,
			Weight:           p.Growth.Weight,
			Delay:            p.Growth.Delay,
			MaxPerCheckpoint: p.Growth.MaxPerCheckpoint,
		}); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

func monitorSpecs(exp config.Experiment, built *organoid.Built) ([]recording.MonitorSpec, error) {
	specs := make([]recording.MonitorSpec, 0, len(exp.Monitors))
	for _, m := range exp.Monitors {
		spec := recording.MonitorSpec{
			Name:       m.Name,
			Variables:  m.Variables,
			EverySteps: m.EverySteps,
		}
		if m.Group != "" {
			group, ok := built.Topology.Group(m.Group)
			if !ok {
				return nil, fmt.Errorf("monitor %q targets unknown group %q", m.Name, m.Group)
			}
			spec.Units = append(spec.Units, group.Units...)
		}
		for _, raw := range m.Units {
			spec.Units = append(spec.Units, model.UnitID(raw))
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func monitorNames(specs []recording.MonitorSpec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}

func electrodeFor(ids []model.ElectrodeID, index int) (model.ElectrodeID, error) {
	if index < 0 || index >= len(ids) {
		return 0, fmt.Errorf("stimulus electrode index out of range: %d (have %d)", index, len(ids))
	}
	return ids[index], nil
}

func waveformFor(dt float64, stim config.Stimulus) stimulus.Waveform {
	switch stim.Shape {
	case "biphasic":
		return stimulus.Biphasic(dt, stim.Width, stim.Amplitude)
	case "train":
		return stimulus.Train(dt, stim.Width, stim.Gap, stim.Amplitude, stim.Count)
	default:
		return stimulus.Pulse(dt, stim.Width, stim.Amplitude)
	}
}
