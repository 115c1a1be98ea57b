// Package config loads and validates the YAML experiment surface. Every
// structural or contradictory mistake fails here, at construction, with a
// descriptive error rather than at first use mid-run.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrConfiguration = errors.New("invalid configuration")

type Experiment struct {
	Name  string  `yaml:"name"`
	Seed  int64   `yaml:"seed"`
	Step  float64 `yaml:"step_size"`
	Steps int     `yaml:"steps"`

	Organoid   Organoid     `yaml:"organoid"`
	Electrodes Electrodes   `yaml:"electrodes"`
	Stimuli    []Stimulus   `yaml:"stimuli"`
	Plasticity Plasticity   `yaml:"plasticity"`
	Monitors   []Monitor    `yaml:"monitors"`
	Recording  Recording    `yaml:"recording"`
	Store      StoreOptions `yaml:"store"`
}

type Organoid struct {
	Distribution string  `yaml:"distribution"`
	Extent       float64 `yaml:"extent"`
	Groups       []Group `yaml:"groups"`
	Wiring       Wiring  `yaml:"wiring"`
}

type Group struct {
	Name     string             `yaml:"name"`
	Count    int                `yaml:"count"`
	Template map[string]float64 `yaml:"template"`
}

type Wiring struct {
	Probability float64 `yaml:"probability"`
	LengthScale float64 `yaml:"length_scale"`
	WeightMin   float64 `yaml:"weight_min"`
	WeightMax   float64 `yaml:"weight_max"`
	DelayMin    float64 `yaml:"delay_min"`
	DelayMax    float64 `yaml:"delay_max"`
}

type Electrodes struct {
	Layout  string  `yaml:"layout"`
	Rows    int     `yaml:"rows"`
	Cols    int     `yaml:"cols"`
	Z       float64 `yaml:"z"`
	Spacing float64 `yaml:"spacing"`
	Radius  float64 `yaml:"radius"`
	Policy  string  `yaml:"policy"`
}

type Stimulus struct {
	Electrode int     `yaml:"electrode"`
	Shape     string  `yaml:"shape"`
	Start     float64 `yaml:"start"`
	Width     float64 `yaml:"width"`
	Gap       float64 `yaml:"gap"`
	Count     int     `yaml:"count"`
	Amplitude float64 `yaml:"amplitude"`
}

type Plasticity struct {
	CheckpointInterval int `yaml:"checkpoint_interval"`

	Growth  *GrowthRule  `yaml:"growth"`
	Pruning *PruningRule `yaml:"pruning"`

	WeightRule string  `yaml:"weight_rule"`
	WeightRate float64 `yaml:"weight_rate"`

	ActivityWindow   int    `yaml:"activity_window"`
	ActivityVariable string `yaml:"activity_variable"`
}

type GrowthRule struct {
	Radius           float64 `yaml:"radius"`
	CoActivityMin    float64 `yaml:"co_activity_min"`
	Weight           float64 `yaml:"weight"`
	Delay            float64 `yaml:"delay"`
	MaxPerCheckpoint int     `yaml:"max_per_checkpoint"`
}

type PruningRule struct {
	WeightMin     float64 `yaml:"weight_min"`
	CoActivityMin float64 `yaml:"co_activity_min"`
	SustainSteps  int     `yaml:"sustain_steps"`
}

type Monitor struct {
	Name       string   `yaml:"name"`
	Group      string   `yaml:"group"`
	Units      []int    `yaml:"units"`
	Variables  []string `yaml:"variables"`
	EverySteps int      `yaml:"every_steps"`
}

type Recording struct {
	FlushThreshold int `yaml:"flush_threshold"`
	QueueSize      int `yaml:"queue_size"`
	FlushTimeoutMS int `yaml:"flush_timeout_ms"`
}

type StoreOptions struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

func Load(path string) (Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Experiment{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Experiment, error) {
	var exp Experiment
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return Experiment{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := exp.Validate(); err != nil {
		return Experiment{}, err
	}
	return exp, nil
}

func (e Experiment) Validate() error {
	if e.Step <= 0 {
		return fmt.Errorf("%w: step_size must be > 0, got %g", ErrConfiguration, e.Step)
	}
	if e.Steps < 1 {
		return fmt.Errorf("%w: steps must be >= 1, got %d", ErrConfiguration, e.Steps)
	}
	if e.Organoid.Extent <= 0 {
		return fmt.Errorf("%w: organoid.extent must be > 0, got %g", ErrConfiguration, e.Organoid.Extent)
	}
	if len(e.Organoid.Groups) == 0 {
		return fmt.Errorf("%w: at least one organoid group is required", ErrConfiguration)
	}
	seen := make(map[string]struct{})
	for _, g := range e.Organoid.Groups {
		if g.Name == "" {
			return fmt.Errorf("%w: group name is required", ErrConfiguration)
		}
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("%w: duplicate group %q", ErrConfiguration, g.Name)
		}
		seen[g.Name] = struct{}{}
		if g.Count < 1 {
			return fmt.Errorf("%w: group %q count must be >= 1, got %d", ErrConfiguration, g.Name, g.Count)
		}
	}
	if w := e.Organoid.Wiring; w.Probability < 0 || w.Probability > 1 {
		return fmt.Errorf("%w: wiring.probability must be in [0,1], got %g", ErrConfiguration, w.Probability)
	}

	hasArray := e.Electrodes.Layout != "" || len(e.Stimuli) > 0
	if hasArray && e.Electrodes.Radius <= 0 {
		return fmt.Errorf("%w: electrodes.radius must be > 0 when electrodes are configured", ErrConfiguration)
	}
	for i, s := range e.Stimuli {
		if s.Start < 0 {
			return fmt.Errorf("%w: stimulus %d start must be >= 0, got %g", ErrConfiguration, i, s.Start)
		}
		if s.Width <= 0 {
			return fmt.Errorf("%w: stimulus %d width must be > 0, got %g", ErrConfiguration, i, s.Width)
		}
		switch s.Shape {
		case "", "pulse", "biphasic", "train":
		default:
			return fmt.Errorf("%w: stimulus %d has unsupported shape %q", ErrConfiguration, i, s.Shape)
		}
		if s.Shape == "train" && s.Count < 1 {
			return fmt.Errorf("%w: stimulus %d train count must be >= 1", ErrConfiguration, i)
		}
	}

	if p := e.Plasticity; p.Growth != nil || p.Pruning != nil {
		if p.CheckpointInterval < 1 {
			return fmt.Errorf("%w: plasticity.checkpoint_interval must be >= 1 when rules are configured", ErrConfiguration)
		}
		if p.Growth != nil && p.Growth.Radius <= 0 {
			return fmt.Errorf("%w: plasticity.growth.radius must be > 0, got %g", ErrConfiguration, p.Growth.Radius)
		}
		if p.Pruning != nil && p.Pruning.SustainSteps < 1 {
			return fmt.Errorf("%w: plasticity.pruning.sustain_steps must be >= 1", ErrConfiguration)
		}
	}

	if len(e.Monitors) == 0 {
		return fmt.Errorf("%w: at least one monitor is required", ErrConfiguration)
	}
	monitorNames := make(map[string]struct{})
	for i, m := range e.Monitors {
		if m.Name == "" {
			return fmt.Errorf("%w: monitor %d name is required", ErrConfiguration, i)
		}
		if _, dup := monitorNames[m.Name]; dup {
			return fmt.Errorf("%w: duplicate monitor %q", ErrConfiguration, m.Name)
		}
		monitorNames[m.Name] = struct{}{}
		if m.Group == "" && len(m.Units) == 0 {
			return fmt.Errorf("%w: monitor %q needs a group or explicit units", ErrConfiguration, m.Name)
		}
		if m.Group != "" {
			if _, ok := seen[m.Group]; !ok {
				return fmt.Errorf("%w: monitor %q targets unknown group %q", ErrConfiguration, m.Name, m.Group)
			}
		}
		if len(m.Variables) == 0 {
			return fmt.Errorf("%w: monitor %q needs at least one variable", ErrConfiguration, m.Name)
		}
	}

	switch e.Store.Kind {
	case "", "memory":
	case "sqlite":
		if e.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for sqlite", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unsupported store kind %q", ErrConfiguration, e.Store.Kind)
	}
	return nil
}
