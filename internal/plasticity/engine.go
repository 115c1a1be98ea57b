package plasticity

import (
	"fmt"
	"log/slog"

	"neuroplate/internal/model"
	"neuroplate/internal/topology"
)

// Applier is the mutable topology surface the engine needs to apply a
// resolved batch.
type Applier interface {
	Connect(from, to model.UnitID, weight, delay float64) (model.ConnID, error)
	Disconnect(id model.ConnID) error
}

// CheckpointResult summarizes one evaluation for diagnostics.
type CheckpointResult struct {
	Step        int
	Grown       int
	Pruned      int
	RuleErrors  []string
	EditsByRule map[string]int
}

// Engine evaluates registered rules at checkpoint steps and applies the
// resolved batch. A failing rule is skipped for that checkpoint with a
// warning; one bad rule never halts the run.
type Engine struct {
	interval int
	rules    []Rule
	log      *slog.Logger
}

func NewEngine(checkpointInterval int, log *slog.Logger) (*Engine, error) {
	if checkpointInterval < 1 {
		return nil, fmt.Errorf("checkpoint interval must be >= 1, got %d", checkpointInterval)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{interval: checkpointInterval, log: log}, nil
}

// Register appends a rule to the evaluation list. Order matters only for
// proposal collection; batch resolution order is fixed by edit kind.
func (e *Engine) Register(r Rule) error {
	if r == nil {
		return fmt.Errorf("rule is nil")
	}
	if r.Name() == "" {
		return fmt.Errorf("rule name is required")
	}
	for _, existing := range e.rules {
		if existing.Name() == r.Name() {
			return fmt.Errorf("duplicate rule: %s", r.Name())
		}
	}
	e.rules = append(e.rules, r)
	return nil
}

func (e *Engine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// IsCheckpoint reports whether plasticity runs on this step. Step 0 is the
// initial state and never a checkpoint.
func (e *Engine) IsCheckpoint(step int) bool {
	return step > 0 && step%e.interval == 0
}

// RunCheckpoint evaluates every rule against the live topology and
// activity, resolves the batch, and applies it. Pruning applies before
// growth; a grow proposal for an edge a prune just removed still applies (a
// fresh connection identity), but a prune and grow can never race on the
// same identity. Duplicate prunes of one connection collapse to a single
// edit.
func (e *Engine) RunCheckpoint(step int, topo *topology.Topology, activity ActivityView) CheckpointResult {
	result := CheckpointResult{Step: step, EditsByRule: make(map[string]int)}

	var prunes, grows []Edit
	for _, rule := range e.rules {
		edits, err := rule.Evaluate(topo, activity)
		if err != nil {
			e.log.Warn("plasticity rule failed, skipping for this checkpoint",
				"rule", rule.Name(), "step", step, "err", err)
			result.RuleErrors = append(result.RuleErrors, fmt.Sprintf("%s: %v", rule.Name(), err))
			continue
		}
		for _, edit := range edits {
			result.EditsByRule[rule.Name()]++
			switch edit.Kind {
			case EditPrune:
				prunes = append(prunes, edit)
			case EditGrow:
				grows = append(grows, edit)
			}
		}
	}

	pruned := make(map[model.ConnID]struct{})
	for _, edit := range prunes {
		if _, done := pruned[edit.Conn]; done {
			continue
		}
		if err := topo.Disconnect(edit.Conn); err != nil {
			// The connection may already be gone; not a fault.
			e.log.Warn("prune skipped", "conn", int(edit.Conn), "rule", edit.Rule, "err", err)
			continue
		}
		pruned[edit.Conn] = struct{}{}
		result.Pruned++
	}
	for _, edit := range grows {
		if _, err := topo.Connect(edit.From, edit.To, edit.Weight, edit.Delay); err != nil {
			e.log.Warn("growth skipped", "rule", edit.Rule, "err", err)
			continue
		}
		result.Grown++
	}
	return result
}
