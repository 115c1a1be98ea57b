package plasticity

import (
	"fmt"
	"math"
	"strings"

	"neuroplate/internal/model"
	"neuroplate/internal/topology"
)

// Per-connection weight rules, applied every step by the orchestrator.
// Distinct from structural rules: these move weights, structural rules move
// edges. Pruning reads the weights these rules leave behind.
const (
	WeightRuleNone    = "none"
	WeightRuleHebbian = "hebbian"
	WeightRuleOja     = "oja"
)

// WeightConfig selects the default weight rule for connections that carry
// no per-connection tag.
type WeightConfig struct {
	Rule            string
	Rate            float64
	SaturationLimit float64
}

func NormalizeWeightRuleName(rule string) string {
	switch strings.ToLower(strings.TrimSpace(rule)) {
	case "", WeightRuleNone:
		return WeightRuleNone
	case WeightRuleHebbian:
		return WeightRuleHebbian
	case WeightRuleOja, "ojas":
		return WeightRuleOja
	default:
		return strings.ToLower(strings.TrimSpace(rule))
	}
}

// ApplyWeightRules updates every connection's weight from the pre- and
// post-synaptic activity of the step. Weights saturate symmetrically at the
// configured limit.
func ApplyWeightRules(topo *topology.Topology, value func(model.UnitID) float64, cfg WeightConfig) error {
	defaultRule := NormalizeWeightRuleName(cfg.Rule)
	if err := validateWeightRule(defaultRule, cfg.Rule); err != nil {
		return err
	}
	limit := cfg.SaturationLimit
	if limit <= 0 {
		limit = math.Pi * 2
	}

	for _, conn := range topo.Connections() {
		rule := defaultRule
		if connRule := NormalizeWeightRuleName(conn.Rule); connRule != WeightRuleNone {
			rule = connRule
		}
		if rule == WeightRuleNone || cfg.Rate == 0 {
			continue
		}
		if err := validateWeightRule(rule, conn.Rule); err != nil {
			return err
		}

		pre := value(conn.From)
		post := value(conn.To)

		var delta float64
		switch rule {
		case WeightRuleHebbian:
			delta = cfg.Rate * pre * post
		case WeightRuleOja:
			delta = cfg.Rate * post * (pre - (post * conn.Weight))
		}

		next := conn.Weight + delta
		if next > limit {
			next = limit
		} else if next < -limit {
			next = -limit
		}
		if next != conn.Weight {
			if err := topo.SetWeight(conn.ID, next); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateWeightRule(rule, original string) error {
	switch rule {
	case WeightRuleNone, WeightRuleHebbian, WeightRuleOja:
		return nil
	default:
		return fmt.Errorf("unsupported weight rule: %s", original)
	}
}
