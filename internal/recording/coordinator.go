package recording

import (
	"fmt"

	"neuroplate/internal/solver"
	"neuroplate/internal/topology"
)

// Coordinator owns all monitors of a run. Sampling happens after plasticity
// edits apply, so every monitor sees the post-mutation topology of the
// step; buffers are forwarded once they reach the flush threshold or the
// run ends.
type Coordinator struct {
	monitors  []*Monitor
	flusher   *Flusher
	threshold int
}

func NewCoordinator(flusher *Flusher, flushThreshold int) *Coordinator {
	if flushThreshold < 1 {
		flushThreshold = 1024
	}
	return &Coordinator{flusher: flusher, threshold: flushThreshold}
}

func (c *Coordinator) Add(spec MonitorSpec) error {
	for _, existing := range c.monitors {
		if existing.Name() == spec.Name {
			return fmt.Errorf("duplicate monitor: %s", spec.Name)
		}
	}
	monitor, err := NewMonitor(spec)
	if err != nil {
		return err
	}
	c.monitors = append(c.monitors, monitor)
	return nil
}

func (c *Coordinator) MonitorNames() []string {
	names := make([]string, 0, len(c.monitors))
	for _, m := range c.monitors {
		names = append(names, m.Name())
	}
	return names
}

// Sample records the step for every due monitor, then forwards buffers that
// crossed the flush threshold.
func (c *Coordinator) Sample(step int, t float64, topo *topology.Topology, sv solver.Solver) error {
	for _, m := range c.monitors {
		if !m.due(step) {
			continue
		}
		m.sample(step, t, topo, sv)
		if m.buffered() >= c.threshold {
			if err := c.flusher.Enqueue(m.Name(), m.take()); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlushAll forwards every remaining buffer; called when the run ends or is
// stopped.
func (c *Coordinator) FlushAll() error {
	for _, m := range c.monitors {
		if err := c.flusher.Enqueue(m.Name(), m.take()); err != nil {
			return err
		}
	}
	return nil
}
