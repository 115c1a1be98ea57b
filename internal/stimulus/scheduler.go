// Package stimulus converts scheduled electrode waveforms into per-step
// drive values. Events are keyed by step index: an absolute time snaps to
// the nearest step boundary, ties round up, so delivery within the step's
// half-open interval [t, t+dt) is exact and consumed at most once.
package stimulus

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"neuroplate/internal/model"
)

var ErrPastTime = errors.New("stimulus scheduled in the past")

// Drive is one due injection: deliver Amplitude through Electrode this step.
type Drive struct {
	Electrode model.ElectrodeID
	Amplitude float64
}

type Scheduler struct {
	dt     float64
	events map[int][]Drive
}

func NewScheduler(dt float64) (*Scheduler, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("step size must be > 0, got %g", dt)
	}
	return &Scheduler{dt: dt, events: make(map[int][]Drive)}, nil
}

// SnapStep maps an absolute time to its step index: round to nearest
// boundary, ties round up.
func (s *Scheduler) SnapStep(t float64) int {
	return int(math.Floor(t/s.dt + 0.5))
}

// Schedule expands the waveform into per-step events starting at start.
// start is checked against the current simulation time before any sample is
// recorded; an event in the past is rejected whole.
func (s *Scheduler) Schedule(electrode model.ElectrodeID, w Waveform, start, now float64) error {
	if start < now {
		return fmt.Errorf("%w: start=%g now=%g", ErrPastTime, start, now)
	}
	if len(w.Samples) == 0 {
		return fmt.Errorf("waveform has no samples")
	}
	if w.Interval <= 0 {
		return fmt.Errorf("waveform interval must be > 0, got %g", w.Interval)
	}
	for i, amplitude := range w.Samples {
		if amplitude == 0 {
			continue
		}
		step := s.SnapStep(start + float64(i)*w.Interval)
		s.events[step] = append(s.events[step], Drive{Electrode: electrode, Amplitude: amplitude})
	}
	return nil
}

// Due returns and consumes the events of one step. Each event is delivered
// exactly once; calling Due twice for the same step returns nothing the
// second time.
func (s *Scheduler) Due(step int) []Drive {
	drives, ok := s.events[step]
	if !ok {
		return nil
	}
	delete(s.events, step)
	sort.SliceStable(drives, func(i, j int) bool { return drives[i].Electrode < drives[j].Electrode })
	return drives
}

// Pending counts scheduled events not yet consumed.
func (s *Scheduler) Pending() int {
	n := 0
	for _, drives := range s.events {
		n += len(drives)
	}
	return n
}
