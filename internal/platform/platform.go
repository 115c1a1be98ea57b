package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"neuroplate/internal/persist"
)

// Platform owns the persistence store and the registry of active runs. It
// is the process-wide session: runs register their control channels here so
// callers can pause, continue, or stop them between steps.
type Platform struct {
	store persist.Store

	mu             sync.RWMutex
	started        bool
	lastStopReason StopReason
	runs           map[string]chan Command
}

func New(store persist.Store) *Platform {
	return &Platform{
		store:          store,
		runs:           make(map[string]chan Command),
		lastStopReason: StopReasonNormal,
	}
}

func (p *Platform) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Platform) Store() persist.Store {
	return p.store
}

func (p *Platform) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Platform) LastStopReason() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStopReason
}

// Shutdown stops every active run, records the reason, and closes the
// store connection.
func (p *Platform) Shutdown(reason StopReason) error {
	if reason == "" {
		reason = StopReasonShutdown
	}
	p.mu.Lock()
	for _, control := range p.runs {
		select {
		case control <- CommandStop:
		default:
		}
	}
	p.runs = make(map[string]chan Command)
	p.started = false
	p.lastStopReason = reason
	p.mu.Unlock()
	return p.store.Close()
}

func (p *Platform) RegisterRun(runID string, control chan Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("platform is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = control
	return nil
}

func (p *Platform) UnregisterRun(runID string) {
	if runID == "" {
		return
	}
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func (p *Platform) PauseRun(runID string) error {
	return p.sendRunCommand(runID, CommandPause)
}

func (p *Platform) ContinueRun(runID string) error {
	return p.sendRunCommand(runID, CommandContinue)
}

func (p *Platform) StopRun(runID string) error {
	return p.sendRunCommand(runID, CommandStop)
}

func (p *Platform) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Platform) sendRunCommand(runID string, cmd Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	control, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}
