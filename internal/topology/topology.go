// Package topology holds the mutable organoid graph: units grouped by
// template, and directed weighted connections between them. Units and
// connections live in arena maps keyed by integer identity; every other
// subsystem holds identities, never pointers.
package topology

import (
	"errors"
	"fmt"
	"sort"

	"neuroplate/internal/model"
)

var (
	ErrDuplicateGroup    = errors.New("group already exists")
	ErrUnknownUnit       = errors.New("unknown unit")
	ErrUnknownConnection = errors.New("unknown connection")
)

// UnitWatcher is notified when units join the topology, with their
// positions. The electrode array uses this to invalidate influence caches.
type UnitWatcher interface {
	UnitAdded(id model.UnitID, pos model.Vec3)
}

type Topology struct {
	units  map[model.UnitID]model.Unit
	conns  map[model.ConnID]model.Connection
	out    map[model.UnitID][]model.ConnID
	groups map[string]model.Group

	groupOrder []string
	nextConn   model.ConnID

	watchers []UnitWatcher
	queued   []queuedEdit
}

type queuedEdit struct {
	disconnect bool
	connID     model.ConnID
	from, to   model.UnitID
	weight     float64
	delay      float64
}

func New() *Topology {
	return &Topology{
		units:    make(map[model.UnitID]model.Unit),
		conns:    make(map[model.ConnID]model.Connection),
		out:      make(map[model.UnitID][]model.ConnID),
		groups:   make(map[string]model.Group),
		nextConn: 1,
	}
}

func (t *Topology) Watch(w UnitWatcher) {
	if w != nil {
		t.watchers = append(t.watchers, w)
	}
}

// AddGroup registers a named group and inserts its member units. Unit
// identities must be new to the topology; group membership is immutable
// afterwards. The organoid builder assigns identities and positions up
// front.
func (t *Topology) AddGroup(name string, units []model.Unit, template map[string]float64) error {
	if name == "" {
		return fmt.Errorf("group name is required")
	}
	if _, exists := t.groups[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateGroup, name)
	}
	ids := make([]model.UnitID, 0, len(units))
	for _, u := range units {
		if _, exists := t.units[u.ID]; exists {
			return fmt.Errorf("duplicate unit id %d in group %s", u.ID, name)
		}
		ids = append(ids, u.ID)
	}
	for _, u := range units {
		u.Group = name
		t.units[u.ID] = u
	}
	t.groups[name] = model.Group{Name: name, Units: ids, Template: template}
	t.groupOrder = append(t.groupOrder, name)
	for _, u := range units {
		for _, w := range t.watchers {
			w.UnitAdded(u.ID, u.Position)
		}
	}
	return nil
}

func (t *Topology) Group(name string) (model.Group, bool) {
	g, ok := t.groups[name]
	return g, ok
}

// Groups returns group names in creation order.
func (t *Topology) Groups() []string {
	return append([]string(nil), t.groupOrder...)
}

func (t *Topology) Unit(id model.UnitID) (model.Unit, bool) {
	u, ok := t.units[id]
	return u, ok
}

func (t *Topology) UnitCount() int {
	return len(t.units)
}

func (t *Topology) ConnectionCount() int {
	return len(t.conns)
}

// UnitIDs returns all unit identities in ascending order.
func (t *Topology) UnitIDs() []model.UnitID {
	ids := make([]model.UnitID, 0, len(t.units))
	for id := range t.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Connect creates a directed connection and returns its identity.
// Self-loops and duplicate edges between the same ordered pair are allowed;
// multiple synaptic contacts between the same two units are real.
func (t *Topology) Connect(from, to model.UnitID, weight, delay float64) (model.ConnID, error) {
	if _, ok := t.units[from]; !ok {
		return 0, fmt.Errorf("%w: source %d", ErrUnknownUnit, from)
	}
	if _, ok := t.units[to]; !ok {
		return 0, fmt.Errorf("%w: target %d", ErrUnknownUnit, to)
	}
	id := t.nextConn
	t.nextConn++
	t.conns[id] = model.Connection{ID: id, From: from, To: to, Weight: weight, Delay: delay}
	t.out[from] = append(t.out[from], id)
	return id, nil
}

func (t *Topology) Disconnect(id model.ConnID) error {
	conn, ok := t.conns[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConnection, id)
	}
	delete(t.conns, id)
	outgoing := t.out[conn.From]
	for i, cid := range outgoing {
		if cid == id {
			t.out[conn.From] = append(outgoing[:i], outgoing[i+1:]...)
			break
		}
	}
	return nil
}

func (t *Topology) Connection(id model.ConnID) (model.Connection, bool) {
	c, ok := t.conns[id]
	return c, ok
}

func (t *Topology) SetWeight(id model.ConnID, weight float64) error {
	conn, ok := t.conns[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConnection, id)
	}
	conn.Weight = weight
	t.conns[id] = conn
	return nil
}

// NeighborsOut returns the outgoing connections of a unit in ascending
// connection-identity order.
func (t *Topology) NeighborsOut(id model.UnitID) ([]model.Connection, error) {
	if _, ok := t.units[id]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUnit, id)
	}
	outgoing := t.out[id]
	conns := make([]model.Connection, 0, len(outgoing))
	for _, cid := range outgoing {
		conns = append(conns, t.conns[cid])
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
	return conns, nil
}

// Connections returns every connection in ascending identity order.
func (t *Topology) Connections() []model.Connection {
	conns := make([]model.Connection, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
	return conns
}

// Connected reports whether any connection exists from one unit to another.
func (t *Topology) Connected(from, to model.UnitID) bool {
	for _, cid := range t.out[from] {
		if t.conns[cid].To == to {
			return true
		}
	}
	return false
}

// QueueConnect records a connect request from outside the step loop. The
// orchestrator applies queued edits only at a step boundary, so monitors
// and electrodes see one topology for a whole step.
func (t *Topology) QueueConnect(from, to model.UnitID, weight, delay float64) {
	t.queued = append(t.queued, queuedEdit{from: from, to: to, weight: weight, delay: delay})
}

func (t *Topology) QueueDisconnect(id model.ConnID) {
	t.queued = append(t.queued, queuedEdit{disconnect: true, connID: id})
}

// ApplyQueued drains the queue in arrival order. The first failing edit
// stops the drain; already-applied edits stay applied.
func (t *Topology) ApplyQueued() error {
	pending := t.queued
	t.queued = nil
	for i, edit := range pending {
		if edit.disconnect {
			if err := t.Disconnect(edit.connID); err != nil {
				t.queued = pending[i+1:]
				return fmt.Errorf("queued disconnect: %w", err)
			}
			continue
		}
		if _, err := t.Connect(edit.from, edit.to, edit.weight, edit.delay); err != nil {
			t.queued = pending[i+1:]
			return fmt.Errorf("queued connect: %w", err)
		}
	}
	return nil
}

func (t *Topology) QueuedCount() int {
	return len(t.queued)
}
