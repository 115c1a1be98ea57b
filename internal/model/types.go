package model

import "math"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Identities are plain integers assigned once per run and never reused.
// Subsystems hold identities, not pointers, so a structural edit in one
// place never invalidates a handle held elsewhere.
type (
	UnitID      int
	ConnID      int
	ElectrodeID int
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) DistSq(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

func (v Vec3) Dist(o Vec3) float64 {
	return math.Sqrt(v.DistSq(o))
}

// Unit is one simulated neuron. Position and group are fixed for the run;
// structural plasticity edits connections, never units.
type Unit struct {
	ID       UnitID             `json:"id"`
	Position Vec3               `json:"position"`
	Group    string             `json:"group"`
	Params   map[string]float64 `json:"params,omitempty"`
}

// Connection is a directed synaptic edge. Its identity is distinct from its
// endpoints and survives weight updates; pruning destroys it.
type Connection struct {
	ID     ConnID  `json:"id"`
	From   UnitID  `json:"from"`
	To     UnitID  `json:"to"`
	Weight float64 `json:"weight"`
	Delay  float64 `json:"delay"`
	Rule   string  `json:"rule,omitempty"`
}

// Group is a named ordered set of units sharing a parameter template.
// Membership is immutable after creation.
type Group struct {
	Name     string             `json:"name"`
	Units    []UnitID           `json:"units"`
	Template map[string]float64 `json:"template,omitempty"`
}

type TargetKind string

const (
	TargetUnit       TargetKind = "unit"
	TargetConnection TargetKind = "connection"
)

// Sample is one recorded observation. Absent marks a target that a
// structural edit removed after the monitor bound to it; the timestamp
// series stays aligned, the value is meaningless.
type Sample struct {
	Kind     TargetKind `json:"kind"`
	Target   int        `json:"target"`
	Step     int        `json:"step"`
	Time     float64    `json:"time"`
	Variable string     `json:"variable"`
	Value    float64    `json:"value"`
	Absent   bool       `json:"absent,omitempty"`
}

// RunRecord is the persisted summary of one simulation run.
type RunRecord struct {
	VersionedRecord
	ID           string   `json:"id"`
	CreatedAtUTC string   `json:"created_at_utc"`
	StepSize     float64  `json:"step_size"`
	Steps        int      `json:"steps"`
	Units        int      `json:"units"`
	Electrodes   int      `json:"electrodes"`
	Monitors     []string `json:"monitors,omitempty"`
	Status       string   `json:"status"`
	StopReason   string   `json:"stop_reason,omitempty"`
}

const (
	RunStatusCompleted = "completed"
	RunStatusStopped   = "stopped"
	RunStatusFailed    = "failed"
)
