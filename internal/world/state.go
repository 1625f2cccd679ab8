package world

import (
	"fmt"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"

	"skyshield/interceptor/internal/control"
	"skyshield/interceptor/internal/dynamics"
	"skyshield/interceptor/internal/geom"
)

// State is the single shared aggregate the five loops communicate through.
// One coarse mutex guards it; every read hands out deep copies so the math
// heavy work happens outside the lock.
type State struct {
	mu         sync.RWMutex
	model      *dynamics.Model
	sensedAt   float64
	desired    control.Desired
	gains      control.Gains
	phase      string
	paused     bool
	simulation bool
	frame      uint64
	simTime    float64
	realTime   float64
}

// NewState seeds the aggregate with the initial goal and tuning.
func NewState(desired control.Desired, gains control.Gains, simulation bool) *State {
	return &State{
		desired:    desired.Clone(),
		gains:      gains,
		simulation: simulation,
		phase:      "idle",
	}
}

// UpdateRobot stores a fresh robot model stamped with the sim time it was sensed at.
func (s *State) UpdateRobot(model *dynamics.Model, at float64) {
	if s == nil || model == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	//1.- Clone on write so the caller may keep mutating its own copy.
	s.model = model.Clone()
	s.sensedAt = at
}

// Robot returns a deep copy of the latest robot model and its timestamp.
func (s *State) Robot() (*dynamics.Model, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Clone(), s.sensedAt
}

// Desired returns a deep copy of the current goal.
func (s *State) Desired() control.Desired {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.desired.Clone()
}

// SetDesired replaces the whole goal at once.
func (s *State) SetDesired(desired control.Desired) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired = desired.Clone()
}

// SetDesiredPosition repoints the task-space goal.
func (s *State) SetDesiredPosition(p geom.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired.Position = p
}

// SetDesiredOrientation replaces the goal orientation.
func (s *State) SetDesiredOrientation(r *mat.Dense) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired.Orientation = mat.DenseCopyOf(r)
}

// SetDesiredJoint replaces the joint-space goal.
func (s *State) SetDesiredJoint(q []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired.Joint = append([]float64(nil), q...)
}

// SetMode switches the active control law.
func (s *State) SetMode(mode control.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired.Mode = mode
}

// Translate nudges the task-space goal by a world-frame delta.
func (s *State) Translate(delta geom.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired.Position = s.desired.Position.Add(delta)
}

// Rotate pre-multiplies the goal orientation by world-frame elementary
// rotations, applied X then Y then Z.
func (s *State) Rotate(rx, ry, rz float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.desired.Orientation
	if current == nil {
		current = geom.Identity()
	}
	step := geom.MulRot(geom.RotZ(rz), geom.MulRot(geom.RotY(ry), geom.RotX(rx)))
	s.desired.Orientation = geom.MulRot(step, current)
}

// Gains returns the current tuning block.
func (s *State) Gains() control.Gains {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gains
}

// SetGains replaces the tuning block wholesale.
func (s *State) SetGains(g control.Gains) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gains = g
}

// SetFriction adjusts only the friction compensation damping.
func (s *State) SetFriction(damping float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gains.Friction = damping
}

// Paused reports whether torque goals are suspended.
func (s *State) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// TogglePaused flips the pause flag and returns the new value.
func (s *State) TogglePaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = !s.paused
	return s.paused
}

// SetPaused forces the pause flag.
func (s *State) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Simulation reports whether the plant is simulated.
func (s *State) Simulation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.simulation
}

// SetSimulation switches between the simulated plant and the hardware bridge.
func (s *State) SetSimulation(sim bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulation = sim
}

// SetPhase records the engagement phase for observability.
func (s *State) SetPhase(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// Phase reads the recorded engagement phase.
func (s *State) Phase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Counters bundles the cycle bookkeeping values.
type Counters struct {
	Frame    uint64  `json:"frame"`
	SimTime  float64 `json:"sim_time"`
	RealTime float64 `json:"real_time"`
}

// BeginCycle advances the frame counter and both clocks, returning the new counters.
func (s *State) BeginCycle(dtReal, dtSim float64) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame++
	s.realTime += dtReal
	s.simTime += dtSim
	return Counters{Frame: s.frame, SimTime: s.simTime, RealTime: s.realTime}
}

// Counters reads the current cycle bookkeeping.
func (s *State) Counters() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counters{Frame: s.frame, SimTime: s.simTime, RealTime: s.realTime}
}

// Snapshot is the JSON view streamed to telemetry clients every interval.
type Snapshot struct {
	Frame         uint64        `json:"frame"`
	SimTime       float64       `json:"sim_time"`
	RealTime      float64       `json:"real_time"`
	Phase         string        `json:"phase"`
	Paused        bool          `json:"paused"`
	Simulation    bool          `json:"simulation"`
	SensedAt      float64       `json:"sensed_at"`
	Q             []float64     `json:"q,omitempty"`
	DQ            []float64     `json:"dq,omitempty"`
	EE            [3]float64    `json:"ee"`
	EEOrient      [9]float64    `json:"ee_orient"`
	DesiredPos    [3]float64    `json:"desired_pos"`
	DesiredOrient [9]float64    `json:"desired_orient"`
	DesiredJoint  []float64     `json:"desired_joint,omitempty"`
	Mode          string        `json:"mode"`
	Gains         control.Gains `json:"gains"`
}

func vecArray(v geom.Vec3) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// Snapshot assembles the full observable state in one locked pass.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Frame:         s.frame,
		SimTime:       s.simTime,
		RealTime:      s.realTime,
		Phase:         s.phase,
		Paused:        s.paused,
		Simulation:    s.simulation,
		SensedAt:      s.sensedAt,
		DesiredPos:    vecArray(s.desired.Position),
		DesiredOrient: geom.RotFlat(s.desired.Orientation),
		Mode:          s.desired.Mode.String(),
		Gains:         s.gains,
	}
	if s.desired.Joint != nil {
		snap.DesiredJoint = append([]float64(nil), s.desired.Joint...)
	}
	if s.model != nil {
		snap.Q = append([]float64(nil), s.model.Q...)
		snap.DQ = append([]float64(nil), s.model.DQ...)
		snap.EE = vecArray(s.model.EEPos)
		snap.EEOrient = geom.RotFlat(s.model.EEOrient)
	} else {
		snap.EEOrient = geom.RotFlat(nil)
	}
	return snap
}

// Describe renders a human readable dump for the interactive shell.
func (s *State) Describe() string {
	snap := s.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "frame %d  sim %.3fs  real %.3fs  phase %s\n", snap.Frame, snap.SimTime, snap.RealTime, snap.Phase)
	fmt.Fprintf(&b, "paused=%v simulation=%v mode=%s\n", snap.Paused, snap.Simulation, snap.Mode)
	fmt.Fprintf(&b, "q  = %v\n", snap.Q)
	fmt.Fprintf(&b, "dq = %v\n", snap.DQ)
	fmt.Fprintf(&b, "ee = %v\n", snap.EE)
	fmt.Fprintf(&b, "desired pos = %v joint = %v\n", snap.DesiredPos, snap.DesiredJoint)
	fmt.Fprintf(&b, "gains = %+v\n", snap.Gains)
	return b.String()
}
