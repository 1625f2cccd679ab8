package engage

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"skyshield/interceptor/internal/control"
	"skyshield/interceptor/internal/geom"
	"skyshield/interceptor/internal/tracker"
)

// Phase is the engagement lifecycle stage.
type Phase int

const (
	// PhaseIdle holds the ready pose and scans for candidates.
	PhaseIdle Phase = iota
	// PhaseAcquire chases a selected target with per-cycle re-estimation.
	PhaseAcquire
	// PhaseIntercept rides a frozen goal through the rendezvous window.
	PhaseIntercept
	// PhaseReturn drives back to the ready pose after an attempt.
	PhaseReturn
	// PhasePaused overlays any phase while the operator holds the arm.
	PhasePaused
)

var phaseNames = map[Phase]string{
	PhaseIdle:      "idle",
	PhaseAcquire:   "acquire",
	PhaseIntercept: "intercept",
	PhaseReturn:    "return",
	PhasePaused:    "paused",
}

// String names the phase for logs and telemetry.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Config tunes the machine. Zero values fall back to defaults.
type Config struct {
	// CommitWindow freezes the goal this many seconds before the rendezvous.
	CommitWindow float64
	// LingerWindow keeps the frozen goal this long past the rendezvous instant.
	LingerWindow float64
	// ReadyTolerance is the per-joint error under which the arm counts as re-armed.
	ReadyTolerance float64
	// ReadyJoint is the pose held between engagements.
	ReadyJoint []float64
}

func (c Config) withDefaults() Config {
	if c.CommitWindow <= 0 {
		c.CommitWindow = 0.25
	}
	if c.LingerWindow <= 0 {
		c.LingerWindow = 0.05
	}
	if c.ReadyTolerance <= 0 {
		c.ReadyTolerance = 0.05
	}
	return c
}

// Event is one observable fact emitted by a step.
type Event struct {
	Kind          string  `json:"kind"`
	From          string  `json:"from,omitempty"`
	To            string  `json:"to,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	TargetID      int     `json:"target_id,omitempty"`
	InterceptTime float64 `json:"intercept_time,omitempty"`
	At            float64 `json:"at"`
}

// Input carries everything one step needs. Select scans for a fresh candidate,
// Refresh re-plans the active one, Release tells the arena an attempt ended.
type Input struct {
	Now     float64
	Paused  bool
	Q       []float64
	Select  func() (tracker.Target, bool)
	Refresh func(id int) (tracker.Target, error)
	Release func(id int)
}

// Directive tells the control loop what to do with the shared goal this cycle.
type Directive struct {
	Phase       Phase
	FreezeGoal  bool
	HasGoal     bool
	Mode        control.Mode
	Position    geom.Vec3
	Orientation *mat.Dense
	Joint       []float64
}

// Machine sequences the engagement phases. It is purely functional over its
// inputs apart from the phase bookkeeping, so the control loop owns all I/O.
type Machine struct {
	cfg       Config
	phase     Phase
	resume    Phase
	target    tracker.Target
	hasTarget bool
}

// NewMachine builds a machine starting in the idle phase.
func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg.withDefaults()}
}

// Phase reports the current lifecycle stage.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Target returns the active candidate, if any.
func (m *Machine) Target() (tracker.Target, bool) {
	return m.target, m.hasTarget
}

func (m *Machine) transition(to Phase, reason string, now float64, events []Event) []Event {
	events = append(events, Event{
		Kind:   "transition",
		From:   m.phase.String(),
		To:     to.String(),
		Reason: reason,
		At:     now,
	})
	m.phase = to
	return events
}

// readyDirective drives the joints back to the ready pose.
func (m *Machine) readyDirective(phase Phase) Directive {
	return Directive{
		Phase:   phase,
		HasGoal: true,
		Mode:    control.ModeJointSpace,
		Joint:   append([]float64(nil), m.cfg.ReadyJoint...),
	}
}

// chaseDirective points the palm at the rendezvous, facing the incoming projectile.
func chaseDirective(phase Phase, target tracker.Target) Directive {
	return Directive{
		Phase:       phase,
		HasGoal:     true,
		Mode:        control.ModeIncremental,
		Position:    target.Point.Position,
		Orientation: geom.OrientTowards(target.Point.Approach.Scale(-1), geom.Vec3{Z: 1}),
	}
}

// atReadyPose checks the measured joints against the ready pose.
func (m *Machine) atReadyPose(q []float64) bool {
	if len(q) == 0 || len(q) != len(m.cfg.ReadyJoint) {
		return false
	}
	for i := range q {
		diff := q[i] - m.cfg.ReadyJoint[i]
		if diff < -m.cfg.ReadyTolerance || diff > m.cfg.ReadyTolerance {
			return false
		}
	}
	return true
}

// Step advances the machine by one control cycle.
func (m *Machine) Step(in Input) (Directive, []Event) {
	var events []Event

	//1.- Pause overlays whatever phase was active and freezes the goal.
	if in.Paused {
		if m.phase != PhasePaused {
			m.resume = m.phase
			events = m.transition(PhasePaused, "operator hold", in.Now, events)
		}
		return Directive{Phase: PhasePaused, FreezeGoal: true}, events
	}
	if m.phase == PhasePaused {
		events = m.transition(m.resume, "operator resume", in.Now, events)
	}

	switch m.phase {
	case PhaseIdle:
		//2.- Scan for a candidate; without one keep holding the ready pose.
		if in.Select != nil {
			if target, ok := in.Select(); ok {
				m.target = target
				m.hasTarget = true
				events = m.transition(PhaseAcquire, "target selected", in.Now, events)
				events = append(events, Event{
					Kind:          "acquired",
					TargetID:      target.ID,
					InterceptTime: target.Point.Time,
					At:            in.Now,
				})
				return chaseDirective(PhaseAcquire, target), events
			}
		}
		return m.readyDirective(PhaseIdle), events

	case PhaseAcquire:
		//3.- Re-plan against the live estimate every cycle until commit.
		target, err := in.Refresh(m.target.ID)
		if err != nil {
			m.hasTarget = false
			events = m.transition(PhaseReturn, fmt.Sprintf("target lost: %v", err), in.Now, events)
			return m.readyDirective(PhaseReturn), events
		}
		m.target = target
		if target.Point.Time-in.Now <= m.cfg.CommitWindow {
			//4.- Close enough: freeze the goal at the final estimate.
			events = m.transition(PhaseIntercept, "commit window reached", in.Now, events)
			return chaseDirective(PhaseIntercept, target), events
		}
		return chaseDirective(PhaseAcquire, target), events

	case PhaseIntercept:
		//5.- Ride the frozen goal until the rendezvous window has passed.
		if in.Now > m.target.Point.Time+m.cfg.LingerWindow {
			if in.Release != nil {
				in.Release(m.target.ID)
			}
			events = append(events, Event{
				Kind:          "attempt",
				TargetID:      m.target.ID,
				InterceptTime: m.target.Point.Time,
				At:            in.Now,
			})
			m.hasTarget = false
			events = m.transition(PhaseReturn, "intercept window elapsed", in.Now, events)
			return m.readyDirective(PhaseReturn), events
		}
		return Directive{Phase: PhaseIntercept, FreezeGoal: true}, events

	case PhaseReturn:
		//6.- Hold the ready goal until the joints actually settle there.
		if m.atReadyPose(in.Q) {
			events = m.transition(PhaseIdle, "re-armed", in.Now, events)
			return m.readyDirective(PhaseIdle), events
		}
		return m.readyDirective(PhaseReturn), events
	}

	return m.readyDirective(m.phase), events
}
