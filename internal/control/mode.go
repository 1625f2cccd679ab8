package control

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"skyshield/interceptor/internal/geom"
)

// Mode selects which control law converts the desired state into torques.
type Mode int

const (
	// ModeTaskSpace is the full operational-space law with inertia decoupling.
	ModeTaskSpace Mode = iota
	// ModeIncremental is the task-space law with the error stepped down each cycle.
	ModeIncremental
	// ModeRMRC maps the task error into joint space and servos there.
	ModeRMRC
	// ModeJointSpace servos the joints directly against a joint target.
	ModeJointSpace
)

// ErrUnknownMode signals a mode value outside the law table.
var ErrUnknownMode = errors.New("control: unknown mode")

var modeNames = map[Mode]string{
	ModeTaskSpace:   "task",
	ModeIncremental: "incremental",
	ModeRMRC:        "rmrc",
	ModeJointSpace:  "joint",
}

// String names the mode for shells, logs, and telemetry.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode resolves a shell token back into a mode.
func ParseMode(token string) (Mode, error) {
	for mode, name := range modeNames {
		if name == token {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, token)
}

// Desired is the goal state a control law tries to realize.
type Desired struct {
	Position    geom.Vec3
	Orientation *mat.Dense
	Joint       []float64
	Mode        Mode
}

// Clone deep copies the desired state for lock-free consumers.
func (d Desired) Clone() Desired {
	out := d
	if d.Orientation != nil {
		out.Orientation = mat.DenseCopyOf(d.Orientation)
	}
	if d.Joint != nil {
		out.Joint = append([]float64(nil), d.Joint...)
	}
	return out
}

// Gains collects every servo and compensation gain in one adjustable block.
type Gains struct {
	KpPos   float64 `json:"kp_pos"`
	KvPos   float64 `json:"kv_pos"`
	KpOri   float64 `json:"kp_ori"`
	KvOri   float64 `json:"kv_ori"`
	KpJoint float64 `json:"kp_joint"`
	KvJoint float64 `json:"kv_joint"`
	// Friction is the velocity-proportional compensation added by the term pipeline.
	Friction float64 `json:"friction"`
	// MaxLinearStep bounds the position error fed to the incremental law, meters per cycle.
	MaxLinearStep float64 `json:"max_linear_step"`
	// MaxAngularStep bounds the orientation error fed to the incremental law, radians per cycle.
	MaxAngularStep float64 `json:"max_angular_step"`
}

// DefaultGains returns the tuning the simulator ships with.
func DefaultGains() Gains {
	return Gains{
		KpPos:          400,
		KvPos:          40,
		KpOri:          200,
		KvOri:          28,
		KpJoint:        100,
		KvJoint:        20,
		Friction:       1.0,
		MaxLinearStep:  0.02,
		MaxAngularStep: 0.035,
	}
}

// SetByName assigns one gain by the name the tuning surfaces use.
func (g *Gains) SetByName(name string, value float64) error {
	switch name {
	case "kp_pos":
		g.KpPos = value
	case "kv_pos":
		g.KvPos = value
	case "kp_ori":
		g.KpOri = value
	case "kv_ori":
		g.KvOri = value
	case "kp_joint":
		g.KpJoint = value
	case "kv_joint":
		g.KvJoint = value
	case "friction":
		g.Friction = value
	default:
		return fmt.Errorf("unknown gain %q", name)
	}
	return nil
}
