package dynamics

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"skyshield/interceptor/internal/geom"
)

var (
	// ErrDimension signals joint vectors that do not match the chain's degree count.
	ErrDimension = errors.New("dynamics: dimension mismatch")
	// ErrSingularMass signals a mass matrix that could not be inverted.
	ErrSingularMass = errors.New("dynamics: singular mass matrix")
)

// Joint describes one revolute degree of freedom and the rigid link hanging off it.
type Joint struct {
	Name         string
	Axis         geom.Vec3
	Offset       geom.Vec3
	Mass         float64
	MinAngle     float64
	MaxAngle     float64
	MaxTorque    float64
	RotorInertia float64
}

// Chain is a serial revolute manipulator with point-mass links. It produces
// the kinematic and dynamic quantities the control laws consume: Jacobians,
// the joint-space mass matrix, and the generalized gravity vector.
type Chain struct {
	Base    geom.Vec3
	Gravity geom.Vec3
	Joints  []Joint
}

// DefaultChain builds the six degree of freedom arm used by the simulator.
// Fully extended it reaches 0.96m from the base, just past the planning shell.
func DefaultChain(base geom.Vec3) *Chain {
	return &Chain{
		Base:    base,
		Gravity: geom.Vec3{Z: -9.8},
		Joints: []Joint{
			{Name: "waist", Axis: geom.Vec3{Z: 1}, Offset: geom.Vec3{Z: 0.16}, Mass: 2.5, MinAngle: -2.8, MaxAngle: 2.8, MaxTorque: 80, RotorInertia: 0.06},
			{Name: "shoulder", Axis: geom.Vec3{Y: 1}, Offset: geom.Vec3{Z: 0.30}, Mass: 2.2, MinAngle: -2.0, MaxAngle: 2.0, MaxTorque: 80, RotorInertia: 0.06},
			{Name: "elbow", Axis: geom.Vec3{Y: 1}, Offset: geom.Vec3{Z: 0.26}, Mass: 1.6, MinAngle: -2.4, MaxAngle: 2.4, MaxTorque: 60, RotorInertia: 0.05},
			{Name: "forearm", Axis: geom.Vec3{Z: 1}, Offset: geom.Vec3{Z: 0.10}, Mass: 0.9, MinAngle: -2.8, MaxAngle: 2.8, MaxTorque: 30, RotorInertia: 0.03},
			{Name: "wrist", Axis: geom.Vec3{Y: 1}, Offset: geom.Vec3{Z: 0.08}, Mass: 0.5, MinAngle: -2.0, MaxAngle: 2.0, MaxTorque: 20, RotorInertia: 0.02},
			{Name: "palm", Axis: geom.Vec3{Z: 1}, Offset: geom.Vec3{Z: 0.06}, Mass: 0.3, MinAngle: -2.8, MaxAngle: 2.8, MaxTorque: 10, RotorInertia: 0.01},
		},
	}
}

// DefaultReadyPose is the cocked joint configuration the arm returns to
// between engagements.
func DefaultReadyPose() []float64 {
	return []float64{0, -0.9, 1.8, 0, 0.7, 0}
}

// DOF returns the number of joints.
func (c *Chain) DOF() int {
	if c == nil {
		return 0
	}
	return len(c.Joints)
}

// TorqueLimits copies the per-joint actuator bounds.
func (c *Chain) TorqueLimits() []float64 {
	out := make([]float64, c.DOF())
	for i, joint := range c.Joints {
		out[i] = joint.MaxTorque
	}
	return out
}

// JointLimits copies the per-joint angle bounds.
func (c *Chain) JointLimits() (lower, upper []float64) {
	lower = make([]float64, c.DOF())
	upper = make([]float64, c.DOF())
	for i, joint := range c.Joints {
		lower[i] = joint.MinAngle
		upper[i] = joint.MaxAngle
	}
	return lower, upper
}

// SetTorqueLimits overrides the per-joint actuator bounds, e.g. to de-rate an
// installation below the factory values.
func (c *Chain) SetTorqueLimits(limits []float64) error {
	if len(limits) != c.DOF() {
		return fmt.Errorf("%w: got %d torque limits for %d joints", ErrDimension, len(limits), c.DOF())
	}
	for i, limit := range limits {
		if limit <= 0 {
			return fmt.Errorf("torque limit for %s must be positive, got %v", c.Joints[i].Name, limit)
		}
	}
	for i := range c.Joints {
		c.Joints[i].MaxTorque = limits[i]
	}
	return nil
}

// SetJointLimits overrides the per-joint angle bounds.
func (c *Chain) SetJointLimits(lower, upper []float64) error {
	if len(lower) != c.DOF() || len(upper) != c.DOF() {
		return fmt.Errorf("%w: got %d/%d joint bounds for %d joints", ErrDimension, len(lower), len(upper), c.DOF())
	}
	for i := range c.Joints {
		if lower[i] >= upper[i] {
			return fmt.Errorf("joint %s lower bound %v must stay below upper bound %v", c.Joints[i].Name, lower[i], upper[i])
		}
	}
	for i := range c.Joints {
		c.Joints[i].MinAngle = lower[i]
		c.Joints[i].MaxAngle = upper[i]
	}
	return nil
}

// Frame is the world-space result of a forward kinematics pass.
type Frame struct {
	JointPos    []geom.Vec3
	JointAxis   []geom.Vec3
	LinkEnd     []geom.Vec3
	EE          geom.Vec3
	Orientation *mat.Dense
}

// Forward runs forward kinematics for the supplied joint angles.
func (c *Chain) Forward(q []float64) (Frame, error) {
	n := c.DOF()
	if len(q) != n {
		return Frame{}, fmt.Errorf("%w: got %d angles for %d joints", ErrDimension, len(q), n)
	}
	frame := Frame{
		JointPos:  make([]geom.Vec3, n),
		JointAxis: make([]geom.Vec3, n),
		LinkEnd:   make([]geom.Vec3, n),
	}
	pos := c.Base
	rot := geom.Identity()
	for i, joint := range c.Joints {
		frame.JointPos[i] = pos
		//1.- The world axis only depends on the frames upstream of the joint.
		frame.JointAxis[i] = geom.RotateVec(rot, joint.Axis)
		rot = geom.MulRot(rot, geom.AxisRotation(joint.Axis, q[i]))
		//2.- The link offset rides in the rotated frame to the next joint.
		pos = pos.Add(geom.RotateVec(rot, joint.Offset))
		frame.LinkEnd[i] = pos
	}
	frame.EE = pos
	frame.Orientation = rot
	return frame, nil
}

// linkJacobian builds the 3xn linear Jacobian of link k's distal point.
func (c *Chain) linkJacobian(frame Frame, k int) *mat.Dense {
	n := c.DOF()
	jac := mat.NewDense(3, n, nil)
	for i := 0; i <= k; i++ {
		//1.- Revolute columns are axis x (point - joint origin).
		col := frame.JointAxis[i].Cross(frame.LinkEnd[k].Sub(frame.JointPos[i]))
		jac.Set(0, i, col.X)
		jac.Set(1, i, col.Y)
		jac.Set(2, i, col.Z)
	}
	return jac
}

// Model bundles everything the control laws need for one configuration.
type Model struct {
	Q        []float64
	DQ       []float64
	Jacobian *mat.Dense
	Mass     *mat.Dense
	MassInv  *mat.Dense
	Gravity  []float64
	EEPos    geom.Vec3
	EEOrient *mat.Dense
	EEVel    geom.Vec3
	EEAngVel geom.Vec3
}

// Clone deep copies the model so snapshots never alias live matrices.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	out := &Model{
		Q:        append([]float64(nil), m.Q...),
		DQ:       append([]float64(nil), m.DQ...),
		Gravity:  append([]float64(nil), m.Gravity...),
		EEPos:    m.EEPos,
		EEVel:    m.EEVel,
		EEAngVel: m.EEAngVel,
	}
	if m.Jacobian != nil {
		out.Jacobian = mat.DenseCopyOf(m.Jacobian)
	}
	if m.Mass != nil {
		out.Mass = mat.DenseCopyOf(m.Mass)
	}
	if m.MassInv != nil {
		out.MassInv = mat.DenseCopyOf(m.MassInv)
	}
	if m.EEOrient != nil {
		out.EEOrient = mat.DenseCopyOf(m.EEOrient)
	}
	return out
}

// Solver produces dynamic models from joint states. The chain itself is the
// production implementation; tests substitute fixtures.
type Solver interface {
	DOF() int
	Evaluate(q, dq []float64) (*Model, error)
}

// Evaluate computes the full kinodynamic model at the given joint state.
func (c *Chain) Evaluate(q, dq []float64) (*Model, error) {
	n := c.DOF()
	if len(q) != n || len(dq) != n {
		return nil, fmt.Errorf("%w: got %d/%d values for %d joints", ErrDimension, len(q), len(dq), n)
	}
	frame, err := c.Forward(q)
	if err != nil {
		return nil, err
	}

	//1.- End effector Jacobian: linear rows on top, angular rows below.
	jac := mat.NewDense(6, n, nil)
	for i := 0; i < n; i++ {
		lin := frame.JointAxis[i].Cross(frame.EE.Sub(frame.JointPos[i]))
		jac.Set(0, i, lin.X)
		jac.Set(1, i, lin.Y)
		jac.Set(2, i, lin.Z)
		jac.Set(3, i, frame.JointAxis[i].X)
		jac.Set(4, i, frame.JointAxis[i].Y)
		jac.Set(5, i, frame.JointAxis[i].Z)
	}

	//2.- Mass matrix from the point masses plus rotor inertia on the diagonal.
	mass := mat.NewDense(n, n, nil)
	gravity := make([]float64, n)
	for k, joint := range c.Joints {
		linkJac := c.linkJacobian(frame, k)
		var contrib mat.Dense
		contrib.Mul(linkJac.T(), linkJac)
		contrib.Scale(joint.Mass, &contrib)
		mass.Add(mass, &contrib)
		//3.- The same link Jacobian yields the generalized gravity load.
		for i := 0; i < n; i++ {
			dot := c.Gravity.X*linkJac.At(0, i) + c.Gravity.Y*linkJac.At(1, i) + c.Gravity.Z*linkJac.At(2, i)
			gravity[i] -= joint.Mass * dot
		}
	}
	for i, joint := range c.Joints {
		mass.Set(i, i, mass.At(i, i)+joint.RotorInertia)
	}

	var massInv mat.Dense
	if err := massInv.Inverse(mass); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularMass, err)
	}

	model := &Model{
		Q:        append([]float64(nil), q...),
		DQ:       append([]float64(nil), dq...),
		Jacobian: jac,
		Mass:     mass,
		MassInv:  &massInv,
		Gravity:  gravity,
		EEPos:    frame.EE,
		EEOrient: frame.Orientation,
	}

	//4.- Task-space twist of the end effector for derivative feedback.
	for i := 0; i < n; i++ {
		model.EEVel.X += jac.At(0, i) * dq[i]
		model.EEVel.Y += jac.At(1, i) * dq[i]
		model.EEVel.Z += jac.At(2, i) * dq[i]
		model.EEAngVel.X += jac.At(3, i) * dq[i]
		model.EEAngVel.Y += jac.At(4, i) * dq[i]
		model.EEAngVel.Z += jac.At(5, i) * dq[i]
	}
	return model, nil
}
