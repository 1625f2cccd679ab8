package control

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"skyshield/interceptor/internal/dynamics"
	"skyshield/interceptor/internal/geom"
)

var (
	// ErrDecouplingSingular signals that the task-space inertia could not be inverted.
	ErrDecouplingSingular = errors.New("control: task-space decoupling failed")
	// ErrMissingJointTarget signals a joint-space request without a joint goal.
	ErrMissingJointTarget = errors.New("control: desired joint vector missing")
)

// lambdaDamping regularizes the task-space inertia near singular poses.
const lambdaDamping = 1e-3

// Compute dispatches on the desired mode and returns the raw law torque.
// Compensation terms are layered on afterwards by the pipeline.
func Compute(model *dynamics.Model, desired Desired, gains Gains) ([]float64, error) {
	switch desired.Mode {
	case ModeTaskSpace:
		return taskSpaceTorque(model, desired, gains, false)
	case ModeIncremental:
		return taskSpaceTorque(model, desired, gains, true)
	case ModeRMRC:
		return rmrcTorque(model, desired, gains), nil
	case ModeJointSpace:
		return jointTorque(model, desired, gains)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(desired.Mode))
	}
}

// taskErrors measures the translation and rotation gap to the desired pose.
func taskErrors(model *dynamics.Model, desired Desired) (geom.Vec3, geom.Vec3) {
	dx := desired.Position.Sub(model.EEPos)
	dphi := geom.Vec3{}
	if desired.Orientation != nil {
		dphi = geom.OrientationError(desired.Orientation, model.EEOrient)
	}
	return dx, dphi
}

func taskSpaceTorque(model *dynamics.Model, desired Desired, gains Gains, stepped bool) ([]float64, error) {
	n := len(model.Q)
	dx, dphi := taskErrors(model, desired)
	if stepped {
		//1.- The incremental law chases a close virtual goal instead of the far one.
		dx = dx.Clamped(gains.MaxLinearStep)
		dphi = dphi.Clamped(gains.MaxAngularStep)
	}

	//2.- PD in task space, position and rotation blocks tuned independently.
	u := mat.NewVecDense(6, []float64{
		gains.KpPos*dx.X - gains.KvPos*model.EEVel.X,
		gains.KpPos*dx.Y - gains.KvPos*model.EEVel.Y,
		gains.KpPos*dx.Z - gains.KvPos*model.EEVel.Z,
		gains.KpOri*dphi.X - gains.KvOri*model.EEAngVel.X,
		gains.KpOri*dphi.Y - gains.KvOri*model.EEAngVel.Y,
		gains.KpOri*dphi.Z - gains.KvOri*model.EEAngVel.Z,
	})

	//3.- Lambda = (J A^-1 J^T + eps I)^-1 decouples the task inertia.
	var ja mat.Dense
	ja.Mul(model.Jacobian, model.MassInv)
	var taskInertiaInv mat.Dense
	taskInertiaInv.Mul(&ja, model.Jacobian.T())
	for i := 0; i < 6; i++ {
		taskInertiaInv.Set(i, i, taskInertiaInv.At(i, i)+lambdaDamping)
	}
	var lambda mat.Dense
	if err := lambda.Inverse(&taskInertiaInv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecouplingSingular, err)
	}

	var force mat.VecDense
	force.MulVec(&lambda, u)

	//4.- Project the task force through the Jacobian transpose.
	torque := make([]float64, n)
	for i := 0; i < n; i++ {
		for r := 0; r < 6; r++ {
			torque[i] += model.Jacobian.At(r, i) * force.AtVec(r)
		}
	}
	return torque, nil
}

func rmrcTorque(model *dynamics.Model, desired Desired, gains Gains) []float64 {
	n := len(model.Q)
	dx, dphi := taskErrors(model, desired)
	task := [6]float64{dx.X, dx.Y, dx.Z, dphi.X, dphi.Y, dphi.Z}

	//1.- Map the task error into joint displacements via the transpose.
	torque := make([]float64, n)
	for i := 0; i < n; i++ {
		var eq float64
		for r := 0; r < 6; r++ {
			eq += model.Jacobian.At(r, i) * task[r]
		}
		//2.- Joint PD on the mapped error, damped by the measured velocity.
		torque[i] = gains.KpJoint*eq - gains.KvJoint*model.DQ[i]
	}
	return torque
}

func jointTorque(model *dynamics.Model, desired Desired, gains Gains) ([]float64, error) {
	n := len(model.Q)
	if len(desired.Joint) != n {
		return nil, fmt.Errorf("%w: got %d targets for %d joints", ErrMissingJointTarget, len(desired.Joint), n)
	}
	torque := make([]float64, n)
	for i := 0; i < n; i++ {
		torque[i] = gains.KpJoint*(desired.Joint[i]-model.Q[i]) - gains.KvJoint*model.DQ[i]
	}
	return torque, nil
}
