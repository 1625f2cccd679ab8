package ballistics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"skyshield/interceptor/internal/geom"
)

var (
	// ErrInsufficientSamples signals that too few observations are retained to fit a curve.
	ErrInsufficientSamples = errors.New("ballistics: insufficient samples")
	// ErrDegenerateFit signals that the retained observation times cannot pin down a velocity.
	ErrDegenerateFit = errors.New("ballistics: degenerate sample times")
)

// Fit estimates launch position and velocity from timestamped samples under a
// pinned gravity vector. The anchor time of the returned trajectory is the
// time of the first retained sample.
func Fit(samples []Observation, gravity geom.Vec3) (Trajectory, error) {
	if len(samples) < 2 {
		return Trajectory{}, fmt.Errorf("%w: got %d, need at least 2", ErrInsufficientSamples, len(samples))
	}
	anchor := samples[0].Time
	n := len(samples)

	//1.- One design matrix serves all three axes: column 0 carries the launch
	//    position, column 1 the launch velocity.
	design := mat.NewDense(n, 2, nil)
	rhs := mat.NewDense(n, 3, nil)
	for i, sample := range samples {
		dt := sample.Time - anchor
		design.Set(i, 0, 1)
		design.Set(i, 1, dt)
		//2.- Move the known gravity contribution onto the right hand side so the
		//    remaining problem is linear in the unknowns.
		free := sample.Position.Sub(gravity.Scale(0.5 * dt * dt))
		rhs.Set(i, 0, free.X)
		rhs.Set(i, 1, free.Y)
		rhs.Set(i, 2, free.Z)
	}

	//3.- Least squares via QR; coincident sample times collapse the rank and
	//    surface as a solve error.
	var coef mat.Dense
	if err := coef.Solve(design, rhs); err != nil {
		return Trajectory{}, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}

	traj := Trajectory{
		Origin:     geom.Vec3{X: coef.At(0, 0), Y: coef.At(0, 1), Z: coef.At(0, 2)},
		Velocity:   geom.Vec3{X: coef.At(1, 0), Y: coef.At(1, 1), Z: coef.At(1, 2)},
		Gravity:    gravity,
		LaunchTime: anchor,
		Samples:    n,
	}

	//4.- RMS of the per-sample position residual norms gates fit quality upstream.
	var sum float64
	var pred mat.Dense
	pred.Mul(design, &coef)
	for i := 0; i < n; i++ {
		dx := pred.At(i, 0) - rhs.At(i, 0)
		dy := pred.At(i, 1) - rhs.At(i, 1)
		dz := pred.At(i, 2) - rhs.At(i, 2)
		sum += dx*dx + dy*dy + dz*dz
	}
	traj.Residual = math.Sqrt(sum / float64(n))
	return traj, nil
}
