package ballistics

import (
	"errors"
	"math"
	"testing"

	"skyshield/interceptor/internal/geom"
)

var testGravity = geom.Vec3{Z: -9.8}

// sampleTruth evaluates the canonical test trajectory used across this package:
// launched at (5,0,1) with velocity (-3,0,4) at t=0 under -9.8 gravity.
func sampleTruth(at float64) geom.Vec3 {
	truth := Trajectory{
		Origin:   geom.Vec3{X: 5, Y: 0, Z: 1},
		Velocity: geom.Vec3{X: -3, Y: 0, Z: 4},
		Gravity:  testGravity,
	}
	return truth.PositionAt(at)
}

func TestFitRecoversNoiselessTrajectory(t *testing.T) {
	samples := []Observation{
		{Time: 0.1, Position: sampleTruth(0.1)},
		{Time: 0.2, Position: sampleTruth(0.2)},
		{Time: 0.3, Position: sampleTruth(0.3)},
	}

	traj, err := Fit(samples, testGravity)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	if traj.LaunchTime != 0.1 {
		t.Fatalf("expected anchor at first sample, got %v", traj.LaunchTime)
	}
	if traj.Samples != 3 {
		t.Fatalf("expected 3 samples recorded, got %d", traj.Samples)
	}
	//1.- Extrapolating back to t=0 must reproduce the true launch state.
	if got := traj.PositionAt(0); !vecsClose(got, geom.Vec3{X: 5, Y: 0, Z: 1}, 1e-9) {
		t.Fatalf("launch position mismatch: %+v", got)
	}
	if got := traj.VelocityAt(0); !vecsClose(got, geom.Vec3{X: -3, Y: 0, Z: 4}, 1e-9) {
		t.Fatalf("launch velocity mismatch: %+v", got)
	}
	if traj.Residual > 1e-9 {
		t.Fatalf("noiseless fit should have zero residual, got %v", traj.Residual)
	}
}

func TestFitStaysCloseUnderMeasurementNoise(t *testing.T) {
	//1.- Perturbations sized like a sigma=0.01 sensor, fixed for determinism.
	noise := []geom.Vec3{
		{X: 0.003, Y: -0.002, Z: 0.004},
		{X: -0.004, Y: 0.001, Z: -0.003},
		{X: 0.002, Y: 0.003, Z: -0.001},
	}
	samples := make([]Observation, 3)
	for i, at := range []float64{0.1, 0.2, 0.3} {
		samples[i] = Observation{Time: at, Position: sampleTruth(at).Add(noise[i])}
	}

	traj, err := Fit(samples, testGravity)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	if got := traj.PositionAt(0); !vecsClose(got, geom.Vec3{X: 5, Y: 0, Z: 1}, 0.05) {
		t.Fatalf("noisy launch position drifted too far: %+v", got)
	}
	if got := traj.VelocityAt(0); !vecsClose(got, geom.Vec3{X: -3, Y: 0, Z: 4}, 0.05) {
		t.Fatalf("noisy launch velocity drifted too far: %+v", got)
	}
	if traj.Residual > 0.02 {
		t.Fatalf("residual should stay near the noise floor, got %v", traj.Residual)
	}
}

func TestFitRejectsTooFewSamples(t *testing.T) {
	_, err := Fit([]Observation{{Time: 0.1, Position: sampleTruth(0.1)}}, testGravity)
	if !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples, got %v", err)
	}
}

func TestFitRejectsCoincidentTimes(t *testing.T) {
	samples := []Observation{
		{Time: 0.2, Position: sampleTruth(0.2)},
		{Time: 0.2, Position: sampleTruth(0.2).Add(geom.Vec3{X: 0.01})},
	}
	_, err := Fit(samples, testGravity)
	if !errors.Is(err, ErrDegenerateFit) {
		t.Fatalf("expected ErrDegenerateFit, got %v", err)
	}
}

func TestGroundImpactTime(t *testing.T) {
	truth := Trajectory{
		Origin:   geom.Vec3{X: 5, Y: 0, Z: 1},
		Velocity: geom.Vec3{X: -3, Y: 0, Z: 4},
		Gravity:  testGravity,
	}

	impact, ok := truth.GroundImpactTime(0)
	if !ok {
		t.Fatal("expected an impact time")
	}
	want := (4 + math.Sqrt(16+4*4.9)) / 9.8
	if math.Abs(impact-want) > 1e-9 {
		t.Fatalf("impact time mismatch: got %v want %v", impact, want)
	}

	//1.- A rising projectile with no gravity never comes down.
	drifting := Trajectory{Origin: geom.Vec3{Z: 1}, Velocity: geom.Vec3{Z: 1}}
	if _, ok := drifting.GroundImpactTime(0); ok {
		t.Fatal("gravity-free ascent should never impact")
	}

	//2.- Starting below the plane impacts immediately.
	buried := Trajectory{Origin: geom.Vec3{Z: -0.5}, Gravity: testGravity, LaunchTime: 2}
	if at, ok := buried.GroundImpactTime(0); !ok || at != 2 {
		t.Fatalf("expected immediate impact at launch, got %v %v", at, ok)
	}
}

func vecsClose(a, b geom.Vec3, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}
