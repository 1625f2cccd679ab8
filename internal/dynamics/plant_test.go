package dynamics

import (
	"math"
	"testing"

	"skyshield/interceptor/internal/geom"
)

func TestPlantHoldsUnderGravityCompensation(t *testing.T) {
	chain := DefaultChain(geom.Vec3{})
	q0 := []float64{0.2, -0.8, 1.5, 0.3, -0.4, 0.1}
	plant, err := NewPlant(chain, q0, 0.5)
	if err != nil {
		t.Fatalf("NewPlant returned error: %v", err)
	}

	//1.- Feeding back the exact gravity vector must pin the arm in place.
	for step := 0; step < 200; step++ {
		q, dq := plant.State()
		model, err := chain.Evaluate(q, dq)
		if err != nil {
			t.Fatalf("Evaluate returned error: %v", err)
		}
		if err := plant.Apply(model.Gravity, 0.002); err != nil {
			t.Fatalf("Apply returned error: %v", err)
		}
	}
	q, dq := plant.State()
	for i := range q {
		if math.Abs(q[i]-q0[i]) > 1e-9 {
			t.Fatalf("joint %d drifted under compensation: %v", i, q[i]-q0[i])
		}
		if math.Abs(dq[i]) > 1e-9 {
			t.Fatalf("joint %d picked up velocity: %v", i, dq[i])
		}
	}
}

func TestPlantFallsWithoutTorque(t *testing.T) {
	chain := DefaultChain(geom.Vec3{})
	plant, err := NewPlant(chain, []float64{0, 1.2, 0, 0, 0, 0}, 0)
	if err != nil {
		t.Fatalf("NewPlant returned error: %v", err)
	}

	zero := make([]float64, chain.DOF())
	for step := 0; step < 100; step++ {
		if err := plant.Apply(zero, 0.002); err != nil {
			t.Fatalf("Apply returned error: %v", err)
		}
	}
	q, dq := plant.State()
	//1.- A tilted shoulder with no support keeps tipping over.
	if q[1] <= 1.2 {
		t.Fatalf("shoulder should fall further, got %v", q[1])
	}
	if dq[1] <= 0 {
		t.Fatalf("shoulder should accelerate into the fall, got %v", dq[1])
	}
}

func TestPlantClampsAtStops(t *testing.T) {
	chain := DefaultChain(geom.Vec3{})
	plant, err := NewPlant(chain, []float64{0, 1.99, 0, 0, 0, 0}, 0)
	if err != nil {
		t.Fatalf("NewPlant returned error: %v", err)
	}

	push := make([]float64, chain.DOF())
	push[1] = 50
	for step := 0; step < 50; step++ {
		if err := plant.Apply(push, 0.002); err != nil {
			t.Fatalf("Apply returned error: %v", err)
		}
	}
	q, dq := plant.State()
	if q[1] != chain.Joints[1].MaxAngle {
		t.Fatalf("joint should rest at the stop, got %v", q[1])
	}
	if dq[1] != 0 {
		t.Fatalf("velocity should be zeroed at the stop, got %v", dq[1])
	}
}

func TestPlantRejectsBadInput(t *testing.T) {
	chain := DefaultChain(geom.Vec3{})
	if _, err := NewPlant(chain, []float64{0}, 0); err == nil {
		t.Fatal("expected dimension error for a short pose")
	}
	plant, err := NewPlant(chain, make([]float64, chain.DOF()), 0)
	if err != nil {
		t.Fatalf("NewPlant returned error: %v", err)
	}
	if err := plant.Apply([]float64{1, 2}, 0.002); err == nil {
		t.Fatal("expected dimension error for short torque vector")
	}
	//1.- Non-positive steps are ignored rather than integrated backwards.
	if err := plant.Apply(make([]float64, chain.DOF()), 0); err != nil {
		t.Fatalf("zero dt should be a no-op, got %v", err)
	}
}
