package robotlink

import (
	"math"
	"testing"

	"skyshield/interceptor/internal/dynamics"
	"skyshield/interceptor/internal/geom"
)

func TestSimLinkReportsPlantState(t *testing.T) {
	chain := dynamics.DefaultChain(geom.Vec3{})
	pose := dynamics.DefaultReadyPose()
	plant, err := dynamics.NewPlant(chain, pose, 0.4)
	if err != nil {
		t.Fatalf("build plant: %v", err)
	}
	link := NewSimLink(plant)
	defer link.Close()

	q, dq, err := link.State()
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	for i := range pose {
		if q[i] != pose[i] {
			t.Fatalf("joint %d at %v, want %v", i, q[i], pose[i])
		}
		if dq[i] != 0 {
			t.Fatalf("joint %d moving at rest: %v", i, dq[i])
		}
	}
}

func TestSimLinkApplyMovesPlant(t *testing.T) {
	chain := dynamics.DefaultChain(geom.Vec3{})
	plant, err := dynamics.NewPlant(chain, dynamics.DefaultReadyPose(), 0.4)
	if err != nil {
		t.Fatalf("build plant: %v", err)
	}
	link := NewSimLink(plant)

	torque := make([]float64, chain.DOF())
	torque[0] = 12
	for i := 0; i < 20; i++ {
		if err := link.Apply(torque, 0.002); err != nil {
			t.Fatalf("apply step %d: %v", i, err)
		}
	}

	_, dq, err := link.State()
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if dq[0] <= 0 {
		t.Fatalf("waist should spin under positive torque, got %v", dq[0])
	}
	for i := 1; i < len(dq); i++ {
		if math.IsNaN(dq[i]) {
			t.Fatalf("joint %d velocity is NaN", i)
		}
	}
}

func TestSimLinkRejectsWrongTorqueWidth(t *testing.T) {
	chain := dynamics.DefaultChain(geom.Vec3{})
	plant, err := dynamics.NewPlant(chain, dynamics.DefaultReadyPose(), 0.4)
	if err != nil {
		t.Fatalf("build plant: %v", err)
	}
	link := NewSimLink(plant)
	if err := link.Apply([]float64{1, 2}, 0.002); err == nil {
		t.Fatal("expected dimension error for short torque vector")
	}
}
