package control

import (
	"math"
	"testing"

	"skyshield/interceptor/internal/dynamics"
	"skyshield/interceptor/internal/geom"
)

func TestGravityCompAddsModelGravity(t *testing.T) {
	model := fixtureModel(t, nil, nil)
	torque := make([]float64, len(model.Q))

	GravityComp{}.Apply(torque, model)
	for i := range torque {
		if torque[i] != model.Gravity[i] {
			t.Fatalf("joint %d: expected %v, got %v", i, model.Gravity[i], torque[i])
		}
	}
}

func TestFrictionCompOpposesMotion(t *testing.T) {
	dq := []float64{1.0, -0.5, 0, 0, 0, 0}
	model := fixtureModel(t, nil, dq)
	torque := make([]float64, len(model.Q))

	FrictionComp{Damping: 2}.Apply(torque, model)
	if torque[0] != -2.0 {
		t.Fatalf("expected -2.0 against forward motion, got %v", torque[0])
	}
	if torque[1] != 1.0 {
		t.Fatalf("expected +1.0 against backward motion, got %v", torque[1])
	}
	//1.- Disabled damping must leave the vector alone.
	quiet := make([]float64, len(model.Q))
	FrictionComp{}.Apply(quiet, model)
	for i, tq := range quiet {
		if tq != 0 {
			t.Fatalf("joint %d should be untouched with zero damping, got %v", i, tq)
		}
	}
}

func TestLimitRepulsionActsOnlyNearStops(t *testing.T) {
	chain := dynamics.DefaultChain(geom.Vec3{})
	lower, upper := chain.JointLimits()
	term := LimitRepulsion{
		Lower:  lower,
		Upper:  upper,
		Gain:   []float64{10, 10, 10, 10, 10, 10},
		Margin: 0.25,
	}

	//1.- Mid-range joints feel nothing.
	mid := fixtureModel(t, []float64{0, 0, 0, 0, 0, 0}, nil)
	torque := make([]float64, 6)
	term.Apply(torque, mid)
	for i, tq := range torque {
		if tq != 0 {
			t.Fatalf("joint %d should feel no repulsion mid-range, got %v", i, tq)
		}
	}

	//2.- Near the upper stop the field pushes back down.
	high := fixtureModel(t, []float64{2.7, 0, 0, 0, 0, 0}, nil)
	torque = make([]float64, 6)
	term.Apply(torque, high)
	if torque[0] >= 0 {
		t.Fatalf("expected push away from upper stop, got %v", torque[0])
	}

	//3.- Near the lower stop it pushes back up, harder the closer it gets.
	low := fixtureModel(t, []float64{-2.7, 0, 0, 0, 0, 0}, nil)
	torque = make([]float64, 6)
	term.Apply(torque, low)
	if torque[0] <= 0 {
		t.Fatalf("expected push away from lower stop, got %v", torque[0])
	}
	closer := fixtureModel(t, []float64{-2.79, 0, 0, 0, 0, 0}, nil)
	strong := make([]float64, 6)
	term.Apply(strong, closer)
	if strong[0] <= torque[0] {
		t.Fatalf("repulsion should grow toward the stop: %v vs %v", strong[0], torque[0])
	}
}

func TestTorqueClampIsIdempotent(t *testing.T) {
	model := fixtureModel(t, nil, nil)
	clamp := TorqueClamp{Max: []float64{10, 10, 10, 10, 10, 10}}

	torque := []float64{25, -3, -40, 10, 0, 9.99}
	clamp.Apply(torque, model)
	once := append([]float64(nil), torque...)
	clamp.Apply(torque, model)

	for i := range torque {
		if torque[i] != once[i] {
			t.Fatalf("second clamp changed joint %d: %v vs %v", i, torque[i], once[i])
		}
		if math.Abs(torque[i]) > 10 {
			t.Fatalf("joint %d above bound after clamp: %v", i, torque[i])
		}
	}
	if torque[1] != -3 || torque[3] != 10 {
		t.Fatalf("in-bound entries should pass through, got %v %v", torque[1], torque[3])
	}
}

func TestDefaultPipelineEndsWithClamp(t *testing.T) {
	chain := dynamics.DefaultChain(geom.Vec3{})
	pipeline := DefaultPipeline(chain, DefaultGains())

	names := make([]string, len(pipeline))
	for i, term := range pipeline {
		names[i] = term.Name()
	}
	want := []string{"gravity", "friction", "limit-repulsion", "torque-clamp"}
	if len(names) != len(want) {
		t.Fatalf("unexpected pipeline: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("term %d should be %q, got %q", i, want[i], names[i])
		}
	}

	//1.- Whatever the upstream terms produce must leave saturated.
	model := fixtureModel(t, nil, nil)
	torque := []float64{1e6, -1e6, 1e6, -1e6, 1e6, -1e6}
	pipeline.Apply(torque, model)
	for i, limit := range chain.TorqueLimits() {
		if math.Abs(torque[i]) > limit {
			t.Fatalf("joint %d exceeds actuator bound: %v > %v", i, torque[i], limit)
		}
	}
}

func TestHoldPipelineFloatsTheArm(t *testing.T) {
	chain := dynamics.DefaultChain(geom.Vec3{})
	model := fixtureModel(t, nil, nil)

	torque := make([]float64, chain.DOF())
	HoldPipeline(chain).Apply(torque, model)
	//1.- The hold command is pure gravity compensation inside actuator bounds.
	for i := range torque {
		want := geom.Clamp(model.Gravity[i], -chain.Joints[i].MaxTorque, chain.Joints[i].MaxTorque)
		if torque[i] != want {
			t.Fatalf("joint %d: expected %v, got %v", i, want, torque[i])
		}
	}
}
