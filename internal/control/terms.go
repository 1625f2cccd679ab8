package control

import (
	"math"

	"skyshield/interceptor/internal/dynamics"
)

// Term is a composable in-place transform applied to the law torque. Terms
// run in pipeline order, so the clamp always goes last.
type Term interface {
	Name() string
	Apply(torque []float64, model *dynamics.Model)
}

// Pipeline applies its terms in order.
type Pipeline []Term

// Apply runs every term against the torque vector.
func (p Pipeline) Apply(torque []float64, model *dynamics.Model) {
	for _, term := range p {
		term.Apply(torque, model)
	}
}

// GravityComp cancels the configuration-dependent gravity load.
type GravityComp struct{}

// Name implements Term.
func (GravityComp) Name() string { return "gravity" }

// Apply adds the generalized gravity vector so the plant sees a weightless arm.
func (GravityComp) Apply(torque []float64, model *dynamics.Model) {
	for i := range torque {
		torque[i] += model.Gravity[i]
	}
}

// FrictionComp counters viscous joint friction proportionally to velocity.
type FrictionComp struct {
	Damping float64
}

// Name implements Term.
func (FrictionComp) Name() string { return "friction" }

// Apply subtracts a velocity-proportional torque opposing the motion.
func (f FrictionComp) Apply(torque []float64, model *dynamics.Model) {
	if f.Damping <= 0 {
		return
	}
	for i := range torque {
		torque[i] -= f.Damping * model.DQ[i]
	}
}

// LimitRepulsion pushes joints away from their stops with a potential field
// that ramps up quadratically inside the margin and is zero elsewhere.
type LimitRepulsion struct {
	Lower  []float64
	Upper  []float64
	Gain   []float64
	Margin float64
}

// Name implements Term.
func (LimitRepulsion) Name() string { return "limit-repulsion" }

// Apply adds the repulsive torque for every joint inside its margin.
func (l LimitRepulsion) Apply(torque []float64, model *dynamics.Model) {
	if l.Margin <= 0 {
		return
	}
	for i := range torque {
		if i >= len(l.Lower) || i >= len(l.Upper) || i >= len(l.Gain) {
			return
		}
		//1.- Quadratic ramp from zero at the margin edge to full gain at the stop.
		if dist := model.Q[i] - l.Lower[i]; dist < l.Margin {
			pen := (l.Margin - math.Max(dist, 0)) / l.Margin
			torque[i] += l.Gain[i] * pen * pen
		}
		if dist := l.Upper[i] - model.Q[i]; dist < l.Margin {
			pen := (l.Margin - math.Max(dist, 0)) / l.Margin
			torque[i] -= l.Gain[i] * pen * pen
		}
	}
}

// TorqueClamp saturates each joint torque at the actuator bound. Applying it
// twice changes nothing, which keeps the pipeline safe to reorder downstream.
type TorqueClamp struct {
	Max []float64
}

// Name implements Term.
func (TorqueClamp) Name() string { return "torque-clamp" }

// Apply bounds every entry to [-max, max].
func (t TorqueClamp) Apply(torque []float64, model *dynamics.Model) {
	for i := range torque {
		if i >= len(t.Max) {
			return
		}
		limit := t.Max[i]
		if limit <= 0 {
			continue
		}
		if torque[i] > limit {
			torque[i] = limit
		} else if torque[i] < -limit {
			torque[i] = -limit
		}
	}
}

// repulsionMargin is how close to a stop, in radians, the potential field activates.
const repulsionMargin = 0.25

// DefaultPipeline assembles the standard safety stack for a chain: gravity
// compensation, friction compensation, limit repulsion, and the final clamp.
func DefaultPipeline(chain *dynamics.Chain, gains Gains) Pipeline {
	lower, upper := chain.JointLimits()
	maxTorque := chain.TorqueLimits()
	repulsion := make([]float64, len(maxTorque))
	for i, limit := range maxTorque {
		//1.- Half the actuator budget is enough to win against any sane law torque.
		repulsion[i] = 0.5 * limit
	}
	return Pipeline{
		GravityComp{},
		FrictionComp{Damping: gains.Friction},
		LimitRepulsion{Lower: lower, Upper: upper, Gain: repulsion, Margin: repulsionMargin},
		TorqueClamp{Max: maxTorque},
	}
}

// HoldPipeline is the reduced stack used while paused: compensate gravity,
// clamp, and nothing else, so the arm floats in place without chasing goals.
func HoldPipeline(chain *dynamics.Chain) Pipeline {
	return Pipeline{
		GravityComp{},
		TorqueClamp{Max: chain.TorqueLimits()},
	}
}
