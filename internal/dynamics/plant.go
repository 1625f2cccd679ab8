package dynamics

import (
	"fmt"
	"sync"

	"skyshield/interceptor/internal/geom"
)

// Plant integrates the chain's rigid body response to commanded torques. It
// stands in for the physical arm when the interceptor runs in simulation.
type Plant struct {
	mu      sync.Mutex
	chain   *Chain
	q       []float64
	dq      []float64
	damping float64
}

// NewPlant builds a plant resting at the supplied pose with zero velocity.
func NewPlant(chain *Chain, q0 []float64, damping float64) (*Plant, error) {
	if len(q0) != chain.DOF() {
		return nil, fmt.Errorf("%w: pose has %d angles for %d joints", ErrDimension, len(q0), chain.DOF())
	}
	if damping < 0 {
		damping = 0
	}
	return &Plant{
		chain:   chain,
		q:       append([]float64(nil), q0...),
		dq:      make([]float64, chain.DOF()),
		damping: damping,
	}, nil
}

// State copies the current joint position and velocity.
func (p *Plant) State() (q, dq []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.q...), append([]float64(nil), p.dq...)
}

// SetState overwrites the plant state, used on resets and in tests.
func (p *Plant) SetState(q, dq []float64) error {
	if len(q) != p.chain.DOF() || len(dq) != p.chain.DOF() {
		return ErrDimension
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.q, q)
	copy(p.dq, dq)
	return nil
}

// Apply advances the plant by one semi-implicit Euler step under the supplied
// joint torques. Joints that reach a stop are clamped and their velocity zeroed.
func (p *Plant) Apply(torque []float64, dt float64) error {
	n := p.chain.DOF()
	if len(torque) != n {
		return fmt.Errorf("%w: got %d torques for %d joints", ErrDimension, len(torque), n)
	}
	if dt <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	model, err := p.chain.Evaluate(p.q, p.dq)
	if err != nil {
		return err
	}

	//1.- ddq = A^-1 (tau - g - b*dq) with viscous joint damping.
	net := make([]float64, n)
	for i := 0; i < n; i++ {
		net[i] = torque[i] - model.Gravity[i] - p.damping*p.dq[i]
	}
	ddq := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			ddq[i] += model.MassInv.At(i, j) * net[j]
		}
	}

	//2.- Semi-implicit Euler: update velocity first so the position step uses it.
	for i := 0; i < n; i++ {
		p.dq[i] += ddq[i] * dt
		p.q[i] += p.dq[i] * dt
	}

	//3.- Hard stops clamp the angle and kill the velocity into the stop.
	for i, joint := range p.chain.Joints {
		if p.q[i] < joint.MinAngle {
			p.q[i] = joint.MinAngle
			p.dq[i] = 0
		} else if p.q[i] > joint.MaxAngle {
			p.q[i] = joint.MaxAngle
			p.dq[i] = 0
		}
	}
	return nil
}

// EEPosition reports the current end effector position, mostly for telemetry.
func (p *Plant) EEPosition() (geom.Vec3, error) {
	q, _ := p.State()
	frame, err := p.chain.Forward(q)
	if err != nil {
		return geom.Vec3{}, err
	}
	return frame.EE, nil
}
