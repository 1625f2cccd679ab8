package robotlink

import (
	"errors"
	"sync"

	"skyshield/interceptor/internal/dynamics"
)

// ErrNoSensors signals that no joint state has been received yet.
var ErrNoSensors = errors.New("no sensor state received")

// Link is the control loop's view of the arm: read joint state, apply torque.
type Link interface {
	// State returns the latest known joint positions and velocities.
	State() (q, dq []float64, err error)
	// Apply commands the given joint torques for the next dt seconds.
	Apply(torque []float64, dt float64) error
	// Close releases the underlying transport or simulation resources.
	Close() error
}

// SimLink drives the in-process rigid body plant, standing in for hardware.
type SimLink struct {
	mu    sync.Mutex
	plant *dynamics.Plant
}

// NewSimLink wraps the plant so the control loop sees the same interface in
// simulation and on the bench.
func NewSimLink(plant *dynamics.Plant) *SimLink {
	return &SimLink{plant: plant}
}

// State reports the plant's joint positions and velocities.
func (l *SimLink) State() ([]float64, []float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, dq := l.plant.State()
	return q, dq, nil
}

// Apply integrates the plant forward under the commanded torque.
func (l *SimLink) Apply(torque []float64, dt float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.plant.Apply(torque, dt)
}

// Close is a no-op for the simulated link.
func (l *SimLink) Close() error { return nil }
