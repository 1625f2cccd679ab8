package simclock

import (
	"sync"
	"time"
)

// Clock tracks wall time against accumulated simulation time so the loops can
// measure cadence and drift. Simulation time only moves when a loop advances
// it, which keeps fixed-step integration honest under scheduler jitter.
type Clock struct {
	mu    sync.Mutex
	now   func() time.Time
	start time.Time
	last  time.Time
	sim   float64
}

// New builds a clock running on the system time.
func New() *Clock {
	return NewWithNow(time.Now)
}

// NewWithNow builds a clock on a custom time source, enabling deterministic tests.
func NewWithNow(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	at := now()
	return &Clock{now: now, start: at, last: at}
}

// Tick returns the wall seconds elapsed since the previous Tick.
func (c *Clock) Tick() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	at := c.now()
	dt := at.Sub(c.last).Seconds()
	c.last = at
	//1.- Clamp backwards clock jumps to zero rather than integrating negative time.
	if dt < 0 {
		dt = 0
	}
	return dt
}

// AdvanceSim accumulates simulated seconds.
func (c *Clock) AdvanceSim(dt float64) {
	if dt <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sim += dt
}

// Sim reads the accumulated simulation time in seconds.
func (c *Clock) Sim() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sim
}

// Real reads the wall seconds elapsed since the clock was built.
func (c *Clock) Real() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.start).Seconds()
}

// Snapshot reports wall time, simulated time, and their offset in
// milliseconds, the drift sample published to telemetry clients.
func (c *Clock) Snapshot() (realMs, simMs, offsetMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	realMs = c.now().Sub(c.start).Milliseconds()
	simMs = int64(c.sim * 1000)
	return realMs, simMs, realMs - simMs
}
