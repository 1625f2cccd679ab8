package vision

import "sync"

// DropReason labels why the gate refused a measurement.
type DropReason string

const (
	// DropNone marks an accepted measurement.
	DropNone DropReason = ""
	// DropStale marks a measurement older than the freshness window.
	DropStale DropReason = "stale"
	// DropOutOfOrder marks a measurement at or before the last accepted one.
	DropOutOfOrder DropReason = "out_of_order"
	// DropRateLimited marks a measurement arriving faster than the per-track floor.
	DropRateLimited DropReason = "rate_limited"
)

// Decision reports whether a measurement may reach the tracker.
type Decision struct {
	Accepted bool
	Reason   DropReason
}

// DropCounters aggregates refusals by reason.
type DropCounters struct {
	Stale       uint64 `json:"stale"`
	OutOfOrder  uint64 `json:"out_of_order"`
	RateLimited uint64 `json:"rate_limited"`
}

// GateConfig bounds the freshness and pacing checks.
type GateConfig struct {
	// MaxAge is the largest tolerated gap between sample time and now, in seconds.
	MaxAge float64
	// MinInterval is the smallest tolerated spacing between samples of one track.
	MinInterval float64
}

const (
	defaultMaxAge      = 0.25
	defaultMinInterval = 0.001
)

func (c GateConfig) withDefaults() GateConfig {
	if c.MaxAge <= 0 {
		c.MaxAge = defaultMaxAge
	}
	if c.MinInterval <= 0 {
		c.MinInterval = defaultMinInterval
	}
	return c
}

// Gate filters vision measurements before they feed the tracker.
type Gate struct {
	mu    sync.Mutex
	cfg   GateConfig
	last  map[int]float64
	drops DropCounters
}

// NewGate builds a gate with the supplied bounds, falling back to defaults.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{cfg: cfg.withDefaults(), last: make(map[int]float64)}
}

// Evaluate decides whether a measurement stamped at sample time may pass.
func (g *Gate) Evaluate(id int, at, now float64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	//1.- Refuse samples that aged out before reaching the estimator.
	if now-at > g.cfg.MaxAge {
		g.drops.Stale++
		return Decision{Reason: DropStale}
	}
	//2.- Refuse samples that rewind or duplicate the per-track timeline.
	last, seen := g.last[id]
	if seen && at <= last {
		g.drops.OutOfOrder++
		return Decision{Reason: DropOutOfOrder}
	}
	//3.- Refuse samples arriving faster than the configured pacing floor.
	if seen && at-last < g.cfg.MinInterval {
		g.drops.RateLimited++
		return Decision{Reason: DropRateLimited}
	}
	//4.- Record the accepted timestamp so later samples are ordered against it.
	g.last[id] = at
	return Decision{Accepted: true}
}

// Forget clears the per-track timeline, typically after the tracker expires it.
func (g *Gate) Forget(id int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, id)
}

// Drops returns a copy of the refusal counters.
func (g *Gate) Drops() DropCounters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drops
}
