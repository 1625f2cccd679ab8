package httpapi

import (
	"sync"
	"time"
)

// Throttle is a token bucket capping how often an operational endpoint runs.
// The bucket refills continuously at rate tokens per second up to burst.
type Throttle struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewThrottle builds a bucket allowing burst calls at once and rate calls per
// second sustained. Non-positive parameters disable the throttle.
func NewThrottle(rate, burst float64, timeSource func() time.Time) *Throttle {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &Throttle{
		rate:   rate,
		burst:  burst,
		tokens: burst,
		last:   timeSource(),
		now:    timeSource,
	}
}

// Allow reports whether the caller may proceed, consuming one token if so.
func (t *Throttle) Allow() bool {
	if t == nil || t.rate <= 0 || t.burst <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	at := t.now()
	elapsed := at.Sub(t.last).Seconds()
	t.last = at
	if elapsed > 0 {
		t.tokens += elapsed * t.rate
		if t.tokens > t.burst {
			t.tokens = t.burst
		}
	}
	if t.tokens < 1 {
		return false
	}
	t.tokens--
	return true
}
