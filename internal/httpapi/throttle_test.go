package httpapi

import (
	"testing"
	"time"
)

func TestThrottleConsumesBurstThenRefuses(t *testing.T) {
	now := time.Unix(0, 0)
	throttle := NewThrottle(1, 2, func() time.Time { return now })

	if !throttle.Allow() || !throttle.Allow() {
		t.Fatal("burst capacity should admit two calls")
	}
	if throttle.Allow() {
		t.Fatal("third call should be throttled")
	}
}

func TestThrottleRefillsOverTime(t *testing.T) {
	now := time.Unix(0, 0)
	throttle := NewThrottle(2, 1, func() time.Time { return now })

	if !throttle.Allow() {
		t.Fatal("first call should pass")
	}
	if throttle.Allow() {
		t.Fatal("bucket should be empty")
	}

	now = now.Add(600 * time.Millisecond)
	if !throttle.Allow() {
		t.Fatal("bucket should refill after 600ms at 2 tokens per second")
	}
}

func TestThrottleRefillCapsAtBurst(t *testing.T) {
	now := time.Unix(0, 0)
	throttle := NewThrottle(10, 2, func() time.Time { return now })

	now = now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		if !throttle.Allow() {
			t.Fatalf("call %d should pass within burst", i)
		}
	}
	if throttle.Allow() {
		t.Fatal("refill must not exceed burst capacity")
	}
}

func TestThrottleDisabledWithZeroRate(t *testing.T) {
	throttle := NewThrottle(0, 0, nil)
	for i := 0; i < 100; i++ {
		if !throttle.Allow() {
			t.Fatal("disabled throttle must always allow")
		}
	}
}

func TestThrottleNilReceiverAllows(t *testing.T) {
	var throttle *Throttle
	if !throttle.Allow() {
		t.Fatal("nil throttle must allow")
	}
}
