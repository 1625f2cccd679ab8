package simclock

import (
	"math"
	"testing"
	"time"
)

// fakeNow yields a controllable time source for deterministic clock tests.
type fakeNow struct {
	at time.Time
}

func (f *fakeNow) advance(d time.Duration) { f.at = f.at.Add(d) }
func (f *fakeNow) now() time.Time          { return f.at }

func TestTickMeasuresWallDeltas(t *testing.T) {
	src := &fakeNow{at: time.Unix(1000, 0)}
	clock := NewWithNow(src.now)

	src.advance(2 * time.Millisecond)
	if dt := clock.Tick(); math.Abs(dt-0.002) > 1e-9 {
		t.Fatalf("expected 2ms tick, got %v", dt)
	}
	src.advance(5 * time.Millisecond)
	if dt := clock.Tick(); math.Abs(dt-0.005) > 1e-9 {
		t.Fatalf("expected 5ms tick, got %v", dt)
	}
	//1.- A clock stepping backwards must not produce negative deltas.
	src.at = src.at.Add(-time.Second)
	if dt := clock.Tick(); dt != 0 {
		t.Fatalf("backwards step should clamp to zero, got %v", dt)
	}
}

func TestSimAccumulation(t *testing.T) {
	clock := NewWithNow((&fakeNow{at: time.Unix(0, 0)}).now)

	clock.AdvanceSim(0.002)
	clock.AdvanceSim(0.002)
	clock.AdvanceSim(-1)
	if sim := clock.Sim(); math.Abs(sim-0.004) > 1e-12 {
		t.Fatalf("expected 4ms of sim time, got %v", sim)
	}
}

func TestSnapshotReportsDrift(t *testing.T) {
	src := &fakeNow{at: time.Unix(500, 0)}
	clock := NewWithNow(src.now)

	src.advance(250 * time.Millisecond)
	clock.AdvanceSim(0.2)

	realMs, simMs, offsetMs := clock.Snapshot()
	if realMs != 250 {
		t.Fatalf("expected 250ms wall, got %d", realMs)
	}
	if simMs != 200 {
		t.Fatalf("expected 200ms sim, got %d", simMs)
	}
	if offsetMs != 50 {
		t.Fatalf("expected 50ms drift, got %d", offsetMs)
	}
	if real := clock.Real(); math.Abs(real-0.25) > 1e-9 {
		t.Fatalf("expected 0.25s real, got %v", real)
	}
}
