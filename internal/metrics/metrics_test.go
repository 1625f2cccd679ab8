package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPhaseGaugeUsesStableCodes(t *testing.T) {
	SetPhase("intercept")
	if got := testutil.ToFloat64(phaseGauge); got != 2 {
		t.Fatalf("expected intercept code 2, got %v", got)
	}
	SetPhase("idle")
	if got := testutil.ToFloat64(phaseGauge); got != 0 {
		t.Fatalf("expected idle code 0, got %v", got)
	}
	//1.- Unknown phases must not disturb the published value.
	SetPhase("improvise")
	if got := testutil.ToFloat64(phaseGauge); got != 0 {
		t.Fatalf("expected unknown phase to be ignored, got %v", got)
	}
}

func TestPausedGaugeTogglesBetweenZeroAndOne(t *testing.T) {
	SetPaused(true)
	if got := testutil.ToFloat64(pausedGauge); got != 1 {
		t.Fatalf("expected paused gauge 1, got %v", got)
	}
	SetPaused(false)
	if got := testutil.ToFloat64(pausedGauge); got != 0 {
		t.Fatalf("expected paused gauge 0, got %v", got)
	}
}

func TestDropCountersSplitByReason(t *testing.T) {
	before := testutil.ToFloat64(measurementsDroppedTotal.WithLabelValues("stale"))
	MeasurementDropped("stale")
	MeasurementDropped("stale")
	MeasurementDropped("")
	after := testutil.ToFloat64(measurementsDroppedTotal.WithLabelValues("stale"))
	if after-before != 2 {
		t.Fatalf("expected two stale drops, got %v", after-before)
	}
}

func TestTorqueMetricsTrackJointLabels(t *testing.T) {
	SetJointTorque("elbow", -12.5)
	if got := testutil.ToFloat64(jointTorqueGauge.WithLabelValues("elbow")); got != -12.5 {
		t.Fatalf("expected elbow torque -12.5, got %v", got)
	}
	before := testutil.ToFloat64(torqueSaturationTotal.WithLabelValues("elbow"))
	TorqueSaturated("elbow")
	after := testutil.ToFloat64(torqueSaturationTotal.WithLabelValues("elbow"))
	if after-before != 1 {
		t.Fatalf("expected one saturation tick, got %v", after-before)
	}
}

func TestControlCycleHistogramCollects(t *testing.T) {
	ObserveControlCycle(0.0012)
	if got := testutil.CollectAndCount(controlCycleSeconds); got != 1 {
		t.Fatalf("expected one histogram metric, got %d", got)
	}
}

func TestInterceptOutcomeSplitsHitsAndMisses(t *testing.T) {
	hitsBefore := testutil.ToFloat64(interceptOutcomesTotal.WithLabelValues("hit"))
	missesBefore := testutil.ToFloat64(interceptOutcomesTotal.WithLabelValues("miss"))
	InterceptOutcome(true)
	InterceptOutcome(false)
	InterceptOutcome(false)
	if got := testutil.ToFloat64(interceptOutcomesTotal.WithLabelValues("hit")) - hitsBefore; got != 1 {
		t.Fatalf("expected one hit, got %v", got)
	}
	if got := testutil.ToFloat64(interceptOutcomesTotal.WithLabelValues("miss")) - missesBefore; got != 2 {
		t.Fatalf("expected two misses, got %v", got)
	}
}

func TestLoopTickCountsPerLoop(t *testing.T) {
	before := testutil.ToFloat64(loopIterationsTotal.WithLabelValues("robot"))
	LoopTick("robot")
	LoopTick("robot")
	LoopTick("vision")
	after := testutil.ToFloat64(loopIterationsTotal.WithLabelValues("robot"))
	if after-before != 2 {
		t.Fatalf("expected two robot ticks, got %v", after-before)
	}
}
