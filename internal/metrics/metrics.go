package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	phaseGauge      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "interceptor_phase"})
	pausedGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "interceptor_paused"})
	liveTracksGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "interceptor_live_tracks"})
	eeErrorGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "interceptor_ee_error_meters"})
	wsClientsGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "interceptor_ws_clients"})
	clockOffsetMs   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "interceptor_clock_offset_ms"})

	controlCycleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "interceptor_control_cycle_seconds",
		Help:    "Wall time spent per control cycle",
		Buckets: prometheus.ExponentialBuckets(50e-6, 2, 12),
	})
	jointTorqueGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "interceptor_joint_torque_newton_meters",
			Help: "Commanded torque per joint after safety terms",
		},
		[]string{"joint"},
	)
	torqueSaturationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interceptor_torque_saturation_total",
			Help: "Cycles in which a joint command hit its torque limit",
		},
		[]string{"joint"},
	)
	measurementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interceptor_measurements_total",
		Help: "Vision measurements accepted into the tracker",
	})
	measurementsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interceptor_measurements_dropped_total",
			Help: "Vision measurements refused before reaching the tracker",
		},
		[]string{"reason"},
	)
	phaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interceptor_phase_transitions_total",
			Help: "Engagement phase transitions by destination phase",
		},
		[]string{"to"},
	)
	interceptAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interceptor_intercept_attempts_total",
		Help: "Completed intercept attempts regardless of outcome",
	})
	interceptOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interceptor_intercept_outcomes_total",
			Help: "Completed intercept attempts graded against the catch radius",
		},
		[]string{"outcome"},
	)
	loopIterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interceptor_loop_iterations_total",
			Help: "Iterations completed by each daemon loop",
		},
		[]string{"loop"},
	)
)

func init() {
	prometheus.MustRegister(
		phaseGauge, pausedGauge, liveTracksGauge, eeErrorGauge,
		wsClientsGauge, clockOffsetMs,
		controlCycleSeconds, jointTorqueGauge, torqueSaturationTotal,
		measurementsTotal, measurementsDroppedTotal,
		phaseTransitionsTotal, interceptAttemptsTotal,
		interceptOutcomesTotal, loopIterationsTotal,
	)
}

// phaseCodes maps engagement phase names onto a stable numeric scale for dashboards.
var phaseCodes = map[string]float64{
	"idle":      0,
	"acquire":   1,
	"intercept": 2,
	"return":    3,
	"paused":    4,
}

// SetPhase publishes the current engagement phase.
func SetPhase(phase string) {
	if code, ok := phaseCodes[phase]; ok {
		phaseGauge.Set(code)
	}
}

// SetPaused publishes the operator hold flag.
func SetPaused(paused bool) {
	if paused {
		pausedGauge.Set(1)
		return
	}
	pausedGauge.Set(0)
}

// SetLiveTracks publishes the number of projectiles currently tracked.
func SetLiveTracks(n int) {
	liveTracksGauge.Set(float64(n))
}

// SetEndEffectorError publishes the distance between the palm and its goal.
func SetEndEffectorError(meters float64) {
	eeErrorGauge.Set(meters)
}

// SetWSClients publishes the number of attached telemetry clients.
func SetWSClients(n int) {
	wsClientsGauge.Set(float64(n))
}

// SetClockOffset publishes the real-versus-sim clock drift in milliseconds.
func SetClockOffset(ms int64) {
	clockOffsetMs.Set(float64(ms))
}

// ObserveControlCycle records the wall time of one control cycle.
func ObserveControlCycle(seconds float64) {
	controlCycleSeconds.Observe(seconds)
}

// SetJointTorque publishes the commanded torque for one joint.
func SetJointTorque(joint string, value float64) {
	jointTorqueGauge.WithLabelValues(joint).Set(value)
}

// TorqueSaturated counts a cycle in which the named joint hit its limit.
func TorqueSaturated(joint string) {
	torqueSaturationTotal.WithLabelValues(joint).Inc()
}

// MeasurementAccepted counts a vision sample that reached the tracker.
func MeasurementAccepted() {
	measurementsTotal.Inc()
}

// MeasurementDropped counts a refused vision sample by reason.
func MeasurementDropped(reason string) {
	if reason == "" {
		return
	}
	measurementsDroppedTotal.WithLabelValues(reason).Inc()
}

// PhaseTransition counts a transition into the named phase.
func PhaseTransition(to string) {
	if to == "" {
		return
	}
	phaseTransitionsTotal.WithLabelValues(to).Inc()
}

// InterceptAttempt counts one completed intercept attempt.
func InterceptAttempt() {
	interceptAttemptsTotal.Inc()
}

// InterceptOutcome grades a completed attempt as a hit or a miss.
func InterceptOutcome(hit bool) {
	if hit {
		interceptOutcomesTotal.WithLabelValues("hit").Inc()
		return
	}
	interceptOutcomesTotal.WithLabelValues("miss").Inc()
}

// LoopTick counts one iteration of the named daemon loop.
func LoopTick(loop string) {
	loopIterationsTotal.WithLabelValues(loop).Inc()
}
