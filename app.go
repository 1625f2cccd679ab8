package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"skyshield/interceptor/internal/auth"
	"skyshield/interceptor/internal/ballistics"
	"skyshield/interceptor/internal/config"
	"skyshield/interceptor/internal/control"
	"skyshield/interceptor/internal/dynamics"
	"skyshield/interceptor/internal/engage"
	"skyshield/interceptor/internal/events"
	"skyshield/interceptor/internal/geom"
	"skyshield/interceptor/internal/launcher"
	"skyshield/interceptor/internal/logging"
	"skyshield/interceptor/internal/metrics"
	"skyshield/interceptor/internal/robotlink"
	"skyshield/interceptor/internal/simclock"
	"skyshield/interceptor/internal/telemetry"
	"skyshield/interceptor/internal/tracker"
	"skyshield/interceptor/internal/vision"
	"skyshield/interceptor/internal/world"
)

const (
	// measurementBacklog bounds the vision ingress channel; excess frames are dropped.
	measurementBacklog = 256
	// plantDamping is the viscous joint damping of the simulated arm.
	plantDamping = 0.4
	// catchRadius is how close the palm must be to the frozen rendezvous
	// point at release for an attempt to count as a hit.
	catchRadius = 0.10
)

// App owns the shared state and the background loops of the interception
// daemon. Construction wires everything; Start spins the loops; Stop drains
// them and closes the session artifacts.
type App struct {
	cfg *config.Config
	log *logging.Logger

	clock     *simclock.Clock
	world     *world.State
	tracks    *tracker.Store
	gate      *vision.Gate
	machine   *engage.Machine
	chain     *dynamics.Chain
	workspace ballistics.Workspace

	linkMu sync.RWMutex
	link   robotlink.Link
	bridge *robotlink.BridgeLink
	plant  *dynamics.Plant

	gen        *launcher.Launcher
	stream     *events.Stream
	recorder   *telemetry.Recorder
	hub        *telemetry.Broadcaster
	visionAuth *auth.HMACTokenVerifier

	hold        control.Pipeline
	torqueLimit []float64
	jointLower  []float64
	jointUpper  []float64
	jointLabels []string

	measurements chan *vision.Measurement

	torqueMu sync.Mutex
	torque   []float64

	// Outage flags are owned by the single loop that writes them.
	sensorOutage  bool
	commandOutage bool

	started  time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	finished atomic.Bool
}

// newApp builds the daemon from its configuration. The caller owns Stop.
func newApp(cfg *config.Config, log *logging.Logger) (*App, error) {
	base := geom.Vec3{X: cfg.BasePosition[0], Y: cfg.BasePosition[1], Z: cfg.BasePosition[2]}
	chain := dynamics.DefaultChain(base)
	ready := dynamics.DefaultReadyPose()

	//1.- Narrow the factory arm limits before anything derives values from the chain.
	if len(cfg.TorqueLimits) > 0 {
		if err := chain.SetTorqueLimits(cfg.TorqueLimits); err != nil {
			return nil, fmt.Errorf("apply torque limit override: %w", err)
		}
	}
	if len(cfg.JointLower) > 0 || len(cfg.JointUpper) > 0 {
		if err := chain.SetJointLimits(cfg.JointLower, cfg.JointUpper); err != nil {
			return nil, fmt.Errorf("apply joint limit override: %w", err)
		}
	}
	lower, upper := chain.JointLimits()
	for i, angle := range ready {
		if angle < lower[i] || angle > upper[i] {
			return nil, fmt.Errorf("ready pose joint %d (%v) outside joint limits [%v, %v]", i+1, angle, lower[i], upper[i])
		}
	}
	gains := control.DefaultGains()
	for name, value := range cfg.GainOverrides {
		if err := gains.SetByName(name, value); err != nil {
			return nil, fmt.Errorf("apply gain override: %w", err)
		}
	}

	//2.- Seed the shared goal from the ready pose so every law starts with a sane target.
	model, err := chain.Evaluate(ready, make([]float64, chain.DOF()))
	if err != nil {
		return nil, fmt.Errorf("evaluate ready pose: %w", err)
	}
	desired := control.Desired{
		Position:    model.EEPos,
		Orientation: model.EEOrient,
		Joint:       ready,
		Mode:        control.ModeJointSpace,
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		cfg:   cfg,
		log:   log,
		clock: simclock.New(),
		world: world.NewState(desired, gains, cfg.Simulation),
		gate:  vision.NewGate(vision.GateConfig{}),
		machine: engage.NewMachine(engage.Config{
			CommitWindow:   cfg.CommitWindow,
			ReadyTolerance: cfg.ReadyTolerance,
			ReadyJoint:     ready,
		}),
		chain: chain,
		workspace: ballistics.Workspace{
			Center:      base,
			InnerRadius: cfg.WorkspaceInner,
			OuterRadius: cfg.WorkspaceOuter,
			FloorZ:      cfg.WorkspaceFloor,
		},
		tracks: tracker.NewStore(tracker.Config{
			Expiry:       cfg.ExpiryWindow,
			ResidualGate: cfg.ResidualGate,
			FloorZ:       cfg.WorkspaceFloor,
		}),
		stream:       events.NewStream(events.Config{}),
		hold:         control.HoldPipeline(chain),
		torqueLimit:  chain.TorqueLimits(),
		jointLower:   lower,
		jointUpper:   upper,
		measurements: make(chan *vision.Measurement, measurementBacklog),
		ctx:          ctx,
		cancel:       cancel,
	}
	for i := 0; i < chain.DOF(); i++ {
		app.jointLabels = append(app.jointLabels, fmt.Sprintf("j%d", i+1))
	}
	if cfg.VisionToken != "" {
		verifier, err := auth.NewHMACTokenVerifier(cfg.VisionToken, time.Minute)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("configure vision auth: %w", err)
		}
		app.visionAuth = verifier
	}

	//3.- Pick the actuation channel: the in-process plant or the hardware bridge.
	if cfg.Simulation {
		if err := app.attachSimulatedPlant(); err != nil {
			cancel()
			return nil, err
		}
		app.gen = launcher.New(launcher.Config{
			MeanPeriod: cfg.LaunchPeriod,
			Speed:      cfg.LaunchSpeed,
			Seed:       cfg.LaunchSeed,
			Target:     base,
		})
	} else {
		if err := app.attachRobotBridge(); err != nil {
			cancel()
			return nil, err
		}
	}

	//4.- Open the session sinks and the telemetry fan-out hub.
	recorder, manifest, err := telemetry.NewRecorder(cfg.TelemetryDir, cfg.SessionID, time.Now)
	if err != nil {
		app.closeLink()
		cancel()
		return nil, fmt.Errorf("open session recorder: %w", err)
	}
	recorder.SetSessionMetadata(cfg.LaunchSeed, app.workspace)
	app.recorder = recorder
	app.hub = telemetry.NewBroadcaster(cfg.MaxClients, cfg.PingInterval, log)

	if cfg.StartPaused {
		app.world.SetPaused(true)
	}
	log.Info("session recorder ready",
		logging.String("session", manifest.SessionID),
		logging.String("dir", recorder.Directory()))
	return app, nil
}

// attachSimulatedPlant builds the in-process arm and routes actuation to it.
func (a *App) attachSimulatedPlant() error {
	if a.plant == nil {
		plant, err := dynamics.NewPlant(a.chain, dynamics.DefaultReadyPose(), plantDamping)
		if err != nil {
			return fmt.Errorf("build simulated plant: %w", err)
		}
		a.plant = plant
	}
	a.setLink(robotlink.NewSimLink(a.plant))
	return nil
}

// attachRobotBridge dials the hardware bridge and routes actuation to it.
func (a *App) attachRobotBridge() error {
	if a.bridge == nil {
		bridge, err := robotlink.NewBridgeLink(a.cfg.RobotURL, a.cfg.RobotToken, a.log)
		if err != nil {
			return fmt.Errorf("dial robot bridge: %w", err)
		}
		a.bridge = bridge
	}
	a.setLink(a.bridge)
	return nil
}

// switchSimulation swaps the actuation channel at runtime. The bridge stays
// dialed across a switch to simulation so switching back is instant.
func (a *App) switchSimulation(sim bool) error {
	if sim == a.world.Simulation() {
		return nil
	}
	if sim {
		if err := a.attachSimulatedPlant(); err != nil {
			return err
		}
	} else {
		if a.cfg.RobotURL == "" {
			return errors.New("no robot bridge configured (INTERCEPTOR_ROBOT_URL)")
		}
		if err := a.attachRobotBridge(); err != nil {
			return err
		}
	}
	a.world.SetSimulation(sim)
	a.log.Info("actuation channel switched", logging.Bool("simulation", sim))
	return nil
}

func (a *App) setLink(link robotlink.Link) {
	a.linkMu.Lock()
	a.link = link
	a.linkMu.Unlock()
}

func (a *App) activeLink() robotlink.Link {
	a.linkMu.RLock()
	defer a.linkMu.RUnlock()
	return a.link
}

func (a *App) closeLink() {
	a.linkMu.Lock()
	defer a.linkMu.Unlock()
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.log.Warn("close robot bridge", logging.Error(err))
		}
		a.bridge = nil
	}
	a.link = nil
}

// Start spins up the background loops.
func (a *App) Start() {
	a.started = time.Now()
	a.wg.Add(5)
	go a.controlLoop()
	go a.visionLoop()
	go a.robotLoop()
	go a.telemetryLoop()
	go a.eventLoop()
}

// Stop cancels the loops, waits for them, and closes the session artifacts.
// It is safe to call more than once.
func (a *App) Stop() {
	if !a.finished.CompareAndSwap(false, true) {
		return
	}
	a.cancel()
	a.wg.Wait()
	a.closeLink()
	if a.hub != nil {
		a.hub.Shutdown()
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.log.Warn("close session recorder", logging.Error(err))
		}
	}
}

// controlLoop runs the fastest loop: sense, decide, servo, at a fixed period.
func (a *App) controlLoop() {
	defer a.wg.Done()
	dt := 1.0 / float64(a.cfg.ControlRateHz)
	ticker := time.NewTicker(time.Second / time.Duration(a.cfg.ControlRateHz))
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if a.finished.Load() {
				return
			}
			if err := a.controlCycle(dt); err != nil {
				a.log.Error("control cycle", logging.Error(err))
			}
			metrics.LoopTick("control")
		}
	}
}

// controlCycle advances the daemon by one fixed simulation step: refresh the
// robot model, prune dead tracks, step the engagement machine, run the active
// law through the safety terms, and publish the commanded torque.
func (a *App) controlCycle(dt float64) error {
	start := time.Now()
	dtReal := a.clock.Tick()
	a.clock.AdvanceSim(dt)
	now := a.clock.Sim()
	a.world.BeginCycle(dtReal, dt)

	//1.- Sense the joints and rebuild the dynamics model outside any lock.
	q, dq, err := a.activeLink().State()
	if err != nil {
		if !a.sensorOutage {
			a.sensorOutage = true
			a.log.Warn("joint sensors unavailable, holding last command", logging.Error(err))
		}
		return nil
	}
	if a.sensorOutage {
		a.sensorOutage = false
		a.log.Info("joint sensors recovered")
	}
	// Hardware can report past a stop; the model must stay inside the limits.
	if len(q) == len(a.jointLower) {
		for i := range q {
			q[i] = geom.Clamp(q[i], a.jointLower[i], a.jointUpper[i])
		}
	}
	model, err := a.chain.Evaluate(q, dq)
	if err != nil {
		return fmt.Errorf("evaluate chain: %w", err)
	}
	sensedAt := now
	if a.bridge != nil {
		if at, ok := a.bridge.SensedAt(); ok {
			sensedAt = at
		}
	}
	a.world.UpdateRobot(model, sensedAt)

	//2.- Expire dead tracks before the machine scans for work.
	for _, exp := range a.tracks.Expire(now) {
		a.gate.Forget(exp.ID)
		a.publishTrack(now, events.TrackEvent{TrackID: exp.ID, Change: "expired", Reason: exp.Reason})
	}
	metrics.SetLiveTracks(a.tracks.Len())

	//3.- Advance the engagement machine and fold its goal into the shared state.
	paused := a.world.Paused()
	directive, machineEvents := a.machine.Step(engage.Input{
		Now:    now,
		Paused: paused,
		Q:      q,
		Select: func() (tracker.Target, bool) {
			return a.tracks.SelectTarget(a.workspace, now)
		},
		Refresh: func(id int) (tracker.Target, error) {
			return a.tracks.Intercept(id, a.workspace, now)
		},
		Release: func(id int) {
			a.tracks.Remove(id)
			a.gate.Forget(id)
		},
	})
	a.applyDirective(directive, machineEvents)
	a.world.SetPhase(directive.Phase.String())
	metrics.SetPhase(directive.Phase.String())
	metrics.SetPaused(paused)
	for _, ev := range machineEvents {
		if ev.Kind == "attempt" {
			a.scoreAttempt(model, ev)
		}
		a.publishEngagement(now, ev)
	}

	//4.- Run the active law, or only the hold stack while paused.
	desired := a.world.Desired()
	gains := a.world.Gains()
	var torque []float64
	if paused {
		torque = make([]float64, a.chain.DOF())
		a.hold.Apply(torque, model)
	} else {
		torque, err = control.Compute(model, desired, gains)
		if err != nil {
			return fmt.Errorf("control law: %w", err)
		}
		//5.- Safety terms rebuilt per cycle so live gain edits take effect.
		control.DefaultPipeline(a.chain, gains).Apply(torque, model)
	}
	a.setTorque(torque)

	for i, label := range a.jointLabels {
		metrics.SetJointTorque(label, torque[i])
		if torque[i] >= a.torqueLimit[i] || torque[i] <= -a.torqueLimit[i] {
			metrics.TorqueSaturated(label)
		}
	}
	if desired.Mode != control.ModeJointSpace {
		metrics.SetEndEffectorError(model.EEPos.Distance(desired.Position))
	}
	metrics.ObserveControlCycle(time.Since(start).Seconds())
	return nil
}

// applyDirective carries the machine's goal into the shared desired state.
// Steady idle leaves the goal alone so operator commands survive between
// engagements; frozen directives never touch it.
func (a *App) applyDirective(d engage.Directive, machineEvents []engage.Event) {
	if d.FreezeGoal || !d.HasGoal {
		return
	}
	if d.Phase == engage.PhaseIdle && len(machineEvents) == 0 {
		return
	}
	desired := a.world.Desired()
	desired.Mode = d.Mode
	if d.Joint != nil {
		desired.Joint = d.Joint
	}
	if d.Orientation != nil {
		desired.Orientation = d.Orientation
	}
	if d.Mode != control.ModeJointSpace {
		desired.Position = d.Position
	}
	a.world.SetDesired(desired)
}

// scoreAttempt grades a finished engagement by how close the palm came to the
// rendezvous point that stayed frozen through the final approach.
func (a *App) scoreAttempt(model *dynamics.Model, ev engage.Event) {
	miss := model.EEPos.Distance(a.world.Desired().Position)
	outcome := "miss"
	if miss <= catchRadius {
		outcome = "hit"
	}
	metrics.InterceptAttempt()
	metrics.InterceptOutcome(outcome == "hit")
	a.log.Info("intercept attempt complete",
		logging.Int("projectile", ev.TargetID),
		logging.Float64("intercept_at", ev.InterceptTime),
		logging.Float64("miss_meters", miss),
		logging.String("outcome", outcome))
}

func (a *App) publishEngagement(now float64, ev engage.Event) {
	switch ev.Kind {
	case "transition":
		a.log.Info("phase transition",
			logging.String("from", ev.From),
			logging.String("to", ev.To),
			logging.String("reason", ev.Reason),
			logging.Float64("at", ev.At))
		metrics.PhaseTransition(ev.To)
	case "acquired":
		a.log.Info("target acquired",
			logging.Int("projectile", ev.TargetID),
			logging.Float64("intercept_at", ev.InterceptTime))
	}
	if _, err := a.stream.PublishEngagement(now, a.wallMs(), ev); err != nil {
		a.log.Warn("publish engagement event", logging.Error(err))
	}
}

func (a *App) publishTrack(now float64, ev events.TrackEvent) {
	if _, err := a.stream.PublishTrack(now, a.wallMs(), ev); err != nil {
		a.log.Warn("publish track event", logging.Error(err))
	}
}

func (a *App) publishSystem(change, detail string) {
	if _, err := a.stream.PublishSystem(a.clock.Sim(), a.wallMs(), events.SystemEvent{Change: change, Detail: detail}); err != nil {
		a.log.Warn("publish system event", logging.Error(err))
	}
}

func (a *App) wallMs() int64 {
	realMs, _, _ := a.clock.Snapshot()
	return realMs
}

func (a *App) setTorque(torque []float64) {
	a.torqueMu.Lock()
	a.torque = append(a.torque[:0], torque...)
	a.torqueMu.Unlock()
}

func (a *App) commandedTorque() []float64 {
	a.torqueMu.Lock()
	defer a.torqueMu.Unlock()
	if a.torque == nil {
		return nil
	}
	return append([]float64(nil), a.torque...)
}

// visionLoop drains the measurement channel and, in simulation mode, paces
// the synthetic launcher at the configured vision rate.
func (a *App) visionLoop() {
	defer a.wg.Done()
	var tick <-chan time.Time
	if a.gen != nil {
		ticker := time.NewTicker(time.Second / time.Duration(a.cfg.VisionRateHz))
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-a.ctx.Done():
			return
		case m := <-a.measurements:
			if a.finished.Load() {
				return
			}
			a.ingestMeasurement(m)
			metrics.LoopTick("vision")
		case <-tick:
			if a.finished.Load() {
				return
			}
			if a.world.Simulation() {
				a.syntheticVision()
			}
			metrics.LoopTick("vision")
		}
	}
}

// syntheticVision advances the launcher and feeds its noisy samples through
// the same gate as real measurements.
func (a *App) syntheticVision() {
	now := a.clock.Sim()
	for _, launch := range a.gen.Advance(now) {
		a.log.Debug("projectile launched",
			logging.Int("projectile", launch.ID),
			logging.Float64("at", launch.Trajectory.LaunchTime))
	}
	for _, sample := range a.gen.Observe(now) {
		a.ingestObservation(sample.ID, sample.Observation)
	}
}

func (a *App) ingestMeasurement(m *vision.Measurement) {
	id, obs := m.Observation()
	a.ingestObservation(id, obs)
}

// ingestObservation gates one vision sample and folds it into the tracker.
func (a *App) ingestObservation(id int, obs ballistics.Observation) {
	now := a.clock.Sim()
	decision := a.gate.Evaluate(id, obs.Time, now)
	if !decision.Accepted {
		metrics.MeasurementDropped(string(decision.Reason))
		a.log.Debug("measurement dropped",
			logging.Int("projectile", id),
			logging.String("reason", string(decision.Reason)))
		return
	}
	metrics.MeasurementAccepted()
	if a.tracks.Ingest(id, obs) {
		a.publishTrack(now, events.TrackEvent{TrackID: id, Change: "spawned"})
	}
	metrics.SetLiveTracks(a.tracks.Len())
}

// robotLoop dispatches the latest commanded torque at the robot cadence. In
// simulation the same path integrates the in-process plant.
func (a *App) robotLoop() {
	defer a.wg.Done()
	dt := 1.0 / float64(a.cfg.RobotRateHz)
	ticker := time.NewTicker(time.Second / time.Duration(a.cfg.RobotRateHz))
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if a.finished.Load() {
				return
			}
			a.robotCycle(dt)
			metrics.LoopTick("robot")
		}
	}
}

func (a *App) robotCycle(dt float64) {
	torque := a.commandedTorque()
	if torque == nil {
		return
	}
	if err := a.activeLink().Apply(torque, dt); err != nil {
		if !a.commandOutage {
			a.commandOutage = true
			a.log.Warn("torque dispatch failing", logging.Error(err))
		}
		return
	}
	if a.commandOutage {
		a.commandOutage = false
		a.log.Info("torque dispatch recovered")
	}
}

// telemetryLoop broadcasts and records world snapshots at a fixed interval.
func (a *App) telemetryLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.TelemetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if a.finished.Load() {
				return
			}
			a.telemetryCycle()
			metrics.LoopTick("telemetry")
		}
	}
}

func (a *App) telemetryCycle() {
	snap := a.world.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		a.log.Error("encode world snapshot", logging.Error(err))
		return
	}
	a.hub.Broadcast(payload)
	if err := a.recorder.RecordFrame(snap.Frame, int64(snap.SimTime*1000), payload); err != nil {
		a.log.Warn("record frame", logging.Error(err))
	}
	_, _, offsetMs := a.clock.Snapshot()
	metrics.SetClockOffset(offsetMs)
	metrics.SetWSClients(a.hub.ClientCount())
}

// eventLoop pumps the ordered event stream into the recorder and the
// telemetry fan-out, acknowledging each envelope once it is persisted.
func (a *App) eventLoop() {
	defer a.wg.Done()
	sub, err := a.stream.Subscribe(a.ctx, "recorder", 64)
	if err != nil {
		a.log.Error("subscribe event stream", logging.Error(err))
		return
	}
	defer sub.Close()
	for {
		select {
		case <-a.ctx.Done():
			return
		case env, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := a.recorder.RecordEvent(env); err != nil {
				a.log.Warn("record event", logging.Error(err))
			}
			if payload, err := json.Marshal(env); err == nil {
				a.hub.Broadcast(payload)
			}
			if err := sub.Ack(env.Sequence); err != nil {
				a.log.Warn("acknowledge event", logging.Uint64("sequence", env.Sequence), logging.Error(err))
			}
			metrics.LoopTick("event")
		}
	}
}

// Uptime reports how long the loops have been running.
func (a *App) Uptime() time.Duration {
	if a.started.IsZero() {
		return 0
	}
	return time.Since(a.started)
}

// TelemetryClients counts the attached snapshot subscribers.
func (a *App) TelemetryClients() int {
	return a.hub.ClientCount()
}

// LiveTracks counts the projectiles currently tracked.
func (a *App) LiveTracks() int {
	return a.tracks.Len()
}

// StartupError reports a boot failure to the readiness probe; construction
// fails hard instead, so a running app is always ready.
func (a *App) StartupError() error {
	return nil
}

// flushSession forces the recorder to disk and returns the session directory.
func (a *App) flushSession(context.Context) (string, error) {
	if err := a.recorder.Flush(); err != nil {
		return "", err
	}
	return a.recorder.Directory(), nil
}
