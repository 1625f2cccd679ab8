package launcher

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"skyshield/interceptor/internal/ballistics"
	"skyshield/interceptor/internal/geom"
)

// Config shapes the synthetic projectile stream used in simulation mode.
type Config struct {
	// MeanPeriod is the average gap between launches in seconds.
	MeanPeriod float64
	// Speed and SpeedSigma shape the launch speed draw in m/s.
	Speed      float64
	SpeedSigma float64
	// Elevation and ElevationSigma shape the launch pitch draw in radians.
	Elevation      float64
	ElevationSigma float64
	// AzimuthSigma spreads the heading around the straight shot at the target.
	AzimuthSigma float64
	// Distance places the muzzle this far along +X from the aim point.
	Distance float64
	// LateralSigma jitters the muzzle sideways per launch.
	LateralSigma float64
	// Height lifts the muzzle above the aim point.
	Height float64
	// NoiseSigma perturbs each reported position component per observation.
	NoiseSigma float64
	// Gravity is the shared ballistic acceleration.
	Gravity geom.Vec3
	// Seed fixes the pseudo random stream so runs replay exactly.
	Seed uint64
	// Target is the point launches are aimed toward.
	Target geom.Vec3
}

const (
	defaultMeanPeriod = 1.5
	defaultSpeed      = 5.0
	defaultSpeedSigma = 0.25
	defaultElevation  = 0.93
	defaultElevSigma  = 0.05
	defaultAzimSigma  = 0.04
	defaultDistance   = 3.0
	defaultLateral    = 0.2
	defaultHeight     = 1.0
	defaultNoiseSigma = 0.01
)

func (c Config) withDefaults() Config {
	if c.MeanPeriod <= 0 {
		c.MeanPeriod = defaultMeanPeriod
	}
	if c.Speed <= 0 {
		c.Speed = defaultSpeed
	}
	if c.SpeedSigma <= 0 {
		c.SpeedSigma = defaultSpeedSigma
	}
	if c.Elevation == 0 {
		c.Elevation = defaultElevation
	}
	if c.ElevationSigma <= 0 {
		c.ElevationSigma = defaultElevSigma
	}
	if c.AzimuthSigma <= 0 {
		c.AzimuthSigma = defaultAzimSigma
	}
	if c.Distance <= 0 {
		c.Distance = defaultDistance
	}
	if c.LateralSigma <= 0 {
		c.LateralSigma = defaultLateral
	}
	if c.Height == 0 {
		c.Height = defaultHeight
	}
	if c.NoiseSigma <= 0 {
		c.NoiseSigma = defaultNoiseSigma
	}
	if c.Gravity == (geom.Vec3{}) {
		c.Gravity = geom.Vec3{Z: -9.8}
	}
	return c
}

// Launch pairs a fresh projectile id with its ground-truth trajectory.
type Launch struct {
	ID         int
	Trajectory ballistics.Trajectory
}

// Sample is one noisy position report for a live projectile.
type Sample struct {
	ID          int
	Observation ballistics.Observation
}

// Launcher emits seeded pseudo random projectiles and noisy observations of
// them, standing in for the vision feed when no hardware is attached.
type Launcher struct {
	mu        sync.Mutex
	cfg       Config
	gap       distuv.Exponential
	speed     distuv.Normal
	elevation distuv.Normal
	azimuth   distuv.Normal
	lateral   distuv.Normal
	noise     distuv.Normal
	next      float64
	lastID    int
	live      map[int]ballistics.Trajectory
}

// New builds a launcher whose stream is fully determined by cfg.Seed.
func New(cfg Config) *Launcher {
	cfg = cfg.withDefaults()
	//1.- One PCG source feeds every distribution so a seed fixes the whole run.
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15)
	l := &Launcher{
		cfg:       cfg,
		gap:       distuv.Exponential{Rate: 1 / cfg.MeanPeriod, Src: src},
		speed:     distuv.Normal{Mu: cfg.Speed, Sigma: cfg.SpeedSigma, Src: src},
		elevation: distuv.Normal{Mu: cfg.Elevation, Sigma: cfg.ElevationSigma, Src: src},
		azimuth:   distuv.Normal{Mu: math.Pi, Sigma: cfg.AzimuthSigma, Src: src},
		lateral:   distuv.Normal{Mu: 0, Sigma: cfg.LateralSigma, Src: src},
		noise:     distuv.Normal{Mu: 0, Sigma: cfg.NoiseSigma, Src: src},
		live:      make(map[int]ballistics.Trajectory),
	}
	//2.- Schedule the first launch one exponential gap after time zero.
	l.next = l.gap.Rand()
	return l
}

// Advance fires every launch scheduled at or before now and returns them.
func (l *Launcher) Advance(now float64) []Launch {
	l.mu.Lock()
	defer l.mu.Unlock()
	var spawned []Launch
	for l.next <= now {
		at := l.next
		traj := l.spawn(at)
		l.lastID++
		l.live[l.lastID] = traj
		spawned = append(spawned, Launch{ID: l.lastID, Trajectory: traj})
		//1.- Chain the next launch off the scheduled time, not the poll time.
		l.next = at + l.gap.Rand()
	}
	return spawned
}

func (l *Launcher) spawn(at float64) ballistics.Trajectory {
	//1.- Draw muzzle jitter and launch state in a fixed order for determinism.
	origin := l.cfg.Target.Add(geom.Vec3{X: l.cfg.Distance, Y: l.lateral.Rand(), Z: l.cfg.Height})
	s := l.speed.Rand()
	e := l.elevation.Rand()
	a := l.azimuth.Rand()
	velocity := geom.Vec3{
		X: s * math.Cos(e) * math.Cos(a),
		Y: s * math.Cos(e) * math.Sin(a),
		Z: s * math.Sin(e),
	}
	return ballistics.Trajectory{
		Origin:     origin,
		Velocity:   velocity,
		Gravity:    l.cfg.Gravity,
		LaunchTime: at,
	}
}

// Observe reports one noisy sample per live projectile at the given time and
// retires projectiles that have already hit the ground.
func (l *Launcher) Observe(now float64) []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int, 0, len(l.live))
	for id := range l.live {
		ids = append(ids, id)
	}
	//1.- Iterate in id order so the noise draws replay identically per seed.
	sort.Ints(ids)
	samples := make([]Sample, 0, len(ids))
	for _, id := range ids {
		traj := l.live[id]
		if now < traj.LaunchTime {
			continue
		}
		if impact, ok := traj.GroundImpactTime(0); ok && now >= impact {
			delete(l.live, id)
			continue
		}
		pos := traj.PositionAt(now)
		pos.X += l.noise.Rand()
		pos.Y += l.noise.Rand()
		pos.Z += l.noise.Rand()
		samples = append(samples, Sample{
			ID:          id,
			Observation: ballistics.Observation{Time: now, Position: pos},
		})
	}
	return samples
}

// Live returns the number of projectiles still in flight.
func (l *Launcher) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}
