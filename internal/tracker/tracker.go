package tracker

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"skyshield/interceptor/internal/ballistics"
	"skyshield/interceptor/internal/geom"
)

var (
	// ErrUnknownTrack signals a query for a projectile id the arena never saw or already dropped.
	ErrUnknownTrack = errors.New("tracker: unknown projectile")
	// ErrNoFit signals that a track exists but its trajectory estimate is not trustworthy yet.
	ErrNoFit = errors.New("tracker: no usable fit")
)

const (
	// DefaultWindow bounds the trailing observation window per projectile.
	DefaultWindow = 32
	// DefaultMinSamples gates fitting until enough observations arrived.
	DefaultMinSamples = 3
	// DefaultExpiry drops tracks that stayed silent for this many seconds.
	DefaultExpiry = 0.5
	// DefaultResidualGate rejects fits whose RMS residual exceeds this many meters.
	DefaultResidualGate = 0.15
)

// Config tunes the arena. Zero values fall back to the package defaults.
type Config struct {
	Window       int
	MinSamples   int
	Expiry       float64
	ResidualGate float64
	// FloorZ is the bottom of the field of play; fits that predict the
	// projectile already fell below it expire on the next sweep.
	FloorZ  float64
	Gravity geom.Vec3
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MinSamples < 2 {
		c.MinSamples = DefaultMinSamples
	}
	if c.Expiry <= 0 {
		c.Expiry = DefaultExpiry
	}
	if c.ResidualGate <= 0 {
		c.ResidualGate = DefaultResidualGate
	}
	if c.Gravity == (geom.Vec3{}) {
		c.Gravity = geom.Vec3{Z: -9.8}
	}
	return c
}

type track struct {
	id       int
	samples  []ballistics.Observation
	lastSeen float64
	traj     ballistics.Trajectory
	hasFit   bool
	fitErr   error
}

// eligible reports whether the track can be offered as an interception candidate.
func (t *track) eligible(gate float64) bool {
	return t.hasFit && t.traj.Residual <= gate
}

// Target pairs a projectile id with its planned rendezvous.
type Target struct {
	ID         int
	Point      ballistics.InterceptPoint
	Trajectory ballistics.Trajectory
}

// TrackInfo is a read-only summary of one arena entry for shells and telemetry.
type TrackInfo struct {
	ID       int     `json:"id"`
	Samples  int     `json:"samples"`
	LastSeen float64 `json:"last_seen"`
	HasFit   bool    `json:"has_fit"`
	Residual float64 `json:"residual"`
	Eligible bool    `json:"eligible"`
}

// Store keeps every live projectile track behind one mutex so the vision and
// control loops can share it safely.
type Store struct {
	mu     sync.RWMutex
	cfg    Config
	tracks map[int]*track
}

// NewStore builds an empty arena with the supplied configuration.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg.withDefaults(), tracks: make(map[int]*track)}
}

// Ingest folds one observation into the projectile's trailing window and
// refreshes the trajectory estimate when enough samples are retained. It
// reports whether the observation opened a brand-new track.
func (s *Store) Ingest(id int, obs ballistics.Observation) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tracks[id]
	created := !ok
	if !ok {
		entry = &track{id: id, samples: make([]ballistics.Observation, 0, s.cfg.Window)}
		s.tracks[id] = entry
	}
	//1.- The gate orders live feeds; the arena still refuses replayed stamps.
	if n := len(entry.samples); n > 0 && obs.Time <= entry.samples[n-1].Time {
		return created
	}
	//2.- Bound the window by discarding the oldest sample first.
	if len(entry.samples) == s.cfg.Window {
		copy(entry.samples, entry.samples[1:])
		entry.samples = entry.samples[:len(entry.samples)-1]
	}
	entry.samples = append(entry.samples, obs)
	if obs.Time > entry.lastSeen {
		entry.lastSeen = obs.Time
	}

	//3.- Refit eagerly so readers always see the freshest estimate.
	if len(entry.samples) < s.cfg.MinSamples {
		entry.hasFit = false
		entry.fitErr = fmt.Errorf("%w: %d of %d samples", ballistics.ErrInsufficientSamples, len(entry.samples), s.cfg.MinSamples)
		return created
	}
	traj, err := ballistics.Fit(entry.samples, s.cfg.Gravity)
	if err != nil {
		entry.hasFit = false
		entry.fitErr = err
		return created
	}
	entry.traj = traj
	entry.hasFit = true
	entry.fitErr = nil
	return created
}

// Expiry reports one dropped track and why it was dropped.
type Expiry struct {
	ID     int
	Reason string
}

// Expire removes every track that stayed silent for longer than the expiry
// window or whose fit says the projectile already passed below the floor.
// Dropped tracks come back in ascending id order.
func (s *Store) Expire(now float64) []Expiry {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []Expiry
	for id, entry := range s.tracks {
		if now-entry.lastSeen > s.cfg.Expiry {
			delete(s.tracks, id)
			removed = append(removed, Expiry{ID: id, Reason: "silent"})
			continue
		}
		//1.- A fit that already hit the ground outlived its usefulness.
		if entry.hasFit {
			if impact, ok := entry.traj.GroundImpactTime(s.cfg.FloorZ); ok && now > impact {
				delete(s.tracks, id)
				removed = append(removed, Expiry{ID: id, Reason: "grounded"})
			}
		}
	}
	//2.- Sort so downstream event streams stay deterministic.
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	return removed
}

// Remove drops a single track, reporting whether it existed.
func (s *Store) Remove(id int) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[id]; !ok {
		return false
	}
	delete(s.tracks, id)
	return true
}

// Len counts the live tracks.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Trajectory returns the current estimate for one projectile.
func (s *Store) Trajectory(id int) (ballistics.Trajectory, error) {
	if s == nil {
		return ballistics.Trajectory{}, ErrUnknownTrack
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.tracks[id]
	if !ok {
		return ballistics.Trajectory{}, fmt.Errorf("%w: id %d", ErrUnknownTrack, id)
	}
	if !entry.hasFit {
		if entry.fitErr != nil {
			return ballistics.Trajectory{}, entry.fitErr
		}
		return ballistics.Trajectory{}, ErrNoFit
	}
	if entry.traj.Residual > s.cfg.ResidualGate {
		return ballistics.Trajectory{}, fmt.Errorf("%w: residual %.3f above gate %.3f", ErrNoFit, entry.traj.Residual, s.cfg.ResidualGate)
	}
	return entry.traj, nil
}

// Intercept plans a rendezvous with one specific projectile.
func (s *Store) Intercept(id int, ws ballistics.Workspace, now float64) (Target, error) {
	traj, err := s.Trajectory(id)
	if err != nil {
		return Target{}, err
	}
	point, err := ballistics.PlanIntercept(traj, ws, now)
	if err != nil {
		return Target{}, err
	}
	return Target{ID: id, Point: point, Trajectory: traj}, nil
}

// SelectTarget scans every eligible track and returns the candidate with the
// soonest reachable intercept. Equal times break toward the lowest id so the
// choice is reproducible.
func (s *Store) SelectTarget(ws ballistics.Workspace, now float64) (Target, bool) {
	if s == nil {
		return Target{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := Target{}
	found := false
	for id, entry := range s.tracks {
		//1.- Skip tracks without a gated fit.
		if !entry.eligible(s.cfg.ResidualGate) {
			continue
		}
		point, err := ballistics.PlanIntercept(entry.traj, ws, now)
		if err != nil {
			continue
		}
		//2.- Earliest reachable entry wins, ids order the ties.
		if !found || point.Time < best.Point.Time || (point.Time == best.Point.Time && id < best.ID) {
			best = Target{ID: id, Point: point, Trajectory: entry.traj}
			found = true
		}
	}
	return best, found
}

// Snapshot lists every live track ordered by id.
func (s *Store) Snapshot() []TrackInfo {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]TrackInfo, 0, len(s.tracks))
	for _, entry := range s.tracks {
		infos = append(infos, TrackInfo{
			ID:       entry.id,
			Samples:  len(entry.samples),
			LastSeen: entry.lastSeen,
			HasFit:   entry.hasFit,
			Residual: entry.traj.Residual,
			Eligible: entry.eligible(s.cfg.ResidualGate),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
