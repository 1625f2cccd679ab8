package ballistics

import (
	"errors"
	"math"

	"skyshield/interceptor/internal/geom"
)

// ErrUnreachable signals that a trajectory never crosses the reachable shell
// before falling below the workspace floor.
var ErrUnreachable = errors.New("ballistics: trajectory never enters the workspace")

const (
	// marchStep is the coarse time resolution used to scan for shell entry.
	marchStep = 2e-3
	// bisectRounds refines the coarse hit down to sub-millisecond precision.
	bisectRounds = 8
	// marchHorizon caps the scan for trajectories that never descend.
	marchHorizon = 10.0
)

// Workspace is the reachable region of the manipulator: a spherical shell
// around the base intersected with the half space above FloorZ.
type Workspace struct {
	Center      geom.Vec3
	InnerRadius float64
	OuterRadius float64
	FloorZ      float64
}

// Contains reports whether a point is reachable.
func (w Workspace) Contains(point geom.Vec3) bool {
	if point.Z < w.FloorZ {
		return false
	}
	distance := point.Distance(w.Center)
	return distance >= w.InnerRadius && distance <= w.OuterRadius
}

// InterceptPoint is the earliest reachable rendezvous with a projectile.
type InterceptPoint struct {
	Position geom.Vec3
	Time     float64
	Approach geom.Vec3
}

// PlanIntercept finds the earliest time at or after now when the trajectory
// is inside the workspace. The scan marches at a fixed step and then bisects
// the bracketing interval, so results are deterministic for identical inputs.
func PlanIntercept(traj Trajectory, ws Workspace, now float64) (InterceptPoint, error) {
	start := math.Max(now, traj.LaunchTime)

	//1.- Bound the scan by the moment the projectile falls below the floor for good.
	horizon, ok := traj.fallBelowTime(ws.FloorZ)
	if !ok {
		horizon = start + marchHorizon
	}
	if horizon < start {
		return InterceptPoint{}, ErrUnreachable
	}
	horizon = math.Min(horizon, start+marchHorizon)

	//2.- An immediately reachable projectile needs no scan at all.
	if ws.Contains(traj.PositionAt(start)) {
		return interceptAt(traj, start), nil
	}

	//3.- March forward until the trajectory first shows up inside the shell.
	prev := start
	for t := start + marchStep; t <= horizon+marchStep; t += marchStep {
		clamped := math.Min(t, horizon)
		if ws.Contains(traj.PositionAt(clamped)) {
			//4.- Bisect (prev, clamped] to pin the entry instant.
			lo, hi := prev, clamped
			for i := 0; i < bisectRounds; i++ {
				mid := (lo + hi) / 2
				if ws.Contains(traj.PositionAt(mid)) {
					hi = mid
				} else {
					lo = mid
				}
			}
			return interceptAt(traj, hi), nil
		}
		if clamped == horizon {
			break
		}
		prev = clamped
	}
	return InterceptPoint{}, ErrUnreachable
}

func interceptAt(traj Trajectory, at float64) InterceptPoint {
	return InterceptPoint{
		Position: traj.PositionAt(at),
		Time:     at,
		Approach: traj.VelocityAt(at),
	}
}
