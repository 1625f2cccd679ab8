package ballistics

import (
	"math"

	"skyshield/interceptor/internal/geom"
)

// Observation is a single timestamped position sample of a flying projectile.
type Observation struct {
	Time     float64
	Position geom.Vec3
}

// Trajectory is a constant-acceleration ballistic model anchored at LaunchTime.
//
// Origin and Velocity describe the state at LaunchTime, Gravity is the known
// acceleration shared by every projectile, and Residual reports the RMS
// distance between the fitted curve and the samples that produced it.
type Trajectory struct {
	Origin     geom.Vec3
	Velocity   geom.Vec3
	Gravity    geom.Vec3
	LaunchTime float64
	Residual   float64
	Samples    int
}

// PositionAt evaluates the model position at an absolute time.
func (t Trajectory) PositionAt(at float64) geom.Vec3 {
	dt := at - t.LaunchTime
	//1.- Closed form p0 + v0*dt + 0.5*g*dt^2 keeps evaluation allocation free.
	return t.Origin.Add(t.Velocity.Scale(dt)).Add(t.Gravity.Scale(0.5 * dt * dt))
}

// VelocityAt evaluates the model velocity at an absolute time.
func (t Trajectory) VelocityAt(at float64) geom.Vec3 {
	dt := at - t.LaunchTime
	return t.Velocity.Add(t.Gravity.Scale(dt))
}

// GroundImpactTime returns the first absolute time at which the trajectory
// reaches the horizontal plane z = groundZ, and false when it never does.
func (t Trajectory) GroundImpactTime(groundZ float64) (float64, bool) {
	c := t.Origin.Z - groundZ
	//1.- A launch at or below the plane impacts immediately.
	if c <= 0 {
		return t.LaunchTime, true
	}
	a := 0.5 * t.Gravity.Z
	b := t.Velocity.Z
	//2.- Without vertical acceleration the crossing exists only on a descent.
	if a == 0 {
		if b >= 0 {
			return 0, false
		}
		return t.LaunchTime - c/b, true
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, false
	}
	sqrt := math.Sqrt(disc)
	r1 := (-b - sqrt) / (2 * a)
	r2 := (-b + sqrt) / (2 * a)
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	//3.- Pick the earliest crossing that is not in the model's past.
	if r1 >= 0 {
		return t.LaunchTime + r1, true
	}
	if r2 >= 0 {
		return t.LaunchTime + r2, true
	}
	return 0, false
}

// fallBelowTime returns the last absolute time at which the trajectory is
// still at or above z = floorZ, and false when it is already below for good.
func (t Trajectory) fallBelowTime(floorZ float64) (float64, bool) {
	a := 0.5 * t.Gravity.Z
	b := t.Velocity.Z
	c := t.Origin.Z - floorZ
	if a == 0 {
		if b < 0 {
			if c < 0 {
				return 0, false
			}
			return t.LaunchTime - c/b, true
		}
		//1.- Without downward pull the trajectory never falls below the floor.
		return 0, false
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		//2.- The parabola never reaches the floor plane at all.
		return 0, false
	}
	sqrt := math.Sqrt(disc)
	r1 := (-b - sqrt) / (2 * a)
	r2 := (-b + sqrt) / (2 * a)
	last := math.Max(r1, r2)
	if last < 0 {
		return 0, false
	}
	return t.LaunchTime + last, true
}
