package geom

import "math"

// Vec3 is the Cartesian vector type shared by estimation, planning, and control.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Add returns the component wise sum of two vectors.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns the difference between two vectors.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale multiplies the vector by a scalar.
func (v Vec3) Scale(scalar float64) Vec3 {
	return Vec3{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Dot returns the scalar dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns the right handed cross product of two vectors.
func (v Vec3) Cross(other Vec3) Vec3 {
	//1.- Expand the determinant form so no intermediate allocations happen.
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Length computes the Euclidean norm of the vector.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize produces a unit length vector, panicking if the magnitude is zero.
func (v Vec3) Normalize() Vec3 {
	//1.- Maintain numerical stability by enforcing a non-zero direction.
	length := v.Length()
	if length == 0 {
		panic("cannot normalize zero vector")
	}
	inv := 1.0 / length
	return Vec3{X: v.X * inv, Y: v.Y * inv, Z: v.Z * inv}
}

// Unit returns the normalized vector and false when the magnitude is too small to trust.
func (v Vec3) Unit() (Vec3, bool) {
	//1.- Reject near-zero magnitudes instead of panicking so planners can fall back.
	length := v.Length()
	if length < 1e-12 {
		return Vec3{}, false
	}
	return v.Scale(1.0 / length), true
}

// Clamped limits the vector magnitude, returning the input untouched when already inside.
func (v Vec3) Clamped(limit float64) Vec3 {
	//1.- Skip clamping when the limit disables the guard.
	if !(limit > 0) {
		return v
	}
	magnitudeSq := v.Dot(v)
	if magnitudeSq == 0 || magnitudeSq <= limit*limit {
		return v
	}
	//2.- Scale each axis uniformly so the resulting magnitude matches the limit.
	return v.Scale(limit / math.Sqrt(magnitudeSq))
}

// Distance returns the Euclidean distance between two points.
func (v Vec3) Distance(other Vec3) float64 {
	return v.Sub(other).Length()
}

// Slice copies the vector into a fresh []float64 for matrix interop.
func (v Vec3) Slice() []float64 {
	return []float64{v.X, v.Y, v.Z}
}

// FromSlice builds a vector from the first three entries of a slice.
func FromSlice(values []float64) Vec3 {
	//1.- Tolerate short slices so callers can feed partially decoded payloads.
	out := Vec3{}
	if len(values) > 0 {
		out.X = values[0]
	}
	if len(values) > 1 {
		out.Y = values[1]
	}
	if len(values) > 2 {
		out.Z = values[2]
	}
	return out
}

// Clamp bounds a scalar to the inclusive [lo, hi] interval.
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
