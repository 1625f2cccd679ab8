package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Identity returns a fresh 3x3 identity rotation.
func Identity() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// RotX builds the elementary rotation about the world X axis.
func RotX(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// RotY builds the elementary rotation about the world Y axis.
func RotY(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

// RotZ builds the elementary rotation about the world Z axis.
func RotZ(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// AxisRotation applies the Rodrigues formula for a rotation about an arbitrary unit axis.
func AxisRotation(axis Vec3, angle float64) *mat.Dense {
	//1.- Guard against degenerate axes so callers can pass raw joint definitions.
	unit, ok := axis.Unit()
	if !ok {
		return Identity()
	}
	c, s := math.Cos(angle), math.Sin(angle)
	t := 1 - c
	x, y, z := unit.X, unit.Y, unit.Z
	//2.- Expand R = I + sin(a)K + (1-cos(a))K^2 component wise.
	return mat.NewDense(3, 3, []float64{
		t*x*x + c, t*x*y - s*z, t*x*z + s*y,
		t*x*y + s*z, t*y*y + c, t*y*z - s*x,
		t*x*z - s*y, t*y*z + s*x, t*z*z + c,
	})
}

// MulRot multiplies two rotations into a freshly allocated matrix.
func MulRot(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// RotateVec applies a rotation matrix to a vector.
func RotateVec(r mat.Matrix, v Vec3) Vec3 {
	return Vec3{
		X: r.At(0, 0)*v.X + r.At(0, 1)*v.Y + r.At(0, 2)*v.Z,
		Y: r.At(1, 0)*v.X + r.At(1, 1)*v.Y + r.At(1, 2)*v.Z,
		Z: r.At(2, 0)*v.X + r.At(2, 1)*v.Y + r.At(2, 2)*v.Z,
	}
}

// CloneRot deep copies a rotation so snapshots never alias live matrices.
func CloneRot(r mat.Matrix) *mat.Dense {
	if r == nil {
		return Identity()
	}
	return mat.DenseCopyOf(r)
}

// OrientationError maps the rotation taking current onto desired into an axis-angle vector.
//
// The returned vector points along the instantaneous rotation axis and its
// magnitude is the rotation angle in radians, which makes it directly usable
// as the proportional term of an orientation servo.
func OrientationError(desired, current mat.Matrix) Vec3 {
	//1.- Compose the relative rotation R_err = R_d * R_c^T in the world frame.
	var rerr mat.Dense
	rerr.Mul(desired, current.T())

	trace := rerr.At(0, 0) + rerr.At(1, 1) + rerr.At(2, 2)
	angle := math.Acos(Clamp((trace-1)/2, -1, 1))

	//2.- Near zero the skew part already approximates axis*angle.
	if angle < 1e-9 {
		return Vec3{
			X: (rerr.At(2, 1) - rerr.At(1, 2)) / 2,
			Y: (rerr.At(0, 2) - rerr.At(2, 0)) / 2,
			Z: (rerr.At(1, 0) - rerr.At(0, 1)) / 2,
		}
	}

	//3.- Near pi the skew part vanishes, so recover the axis from the symmetric part.
	if math.Pi-angle < 1e-6 {
		xx := math.Sqrt(math.Max((rerr.At(0, 0)+1)/2, 0))
		yy := math.Sqrt(math.Max((rerr.At(1, 1)+1)/2, 0))
		zz := math.Sqrt(math.Max((rerr.At(2, 2)+1)/2, 0))
		axis := Vec3{X: xx, Y: yy, Z: zz}
		//4.- Resolve the sign ambiguity against the largest component.
		switch {
		case xx >= yy && xx >= zz && xx > 0:
			axis.Y = (rerr.At(0, 1) + rerr.At(1, 0)) / (4 * xx)
			axis.Z = (rerr.At(0, 2) + rerr.At(2, 0)) / (4 * xx)
		case yy >= zz && yy > 0:
			axis.X = (rerr.At(0, 1) + rerr.At(1, 0)) / (4 * yy)
			axis.Z = (rerr.At(1, 2) + rerr.At(2, 1)) / (4 * yy)
		case zz > 0:
			axis.X = (rerr.At(0, 2) + rerr.At(2, 0)) / (4 * zz)
			axis.Y = (rerr.At(1, 2) + rerr.At(2, 1)) / (4 * zz)
		}
		if unit, ok := axis.Unit(); ok {
			return unit.Scale(angle)
		}
		return Vec3{}
	}

	//5.- The generic branch extracts the axis from the antisymmetric part.
	inv := 1.0 / (2 * math.Sin(angle))
	axis := Vec3{
		X: (rerr.At(2, 1) - rerr.At(1, 2)) * inv,
		Y: (rerr.At(0, 2) - rerr.At(2, 0)) * inv,
		Z: (rerr.At(1, 0) - rerr.At(0, 1)) * inv,
	}
	return axis.Scale(angle)
}

// OrientTowards builds a rotation whose Z column points along dir, using up as a hint.
func OrientTowards(dir, up Vec3) *mat.Dense {
	//1.- Fall back to identity when the direction carries no information.
	z, ok := dir.Unit()
	if !ok {
		return Identity()
	}
	//2.- Swap the hint when it is collinear with the target direction.
	if hint, good := up.Unit(); !good || math.Abs(hint.Dot(z)) > 0.999 {
		up = Vec3{X: 1, Y: 0, Z: 0}
		if math.Abs(up.Dot(z)) > 0.999 {
			up = Vec3{X: 0, Y: 1, Z: 0}
		}
	}
	x := up.Cross(z).Normalize()
	y := z.Cross(x)
	//3.- Columns are the frame axes expressed in world coordinates.
	return mat.NewDense(3, 3, []float64{
		x.X, y.X, z.X,
		x.Y, y.Y, z.Y,
		x.Z, y.Z, z.Z,
	})
}

// RotFlat serializes a rotation row major for wire payloads and replay frames.
func RotFlat(r mat.Matrix) [9]float64 {
	var out [9]float64
	if r == nil {
		out[0], out[4], out[8] = 1, 1, 1
		return out
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = r.At(i, j)
		}
	}
	return out
}

// RotFromFlat rebuilds a rotation from its row major serialization.
func RotFromFlat(values [9]float64) *mat.Dense {
	data := make([]float64, 9)
	copy(data, values[:])
	return mat.NewDense(3, 3, data)
}
