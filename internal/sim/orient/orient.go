// Package orient converts rigid-body rotations into the three head-pose angles
// understood by visual proxies.
package orient

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// gimbalThreshold is the fraction of the squared norm above which the
// rotation is treated as pointing straight up or down.
const gimbalThreshold = 0.499

// Euler is a head pose in radians.
type Euler struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// QuatToEuler maps q to pitch/yaw/roll. q need not be normalized. A zero
// quaternion maps to the zero pose.
func QuatToEuler(q mgl64.Quat) Euler {
	w, x, y, z := q.W, q.V.X(), q.V.Y(), q.V.Z()
	sqw := w * w
	sqx := x * x
	sqy := y * y
	sqz := z * z

	unit := sqx + sqy + sqz + sqw
	if unit == 0 || math.IsNaN(unit) {
		return Euler{}
	}
	test := x*y + z*w

	if test > gimbalThreshold*unit {
		return Euler{Pitch: math.Pi / 2, Yaw: 2 * math.Atan2(x, w)}
	}
	if test < -gimbalThreshold*unit {
		return Euler{Pitch: -math.Pi / 2, Yaw: -2 * math.Atan2(x, w)}
	}

	return Euler{
		Pitch: math.Atan2(2*y*w-2*x*z, sqx-sqy-sqz+sqw),
		Yaw:   -math.Atan2(2*x*w-2*y*z, -sqx+sqy-sqz+sqw),
		Roll:  -math.Asin(clamp(2*test/unit, -1, 1)),
	}
}

// EulerToQuat is the inverse of QuatToEuler away from the gimbal-lock poles:
// pitch turns about +Y, then -roll about +Z, then -yaw about +X.
func EulerToQuat(e Euler) mgl64.Quat {
	heading := mgl64.QuatRotate(e.Pitch, mgl64.Vec3{0, 1, 0})
	attitude := mgl64.QuatRotate(-e.Roll, mgl64.Vec3{0, 0, 1})
	bank := mgl64.QuatRotate(-e.Yaw, mgl64.Vec3{1, 0, 0})
	return heading.Mul(attitude).Mul(bank)
}

// IsGimbalLocked reports whether q sits at one of the two poles where roll is
// pinned to zero.
func IsGimbalLocked(q mgl64.Quat) bool {
	unit := q.Dot(q)
	if unit == 0 {
		return false
	}
	test := q.V.X()*q.V.Y() + q.V.Z()*q.W
	return test > gimbalThreshold*unit || test < -gimbalThreshold*unit
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
