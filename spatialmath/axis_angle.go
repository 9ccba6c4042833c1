package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// R4AA is a rotation of Theta radians about the axis (RX, RY, RZ). The axis is kept on the unit
// sphere by Normalize; Theta is kept non-negative.
type R4AA struct {
	Theta float64 `json:"th"`
	RX    float64 `json:"x"`
	RY    float64 `json:"y"`
	RZ    float64 `json:"z"`
}

// NewR4AA returns the identity rotation about +Z.
func NewR4AA() *R4AA {
	return &R4AA{Theta: 0, RX: 0, RY: 0, RZ: 1}
}

// AxisAngles returns the orientation in axis angle representation.
func (r4 *R4AA) AxisAngles() *R4AA {
	return r4
}

// Quaternion returns orientation in quaternion representation.
func (r4 *R4AA) Quaternion() quat.Number {
	return r4.ToQuat()
}

// EulerAngles returns orientation in Euler angle representation.
func (r4 *R4AA) EulerAngles() *EulerAngles {
	return QuatToEulerAngles(r4.Quaternion())
}

// RotationMatrix returns the orientation in rotation matrix representation.
func (r4 *R4AA) RotationMatrix() *RotationMatrix {
	return QuatToRotationMatrix(r4.Quaternion())
}

// ToR3 returns the rotation vector, the axis scaled by Theta.
func (r4 *R4AA) ToR3() r3.Vector {
	return r4.axis().Mul(r4.Theta)
}

func (r4 *R4AA) axis() r3.Vector {
	return r3.Vector{X: r4.RX, Y: r4.RY, Z: r4.RZ}
}

// ToQuat returns the unit quaternion for the rotation, normalizing the axis in place first. A zero
// axis is the identity.
func (r4 *R4AA) ToQuat() quat.Number {
	if r4.axis().Norm2() == 0 {
		return quat.Number{Real: 1}
	}
	r4.Normalize()
	half := r4.Theta / 2
	im := r4.axis().Mul(math.Sin(half))
	return quat.Number{Real: math.Cos(half), Imag: im.X, Jmag: im.Y, Kmag: im.Z}
}

// Normalize moves the axis onto the unit sphere. A zero axis is left alone.
func (r4 *R4AA) Normalize() {
	if r4.axis().Norm2() == 0 {
		return
	}
	unit := r4.axis().Normalize()
	r4.RX, r4.RY, r4.RZ = unit.X, unit.Y, unit.Z
}

// fixOrientation keeps theta non-negative by flipping the axis instead.
func (r4 *R4AA) fixOrientation() {
	if r4.Theta < 0 {
		r4.Theta, r4.RX, r4.RY, r4.RZ = -r4.Theta, -r4.RX, -r4.RY, -r4.RZ
	}
}

// R3ToR4 splits a rotation vector into its angle and unit axis.
func R3ToR4(rv r3.Vector) *R4AA {
	theta := rv.Norm()
	if theta == 0 {
		return NewR4AA()
	}
	unit := rv.Mul(1 / theta)
	return &R4AA{Theta: theta, RX: unit.X, RY: unit.Y, RZ: unit.Z}
}
