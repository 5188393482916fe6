package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const maxPitch = math.Pi/2 - 0.01

// Camera is a Z-up yaw/pitch camera with thin-lens depth of field.
type Camera struct {
	Name     string
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	// FOV is the vertical field of view in degrees.
	FOV           float32
	FocusDistance float32
	// Aperture is the lens radius; zero disables depth of field.
	Aperture float32
}

func NewCamera(name string) *Camera {
	return &Camera{
		Name:          name,
		Position:      mgl32.Vec3{0, 2, 20},
		FOV:           45,
		FocusDistance: 10,
	}
}

func (c *Camera) Forward() mgl32.Vec3 {
	// Z-up: forward in the XY plane, Z for pitch
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
	}
}

func (c *Camera) Right() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(-math.Cos(float64(c.Yaw))),
		float32(-math.Sin(float64(c.Yaw))),
		0,
	}
}

func (c *Camera) Up() mgl32.Vec3 {
	return c.Right().Cross(c.Forward())
}

func (c *Camera) ViewMatrix() mgl32.Mat4 {
	eye := c.Position
	return mgl32.LookAtV(eye, eye.Add(c.Forward()), mgl32.Vec3{0, 0, 1})
}

// WorldMatrix is the camera-to-world matrix the integrator generates rays
// with.
func (c *Camera) WorldMatrix() mgl32.Mat4 {
	return c.ViewMatrix().Inv()
}

// Orbit rotates the view by the given yaw and pitch deltas in radians.
func (c *Camera) Orbit(dYaw, dPitch float32) {
	c.Yaw += dYaw
	c.Pitch = mgl32.Clamp(c.Pitch+dPitch, -maxPitch, maxPitch)
}

// LookAt points the camera at target and sets the focus distance to it.
func (c *Camera) LookAt(target mgl32.Vec3) {
	d := target.Sub(c.Position)
	if d.Len() == 0 {
		return
	}
	n := d.Normalize()
	c.Pitch = float32(math.Asin(float64(n.Z())))
	c.Yaw = float32(math.Atan2(float64(n.X()), float64(-n.Y())))
	c.FocusDistance = d.Len()
}

// Clone returns an independent copy.
func (c *Camera) Clone() *Camera {
	cp := *c
	return &cp
}
