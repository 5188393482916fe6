package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransform() *Transform {
	return &Transform{
		Position: mgl32.Vec3{0, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// At returns an identity-rotation transform placed at p.
func At(p mgl32.Vec3) *Transform {
	t := NewTransform()
	t.Position = p
	return t
}

// Matrix returns the local-to-parent matrix T * R * S.
func (t *Transform) Matrix() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotate := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translate.Mul4(rotate).Mul4(scale)
}

// Inverse returns inv(S) * inv(R) * inv(T). Rotation must be a unit quaternion.
func (t *Transform) Inverse() mgl32.Mat4 {
	invScale := mgl32.Scale3D(1.0/t.Scale.X(), 1.0/t.Scale.Y(), 1.0/t.Scale.Z())
	invRotate := t.Rotation.Conjugate().Mat4()
	invTranslate := mgl32.Translate3D(-t.Position.X(), -t.Position.Y(), -t.Position.Z())
	return invScale.Mul4(invRotate).Mul4(invTranslate)
}

// WorldPosition extracts the translation column of a world matrix.
func WorldPosition(m mgl32.Mat4) mgl32.Vec3 {
	return m.Col(3).Vec3()
}

// WorldDirection transforms a direction by m and normalizes it.
func WorldDirection(m mgl32.Mat4, local mgl32.Vec3) mgl32.Vec3 {
	d := m.Mul4x1(local.Vec4(0)).Vec3()
	if d.Len() == 0 {
		return d
	}
	return d.Normalize()
}

// WorldVector transforms a vector by m keeping its length.
func WorldVector(m mgl32.Mat4, local mgl32.Vec3) mgl32.Vec3 {
	return m.Mul4x1(local.Vec4(0)).Vec3()
}
