package core

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

type LightType uint32

const (
	LightDirectional LightType = iota
	LightPoint
	LightSpot
	LightArea
)

func (t LightType) String() string {
	switch t {
	case LightDirectional:
		return "directional"
	case LightPoint:
		return "point"
	case LightSpot:
		return "spot"
	case LightArea:
		return "area"
	default:
		return fmt.Sprintf("LightType(%d)", uint32(t))
	}
}

// ParseLightType accepts the names returned by LightType.String.
func ParseLightType(s string) (LightType, error) {
	for _, t := range []LightType{LightDirectional, LightPoint, LightSpot, LightArea} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown light type %q", s)
}

// DefaultLightRange stands in for a point or spot light range that is not
// positive.
const DefaultLightRange = 100

// Light describes an emitter attached to a scene node. Position and
// orientation come from the node's world transform; the light shines along
// the node's local -Z axis.
type Light struct {
	ID        uuid.UUID
	Type      LightType
	Color     mgl32.Vec3
	Intensity float32
	// Range bounds point and spot lights.
	Range float32
	// ConeAngle is the full spot cone angle in degrees.
	ConeAngle float32
	// AngularRadius is the apparent radius of a directional light in radians.
	AngularRadius float32
	// Width and Height are the full extents of an area light.
	Width  float32
	Height float32
}

func NewLight(t LightType) *Light {
	l := &Light{
		ID:        uuid.New(),
		Type:      t,
		Color:     mgl32.Vec3{1, 1, 1},
		Intensity: 1,
	}
	switch t {
	case LightDirectional:
		l.AngularRadius = 0.00465
	case LightPoint:
		l.Range = DefaultLightRange
	case LightSpot:
		l.Range = DefaultLightRange
		l.ConeAngle = 45
	case LightArea:
		l.Width = 1
		l.Height = 1
	}
	return l
}

// HalfAngle returns the spot cone half-angle in radians.
func (l *Light) HalfAngle() float32 {
	return l.ConeAngle * math.Pi / 360
}

// EffectiveRange substitutes DefaultLightRange for a non-positive range.
func (l *Light) EffectiveRange() float32 {
	if l.Range <= 0 {
		return DefaultLightRange
	}
	return l.Range
}

// Luminance uses Rec. 709 weights.
func Luminance(c mgl32.Vec3) float32 {
	return 0.2126*c.X() + 0.7152*c.Y() + 0.0722*c.Z()
}

// Importance scores a light for sort order only.
func (l *Light) Importance() float32 {
	base := l.Intensity * Luminance(l.Color)
	switch l.Type {
	case LightArea:
		return base * sqrt(l.Width*l.Height)
	case LightPoint:
		return base * sqrt(l.EffectiveRange())
	case LightSpot:
		return base * sqrt(l.EffectiveRange()) * float32(math.Sin(float64(l.HalfAngle())))
	default:
		return base
	}
}

func (l *Light) Clone() *Light {
	cp := *l
	return &cp
}

func sqrt(v float32) float32 {
	if v <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(v)))
}
