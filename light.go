package pathtracer

import (
	"fmt"

	"github.com/gekko3d/pathtracer/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// LightConfig describes a light in a settings file.
type LightConfig struct {
	Type      string     `yaml:"type"`
	Color     [3]float32 `yaml:"color"` // RGB
	Intensity float32    `yaml:"intensity"`
	Range     float32    `yaml:"range"`      // For point/spot
	ConeAngle float32    `yaml:"cone_angle"` // Full cone angle in degrees (spot)
	Width     float32    `yaml:"width"`      // Area extents
	Height    float32    `yaml:"height"`

	Position [3]float32 `yaml:"position"`
	// Rotation is XYZ Euler angles in degrees.
	Rotation [3]float32 `yaml:"rotation"`
}

// Build turns the config into a light and the transform of the node that
// carries it. Zero fields keep the type's defaults.
func (c LightConfig) Build() (*core.Light, *core.Transform, error) {
	t, err := core.ParseLightType(c.Type)
	if err != nil {
		return nil, nil, err
	}
	l := core.NewLight(t)
	if c.Color != [3]float32{} {
		l.Color = mgl32.Vec3(c.Color)
	}
	if c.Intensity < 0 {
		return nil, nil, fmt.Errorf("light %s: negative intensity %v", c.Type, c.Intensity)
	}
	if c.Intensity > 0 {
		l.Intensity = c.Intensity
	}
	if c.Range > 0 {
		l.Range = c.Range
	}
	if c.ConeAngle > 0 {
		l.ConeAngle = c.ConeAngle
	}
	if c.Width > 0 {
		l.Width = c.Width
	}
	if c.Height > 0 {
		l.Height = c.Height
	}

	tr := core.At(mgl32.Vec3(c.Position))
	tr.Rotation = mgl32.AnglesToQuat(
		mgl32.DegToRad(c.Rotation[0]),
		mgl32.DegToRad(c.Rotation[1]),
		mgl32.DegToRad(c.Rotation[2]),
		mgl32.XYZ,
	)
	return l, tr, nil
}
