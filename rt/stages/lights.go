package stages

import (
	"sort"

	"github.com/gekko3d/pathtracer/rt/core"
	"github.com/gekko3d/pathtracer/rt/events"
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/go-gl/mathgl/mgl32"
)

// Floats per packed light record.
const (
	DirectionalLightFloats = 8
	PointLightFloats       = 7
	SpotLightFloats        = 11
	AreaLightFloats        = 13
)

// UniformTarget receives the packed light buffers and counts.
// *pipeline.Context satisfies it.
type UniformTarget interface {
	SetUniform(name string, value any)
}

// PackedLights is the flattened light set, one array per type, each sorted by
// descending importance.
type PackedLights struct {
	Directional []float32
	Point       []float32
	Spot        []float32
	Area        []float32
}

func (p PackedLights) NumDirectional() int { return len(p.Directional) / DirectionalLightFloats }
func (p PackedLights) NumPoint() int       { return len(p.Point) / PointLightFloats }
func (p PackedLights) NumSpot() int        { return len(p.Spot) / SpotLightFloats }
func (p PackedLights) NumArea() int        { return len(p.Area) / AreaLightFloats }

// LightsEvent is the payload of events.LightsUpdated.
type LightsEvent struct {
	Directional, Point, Spot, Area int
}

type scoredLight struct {
	importance float32
	record     []float32
}

// LightPreprocessor packs the scene's emitters for the integrator. As a
// stage it runs only when the scene's light revision changed.
type LightPreprocessor struct {
	pipeline.BaseStage

	scene        *core.Scene
	lastRevision uint64
	processed    bool
	last         PackedLights
}

func NewLightPreprocessor(scene *core.Scene) *LightPreprocessor {
	return &LightPreprocessor{
		BaseStage: pipeline.NewBaseStage(NameLights, pipeline.Conditional),
		scene:     scene,
	}
}

// SetScene swaps the scene and forces the next frame to repack.
func (l *LightPreprocessor) SetScene(scene *core.Scene) {
	l.scene = scene
	l.processed = false
}

// Packed returns the result of the last run.
func (l *LightPreprocessor) Packed() PackedLights { return l.last }

func (l *LightPreprocessor) ShouldExecute(*pipeline.Context) bool {
	if l.scene == nil {
		return false
	}
	return !l.processed || l.scene.LightRevision() != l.lastRevision
}

func (l *LightPreprocessor) Render(ctx *pipeline.Context, _ gpu.RenderTarget) error {
	l.last = l.ProcessSceneLights(l.scene, ctx)
	l.lastRevision = l.scene.LightRevision()
	l.processed = true
	l.Emit(events.LightsUpdated, LightsEvent{
		Directional: l.last.NumDirectional(),
		Point:       l.last.NumPoint(),
		Spot:        l.last.NumSpot(),
		Area:        l.last.NumArea(),
	})
	l.RequestReset("lights changed")
	return nil
}

// ProcessSceneLights classifies, scores, sorts and packs every visible light
// with positive intensity, then publishes counts and buffers on target.
func (l *LightPreprocessor) ProcessSceneLights(scene *core.Scene, target UniformTarget) PackedLights {
	var byType [4][]scoredLight
	scene.Traverse(func(n *core.Node, world mgl32.Mat4) {
		light := n.Light
		if light == nil || light.Intensity <= 0 || int(light.Type) >= len(byType) {
			return
		}
		byType[light.Type] = append(byType[light.Type], scoredLight{
			importance: light.Importance(),
			record:     packLight(light, world),
		})
	})

	var flat [4][]float32
	for t := range byType {
		list := byType[t]
		sort.SliceStable(list, func(i, j int) bool { return list[i].importance > list[j].importance })
		for _, s := range list {
			flat[t] = append(flat[t], s.record...)
		}
	}

	packed := PackedLights{
		Directional: flat[core.LightDirectional],
		Point:       flat[core.LightPoint],
		Spot:        flat[core.LightSpot],
		Area:        flat[core.LightArea],
	}
	if target != nil {
		target.SetUniform(UniformNumDirectionalLights, packed.NumDirectional())
		target.SetUniform(UniformNumPointLights, packed.NumPoint())
		target.SetUniform(UniformNumSpotLights, packed.NumSpot())
		target.SetUniform(UniformNumAreaLights, packed.NumArea())
		target.SetUniform(UniformDirectionalLights, gpu.NewFloatBuffer(UniformDirectionalLights, packed.Directional))
		target.SetUniform(UniformPointLights, gpu.NewFloatBuffer(UniformPointLights, packed.Point))
		target.SetUniform(UniformSpotLights, gpu.NewFloatBuffer(UniformSpotLights, packed.Spot))
		target.SetUniform(UniformAreaLights, gpu.NewFloatBuffer(UniformAreaLights, packed.Area))
	}
	return packed
}

var lightForward = mgl32.Vec3{0, 0, -1}

func packLight(l *core.Light, world mgl32.Mat4) []float32 {
	pos := core.WorldPosition(world)
	c := l.Color
	switch l.Type {
	case core.LightDirectional:
		d := core.WorldDirection(world, lightForward)
		return []float32{d.X(), d.Y(), d.Z(), c.X(), c.Y(), c.Z(), l.Intensity, l.AngularRadius}
	case core.LightPoint:
		return []float32{pos.X(), pos.Y(), pos.Z(), c.X(), c.Y(), c.Z(), l.Intensity}
	case core.LightSpot:
		d := core.WorldDirection(world, lightForward)
		return []float32{
			pos.X(), pos.Y(), pos.Z(),
			d.X(), d.Y(), d.Z(),
			c.X(), c.Y(), c.Z(),
			l.Intensity, l.HalfAngle(),
		}
	default:
		u := core.WorldVector(world, mgl32.Vec3{l.Width / 2, 0, 0})
		v := core.WorldVector(world, mgl32.Vec3{0, l.Height / 2, 0})
		return []float32{
			pos.X(), pos.Y(), pos.Z(),
			u.X(), u.Y(), u.Z(),
			v.X(), v.Y(), v.Z(),
			c.X(), c.Y(), c.Z(),
			l.Intensity,
		}
	}
}
