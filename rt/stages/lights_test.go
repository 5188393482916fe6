package stages

import (
	"testing"

	"github.com/gekko3d/pathtracer/rt/core"
	"github.com/gekko3d/pathtracer/rt/events"
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointLight(s *core.Scene, intensity float32, color mgl32.Vec3, pos mgl32.Vec3) *core.Light {
	l := core.NewLight(core.LightPoint)
	l.Intensity = intensity
	l.Color = color
	s.AddLight(l, core.At(pos))
	return l
}

func testScene() *core.Scene {
	s := core.NewScene()
	pointLight(s, 1, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{1, 0, 0})
	pointLight(s, 5, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{2, 0, 0})
	pointLight(s, 0, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{3, 0, 0})
	pointLight(s, 3, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{4, 0, 0})
	pointLight(s, 3, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{5, 0, 0})

	narrow := core.NewLight(core.LightSpot)
	narrow.ConeAngle = 10
	wide := core.NewLight(core.LightSpot)
	wide.ConeAngle = 120
	s.AddLight(narrow, core.At(mgl32.Vec3{0, 0, 5}))
	s.AddLight(wide, core.At(mgl32.Vec3{0, 0, 6}))

	sun := core.NewLight(core.LightDirectional)
	sun.Intensity = 2
	s.AddLight(sun, nil)

	panel := core.NewLight(core.LightArea)
	panel.Width, panel.Height = 2, 1
	s.AddLight(panel, core.At(mgl32.Vec3{0, 0, 3}))

	hidden := core.NewLight(core.LightArea)
	hidden.Intensity = 100
	s.AddLight(hidden, nil).Visible = false
	return s
}

func importancesOf(t *testing.T, packed []float32, stride int, s *core.Scene, typ core.LightType) []float32 {
	t.Helper()
	require.Zero(t, len(packed)%stride)
	var out []float32
	for i := 0; i < len(packed); i += stride {
		pos := mgl32.Vec3{packed[i], packed[i+1], packed[i+2]}
		for _, l := range s.Lights() {
			n := s.FindLight(l.ID)
			if l.Type == typ && core.WorldPosition(n.Transform.Matrix()).ApproxEqual(pos) {
				out = append(out, l.Importance())
			}
		}
	}
	return out
}

func TestLightPreprocessor_SortsByImportance(t *testing.T) {
	s := testScene()
	lp := NewLightPreprocessor(s)
	packed := lp.ProcessSceneLights(s, nil)

	assert.Equal(t, 4, packed.NumPoint(), "zero intensity light dropped")
	assert.Equal(t, 2, packed.NumSpot())
	assert.Equal(t, 1, packed.NumDirectional())
	assert.Equal(t, 1, packed.NumArea(), "hidden light dropped")

	imp := importancesOf(t, packed.Point, PointLightFloats, s, core.LightPoint)
	require.Len(t, imp, 4)
	for i := 1; i < len(imp); i++ {
		assert.GreaterOrEqual(t, imp[i-1], imp[i])
	}
	assert.Equal(t, float32(2), packed.Point[0], "brightest point light first")
	assert.Equal(t, float32(6), packed.Spot[2], "wider cone first")
}

func TestLightPreprocessor_Layout(t *testing.T) {
	s := core.NewScene()
	spot := core.NewLight(core.LightSpot)
	spot.Color = mgl32.Vec3{1, 0.5, 0.25}
	spot.Intensity = 4
	spot.ConeAngle = 60
	s.AddLight(spot, core.At(mgl32.Vec3{1, 2, 3}))

	panel := core.NewLight(core.LightArea)
	panel.Width, panel.Height = 4, 2
	s.AddLight(panel, core.At(mgl32.Vec3{0, 0, 5}))

	packed := NewLightPreprocessor(s).ProcessSceneLights(s, nil)
	require.Len(t, packed.Spot, SpotLightFloats)
	want := []float32{1, 2, 3, 0, 0, -1, 1, 0.5, 0.25, 4}
	for i, v := range want {
		assert.InDelta(t, v, packed.Spot[i], 1e-6, "spot[%d]", i)
	}
	assert.InDelta(t, 30*3.14159265/180, packed.Spot[10], 1e-5)

	require.Len(t, packed.Area, AreaLightFloats)
	assert.Equal(t, []float32{0, 0, 5, 2, 0, 0, 0, 1, 0, 1, 1, 1, 1}, packed.Area)
}

func TestLightPreprocessor_Idempotent(t *testing.T) {
	s := testScene()
	lp := NewLightPreprocessor(s)
	first := lp.ProcessSceneLights(s, nil)
	second := lp.ProcessSceneLights(s, nil)
	assert.Equal(t, first, second)
}

func TestLightPreprocessor_PublishesUniforms(t *testing.T) {
	s := testScene()
	ctx := pipeline.NewContext(nil)
	NewLightPreprocessor(s).ProcessSceneLights(s, ctx)

	assert.Equal(t, 4, ctx.UniformValue(UniformNumPointLights))
	assert.Equal(t, 2, ctx.UniformValue(UniformNumSpotLights))
	assert.Equal(t, 1, ctx.UniformValue(UniformNumDirectionalLights))
	assert.Equal(t, 1, ctx.UniformValue(UniformNumAreaLights))
	buf, ok := ctx.UniformValue(UniformPointLights).(*gpu.Buffer)
	require.True(t, ok)
	assert.Len(t, buf.Float32s(), 4*PointLightFloats)
	assert.True(t, buf.NeedsUpdate)
}

func TestLightPreprocessor_RunsOnRevisionChange(t *testing.T) {
	s := testScene()
	p := pipeline.New(nil)
	lp := NewLightPreprocessor(s)
	require.NoError(t, p.AddStage(lp))

	var updates []LightsEvent
	p.Events().On(events.LightsUpdated, func(ev events.Event) { updates = append(updates, ev.Payload.(LightsEvent)) })

	p.Render(nil)
	p.Render(nil)
	require.Len(t, updates, 1)
	assert.Equal(t, LightsEvent{Directional: 1, Point: 4, Spot: 2, Area: 1}, updates[0])

	pointLight(s, 9, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{})
	p.Render(nil)
	require.Len(t, updates, 2)
	assert.Equal(t, 5, updates[1].Point)
	assert.Equal(t, 5, lp.Packed().NumPoint())
}
