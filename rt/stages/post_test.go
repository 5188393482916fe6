package stages

import (
	"image"
	"testing"

	"github.com/gekko3d/pathtracer/rt/events"
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(t *testing.T, label string, w, h int, v float32) *gpu.Target {
	t.Helper()
	tex, err := gpu.NewTarget(gpu.DefaultTargetDescriptor(label, w, h))
	require.NoError(t, err)
	tex.Clear([4]float32{v, v, v, 1})
	return tex
}

func initStage(t *testing.T, s pipeline.Stage) *pipeline.Context {
	t.Helper()
	ctx := pipeline.NewContext(nil)
	require.NoError(t, s.Initialize(ctx, events.NewBus(nil)))
	return ctx
}

// feedStage publishes a fixed set of textures for a number of frames; a
// negative count never stops.
type feedStage struct {
	pipeline.BaseStage
	textures map[string]gpu.Texture
	frames   int
}

func newFeed(name string, textures map[string]gpu.Texture, frames int) *feedStage {
	return &feedStage{BaseStage: pipeline.NewBaseStage(name, pipeline.Always), textures: textures, frames: frames}
}

func (f *feedStage) Render(ctx *pipeline.Context, _ gpu.RenderTarget) error {
	if f.frames == 0 {
		return nil
	}
	f.frames--
	for name, tex := range f.textures {
		Publish(ctx, f.Name(), name, tex)
	}
	return nil
}

func TestAdaptiveSampler_ShouldExecute(t *testing.T) {
	a := NewAdaptiveSampler(gpu.HostDevice{}, 4, 0.01)
	ctx := initStage(t, a)

	ctx.SetState(pipeline.KeyFrame, 3)
	assert.False(t, a.ShouldExecute(ctx))
	ctx.SetState(pipeline.KeyFrame, 4)
	assert.True(t, a.ShouldExecute(ctx))
	ctx.SetState(pipeline.KeyInteractionMode, true)
	assert.False(t, a.ShouldExecute(ctx))
	ctx.SetState(pipeline.KeyInteractionMode, false)
	ctx.SetState(pipeline.KeyRenderMode, pipeline.Tiled)
	assert.False(t, a.ShouldExecute(ctx))
}

func TestAdaptiveSampler_MarksConvergedPixels(t *testing.T) {
	a := NewAdaptiveSampler(gpu.HostDevice{}, 0, 0.01)
	ctx := initStage(t, a)

	color := solid(t, "color", 2, 2, 1)
	prev := solid(t, "prev", 2, 2, 1)
	color.Set(0, 0, [4]float32{2, 2, 2, 1})
	Publish(ctx, NamePathTracer, TexColor, color)
	ctx.SetTexture(NamePathTracer, TexPrevious, prev)

	require.NoError(t, a.Render(ctx, nil))
	mask := ctx.Texture(TexAdaptiveMask)
	require.NotNil(t, mask)
	assert.Equal(t, float32(1), gpu.Pixel(mask, 0, 0)[0])
	assert.Equal(t, float32(0), gpu.Pixel(mask, 1, 0)[0])
	assert.Equal(t, float32(0), gpu.Pixel(mask, 1, 1)[0])
	assert.Equal(t, float32(0.75), ctx.UniformValue(UniformConvergedFraction))
	assert.Equal(t, 0.75, ctx.StateValue("adaptive:converged"))

	// converged pixels stay converged even if they change later
	color.Set(1, 1, [4]float32{5, 5, 5, 1})
	require.NoError(t, a.Render(ctx, nil))
	assert.Equal(t, float32(0), gpu.Pixel(mask, 1, 1)[0])

	a.Reset()
	assert.Equal(t, float32(1), gpu.Pixel(mask, 1, 1)[0])
	assert.Equal(t, float32(0), ctx.UniformValue(UniformConvergedFraction))
}

func TestTemporalFilter_CopiesThenBlends(t *testing.T) {
	f := NewTemporalFilter(gpu.HostDevice{}, 0.5)
	ctx := initStage(t, f)
	assert.False(t, f.ShouldExecute(ctx))
	ctx.SetState(pipeline.KeyInteractionMode, true)
	assert.True(t, f.ShouldExecute(ctx))

	color := solid(t, "color", 2, 2, 1)
	Publish(ctx, NamePathTracer, TexColor, color)
	require.NoError(t, f.Render(ctx, nil))
	out := ctx.Texture(TexTemporal)
	require.NotNil(t, out)
	assert.Equal(t, float32(1), gpu.Pixel(out, 0, 0)[0])

	color.Clear([4]float32{3, 3, 3, 1})
	require.NoError(t, f.Render(ctx, nil))
	assert.Equal(t, float32(2), gpu.Pixel(out, 0, 0)[0])
}

func TestTemporalFilter_HistorySurvivesResetWhileInteracting(t *testing.T) {
	f := NewTemporalFilter(gpu.HostDevice{}, 0.5)
	ctx := initStage(t, f)
	ctx.SetState(pipeline.KeyInteractionMode, true)

	color := solid(t, "color", 1, 1, 0)
	Publish(ctx, NamePathTracer, TexColor, color)
	require.NoError(t, f.Render(ctx, nil))

	f.Reset()
	color.Clear([4]float32{4, 4, 4, 1})
	require.NoError(t, f.Render(ctx, nil))
	assert.Equal(t, float32(2), gpu.Pixel(ctx.Texture(TexTemporal), 0, 0)[0])

	ctx.SetState(pipeline.KeyInteractionMode, false)
	f.Reset()
	color.Clear([4]float32{8, 8, 8, 1})
	require.NoError(t, f.Render(ctx, nil))
	assert.Equal(t, float32(8), gpu.Pixel(ctx.Texture(TexTemporal), 0, 0)[0], "history dropped")
}

func TestSpatialDenoiser_ConstantImageUnchanged(t *testing.T) {
	d := NewSpatialDenoiser(gpu.HostDevice{}, 3)
	ctx := initStage(t, d)
	Publish(ctx, NamePathTracer, TexColor, solid(t, "color", 8, 8, 0.5))

	require.NoError(t, d.Render(ctx, nil))
	out := ctx.Texture(TexDenoise)
	require.NotNil(t, out)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			assert.InDelta(t, 0.5, gpu.Pixel(out, x, y)[0], 1e-6)
		}
	}
}

func TestSpatialDenoiser_PreservesEdges(t *testing.T) {
	d := NewSpatialDenoiser(gpu.HostDevice{}, 2)
	ctx := initStage(t, d)
	color := solid(t, "color", 8, 8, 0)
	for y := 0; y < 8; y++ {
		for x := 4; x < 8; x++ {
			color.Set(x, y, [4]float32{1, 1, 1, 1})
		}
	}
	Publish(ctx, NamePathTracer, TexColor, color)

	require.NoError(t, d.Render(ctx, nil))
	out := ctx.Texture(TexDenoise)
	assert.InDelta(t, 0, gpu.Pixel(out, 3, 4)[0], 1e-3)
	assert.InDelta(t, 1, gpu.Pixel(out, 4, 4)[0], 1e-3)
}

func TestSpatialDenoiser_PrefersTemporal(t *testing.T) {
	d := NewSpatialDenoiser(gpu.HostDevice{}, 1)
	ctx := initStage(t, d)
	Publish(ctx, NamePathTracer, TexColor, solid(t, "color", 4, 4, 0.25))
	Publish(ctx, NameTemporal, TexTemporal, solid(t, "temporal", 4, 4, 0.75))

	require.NoError(t, d.Render(ctx, nil))
	assert.InDelta(t, 0.75, gpu.Pixel(ctx.Texture(TexDenoise), 1, 1)[0], 1e-6)
}

func TestOutputStage_FallsBackToFreshSource(t *testing.T) {
	p := pipeline.New(nil)
	color := solid(t, "color", 2, 2, 0.25)
	temporal := solid(t, "temporal", 2, 2, 0.75)
	require.NoError(t, p.AddStage(newFeed("feedColor", map[string]gpu.Texture{TexColor: color}, -1)))
	require.NoError(t, p.AddStage(newFeed("feedTemporal", map[string]gpu.Texture{TexTemporal: temporal}, 1)))
	out := NewOutputStage()
	require.NoError(t, p.AddStage(out))

	write := solid(t, "write", 2, 2, 0)
	p.Render(write)
	assert.Equal(t, TexTemporal, out.Source())
	assert.Equal(t, float32(0.75), write.At(0, 0)[0])

	p.Render(write)
	assert.Equal(t, TexColor, out.Source(), "stale temporal output skipped")
	assert.Equal(t, float32(0.25), write.At(0, 0)[0])
}

func TestOutputStage_AsyncDenoiserWins(t *testing.T) {
	o := NewOutputStage()
	ctx := initStage(t, o)
	Publish(ctx, NamePathTracer, TexColor, solid(t, "color", 2, 2, 0.25))
	ctx.SetTexture("denoiser", TexDenoiser, solid(t, "denoised", 1, 1, 0.5))

	write := solid(t, "write", 4, 4, 0)
	require.NoError(t, o.Render(ctx, write))
	assert.Equal(t, TexDenoiser, o.Source())
	assert.Equal(t, float32(0.5), write.At(3, 3)[0], "scaled to the write target")
}

func TestOutputStage_NothingToShow(t *testing.T) {
	o := NewOutputStage()
	ctx := initStage(t, o)
	write := solid(t, "write", 2, 2, 0.1)
	require.NoError(t, o.Render(ctx, write))
	assert.Empty(t, o.Source())
	assert.Equal(t, float32(0.1), write.At(0, 0)[0])
}

func TestTileHighlight_DrawsBorder(t *testing.T) {
	h := NewTileHighlight()
	ctx := initStage(t, h)
	assert.False(t, h.ShouldExecute(ctx))
	ctx.SetState(pipeline.KeyRenderMode, pipeline.Tiled)
	assert.True(t, h.ShouldExecute(ctx))
	ctx.SetState(pipeline.KeyIsComplete, true)
	assert.False(t, h.ShouldExecute(ctx))

	ctx.SetTexture(NamePathTracer, TexColor, solid(t, "color", 8, 8, 0))
	ctx.SetUniform(UniformTileRect, image.Rect(0, 0, 4, 4))
	write := solid(t, "write", 16, 16, 0)
	require.NoError(t, h.Render(ctx, write))

	assert.Equal(t, h.Color, write.At(0, 0))
	assert.Equal(t, h.Color, write.At(7, 3))
	assert.Equal(t, h.Color, write.At(3, 7))
	assert.Equal(t, float32(0), write.At(3, 3)[0], "interior untouched")
	assert.Equal(t, float32(0), write.At(8, 8)[0], "outside untouched")
}

func TestTileHighlight_EmptyRect(t *testing.T) {
	h := NewTileHighlight()
	ctx := initStage(t, h)
	ctx.SetTexture(NamePathTracer, TexColor, solid(t, "color", 8, 8, 0))
	ctx.SetUniform(UniformTileRect, image.Rectangle{})
	write := solid(t, "write", 8, 8, 0)
	require.NoError(t, h.Render(ctx, write))
	assert.Equal(t, float32(0), write.At(0, 0)[0])
}
