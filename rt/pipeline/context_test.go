package pipeline

import (
	"testing"
	"time"

	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_UniformPointerIsStable(t *testing.T) {
	ctx := NewContext(nil)
	u := ctx.Uniform("frame")
	ctx.SetUniform("frame", 3)
	ctx.SetUniform("frame", 4)
	assert.Same(t, u, ctx.Uniform("frame"))
	assert.Equal(t, 4, u.Value)
	assert.Equal(t, 4, ctx.UniformValue("frame"))
	assert.Nil(t, ctx.UniformValue("missing"))
}

func TestContext_WatchFiresOnChangeOnly(t *testing.T) {
	ctx := NewContext(nil)
	var seen [][2]any
	unwatch := ctx.Watch(KeyRenderMode, func(_ string, old, new any) {
		seen = append(seen, [2]any{old, new})
	})

	ctx.SetState(KeyRenderMode, Tiled)
	ctx.SetState(KeyRenderMode, Tiled)
	ctx.SetState(KeyRenderMode, Progressive)
	assert.Equal(t, [][2]any{{Progressive, Tiled}, {Tiled, Progressive}}, seen)

	unwatch()
	ctx.SetState(KeyRenderMode, Tiled)
	assert.Len(t, seen, 2)
}

func TestContext_ExtensionKeys(t *testing.T) {
	ctx := NewContext(nil)
	var fired int
	ctx.Watch("adaptive:converged", func(string, any, any) { fired++ })

	ctx.SetState("adaptive:converged", 0.5)
	ctx.SetState("adaptive:converged", 0.5)
	ctx.SetState("tiles", []int{1, 2})
	assert.Equal(t, 0.5, ctx.StateValue("adaptive:converged"))
	assert.Equal(t, []int{1, 2}, ctx.StateValue("tiles"))
	assert.Equal(t, 1, fired)
}

func TestContext_RejectsWrongTypeForCoreKey(t *testing.T) {
	logger := &recordingLogger{}
	ctx := NewContext(logger)
	ctx.SetState(KeyFrame, "seven")
	assert.Equal(t, 0, ctx.State().Frame)
	assert.Len(t, logger.errors, 1)
}

func TestContext_ResetKeepsRegistries(t *testing.T) {
	ctx := NewContext(nil)
	tex, err := gpu.NewTarget(gpu.DefaultTargetDescriptor("color", 2, 2))
	require.NoError(t, err)
	ctx.SetTexture("pathtracer", "pathtracer:color", tex)
	ctx.SetUniform("maxSamples", 64)
	ctx.SetState(KeyFrame, 12)
	ctx.SetState(KeyCameraChanged, true)
	ctx.SetState(KeyIsComplete, true)
	ctx.SetState(KeyWidth, 2)

	ctx.Reset()
	st := ctx.State()
	assert.Equal(t, 0, st.Frame)
	assert.False(t, st.CameraChanged)
	assert.False(t, st.IsComplete)
	assert.Equal(t, 2, st.Width)
	assert.Same(t, tex, ctx.Texture("pathtracer:color"))
	assert.Equal(t, 64, ctx.UniformValue("maxSamples"))
}

func TestContext_WriterAudit(t *testing.T) {
	logger := &recordingLogger{}
	ctx := NewContext(logger)
	tex, _ := gpu.NewTarget(gpu.DefaultTargetDescriptor("c", 1, 1))

	ctx.SetTexture("pathtracer", "pathtracer:color", tex)
	ctx.SetTexture("pathtracer", "pathtracer:color", tex)
	assert.Empty(t, ctx.Conflicts())

	ctx.SetTexture("temporal", "pathtracer:color", tex)
	assert.Equal(t, []string{"texture:pathtracer:color"}, ctx.Conflicts())
	assert.Equal(t, "pathtracer", ctx.Writers()["texture:pathtracer:color"])
	assert.Len(t, logger.errors, 1)
}

func TestContext_DisposeIsTerminal(t *testing.T) {
	ctx := NewContext(nil)
	tex, _ := gpu.NewTarget(gpu.DefaultTargetDescriptor("c", 1, 1))
	ctx.SetRenderTarget("pathtracer", "pathtracer:current", tex)
	ctx.SetState(KeyFrame, 5)

	ctx.Dispose()
	assert.Nil(t, ctx.RenderTarget("pathtracer:current"))
	assert.Equal(t, State{}, ctx.State())

	ctx.SetTexture("late", "late", tex)
	ctx.SetState(KeyFrame, 1)
	assert.Nil(t, ctx.Texture("late"))
	assert.Equal(t, 0, ctx.State().Frame)
}

func TestAdapter_DelegatesToPipeline(t *testing.T) {
	var log []string
	p := New(nil)
	require.NoError(t, p.AddStage(newProbe("a", &log)))
	a := NewAdapter(p)

	require.NoError(t, a.SetSize(8, 4))
	require.NoError(t, a.Render(nil, nil, 16*time.Millisecond))
	assert.Equal(t, []string{"a"}, log)
	assert.Same(t, p.Context(), a.Context())
	assert.Same(t, p.Events(), a.Events())
	assert.NotNil(t, a.Stage("a"))
	assert.Equal(t, 8, a.Context().State().Width)
	assert.InDelta(t, 0.016, a.Context().State().DeltaTime, 1e-9)
	assert.ErrorIs(t, a.SetSize(0, 4), ErrInvalidSize)

	a.Dispose()
	assert.ErrorIs(t, a.Render(nil, nil, 0), ErrDisposed)
}

type fillPass struct {
	value float32
	seen  []gpu.RenderTarget
}

func (f *fillPass) Render(write, read gpu.RenderTarget, _ time.Duration) error {
	f.seen = append(f.seen, write, read)
	write.Clear([4]float32{f.value, f.value, f.value, 1})
	return nil
}
func (f *fillPass) SetSize(int, int) error { return nil }
func (f *fillPass) Dispose()               {}

func TestComposer_SwapsBuffersBetweenPasses(t *testing.T) {
	c, err := NewComposer(gpu.HostDevice{}, 2, 2)
	require.NoError(t, err)

	first, second := &fillPass{value: 1}, &fillPass{value: 2}
	c.AddPass(first)
	c.AddPass(second)
	require.NoError(t, c.Render(time.Millisecond))

	assert.Same(t, first.seen[0], second.seen[1], "second pass reads what the first wrote")
	assert.Same(t, second.seen[0], c.Output())
	assert.Equal(t, [4]float32{2, 2, 2, 1}, gpu.Pixel(c.Output().Texture(), 0, 0))

	require.NoError(t, c.SetSize(4, 4))
	assert.Equal(t, 4, c.Output().Width())
	assert.ErrorIs(t, c.SetSize(0, 4), gpu.ErrInvalidSize)
}

func TestComposer_HostsPipelineAdapter(t *testing.T) {
	var log []string
	p := New(nil)
	require.NoError(t, p.AddStage(newProbe("a", &log)))

	c, err := NewComposer(gpu.HostDevice{}, 2, 2)
	require.NoError(t, err)
	c.AddPass(NewAdapter(p))
	c.AddPass(&fillPass{value: 1})

	require.NoError(t, c.Render(time.Millisecond))
	require.NoError(t, c.Render(time.Millisecond))
	assert.Equal(t, 2, p.Context().State().Frame)

	c.Dispose()
	assert.True(t, p.Disposed())
}
