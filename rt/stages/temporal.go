package stages

import (
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/gogpu/gputypes"
)

// TemporalFilter blends the path tracer output into an exponential history.
// It only runs in interaction mode, where the camera keeps moving and the
// path tracer output rarely holds more than a sample or two. History survives
// resets made during interaction.
type TemporalFilter struct {
	pipeline.BaseStage

	// Alpha is the weight of the newest frame.
	Alpha float32

	device  gpu.Device
	history gpu.RenderTarget
	valid   bool
}

func NewTemporalFilter(device gpu.Device, alpha float32) *TemporalFilter {
	return &TemporalFilter{
		BaseStage: pipeline.NewBaseStage(NameTemporal, pipeline.Conditional),
		Alpha:     alpha,
		device:    device,
	}
}

func (t *TemporalFilter) ShouldExecute(ctx *pipeline.Context) bool {
	return ctx.State().InteractionMode
}

func (t *TemporalFilter) Render(ctx *pipeline.Context, _ gpu.RenderTarget) error {
	color := Fresh(ctx, TexColor)
	if color == nil {
		return nil
	}
	if t.history == nil || !gpu.SameSize(t.history.Texture(), color) {
		if err := t.allocate(color.Width(), color.Height()); err != nil {
			return err
		}
	}
	hp, cp := t.history.Texture().Pixels(), color.Pixels()
	if hp == nil || cp == nil {
		return gpu.ErrNotHostVisible
	}

	if !t.valid {
		copy(hp, cp)
		t.valid = true
	} else {
		a := t.Alpha
		for i := range hp {
			hp[i] += (cp[i] - hp[i]) * a
		}
	}
	Publish(ctx, NameTemporal, TexTemporal, t.history.Texture())
	return nil
}

func (t *TemporalFilter) Reset() {
	if t.Ctx != nil && t.Ctx.State().InteractionMode {
		return
	}
	t.valid = false
}

func (t *TemporalFilter) SetSize(width, height int) error {
	t.valid = false
	if t.history == nil {
		return nil
	}
	return t.history.Resize(width, height)
}

func (t *TemporalFilter) Dispose() {
	if t.history != nil {
		t.history.Release()
		t.history = nil
	}
	if t.Ctx != nil {
		t.Ctx.RemoveTexture(TexTemporal)
	}
}

func (t *TemporalFilter) allocate(width, height int) error {
	t.valid = false
	if t.history != nil {
		return t.history.Resize(width, height)
	}
	h, err := t.device.NewRenderTarget(gpu.TargetDescriptor{
		Label: TexTemporal, Width: width, Height: height, Format: gputypes.TextureFormatRGBA16Float,
	})
	if err != nil {
		return err
	}
	t.history = h
	return nil
}
