package stages

import (
	"math"

	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/gogpu/gputypes"
)

// AdaptiveSampler marks pixels whose estimate stopped changing so the path
// tracer can skip them. The mask lives in the red channel of
// TexAdaptiveMask: 1 keeps sampling, 0 is converged.
type AdaptiveSampler struct {
	pipeline.BaseStage

	// MinFrames is how many progressive frames to accumulate before any
	// pixel may be marked converged.
	MinFrames int
	// Threshold is the relative per-frame change below which a pixel counts
	// as converged.
	Threshold float32

	device gpu.Device
	mask   gpu.RenderTarget
}

func NewAdaptiveSampler(device gpu.Device, minFrames int, threshold float32) *AdaptiveSampler {
	return &AdaptiveSampler{
		BaseStage: pipeline.NewBaseStage(NameAdaptive, pipeline.Conditional),
		MinFrames: minFrames,
		Threshold: threshold,
		device:    device,
	}
}

func (a *AdaptiveSampler) ShouldExecute(ctx *pipeline.Context) bool {
	st := ctx.State()
	return st.RenderMode == pipeline.Progressive && !st.InteractionMode && st.Frame >= a.MinFrames
}

func (a *AdaptiveSampler) Render(ctx *pipeline.Context, _ gpu.RenderTarget) error {
	color, prev := Fresh(ctx, TexColor), ctx.Texture(TexPrevious)
	if color == nil || prev == nil || !gpu.SameSize(color, prev) {
		return nil
	}
	if err := a.ensureMask(color.Width(), color.Height()); err != nil {
		return err
	}
	cp, pp, mp := color.Pixels(), prev.Pixels(), a.mask.Texture().Pixels()
	if cp == nil || pp == nil || mp == nil {
		return gpu.ErrNotHostVisible
	}

	converged := 0
	n := color.Width() * color.Height()
	for i := 0; i < n*4; i += 4 {
		if mp[i] == 0 {
			converged++
			continue
		}
		var diff, lum float64
		for c := 0; c < 3; c++ {
			diff += math.Abs(float64(cp[i+c] - pp[i+c]))
			lum += float64(cp[i+c])
		}
		if diff/(lum+1e-4) < float64(a.Threshold) {
			mp[i] = 0
			converged++
		}
	}

	fraction := float32(converged) / float32(n)
	ctx.SetUniform(UniformConvergedFraction, fraction)
	ctx.SetState("adaptive:converged", float64(fraction))
	Publish(ctx, NameAdaptive, TexAdaptiveMask, a.mask.Texture())
	return nil
}

// Reset marks every pixel as needing samples again.
func (a *AdaptiveSampler) Reset() {
	if a.mask != nil {
		a.mask.Clear([4]float32{1, 1, 1, 1})
	}
	if a.Ctx != nil {
		a.Ctx.SetUniform(UniformConvergedFraction, float32(0))
	}
}

func (a *AdaptiveSampler) SetSize(width, height int) error {
	return a.ensureMask(width, height)
}

func (a *AdaptiveSampler) Dispose() {
	if a.mask != nil {
		a.mask.Release()
		a.mask = nil
	}
	if a.Ctx != nil {
		a.Ctx.RemoveTexture(TexAdaptiveMask)
	}
}

func (a *AdaptiveSampler) ensureMask(width, height int) error {
	if a.mask == nil {
		m, err := a.device.NewRenderTarget(gpu.TargetDescriptor{
			Label: TexAdaptiveMask, Width: width, Height: height, Format: gputypes.TextureFormatR8Unorm,
		})
		if err != nil {
			return err
		}
		a.mask = m
		a.mask.Clear([4]float32{1, 1, 1, 1})
		return nil
	}
	if a.mask.Width() == width && a.mask.Height() == height {
		return nil
	}
	if err := a.mask.Resize(width, height); err != nil {
		return err
	}
	a.mask.Clear([4]float32{1, 1, 1, 1})
	return nil
}
