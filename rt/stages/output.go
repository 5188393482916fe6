package stages

import (
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
)

// DefaultOutputSources is the order the output stage looks for an image in.
var DefaultOutputSources = []string{TexDenoiser, TexDenoise, TexTemporal, TexColor}

// OutputStage copies the best available image into the pipeline's write
// buffer, scaling when the internal resolution differs.
type OutputStage struct {
	pipeline.BaseStage

	Sources []string
	last    string
}

func NewOutputStage(sources ...string) *OutputStage {
	if len(sources) == 0 {
		sources = DefaultOutputSources
	}
	return &OutputStage{
		BaseStage: pipeline.NewBaseStage(NameOutput, pipeline.Always),
		Sources:   sources,
	}
}

// Source reports which texture was shown last frame.
func (o *OutputStage) Source() string { return o.last }

func (o *OutputStage) Render(ctx *pipeline.Context, write gpu.RenderTarget) error {
	if write == nil {
		return nil
	}
	for _, name := range o.Sources {
		tex := Fresh(ctx, name)
		if tex == nil || tex.Pixels() == nil {
			continue
		}
		o.last = name
		return gpu.Blit(write, tex)
	}
	return nil
}
