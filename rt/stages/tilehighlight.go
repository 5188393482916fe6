package stages

import (
	"image"

	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
)

// TileHighlight outlines the tile the path tracer just rendered. It runs after
// the output stage and draws straight into the write buffer.
type TileHighlight struct {
	pipeline.BaseStage

	Color [4]float32
}

func NewTileHighlight() *TileHighlight {
	return &TileHighlight{
		BaseStage: pipeline.NewBaseStage(NameTileHighlight, pipeline.Conditional),
		Color:     [4]float32{1, 0.6, 0, 1},
	}
}

func (t *TileHighlight) ShouldExecute(ctx *pipeline.Context) bool {
	st := ctx.State()
	return st.RenderMode == pipeline.Tiled && !st.IsComplete
}

func (t *TileHighlight) Render(ctx *pipeline.Context, write gpu.RenderTarget) error {
	if write == nil {
		return nil
	}
	rect, ok := ctx.UniformValue(UniformTileRect).(image.Rectangle)
	color := ctx.Texture(TexColor)
	if !ok || rect.Empty() || color == nil {
		return nil
	}
	pix := write.Texture().Pixels()
	if pix == nil {
		return gpu.ErrNotHostVisible
	}
	r := scaleRect(rect, color.Width(), color.Height(), write.Width(), write.Height())
	if r.Empty() {
		return nil
	}
	w := write.Width()
	set := func(x, y int) {
		i := (y*w + x) * 4
		copy(pix[i:i+4], t.Color[:])
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		set(x, r.Min.Y)
		set(x, r.Max.Y-1)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		set(r.Min.X, y)
		set(r.Max.X-1, y)
	}
	return nil
}

// scaleRect maps r from a sw x sh image onto a dw x dh one.
func scaleRect(r image.Rectangle, sw, sh, dw, dh int) image.Rectangle {
	if sw == dw && sh == dh {
		return r
	}
	out := image.Rect(r.Min.X*dw/sw, r.Min.Y*dh/sh, r.Max.X*dw/sw, r.Max.Y*dh/sh)
	return out.Intersect(image.Rect(0, 0, dw, dh))
}
