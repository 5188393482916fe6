package gpu

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
)

// ErrInvalidSize is returned when a target is created or resized with a zero
// or negative dimension.
var ErrInvalidSize = errors.New("gpu: invalid target size")

// Texture is a readable image resource registered by name in the pipeline
// context.
//
// Pixels exposes host-visible RGBA float data, four floats per pixel in row
// major order. GPU-only implementations return nil.
type Texture interface {
	Label() string
	Width() int
	Height() int
	Format() gputypes.TextureFormat
	Pixels() []float32
}

// RenderTarget is a writable framebuffer with an attached texture.
type RenderTarget interface {
	Texture() Texture
	Width() int
	Height() int
	Resize(width, height int) error
	Clear(c [4]float32)
	Release()
}

// TargetDescriptor describes a render target. It mirrors the WebGPU texture
// descriptor fields the pipeline cares about.
type TargetDescriptor struct {
	Label  string
	Width  int
	Height int
	Format gputypes.TextureFormat
}

// DefaultTargetDescriptor returns a float accumulation target descriptor.
func DefaultTargetDescriptor(label string, width, height int) TargetDescriptor {
	return TargetDescriptor{
		Label:  label,
		Width:  width,
		Height: height,
		Format: gputypes.TextureFormatRGBA32Float,
	}
}

// Device allocates render targets. Stages receive a Device at construction
// and never create resources through globals.
type Device interface {
	NewRenderTarget(desc TargetDescriptor) (RenderTarget, error)
}

// HostDevice allocates host-memory targets. It is the reference backend used
// by the headless renderer and by every test.
type HostDevice struct{}

func (HostDevice) NewRenderTarget(desc TargetDescriptor) (RenderTarget, error) {
	return NewTarget(desc)
}

var _ Device = HostDevice{}

// Target is a host-memory render target. Storage is always float32 RGBA; the
// descriptor format records how a GPU backend would allocate it.
type Target struct {
	label    string
	width    int
	height   int
	format   gputypes.TextureFormat
	pix      []float32
	released bool
}

func NewTarget(desc TargetDescriptor) (*Target, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: %q %dx%d", ErrInvalidSize, desc.Label, desc.Width, desc.Height)
	}
	format := desc.Format
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatRGBA32Float
	}
	return &Target{
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: format,
		pix:    make([]float32, desc.Width*desc.Height*4),
	}, nil
}

func (t *Target) Texture() Texture               { return t }
func (t *Target) Label() string                  { return t.label }
func (t *Target) Width() int                     { return t.width }
func (t *Target) Height() int                    { return t.height }
func (t *Target) Format() gputypes.TextureFormat { return t.format }
func (t *Target) Pixels() []float32              { return t.pix }
func (t *Target) Bounds() image.Rectangle        { return image.Rect(0, 0, t.width, t.height) }

// Resize reallocates storage. Contents are not preserved.
func (t *Target) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %q %dx%d", ErrInvalidSize, t.label, width, height)
	}
	if width == t.width && height == t.height && !t.released {
		return nil
	}
	t.width = width
	t.height = height
	t.pix = make([]float32, width*height*4)
	t.released = false
	return nil
}

func (t *Target) Clear(c [4]float32) {
	for i := 0; i < len(t.pix); i += 4 {
		t.pix[i] = c[0]
		t.pix[i+1] = c[1]
		t.pix[i+2] = c[2]
		t.pix[i+3] = c[3]
	}
}

func (t *Target) Release() {
	t.pix = nil
	t.released = true
}

func (t *Target) Released() bool { return t.released }

func (t *Target) At(x, y int) [4]float32 {
	i := (y*t.width + x) * 4
	return [4]float32{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
}

func (t *Target) Set(x, y int, c [4]float32) {
	i := (y*t.width + x) * 4
	t.pix[i] = c[0]
	t.pix[i+1] = c[1]
	t.pix[i+2] = c[2]
	t.pix[i+3] = c[3]
}

// CopyFrom copies the overlapping region r of src into t. Textures without
// host-visible pixels are ignored.
func (t *Target) CopyFrom(src Texture, r image.Rectangle) {
	sp := src.Pixels()
	if sp == nil || t.pix == nil {
		return
	}
	r = r.Intersect(t.Bounds()).Intersect(image.Rect(0, 0, src.Width(), src.Height()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		d := (y*t.width + r.Min.X) * 4
		s := (y*src.Width() + r.Min.X) * 4
		copy(t.pix[d:d+r.Dx()*4], sp[s:s+r.Dx()*4])
	}
}

// Pixel reads one RGBA value from any host-visible texture.
func Pixel(tex Texture, x, y int) [4]float32 {
	p := tex.Pixels()
	i := (y*tex.Width() + x) * 4
	return [4]float32{p[i], p[i+1], p[i+2], p[i+3]}
}

// SameSize reports whether two textures share dimensions.
func SameSize(a, b Texture) bool {
	return a != nil && b != nil && a.Width() == b.Width() && a.Height() == b.Height()
}
