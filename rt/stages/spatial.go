package stages

import (
	"math"

	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/gogpu/gputypes"
)

// B3 spline taps of the à-trous wavelet.
var atrousKernel = [5]float32{1.0 / 16, 1.0 / 4, 3.0 / 8, 1.0 / 4, 1.0 / 16}

// SpatialDenoiser is an edge-avoiding à-trous filter. Colour differences
// always stop the filter; G-buffer normals and albedo do too when an external
// producer has registered them at the working resolution.
type SpatialDenoiser struct {
	pipeline.BaseStage

	Iterations int
	ColorPhi   float32
	NormalPhi  float32
	AlbedoPhi  float32

	device gpu.Device
	ping   gpu.RenderTarget
	pong   gpu.RenderTarget
}

func NewSpatialDenoiser(device gpu.Device, iterations int) *SpatialDenoiser {
	return &SpatialDenoiser{
		BaseStage:  pipeline.NewBaseStage(NameDenoise, pipeline.Always),
		Iterations: iterations,
		ColorPhi:   0.5,
		NormalPhi:  0.1,
		AlbedoPhi:  0.1,
		device:     device,
	}
}

// input prefers the temporally filtered image when it is current.
func (d *SpatialDenoiser) input(ctx *pipeline.Context) gpu.Texture {
	if tex := Fresh(ctx, TexTemporal); tex != nil {
		return tex
	}
	return Fresh(ctx, TexColor)
}

func (d *SpatialDenoiser) Render(ctx *pipeline.Context, _ gpu.RenderTarget) error {
	src := d.input(ctx)
	if src == nil || src.Pixels() == nil {
		return nil
	}
	w, h := src.Width(), src.Height()
	if err := d.ensureTargets(w, h); err != nil {
		return err
	}

	var normals, albedo []float32
	if n := ctx.Texture(TexNormal); n != nil && n.Width() == w && n.Height() == h {
		normals = n.Pixels()
	}
	if a := ctx.Texture(TexAlbedo); a != nil && a.Width() == w && a.Height() == h {
		albedo = a.Pixels()
	}

	in := src.Pixels()
	read, write := d.ping, d.pong
	iterations := max(d.Iterations, 1)
	for it := 0; it < iterations; it++ {
		atrousPass(write.Texture().Pixels(), in, normals, albedo, w, h, 1<<it, d.ColorPhi, d.NormalPhi, d.AlbedoPhi)
		in = write.Texture().Pixels()
		read, write = write, read
	}
	Publish(ctx, NameDenoise, TexDenoise, read.Texture())
	return nil
}

func atrousPass(out, in, normals, albedo []float32, w, h, step int, colorPhi, normalPhi, albedoPhi float32) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := (y*w + x) * 4
			var sum [3]float32
			var wsum float32
			for ky := -2; ky <= 2; ky++ {
				qy := y + ky*step
				if qy < 0 || qy >= h {
					continue
				}
				for kx := -2; kx <= 2; kx++ {
					qx := x + kx*step
					if qx < 0 || qx >= w {
						continue
					}
					q := (qy*w + qx) * 4
					weight := atrousKernel[kx+2] * atrousKernel[ky+2]
					weight *= edgeWeight(in, p, q, colorPhi)
					if normals != nil {
						weight *= edgeWeight(normals, p, q, normalPhi)
					}
					if albedo != nil {
						weight *= edgeWeight(albedo, p, q, albedoPhi)
					}
					sum[0] += in[q] * weight
					sum[1] += in[q+1] * weight
					sum[2] += in[q+2] * weight
					wsum += weight
				}
			}
			// the centre tap always has weight > 0
			out[p] = sum[0] / wsum
			out[p+1] = sum[1] / wsum
			out[p+2] = sum[2] / wsum
			out[p+3] = 1
		}
	}
}

func edgeWeight(buf []float32, p, q int, phi float32) float32 {
	dr := buf[p] - buf[q]
	dg := buf[p+1] - buf[q+1]
	db := buf[p+2] - buf[q+2]
	d2 := dr*dr + dg*dg + db*db
	return float32(math.Exp(-float64(d2 / (phi * phi))))
}

func (d *SpatialDenoiser) SetSize(width, height int) error {
	if d.ping == nil {
		return nil
	}
	return d.ensureTargets(width, height)
}

func (d *SpatialDenoiser) Dispose() {
	if d.ping != nil {
		d.ping.Release()
		d.pong.Release()
		d.ping, d.pong = nil, nil
	}
	if d.Ctx != nil {
		d.Ctx.RemoveTexture(TexDenoise)
	}
}

func (d *SpatialDenoiser) ensureTargets(width, height int) error {
	if d.ping == nil {
		ping, err := d.device.NewRenderTarget(gpu.TargetDescriptor{
			Label: "denoise:ping", Width: width, Height: height, Format: gputypes.TextureFormatRGBA16Float,
		})
		if err != nil {
			return err
		}
		pong, err := d.device.NewRenderTarget(gpu.TargetDescriptor{
			Label: "denoise:pong", Width: width, Height: height, Format: gputypes.TextureFormatRGBA16Float,
		})
		if err != nil {
			ping.Release()
			return err
		}
		d.ping, d.pong = ping, pong
		return nil
	}
	if d.ping.Width() == width && d.ping.Height() == height {
		return nil
	}
	if err := d.ping.Resize(width, height); err != nil {
		return err
	}
	return d.pong.Resize(width, height)
}

// AtrousOptions tunes FilterAtrous. Normals and Albedo are optional RGBA
// guides at the image size.
type AtrousOptions struct {
	Iterations int
	ColorPhi   float32
	NormalPhi  float32
	AlbedoPhi  float32
	Normals    []float32
	Albedo     []float32
}

// FilterAtrous runs the edge-avoiding filter over RGBA pixels and returns a
// new buffer. stop is checked between iterations; when it reports true the
// partial result is returned with ok false.
func FilterAtrous(in []float32, w, h int, opt AtrousOptions, stop func() bool) (out []float32, ok bool) {
	a := append([]float32(nil), in...)
	b := make([]float32, len(in))
	for it := 0; it < max(opt.Iterations, 1); it++ {
		if stop != nil && stop() {
			return a, false
		}
		atrousPass(b, a, opt.Normals, opt.Albedo, w, h, 1<<it, opt.ColorPhi, opt.NormalPhi, opt.AlbedoPhi)
		a, b = b, a
	}
	return a, true
}
