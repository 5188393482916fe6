package gpu

import (
	"errors"
	"image"
	"image/color"
	"math"
)

// ToneMap converts linear HDR radiance to display sRGB with simple Reinhard
// and the given exposure.
func ToneMap(v, exposure float32) uint8 {
	if v <= 0 {
		return 0
	}
	x := float64(v * exposure)
	x = x / (1 + x)
	x = math.Pow(x, 1/2.2)
	return uint8(math.Min(255, x*255+0.5))
}

// ToRGBA converts a host-visible texture into an 8-bit image. It returns nil
// for GPU-only textures.
func ToRGBA(tex Texture, exposure float32) *image.RGBA {
	pix := tex.Pixels()
	if pix == nil {
		return nil
	}
	w, h := tex.Width(), tex.Height()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			img.SetRGBA(x, y, color.RGBA{
				R: ToneMap(pix[i], exposure),
				G: ToneMap(pix[i+1], exposure),
				B: ToneMap(pix[i+2], exposure),
				A: 255,
			})
		}
	}
	return img
}

// ErrNotHostVisible is returned by host-side copies when either side has no
// CPU-visible pixels.
var ErrNotHostVisible = errors.New("gpu: texture is not host visible")

// Blit copies src into dst, resampling with nearest neighbour when the sizes
// differ.
func Blit(dst RenderTarget, src Texture) error {
	dp, sp := dst.Texture().Pixels(), src.Pixels()
	if dp == nil || sp == nil {
		return ErrNotHostVisible
	}
	dw, dh := dst.Width(), dst.Height()
	sw, sh := src.Width(), src.Height()
	if dw == sw && dh == sh {
		copy(dp, sp)
		return nil
	}
	for y := 0; y < dh; y++ {
		sy := y * sh / dh
		for x := 0; x < dw; x++ {
			sx := x * sw / dw
			d := (y*dw + x) * 4
			s := (sy*sw + sx) * 4
			copy(dp[d:d+4], sp[s:s+4])
		}
	}
	return nil
}
