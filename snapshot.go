package pathtracer

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/mrjoshuak/go-openexr/exr"
)

// EXRImage copies a host texture into an OpenEXR image. Both use
// interleaved float32 RGBA rows.
func EXRImage(tex gpu.Texture) (*exr.RGBAImage, error) {
	pix := tex.Pixels()
	if pix == nil {
		return nil, gpu.ErrNotHostVisible
	}
	img := exr.NewRGBAImage(image.Rect(0, 0, tex.Width(), tex.Height()))
	copy(img.Pix, pix)
	return img, nil
}

// WriteEXR stores tex as linear HDR.
func WriteEXR(path string, tex gpu.Texture) error {
	img, err := EXRImage(tex)
	if err != nil {
		return err
	}
	return exr.EncodeFile(path, img)
}

// WritePNG stores tex tone-mapped to 8 bits.
func WritePNG(path string, tex gpu.Texture, exposure float32) error {
	img := gpu.ToRGBA(tex, exposure)
	if img == nil {
		return gpu.ErrNotHostVisible
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteImage picks the format from the file extension: .exr keeps the linear
// accumulation, .png is tone-mapped.
func WriteImage(path string, tex gpu.Texture, exposure float32) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".exr":
		return WriteEXR(path, tex)
	case ".png":
		return WritePNG(path, tex, exposure)
	default:
		return fmt.Errorf("unsupported image format %q", ext)
	}
}
