package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/basicfont"
)

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCompose_ScalesFrame(t *testing.T) {
	o := New(nil)
	red := color.RGBA{255, 0, 0, 255}
	frame := filled(2, 2, red)
	frame.SetRGBA(1, 1, color.RGBA{0, 0, 255, 255})

	out := o.Compose(frame, 8, 8, nil)
	require.Equal(t, image.Rect(0, 0, 8, 8), out.Bounds())
	assert.Equal(t, red, out.RGBAAt(0, 0))
	assert.Equal(t, red, out.RGBAAt(3, 3))
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, out.RGBAAt(7, 7))
}

func TestCompose_ReusesCanvas(t *testing.T) {
	o := New(nil)
	frame := filled(4, 4, color.RGBA{10, 20, 30, 255})
	a := o.Compose(frame, 4, 4, nil)
	b := o.Compose(frame, 4, 4, nil)
	assert.Same(t, a, b)

	c := o.Compose(frame, 6, 4, nil)
	assert.NotSame(t, a, c)
}

func TestCompose_NilFrameIsBlack(t *testing.T) {
	o := New(nil)
	out := o.Compose(nil, 3, 3, nil)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(1, 1))
}

func TestCompose_DrawsText(t *testing.T) {
	o := New(basicfont.Face7x13)
	white := color.RGBA{255, 255, 255, 255}
	out := o.Compose(filled(200, 60, white), 200, 60, []string{"samples 12/256"})

	// the panel darkens the corner
	corner := out.RGBAAt(1, 1)
	assert.Less(t, corner.R, white.R)

	glyph := false
	for y := 0; y < 30 && !glyph; y++ {
		for x := 0; x < 120; x++ {
			c := out.RGBAAt(x, y)
			if c.R > 200 && c.G > 200 && c.B < 150 {
				glyph = true
				break
			}
		}
	}
	assert.True(t, glyph, "expected yellow text pixels")

	// outside the panel the frame is untouched
	assert.Equal(t, white, out.RGBAAt(199, 59))
}

func TestLoadFace(t *testing.T) {
	face, err := LoadFace("", 12)
	require.NoError(t, err)
	assert.Equal(t, basicfont.Face7x13, face)

	_, err = LoadFace("/does/not/exist.ttf", 12)
	assert.Error(t, err)
}
