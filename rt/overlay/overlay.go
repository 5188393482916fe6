// Package overlay scales rendered frames to the window and draws the
// status text on top.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const padding = 6

var (
	panelColor = color.RGBA{0, 0, 0, 160}
	textColor  = color.RGBA{255, 255, 0, 255}
)

// LoadFace reads a TrueType or OpenType font. An empty path yields the
// built-in 7x13 bitmap face.
func LoadFace(path string, size float64) (font.Face, error) {
	if path == "" {
		return basicfont.Face7x13, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create face: %w", err)
	}
	return face, nil
}

// Overlay owns the window-sized canvas frames are composed into.
type Overlay struct {
	Face   font.Face
	Scaler draw.Scaler
	canvas *image.RGBA
}

func New(face font.Face) *Overlay {
	if face == nil {
		face = basicfont.Face7x13
	}
	return &Overlay{Face: face, Scaler: draw.NearestNeighbor}
}

// Compose stretches frame over a width x height canvas and draws lines in
// the top-left corner. The returned image is reused by the next call.
func (o *Overlay) Compose(frame image.Image, width, height int, lines []string) *image.RGBA {
	if o.canvas == nil || o.canvas.Bounds().Dx() != width || o.canvas.Bounds().Dy() != height {
		o.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	dst := o.canvas
	if frame == nil {
		draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
	} else if frame.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), frame, frame.Bounds().Min, draw.Src)
	} else {
		o.Scaler.Scale(dst, dst.Bounds(), frame, frame.Bounds(), draw.Src, nil)
	}
	o.drawText(dst, lines)
	return dst
}

func (o *Overlay) drawText(dst *image.RGBA, lines []string) {
	if len(lines) == 0 {
		return
	}
	metrics := o.Face.Metrics()
	lineHeight := metrics.Height.Ceil()
	ascent := metrics.Ascent.Ceil()

	d := &font.Drawer{Dst: dst, Src: image.NewUniform(textColor), Face: o.Face}
	width := 0
	for _, line := range lines {
		width = max(width, d.MeasureString(line).Ceil())
	}
	panel := image.Rect(0, 0, width+2*padding, len(lines)*lineHeight+2*padding)
	draw.Draw(dst, panel.Intersect(dst.Bounds()), image.NewUniform(panelColor), image.Point{}, draw.Over)

	for i, line := range lines {
		d.Dot = fixed.P(padding, padding+ascent+i*lineHeight)
		d.DrawString(line)
	}
}
