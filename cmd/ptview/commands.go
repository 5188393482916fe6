package main

import (
	"fmt"
	"strings"
	"time"

	pathtracer "github.com/gekko3d/pathtracer"
	"github.com/gekko3d/pathtracer/rt/app"
	"github.com/gekko3d/pathtracer/rt/overlay"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/urfave/cli"
)

// Longest wait for a background denoise after the last sample.
const denoiseTimeout = 30 * time.Second

// flagSource is the part of *cli.Context settings overrides read from.
type flagSource interface {
	IsSet(name string) bool
	String(name string) string
	Int(name string) int
	Uint64(name string) uint64
	Bool(name string) bool
}

func setupLogging(c *cli.Context) *pathtracer.DefaultLogger {
	return pathtracer.NewDefaultLogger("ptview", c.Bool("debug"))
}

// loadSettings reads the optional config file and applies command-line
// overrides on top of it.
func loadSettings(f flagSource) (pathtracer.Settings, error) {
	s := pathtracer.DefaultSettings()
	if path := f.String("config"); path != "" {
		var err error
		if s, err = pathtracer.LoadSettings(path); err != nil {
			return s, err
		}
	}
	if f.IsSet("width") {
		s.Width = f.Int("width")
	}
	if f.IsSet("height") {
		s.Height = f.Int("height")
	}
	if f.IsSet("samples") {
		s.MaxSamples = f.Int("samples")
	}
	if f.IsSet("mode") {
		s.RenderMode = strings.ToLower(f.String("mode"))
	}
	if f.IsSet("tiles") {
		s.TileCount = f.Int("tiles")
	}
	if f.IsSet("seed") {
		s.Seed = f.Uint64("seed")
	}
	if f.Bool("denoise") {
		s.Post.AsyncDenoise = true
	}
	if f.Bool("debug") {
		s.Debug = true
		s.Stats = true
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Render drives the renderer without a window until the image converges or
// the frame limit is reached, then writes it.
func Render(c *cli.Context) error {
	logger := setupLogging(c)
	s, err := loadSettings(c)
	if err != nil {
		logger.Errorf("%v", err)
		return err
	}
	// offline renders never see input
	s.Interaction.Enabled = false

	r, err := pathtracer.NewRenderer(s, pathtracer.Options{Logger: logger})
	if err != nil {
		logger.Errorf("%v", err)
		return err
	}
	defer r.Dispose()

	frames := c.Int("frames")
	start := time.Now()
	for i := 0; frames <= 0 || i < frames; i++ {
		if err := r.Render(); err != nil {
			logger.Errorf("frame %d: %v", i, err)
			return err
		}
		if r.IsComplete() {
			break
		}
	}
	logger.Infof("rendered %d samples at %dx%d in %v", r.Samples(), s.Width, s.Height, time.Since(start))

	if r.Denoiser().IsDenoising() {
		deadline := time.Now().Add(denoiseTimeout)
		for r.Denoiser().IsDenoising() {
			if time.Now().After(deadline) {
				return fmt.Errorf("denoiser did not finish within %v", denoiseTimeout)
			}
			time.Sleep(10 * time.Millisecond)
			if err := r.Render(); err != nil {
				return err
			}
		}
	}

	out := c.String("out")
	if err := r.SaveImage(out, float32(c.Float64("exposure"))); err != nil {
		logger.Errorf("save %s: %v", out, err)
		return err
	}
	logger.Infof("wrote %s", out)
	return nil
}

// View opens a window and renders interactively.
func View(c *cli.Context) error {
	logger := setupLogging(c)
	s, err := loadSettings(c)
	if err != nil {
		logger.Errorf("%v", err)
		return err
	}
	face, err := overlay.LoadFace(c.String("font"), 16)
	if err != nil {
		logger.Warnf("falling back to the built-in font: %v", err)
		face = nil
	}

	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(s.Width, s.Height, "ptview", nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	r, err := pathtracer.NewRenderer(s, pathtracer.Options{Logger: logger})
	if err != nil {
		logger.Errorf("%v", err)
		return err
	}
	defer r.Dispose()

	viewer := app.NewApp(window, r, logger.With("app"))
	viewer.Exposure = float32(c.Float64("exposure"))
	if err := viewer.Init(face); err != nil {
		return err
	}
	defer viewer.Presenter.Release()

	viewer.Run()
	return nil
}
