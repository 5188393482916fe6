// Package app is the interactive window around a Renderer.
package app

import (
	"fmt"
	"image"
	"time"

	pathtracer "github.com/gekko3d/pathtracer"
	"github.com/gekko3d/pathtracer/rt/gpu/present"
	"github.com/gekko3d/pathtracer/rt/overlay"
	"github.com/gekko3d/pathtracer/rt/pipeline"

	"github.com/go-gl/glfw/v3.3/glfw"
	"golang.org/x/image/font"
)

// Radians of camera turn per pixel of mouse drag.
const dragSensitivity = 0.005

type App struct {
	Window    *glfw.Window
	Renderer  *pathtracer.Renderer
	Presenter *present.Presenter
	Overlay   *overlay.Overlay
	Logger    pathtracer.Logger

	Exposure     float32
	ShowHUD      bool
	SnapshotPath string

	dragging     bool
	lastX, lastY float64

	frameCount     int
	fps            float64
	fpsTime        float64
	lastRenderTime float64
}

func NewApp(window *glfw.Window, r *pathtracer.Renderer, logger pathtracer.Logger) *App {
	if logger == nil {
		logger = pathtracer.NewNopLogger()
	}
	return &App{
		Window:       window,
		Renderer:     r,
		Logger:       logger,
		Exposure:     1,
		ShowHUD:      true,
		SnapshotPath: "snapshot.exr",
	}
}

// Init creates the presenter and installs the window callbacks. face may be
// nil for the built-in font.
func (a *App) Init(face font.Face) error {
	p, err := present.New(a.Window)
	if err != nil {
		return err
	}
	a.Presenter = p
	a.Overlay = overlay.New(face)

	a.Window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		a.Resize(width, height)
	})
	a.Window.SetCursorPosCallback(a.onCursor)
	a.Window.SetMouseButtonCallback(a.onMouseButton)
	a.Window.SetScrollCallback(a.onScroll)
	a.Window.SetKeyCallback(a.onKey)

	w, h := a.Window.GetFramebufferSize()
	a.Resize(w, h)
	return nil
}

// Run renders until the window is closed.
func (a *App) Run() {
	for !a.Window.ShouldClose() {
		glfw.PollEvents()
		a.Render()
	}
}

func (a *App) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	a.Presenter.Resize(width, height)
	if err := a.Renderer.SetSize(width, height); err != nil {
		a.Logger.Errorf("resize to %dx%d: %v", width, height, err)
	}
}

// Render advances the path tracer one frame and presents the output.
func (a *App) Render() {
	if err := a.Renderer.Render(); err != nil {
		a.Logger.Errorf("render: %v", err)
		return
	}

	w, h := a.Window.GetFramebufferSize()
	if w <= 0 || h <= 0 {
		return
	}
	var frame image.Image
	if img := a.Renderer.Snapshot(a.Exposure); img != nil {
		frame = img
	}
	var lines []string
	if a.ShowHUD {
		lines = a.hudLines()
	}
	if err := a.Presenter.Present(a.Overlay.Compose(frame, w, h, lines)); err != nil {
		a.Logger.Errorf("present: %v", err)
		return
	}

	now := glfw.GetTime()
	if a.lastRenderTime > 0 {
		a.frameCount++
		a.fpsTime += now - a.lastRenderTime
		if a.fpsTime >= 1.0 {
			a.fps = float64(a.frameCount) / a.fpsTime
			a.frameCount = 0
			a.fpsTime = 0
		}
	}
	a.lastRenderTime = now
}

func (a *App) hudLines() []string {
	r := a.Renderer
	s := r.Settings()
	rw, rh := r.Size()
	lines := []string{
		fmt.Sprintf("FPS: %.1f", a.fps),
		fmt.Sprintf("Samples: %d/%d (%s)", r.Samples(), s.MaxSamples, r.Tracer().State()),
		fmt.Sprintf("Mode: %s  Size: %dx%d @ %.2f", s.RenderMode, rw, rh, r.PixelDensity()),
		fmt.Sprintf("Camera: %s", r.Camera().Name),
	}
	if r.Denoiser().IsDenoising() {
		lines = append(lines, "Denoising...")
	}
	if s.Stats {
		st := r.Stats()
		lines = append(lines, fmt.Sprintf("Frame: %.2f ms", float64(st.Total.Avg)/float64(time.Millisecond)))
	}
	return lines
}

func (a *App) onCursor(_ *glfw.Window, x, y float64) {
	if a.dragging {
		dx := float32(x - a.lastX)
		dy := float32(y - a.lastY)
		if dx != 0 || dy != 0 {
			a.Renderer.OrbitCamera(-dx*dragSensitivity, -dy*dragSensitivity)
		}
	}
	a.lastX, a.lastY = x, y
}

func (a *App) onMouseButton(w *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	if button != glfw.MouseButtonLeft {
		return
	}
	a.dragging = action == glfw.Press
	a.lastX, a.lastY = w.GetCursorPos()
}

func (a *App) onScroll(_ *glfw.Window, _, yoff float64) {
	cam := a.Renderer.Camera()
	d := cam.FocusDistance * (1 + 0.1*float32(yoff))
	if err := a.Renderer.SetFocusDistance(d); err != nil {
		a.Logger.Warnf("focus: %v", err)
	}
}

func (a *App) onKey(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	r := a.Renderer
	var err error
	switch key {
	case glfw.KeyEscape:
		w.SetShouldClose(true)
	case glfw.KeyR:
		r.Reset()
	case glfw.KeyH:
		a.ShowHUD = !a.ShowHUD
	case glfw.KeyT:
		mode := pipeline.Tiled
		if r.Settings().RenderMode == "tiled" {
			mode = pipeline.Progressive
		}
		err = r.SetRenderMode(mode)
	case glfw.KeyI:
		err = r.SetInteractionModeEnabled(!r.Settings().Interaction.Enabled)
	case glfw.KeyC:
		err = r.SwitchCamera((indexOf(r) + 1) % len(r.Cameras()))
	case glfw.KeyEqual, glfw.KeyKPAdd:
		a.Exposure *= 1.25
	case glfw.KeyMinus, glfw.KeyKPSubtract:
		a.Exposure /= 1.25
	case glfw.KeyP:
		err = r.SaveImage(a.SnapshotPath, a.Exposure)
		if err == nil {
			a.Logger.Infof("saved %s at %d samples", a.SnapshotPath, r.Samples())
		}
	}
	if err != nil {
		a.Logger.Errorf("key %v: %v", key, err)
	}
}

func indexOf(r *pathtracer.Renderer) int {
	active := r.Camera()
	for i, c := range r.Cameras() {
		if c == active {
			return i
		}
	}
	return 0
}
