package pathtracer

import (
	"errors"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/gekko3d/pathtracer/rt/core"
	"github.com/gekko3d/pathtracer/rt/events"
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/gekko3d/pathtracer/rt/stages"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var (
	ErrNoCamera     = errors.New("pathtracer: no such camera")
	ErrUnknownLight = errors.New("pathtracer: unknown light")
)

// CameraEvent is the payload of events.CameraSwitched.
type CameraEvent struct {
	Index int
	Name  string
}

// FocusEvent is the payload of events.FocusChanged.
type FocusEvent struct {
	Distance float32
}

// ResolutionEvent is the payload of events.ResolutionChanged.
type ResolutionEvent struct {
	Density float32
	Width   int
	Height  int
}

// Options injects the renderer's collaborators. Zero fields get host
// defaults.
type Options struct {
	Logger     Logger
	Device     gpu.Device
	Integrator stages.Integrator
	Builder    core.SceneBuilder
	Denoiser   Denoiser
	Clock      stages.Clock
}

// Renderer is the application-facing path tracer. It owns the pipeline,
// hosts it in a composer and turns UI edits into stage calls and reset
// requests.
type Renderer struct {
	settings Settings
	logger   Logger
	device   gpu.Device
	builder  core.SceneBuilder
	now      func() time.Time
	frame    FrameTime

	pipeline *pipeline.Pipeline
	composer *pipeline.Composer
	tracer   *stages.PathTracer
	lights   *stages.LightPreprocessor
	denoise  *DenoiseScheduler

	scene   *core.Scene
	cameras []*core.Camera
	camera  int

	width          int
	height         int
	density        float32
	densityPending bool
	disposed       bool
}

func NewRenderer(s Settings, opts Options) (*Renderer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cfg, _ := s.PathTracerConfig()

	r := &Renderer{
		settings: s,
		logger:   opts.Logger,
		device:   opts.Device,
		builder:  opts.Builder,
		now:      time.Now,
		width:    s.Width,
		height:   s.Height,
		density:  s.PixelDensity,
	}
	if r.logger == nil {
		r.logger = NewNopLogger()
	}
	if s.Debug {
		r.logger.SetDebug(true)
	}
	if r.device == nil {
		r.device = gpu.HostDevice{}
	}
	if r.builder == nil {
		r.builder = core.NewFlatBuilder()
	}
	if opts.Clock != nil {
		r.now = opts.Clock.Now
	}
	integrator := opts.Integrator
	if integrator == nil {
		integrator = &stages.HostIntegrator{Radiance: stages.SkyRadiance, Seed: s.Seed}
	}

	tracer, err := stages.NewPathTracer(cfg, r.device, integrator)
	if err != nil {
		return nil, err
	}
	if opts.Clock != nil {
		tracer.SetClock(opts.Clock)
	}
	tracer.SetDensityController(r)
	r.tracer = tracer
	r.lights = stages.NewLightPreprocessor(nil)

	adaptive := stages.NewAdaptiveSampler(r.device, s.Post.AdaptiveMinFrames, s.Post.AdaptiveThreshold)
	adaptive.SetEnabled(s.Post.Adaptive)
	spatial := stages.NewSpatialDenoiser(r.device, s.Post.DenoiseIterations)
	spatial.SetEnabled(s.Post.DenoiseIterations > 0)
	highlight := stages.NewTileHighlight()
	highlight.SetEnabled(s.Post.TileHighlight)

	r.pipeline = pipeline.New(r.logger)
	r.pipeline.EnableStats(s.Stats)
	for _, st := range []pipeline.Stage{
		r.lights,
		tracer,
		adaptive,
		stages.NewTemporalFilter(r.device, s.Post.TemporalAlpha),
		spatial,
		stages.NewOutputStage(),
		highlight,
	} {
		if err := r.pipeline.AddStage(st); err != nil {
			r.pipeline.Dispose()
			return nil, err
		}
	}

	denoiser := opts.Denoiser
	if denoiser == nil && s.Post.AsyncDenoise {
		denoiser = NewAtrousDenoiser(5)
	}
	r.denoise = NewDenoiseScheduler(denoiser, r.logger)
	r.denoise.Attach(r.pipeline.Context(), r.pipeline.Events())

	bus := r.pipeline.Events()
	bus.On(events.PipelineReset, func(events.Event) {
		r.denoise.Cancel()
		bus.Emit(events.RenderReset, nil)
	})
	bus.On(events.PathTracerComplete, func(ev events.Event) {
		r.logger.Debugf("render complete: %+v", ev.Payload)
		bus.Emit(events.RenderComplete, ev.Payload)
		if s.Post.AsyncDenoise {
			ctx := r.pipeline.Context()
			r.denoise.Request(ctx.Texture(stages.TexColor), ctx.Texture(stages.TexAlbedo), ctx.Texture(stages.TexNormal))
		}
	})

	w, h := r.internalSize()
	r.composer, err = pipeline.NewComposer(r.device, w, h)
	if err != nil {
		r.pipeline.Dispose()
		return nil, err
	}
	r.composer.AddPass(pipeline.NewAdapter(r.pipeline))
	if err := r.composer.SetSize(w, h); err != nil {
		r.composer.Dispose()
		return nil, err
	}

	if err := r.LoadScene(core.NewScene()); err != nil {
		r.Dispose()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) Settings() Settings                    { return r.settings }
func (r *Renderer) Pipeline() *pipeline.Pipeline          { return r.pipeline }
func (r *Renderer) Events() *events.Bus                   { return r.pipeline.Events() }
func (r *Renderer) Stats() pipeline.Stats                 { return r.pipeline.Stats() }
func (r *Renderer) Tracer() *stages.PathTracer            { return r.tracer }
func (r *Renderer) Denoiser() *DenoiseScheduler           { return r.denoise }
func (r *Renderer) Scene() *core.Scene                    { return r.scene }
func (r *Renderer) State() pipeline.State                 { return r.pipeline.Context().State() }
func (r *Renderer) Frame() int                            { return r.tracer.Frame() }
func (r *Renderer) Samples() int                          { return r.tracer.Samples() }
func (r *Renderer) IsComplete() bool                      { return r.tracer.State() == stages.StateComplete }
func (r *Renderer) IsInteracting() bool                   { return r.tracer.State() == stages.StateInteracting }
func (r *Renderer) Size() (int, int)                      { return r.width, r.height }
func (r *Renderer) Disposed() bool                        { return r.disposed }
func (r *Renderer) Output() gpu.Texture                   { return r.composer.Output().Texture() }
func (r *Renderer) Snapshot(exposure float32) *image.RGBA { return gpu.ToRGBA(r.Output(), exposure) }

// LoadScene builds scene, installs its materials and cameras, and adds the
// lights listed in the settings. The first camera becomes active; a scene
// without cameras gets a default one.
func (r *Renderer) LoadScene(scene *core.Scene) error {
	if r.disposed {
		return pipeline.ErrDisposed
	}
	for i, lc := range r.settings.Lights {
		l, t, err := lc.Build()
		if err != nil {
			return fmt.Errorf("light %d: %w", i, err)
		}
		scene.AddLight(l, t)
	}
	res, err := r.builder.Build(scene)
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}

	ctx := r.pipeline.Context()
	for name, buf := range res.Geometry {
		ctx.SetUniform(name, buf)
	}
	r.tracer.SetMaterials(res.Materials, res.MaterialCount)

	r.cameras = res.Cameras
	if len(r.cameras) == 0 {
		cam := core.NewCamera("default")
		cam.LookAt(mgl32.Vec3{})
		n := core.NewNode("default-camera")
		n.Camera = cam
		scene.Root.Add(n)
		r.cameras = []*core.Camera{cam}
	}
	r.scene = scene
	r.lights.SetScene(scene)
	r.camera = 0
	r.tracer.SetCamera(r.cameras[0])
	r.logger.Infof("scene loaded: %d materials, %d cameras, %d lights", res.MaterialCount, len(r.cameras), len(scene.Lights()))
	r.pipeline.RequestReset()
	return nil
}

// Render draws one frame into Output. Density changes requested during the
// previous frame are applied first.
func (r *Renderer) Render() error {
	if r.disposed {
		return pipeline.ErrDisposed
	}
	if r.densityPending {
		r.densityPending = false
		if err := r.applyResolution(); err != nil {
			return err
		}
	}
	r.denoise.Poll()
	return r.composer.Render(r.frame.Advance(r.now()))
}

// Reset discards accumulated samples now.
func (r *Renderer) Reset() {
	if r.disposed {
		return
	}
	r.pipeline.Reset()
}

// SetSize changes the display size. The internal resolution is the display
// size scaled by the pixel density.
func (r *Renderer) SetSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", pipeline.ErrInvalidSize, width, height)
	}
	if r.disposed {
		return pipeline.ErrDisposed
	}
	r.width, r.height = width, height
	r.settings.Width, r.settings.Height = width, height
	return r.applyResolution()
}

// PixelDensity is the ratio of internal to display resolution.
func (r *Renderer) PixelDensity() float32 { return r.density }

// SetPixelDensity changes the density from inside a frame; the resize runs
// before the next one.
func (r *Renderer) SetPixelDensity(density float32) {
	if density <= 0 || density > MaxPixelDensity {
		r.logger.Warnf("ignoring pixel density %v", density)
		return
	}
	r.density = density
	r.densityPending = true
}

// UpdateResolution changes the pixel density and resizes immediately.
func (r *Renderer) UpdateResolution(density float32) error {
	if density <= 0 || density > MaxPixelDensity {
		return fmt.Errorf("%w: pixel density %v", pipeline.ErrInvalidSize, density)
	}
	if r.disposed {
		return pipeline.ErrDisposed
	}
	r.density = density
	r.densityPending = false
	return r.applyResolution()
}

func (r *Renderer) internalSize() (int, int) {
	w := int(math.Round(float64(float32(r.width) * r.density)))
	h := int(math.Round(float64(float32(r.height) * r.density)))
	return max(w, 1), max(h, 1)
}

func (r *Renderer) applyResolution() error {
	w, h := r.internalSize()
	out := r.composer.Output()
	if out.Width() == w && out.Height() == h {
		return nil
	}
	if err := r.composer.SetSize(w, h); err != nil {
		return err
	}
	r.logger.Debugf("internal resolution %dx%d (density %v)", w, h, r.density)
	r.Events().Emit(events.ResolutionChanged, ResolutionEvent{Density: r.density, Width: w, Height: h})
	return nil
}

func (r *Renderer) Cameras() []*core.Camera { return r.cameras }

// Camera returns the active camera.
func (r *Renderer) Camera() *core.Camera { return r.cameras[r.camera] }

// SwitchCamera activates camera index i.
func (r *Renderer) SwitchCamera(i int) error {
	if i < 0 || i >= len(r.cameras) {
		return fmt.Errorf("%w: %d of %d", ErrNoCamera, i, len(r.cameras))
	}
	r.camera = i
	cam := r.cameras[i]
	r.tracer.SetCamera(cam)
	r.cameraChanged()
	r.Events().Emit(events.CameraSwitched, CameraEvent{Index: i, Name: cam.Name})
	return nil
}

// SetFocusDistance refocuses the active camera.
func (r *Renderer) SetFocusDistance(d float32) error {
	if d <= 0 {
		return fmt.Errorf("focus distance must be positive, got %v", d)
	}
	r.Camera().FocusDistance = d
	r.tracer.RefreshCamera()
	r.pipeline.RequestReset()
	r.Events().Emit(events.FocusChanged, FocusEvent{Distance: d})
	return nil
}

// OrbitCamera turns the active camera and counts as user interaction.
func (r *Renderer) OrbitCamera(dYaw, dPitch float32) {
	r.Camera().Orbit(dYaw, dPitch)
	r.tracer.RefreshCamera()
	r.tracer.NotifyInteraction()
	r.cameraChanged()
}

func (r *Renderer) cameraChanged() {
	r.pipeline.Context().SetState(pipeline.KeyCameraChanged, true)
	r.pipeline.RequestReset()
}

// NotifyInteraction forwards a continuous-input signal to the path tracer.
func (r *Renderer) NotifyInteraction() { r.tracer.NotifyInteraction() }

// AddLight adds a light of type t with default parameters above the origin.
func (r *Renderer) AddLight(t core.LightType) uuid.UUID {
	l := core.NewLight(t)
	r.scene.AddLight(l, core.At(mgl32.Vec3{0, 0, 5}))
	return l.ID
}

func (r *Renderer) AddLightConfig(c LightConfig) (uuid.UUID, error) {
	l, t, err := c.Build()
	if err != nil {
		return uuid.Nil, err
	}
	r.scene.AddLight(l, t)
	return l.ID, nil
}

// UpdateLight edits a light and its node transform in place.
func (r *Renderer) UpdateLight(id uuid.UUID, fn func(l *core.Light, t *core.Transform)) error {
	n := r.scene.FindLight(id)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrUnknownLight, id)
	}
	fn(n.Light, n.Transform)
	r.scene.TouchLights()
	return nil
}

func (r *Renderer) RemoveLight(id uuid.UUID) error {
	if !r.scene.RemoveLight(id) {
		return fmt.Errorf("%w: %s", ErrUnknownLight, id)
	}
	return nil
}

func (r *Renderer) ClearLights() int      { return r.scene.ClearLights() }
func (r *Renderer) Lights() []*core.Light { return r.scene.Lights() }

// UpdateMaterial edits one material property in the scene and in the packed
// buffer the integrator reads.
func (r *Renderer) UpdateMaterial(index int, p core.MaterialProperty, value []float32) error {
	if err := r.builder.UpdateMaterial(index, p, value); err != nil {
		return err
	}
	return r.tracer.UpdateMaterial(index, p, value)
}

func (r *Renderer) SetRenderMode(m pipeline.RenderMode) error {
	return r.configure(func(c *stages.PathTracerConfig) { c.RenderMode = m })
}

func (r *Renderer) SetTileCount(n int) error {
	return r.configure(func(c *stages.PathTracerConfig) { c.TileCount = n })
}

func (r *Renderer) SetTileOrder(o core.TileOrder) error {
	return r.configure(func(c *stages.PathTracerConfig) { c.TileOrder = o })
}

func (r *Renderer) SetMaxSamples(n int) error {
	return r.configure(func(c *stages.PathTracerConfig) { c.MaxSamples = n })
}

func (r *Renderer) SetInteractionModeEnabled(enabled bool) error {
	return r.configure(func(c *stages.PathTracerConfig) { c.InteractionModeEnabled = enabled })
}

// configure stages a settings change on the path tracer and requests the
// reset that applies it.
func (r *Renderer) configure(edit func(c *stages.PathTracerConfig)) error {
	cfg, _ := r.tracer.PendingConfig()
	edit(&cfg)
	if err := r.tracer.Configure(cfg); err != nil {
		return err
	}
	r.settings.RenderMode = strings.ToLower(cfg.RenderMode.String())
	r.settings.TileCount = cfg.TileCount
	r.settings.TileOrder = cfg.TileOrder.String()
	r.settings.MaxSamples = cfg.MaxSamples
	r.settings.Interaction.Enabled = cfg.InteractionModeEnabled
	r.pipeline.RequestReset()
	return nil
}

// SaveImage writes the current image. EXR files receive the linear
// accumulation buffer, PNG files the tone-mapped display output.
func (r *Renderer) SaveImage(path string, exposure float32) error {
	if strings.EqualFold(filepath.Ext(path), ".exr") {
		tex := r.pipeline.Context().Texture(stages.TexColor)
		if tex == nil {
			return gpu.ErrNotHostVisible
		}
		return WriteEXR(path, tex)
	}
	return WriteImage(path, r.Output(), exposure)
}

// Dispose stops the denoiser and releases the pipeline. It is terminal.
func (r *Renderer) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	r.denoise.Close()
	if r.composer != nil {
		r.composer.Dispose()
	} else {
		r.pipeline.Dispose()
	}
}
