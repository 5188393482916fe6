package stages

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/gekko3d/pathtracer/rt/core"
	"github.com/gekko3d/pathtracer/rt/events"
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/gogpu/gputypes"
)

// ErrNotSized is returned by Render before the stage has been given a size.
var ErrNotSized = errors.New("pathtracer: render targets not allocated")

type PathTracerState int

const (
	StateRendering PathTracerState = iota
	StateInteracting
	StateComplete
)

func (s PathTracerState) String() string {
	switch s {
	case StateRendering:
		return "Rendering"
	case StateInteracting:
		return "Interacting"
	case StateComplete:
		return "Complete"
	default:
		return fmt.Sprintf("PathTracerState(%d)", int(s))
	}
}

// Clock is the time source for the interaction debounce.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// DensityController owns the output pixel density the path tracer lowers
// while the user interacts.
type DensityController interface {
	PixelDensity() float32
	SetPixelDensity(density float32)
}

// PathTracerConfig holds the runtime render settings.
type PathTracerConfig struct {
	RenderMode pipeline.RenderMode
	// TileCount is the number of tiles along each axis in tiled mode.
	TileCount  int
	TileOrder  core.TileOrder
	MaxSamples int

	InteractionModeEnabled bool
	InteractionDensity     float32
	InteractionDelay       time.Duration
}

func DefaultPathTracerConfig() PathTracerConfig {
	return PathTracerConfig{
		RenderMode:             pipeline.Progressive,
		TileCount:              4,
		TileOrder:              core.TileRowMajor,
		MaxSamples:             256,
		InteractionModeEnabled: true,
		InteractionDensity:     0.5,
		InteractionDelay:       300 * time.Millisecond,
	}
}

func (c PathTracerConfig) Validate() error {
	if c.RenderMode != pipeline.Progressive && c.RenderMode != pipeline.Tiled {
		return fmt.Errorf("unknown render mode %d", int(c.RenderMode))
	}
	if c.TileCount < 1 {
		return fmt.Errorf("tile count must be at least 1, got %d", c.TileCount)
	}
	if c.MaxSamples < 1 {
		return fmt.Errorf("max samples must be at least 1, got %d", c.MaxSamples)
	}
	if c.InteractionDensity <= 0 {
		return fmt.Errorf("interaction density must be positive, got %v", c.InteractionDensity)
	}
	if c.InteractionDelay < 0 {
		return fmt.Errorf("interaction delay must not be negative, got %v", c.InteractionDelay)
	}
	return nil
}

// CompleteEvent is the payload of events.PathTracerComplete.
type CompleteEvent struct {
	Frames  int
	Samples int
}

// MaterialUpdate is the payload of events.MaterialBufferModified.
type MaterialUpdate struct {
	Index    int
	Property core.MaterialProperty
}

// PathTracer owns the ping-pong accumulation targets and decides each tick
// which region the integrator refines.
//
// In progressive mode every tick adds one sample to the whole image and the
// render completes after MaxSamples ticks. In tiled mode a pass visits every
// tile once, one tile per tick, so completion takes MaxSamples * TileCount²
// ticks.
type PathTracer struct {
	pipeline.BaseStage

	cfg     PathTracerConfig
	pending *PathTracerConfig

	device     gpu.Device
	integrator Integrator
	clock      Clock
	density    DensityController

	camera        *core.Camera
	cameraBuf     *gpu.Buffer
	materials     *gpu.Buffer
	materialCount int

	current  gpu.RenderTarget
	previous gpu.RenderTarget
	width    int
	height   int
	tileSeq  []int

	frame int
	state PathTracerState

	interactionDeadline time.Time
	savedDensity        float32
	densityLowered      bool
}

func NewPathTracer(cfg PathTracerConfig, device gpu.Device, integrator Integrator) (*PathTracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PathTracer{
		BaseStage:  pipeline.NewBaseStage(NamePathTracer, pipeline.Always),
		cfg:        cfg,
		device:     device,
		integrator: integrator,
		clock:      systemClock{},
		tileSeq:    core.TileSequence(cfg.TileCount, cfg.TileOrder),
	}, nil
}

func (p *PathTracer) SetClock(c Clock)                         { p.clock = c }
func (p *PathTracer) SetDensityController(d DensityController) { p.density = d }

func (p *PathTracer) Config() PathTracerConfig { return p.cfg }
func (p *PathTracer) State() PathTracerState   { return p.state }
func (p *PathTracer) Frame() int               { return p.frame }

// Current is the target the next tick writes into.
func (p *PathTracer) Current() gpu.RenderTarget { return p.current }

// Previous holds the last fully written estimate.
func (p *PathTracer) Previous() gpu.RenderTarget { return p.previous }

// Threshold is the tick count at which the render completes.
func (p *PathTracer) Threshold() int {
	return p.cfg.MaxSamples * p.slotsPerPass()
}

// Samples is the number of complete passes accumulated so far.
func (p *PathTracer) Samples() int {
	return p.frame / p.slotsPerPass()
}

func (p *PathTracer) slotsPerPass() int {
	if p.cfg.RenderMode == pipeline.Tiled {
		return p.cfg.TileCount * p.cfg.TileCount
	}
	return 1
}

func (p *PathTracer) Initialize(ctx *pipeline.Context, bus *events.Bus) error {
	if err := p.BaseStage.Initialize(ctx, bus); err != nil {
		return err
	}
	if st := ctx.State(); st.Width > 0 && st.Height > 0 {
		if err := p.allocate(st.Width, st.Height); err != nil {
			return err
		}
	}
	p.publishSettings()
	p.publishCamera()
	return nil
}

// Configure stages new settings. They take effect on the next Reset.
func (p *PathTracer) Configure(cfg PathTracerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.pending = &cfg
	return nil
}

// PendingConfig returns the settings waiting for the next Reset, if any.
func (p *PathTracer) PendingConfig() (PathTracerConfig, bool) {
	if p.pending == nil {
		return p.cfg, false
	}
	return *p.pending, true
}

func (p *PathTracer) SetCamera(c *core.Camera) {
	p.camera = c
	p.publishCamera()
}

// SetMaterials installs the packed material buffer produced by the scene
// builder.
func (p *PathTracer) SetMaterials(buf *gpu.Buffer, count int) {
	p.materials = buf
	p.materialCount = count
	if p.Ctx != nil {
		p.Ctx.SetUniform(UniformMaterials, buf)
		p.Ctx.SetUniform(UniformMaterialCount, count)
	}
}

func (p *PathTracer) Materials() *gpu.Buffer { return p.materials }

// UpdateMaterial rewrites one property of one material in place, flags the
// buffer for upload and requests a reset. Only the property's bytes change.
func (p *PathTracer) UpdateMaterial(index int, prop core.MaterialProperty, value []float32) error {
	if p.materials == nil {
		return fmt.Errorf("%w: no material buffer", core.ErrMaterialIndex)
	}
	if err := core.WriteMaterialProperty(p.materials.Data, index, prop, value); err != nil {
		return err
	}
	p.materials.MarkDirty()
	p.Emit(events.MaterialBufferModified, MaterialUpdate{Index: index, Property: prop})
	p.RequestReset("material " + prop.String())
	return nil
}

// NotifyInteraction signals continuous user input. The first signal lowers
// the pixel density; every signal pushes the restore deadline out.
func (p *PathTracer) NotifyInteraction() {
	if !p.cfg.InteractionModeEnabled {
		return
	}
	p.interactionDeadline = p.clock.Now().Add(p.cfg.InteractionDelay)
	if p.state == StateInteracting {
		return
	}
	p.state = StateInteracting
	if p.density != nil {
		p.savedDensity = p.density.PixelDensity()
		if p.savedDensity > p.cfg.InteractionDensity {
			p.density.SetPixelDensity(p.cfg.InteractionDensity)
			p.densityLowered = true
		}
	}
	if p.Ctx != nil {
		p.Ctx.SetState(pipeline.KeyInteractionMode, true)
	}
	p.Emit(events.InteractionStart, nil)
}

// Poll ends interaction mode once the debounce delay has passed without a
// new signal. It reports whether interaction ended.
func (p *PathTracer) Poll() bool {
	if p.state != StateInteracting || p.clock.Now().Before(p.interactionDeadline) {
		return false
	}
	if p.densityLowered && p.density != nil {
		p.density.SetPixelDensity(p.savedDensity)
	}
	p.densityLowered = false
	p.state = StateRendering
	if p.Ctx != nil {
		p.Ctx.SetState(pipeline.KeyInteractionMode, false)
	}
	p.Emit(events.InteractionEnd, nil)
	p.RequestReset("interaction ended")
	return true
}

func (p *PathTracer) Render(ctx *pipeline.Context, _ gpu.RenderTarget) error {
	p.Poll()
	ctx.SetState(pipeline.KeyInteractionMode, p.state == StateInteracting)
	if p.current == nil {
		return ErrNotSized
	}
	threshold := p.Threshold()
	if p.state == StateComplete || p.frame >= threshold {
		// nothing to add; keep the finished image current for later stages
		p.publishTargets(ctx)
		return nil
	}

	slots := p.slotsPerPass()
	slot := p.frame % slots
	region := image.Rect(0, 0, p.width, p.height)
	tile := 0
	if p.cfg.RenderMode == pipeline.Tiled {
		tile = p.tileSeq[slot]
		region = core.TileBounds(tile, p.cfg.TileCount, p.width, p.height)
	}

	req := TraceRequest{
		Frame:         p.frame,
		Sample:        p.frame / slots,
		Mode:          p.cfg.RenderMode,
		TileIndex:     tile,
		Region:        region,
		Write:         p.current,
		History:       p.previous.Texture(),
		Camera:        p.camera,
		Materials:     p.materials,
		MaterialCount: p.materialCount,
	}
	if mask := ctx.Texture(TexAdaptiveMask); mask != nil && p.cfg.RenderMode == pipeline.Progressive && gpu.SameSize(mask, p.current.Texture()) {
		req.Mask = mask
	}
	if err := p.integrator.Trace(req); err != nil {
		return fmt.Errorf("trace frame %d: %w", p.frame, err)
	}

	p.current, p.previous = p.previous, p.current
	p.frame++

	p.publishTargets(ctx)
	ctx.SetUniform(UniformFrame, p.frame)
	ctx.SetUniform(UniformSamples, p.Samples())
	ctx.SetUniform(UniformTileIndex, tile)
	ctx.SetUniform(UniformTileRect, region)
	ctx.SetState(pipeline.KeyCurrentTile, tile)

	if p.frame >= threshold && p.state == StateRendering {
		p.state = StateComplete
		ctx.SetState(pipeline.KeyIsComplete, true)
		p.Emit(events.PathTracerComplete, CompleteEvent{Frames: p.frame, Samples: p.Samples()})
	}
	return nil
}

// Reset discards accumulated samples and applies staged settings.
func (p *PathTracer) Reset() {
	if p.pending != nil {
		p.cfg = *p.pending
		p.pending = nil
		p.tileSeq = core.TileSequence(p.cfg.TileCount, p.cfg.TileOrder)
		if !p.cfg.InteractionModeEnabled && p.state == StateInteracting {
			p.interactionDeadline = time.Time{}
			p.Poll()
		}
	}
	p.frame = 0
	if p.state == StateComplete {
		p.state = StateRendering
	}
	if p.previous != nil {
		p.previous.Clear([4]float32{})
		p.current.Clear([4]float32{})
	}
	p.publishSettings()
	if p.Ctx != nil {
		p.Ctx.SetState(pipeline.KeyIsComplete, false)
		p.Ctx.SetState(pipeline.KeyCurrentTile, 0)
		p.Ctx.SetUniform(UniformFrame, 0)
		p.Ctx.SetUniform(UniformSamples, 0)
		p.Ctx.SetUniform(UniformTileIndex, 0)
	}
}

// SetSize reallocates both targets and requests a reset.
func (p *PathTracer) SetSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", gpu.ErrInvalidSize, width, height)
	}
	if width == p.width && height == p.height && p.current != nil {
		return nil
	}
	if err := p.allocate(width, height); err != nil {
		return err
	}
	p.RequestReset("resize")
	return nil
}

func (p *PathTracer) Dispose() {
	if p.current != nil {
		p.current.Release()
		p.previous.Release()
	}
	p.current, p.previous = nil, nil
	if p.Ctx != nil {
		p.Ctx.RemoveTexture(TexColor)
		p.Ctx.RemoveTexture(TexPrevious)
	}
}

func (p *PathTracer) allocate(width, height int) error {
	if p.current == nil {
		a, err := p.device.NewRenderTarget(gpu.TargetDescriptor{
			Label: "pathtracer:a", Width: width, Height: height, Format: gputypes.TextureFormatRGBA32Float,
		})
		if err != nil {
			return err
		}
		b, err := p.device.NewRenderTarget(gpu.TargetDescriptor{
			Label: "pathtracer:b", Width: width, Height: height, Format: gputypes.TextureFormatRGBA32Float,
		})
		if err != nil {
			a.Release()
			return err
		}
		p.current, p.previous = a, b
	} else {
		if err := p.current.Resize(width, height); err != nil {
			return err
		}
		if err := p.previous.Resize(width, height); err != nil {
			return err
		}
	}
	p.current.Clear([4]float32{})
	p.previous.Clear([4]float32{})
	p.width, p.height = width, height
	p.frame = 0
	if p.state == StateComplete {
		p.state = StateRendering
	}
	if p.Ctx != nil {
		p.publishTargets(p.Ctx)
	}
	return nil
}

// publishTargets registers the last written target as TexColor and the
// other as TexPrevious.
func (p *PathTracer) publishTargets(ctx *pipeline.Context) {
	Publish(ctx, NamePathTracer, TexColor, p.previous.Texture())
	Publish(ctx, NamePathTracer, TexPrevious, p.current.Texture())
}

func (p *PathTracer) publishSettings() {
	if p.Ctx == nil {
		return
	}
	p.Ctx.SetState(pipeline.KeyRenderMode, p.cfg.RenderMode)
	p.Ctx.SetState(pipeline.KeyTotalTiles, p.slotsPerPass())
	p.Ctx.SetUniform(UniformRenderMode, int(p.cfg.RenderMode))
	p.Ctx.SetUniform(UniformTileCount, p.cfg.TileCount)
	p.Ctx.SetUniform(UniformMaxSamples, p.cfg.MaxSamples)
}

func (p *PathTracer) publishCamera() {
	if p.Ctx == nil || p.camera == nil {
		return
	}
	p.Ctx.SetUniform(UniformCameraWorldMatrix, p.camera.WorldMatrix())
	p.Ctx.SetUniform(UniformFocusDistance, p.camera.FocusDistance)
	p.Ctx.SetUniform(UniformAperture, p.camera.Aperture)
	p.Ctx.SetUniform(UniformFOV, p.camera.FOV)

	data := PackCamera(p.camera)
	if p.cameraBuf == nil {
		p.cameraBuf = &gpu.Buffer{Label: UniformCamera, Data: data, NeedsUpdate: true}
	} else {
		p.cameraBuf.Data = data
		p.cameraBuf.MarkDirty()
	}
	p.Ctx.SetUniform(UniformCamera, p.cameraBuf)
}

// CameraBufferSize is the byte size of the packed camera block.
const CameraBufferSize = 64 + 16 + 16 + 16

// PackCamera lays out a camera the way the integrator binds it: world
// matrix, position and forward each padded to 16 bytes, then fov, focus
// distance and aperture.
func PackCamera(c *core.Camera) []byte {
	buf := make([]byte, 0, CameraBufferSize)
	buf = append(buf, gpu.Mat4ToBytes(c.WorldMatrix())...)
	buf = append(buf, gpu.Vec3ToBytesPadded(c.Position)...)
	buf = append(buf, gpu.Vec3ToBytesPadded(c.Forward())...)
	buf = append(buf, gpu.Float32ToBytes(c.FOV)...)
	buf = append(buf, gpu.Float32ToBytes(c.FocusDistance)...)
	buf = append(buf, gpu.Float32ToBytes(c.Aperture)...)
	buf = append(buf, gpu.Float32ToBytes(0)...)
	return buf
}

// RefreshCamera republishes camera uniforms after the camera was edited in
// place.
func (p *PathTracer) RefreshCamera() { p.publishCamera() }
