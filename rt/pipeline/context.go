package pipeline

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gekko3d/pathtracer/rt/gpu"
)

// RenderMode selects how the path tracer distributes work over frames.
type RenderMode int

const (
	// Progressive refines one full-resolution estimate every tick.
	Progressive RenderMode = iota
	// Tiled completes one grid cell per virtual frame.
	Tiled
)

func (m RenderMode) String() string {
	switch m {
	case Progressive:
		return "Progressive"
	case Tiled:
		return "Tiled"
	default:
		return fmt.Sprintf("RenderMode(%d)", int(m))
	}
}

// ParseRenderMode accepts "progressive" or "tiled" in any case.
func ParseRenderMode(s string) (RenderMode, error) {
	switch strings.ToLower(s) {
	case "", "progressive":
		return Progressive, nil
	case "tiled":
		return Tiled, nil
	}
	return 0, fmt.Errorf("unknown render mode %q", s)
}

// State keys accepted by Context.SetState. Any other key is stored as a
// stage-defined extension.
const (
	KeyFrame             = "frame"
	KeyAccumulatedFrames = "accumulatedFrames"
	KeyRenderMode        = "renderMode"
	KeyInteractionMode   = "interactionMode"
	KeyIsComplete        = "isComplete"
	KeyCurrentTile       = "currentTile"
	KeyTotalTiles        = "totalTiles"
	KeyCameraChanged     = "cameraChanged"
	KeyWidth             = "width"
	KeyHeight            = "height"
	KeyTime              = "time"
	KeyDeltaTime         = "deltaTime"
)

// State is the flat simulation state shared by all stages.
type State struct {
	Frame             int
	AccumulatedFrames int
	RenderMode        RenderMode
	InteractionMode   bool
	IsComplete        bool
	CurrentTile       int
	TotalTiles        int
	CameraChanged     bool
	Width             int
	Height            int
	Time              float64
	DeltaTime         float64
}

// Uniform is a boxed shader parameter. Stages hold on to the pointer and
// mutate Value in place, so a binding made once stays valid.
type Uniform struct {
	Value any
}

// WatchFunc observes a state key change.
type WatchFunc func(key string, old, new any)

type watcher struct {
	id uint64
	fn WatchFunc
}

// Context is the shared registry of named textures, render targets and
// uniforms plus the simulation state map.
//
// There is no enforced single-writer rule. Writers identify themselves when
// publishing a texture or target so that a second writer for the same name
// can be reported; see Writers and Conflicts.
type Context struct {
	textures      map[string]gpu.Texture
	renderTargets map[string]gpu.RenderTarget
	uniforms      map[string]*Uniform
	state         State
	ext           map[string]any
	watchers      map[string][]watcher
	nextWatch     uint64

	tick uint64

	writers   map[string]string
	conflicts []string
	logger    Logger
	disposed  bool
}

func NewContext(logger Logger) *Context {
	return &Context{
		textures:      make(map[string]gpu.Texture),
		renderTargets: make(map[string]gpu.RenderTarget),
		uniforms:      make(map[string]*Uniform),
		ext:           make(map[string]any),
		watchers:      make(map[string][]watcher),
		writers:       make(map[string]string),
		logger:        orNop(logger),
	}
}

// Texture returns the texture registered under name, or nil.
func (c *Context) Texture(name string) gpu.Texture {
	return c.textures[name]
}

// SetTexture registers tex under name on behalf of writer.
func (c *Context) SetTexture(writer, name string, tex gpu.Texture) {
	if c.disposed {
		return
	}
	c.audit(writer, "texture:"+name)
	c.textures[name] = tex
}

func (c *Context) RemoveTexture(name string) {
	delete(c.textures, name)
}

func (c *Context) RenderTarget(name string) gpu.RenderTarget {
	return c.renderTargets[name]
}

func (c *Context) SetRenderTarget(writer, name string, rt gpu.RenderTarget) {
	if c.disposed {
		return
	}
	c.audit(writer, "target:"+name)
	c.renderTargets[name] = rt
}

func (c *Context) RemoveRenderTarget(name string) {
	delete(c.renderTargets, name)
}

// Uniform returns the uniform box for name, creating an empty one on first
// use.
func (c *Context) Uniform(name string) *Uniform {
	u, ok := c.uniforms[name]
	if !ok {
		u = &Uniform{}
		if !c.disposed {
			c.uniforms[name] = u
		}
	}
	return u
}

// SetUniform updates the boxed value in place.
func (c *Context) SetUniform(name string, value any) {
	c.Uniform(name).Value = value
}

// UniformValue returns the current value of name, or nil.
func (c *Context) UniformValue(name string) any {
	if u, ok := c.uniforms[name]; ok {
		return u.Value
	}
	return nil
}

func (c *Context) HasUniform(name string) bool {
	_, ok := c.uniforms[name]
	return ok
}

// Tick counts Render calls over the pipeline's lifetime. Unlike Frame it is
// never reset.
func (c *Context) Tick() uint64 { return c.tick }

// State returns a copy of the core state.
func (c *Context) State() State {
	return c.state
}

// StateValue returns the value for a core or extension key.
func (c *Context) StateValue(key string) any {
	switch key {
	case KeyFrame:
		return c.state.Frame
	case KeyAccumulatedFrames:
		return c.state.AccumulatedFrames
	case KeyRenderMode:
		return c.state.RenderMode
	case KeyInteractionMode:
		return c.state.InteractionMode
	case KeyIsComplete:
		return c.state.IsComplete
	case KeyCurrentTile:
		return c.state.CurrentTile
	case KeyTotalTiles:
		return c.state.TotalTiles
	case KeyCameraChanged:
		return c.state.CameraChanged
	case KeyWidth:
		return c.state.Width
	case KeyHeight:
		return c.state.Height
	case KeyTime:
		return c.state.Time
	case KeyDeltaTime:
		return c.state.DeltaTime
	default:
		return c.ext[key]
	}
}

// SetState updates a key and notifies watchers when the value changed. A
// value of the wrong type for a core key is logged and ignored.
func (c *Context) SetState(key string, value any) {
	if c.disposed {
		return
	}
	old := c.StateValue(key)
	ok := true
	switch key {
	case KeyFrame:
		ok = setInt(&c.state.Frame, value)
	case KeyAccumulatedFrames:
		ok = setInt(&c.state.AccumulatedFrames, value)
	case KeyRenderMode:
		var m RenderMode
		m, ok = value.(RenderMode)
		if ok {
			c.state.RenderMode = m
		}
	case KeyInteractionMode:
		ok = setBool(&c.state.InteractionMode, value)
	case KeyIsComplete:
		ok = setBool(&c.state.IsComplete, value)
	case KeyCurrentTile:
		ok = setInt(&c.state.CurrentTile, value)
	case KeyTotalTiles:
		ok = setInt(&c.state.TotalTiles, value)
	case KeyCameraChanged:
		ok = setBool(&c.state.CameraChanged, value)
	case KeyWidth:
		ok = setInt(&c.state.Width, value)
	case KeyHeight:
		ok = setInt(&c.state.Height, value)
	case KeyTime:
		ok = setFloat(&c.state.Time, value)
	case KeyDeltaTime:
		ok = setFloat(&c.state.DeltaTime, value)
	default:
		c.ext[key] = value
	}
	if !ok {
		c.logger.Errorf("state key %q: unexpected value type %T", key, value)
		return
	}
	if changed(old, value) {
		c.notify(key, old, value)
	}
}

// Watch registers fn for changes of key. The returned function removes it.
func (c *Context) Watch(key string, fn WatchFunc) (unwatch func()) {
	c.nextWatch++
	id := c.nextWatch
	c.watchers[key] = append(c.watchers[key], watcher{id: id, fn: fn})
	return func() {
		ws := c.watchers[key]
		for i, w := range ws {
			if w.id == id {
				c.watchers[key] = append(ws[:i:i], ws[i+1:]...)
				return
			}
		}
	}
}

func (c *Context) notify(key string, old, new any) {
	for _, w := range c.watchers[key] {
		w.fn(key, old, new)
	}
}

// Reset zeros the frame counters and motion flags. Registries, size, render
// mode and tile count survive.
func (c *Context) Reset() {
	c.SetState(KeyFrame, 0)
	c.SetState(KeyAccumulatedFrames, 0)
	c.SetState(KeyCurrentTile, 0)
	c.SetState(KeyIsComplete, false)
	c.SetState(KeyCameraChanged, false)
	c.SetState(KeyInteractionMode, false)
}

// Dispose clears every registry and the state. The context is unusable
// afterwards.
func (c *Context) Dispose() {
	c.textures = make(map[string]gpu.Texture)
	c.renderTargets = make(map[string]gpu.RenderTarget)
	c.uniforms = make(map[string]*Uniform)
	c.ext = make(map[string]any)
	c.watchers = make(map[string][]watcher)
	c.writers = make(map[string]string)
	c.state = State{}
	c.disposed = true
}

func (c *Context) Disposed() bool { return c.disposed }

// Writers returns resource -> writer for every published texture and target.
func (c *Context) Writers() map[string]string {
	out := make(map[string]string, len(c.writers))
	for k, v := range c.writers {
		out[k] = v
	}
	return out
}

// Conflicts lists resources that were published by more than one writer.
func (c *Context) Conflicts() []string {
	return append([]string(nil), c.conflicts...)
}

func (c *Context) audit(writer, resource string) {
	if writer == "" {
		return
	}
	prev, ok := c.writers[resource]
	if !ok {
		c.writers[resource] = writer
		return
	}
	if prev != writer {
		c.logger.Errorf("%s written by %q, already owned by %q", resource, writer, prev)
		c.conflicts = append(c.conflicts, resource)
	}
}

func setInt(dst *int, v any) bool {
	n, ok := v.(int)
	if ok {
		*dst = n
	}
	return ok
}

func setBool(dst *bool, v any) bool {
	b, ok := v.(bool)
	if ok {
		*dst = b
	}
	return ok
}

func setFloat(dst *float64, v any) bool {
	f, ok := v.(float64)
	if ok {
		*dst = f
	}
	return ok
}

// changed compares state values. Values of non-comparable types always count
// as a change.
func changed(old, new any) bool {
	if old == nil || new == nil {
		return old != new
	}
	if !reflect.TypeOf(old).Comparable() || !reflect.TypeOf(new).Comparable() {
		return true
	}
	return old != new
}
