package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/gekko3d/pathtracer/rt/events"
	"github.com/gekko3d/pathtracer/rt/gpu"
)

var (
	// ErrInvalidSize is returned by SetSize for zero or negative dimensions.
	ErrInvalidSize = gpu.ErrInvalidSize

	ErrDuplicateStage = errors.New("pipeline: duplicate stage name")
	ErrDisposed       = errors.New("pipeline: disposed")
)

// FrameEvent is the payload of events.FrameComplete.
type FrameEvent struct {
	Frame             int
	AccumulatedFrames int
}

// ResizeEvent is the payload of events.PipelineResize.
type ResizeEvent struct {
	Width  int
	Height int
}

// Pipeline runs an ordered list of stages against one shared Context and Bus.
//
// Stage hooks are fault isolated: an error or panic from one stage is logged
// with the stage name and the remaining stages still run.
type Pipeline struct {
	stages []Stage
	ctx    *Context
	bus    *events.Bus
	logger Logger

	profiler     *Profiler
	resetPending bool
	disposed     bool
}

func New(logger Logger) *Pipeline {
	logger = orNop(logger)
	p := &Pipeline{
		ctx:    NewContext(logger),
		bus:    events.NewBus(logger),
		logger: logger,
	}
	p.bus.On(events.ResetRequested, func(ev events.Event) {
		if req, ok := ev.Payload.(ResetRequest); ok {
			p.logger.Debugf("reset requested by %q: %s", req.Stage, req.Reason)
		}
		p.resetPending = true
	})
	return p
}

func (p *Pipeline) Context() *Context   { return p.ctx }
func (p *Pipeline) Events() *events.Bus { return p.bus }
func (p *Pipeline) Disposed() bool      { return p.disposed }
func (p *Pipeline) ResetPending() bool  { return p.resetPending }
func (p *Pipeline) RequestReset()       { p.resetPending = true }

// EnableStats turns per-stage timing on or off. Turning it off drops the
// collected samples.
func (p *Pipeline) EnableStats(on bool) {
	switch {
	case on && p.profiler == nil:
		p.profiler = NewProfiler()
	case !on:
		p.profiler = nil
	}
}

// AddStage appends s and initializes it. Stage names must be unique.
func (p *Pipeline) AddStage(s Stage) error {
	if p.disposed {
		return ErrDisposed
	}
	if p.Stage(s.Name()) != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateStage, s.Name())
	}
	if err := s.Initialize(p.ctx, p.bus); err != nil {
		return fmt.Errorf("initialize stage %q: %w", s.Name(), err)
	}
	p.stages = append(p.stages, s)
	return nil
}

// Stage returns the stage registered under name, or nil.
func (p *Pipeline) Stage(name string) Stage {
	for _, s := range p.stages {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Advance moves the context clock forward by delta.
func (p *Pipeline) Advance(delta time.Duration) {
	if p.disposed {
		return
	}
	dt := delta.Seconds()
	p.ctx.SetState(KeyDeltaTime, dt)
	p.ctx.SetState(KeyTime, p.ctx.State().Time+dt)
}

// Render runs one frame tick. A reset requested since the last tick runs
// first, exactly once.
func (p *Pipeline) Render(write gpu.RenderTarget) {
	if p.disposed {
		return
	}
	if p.resetPending {
		p.Reset()
	}
	p.ctx.tick++

	if p.profiler != nil {
		p.profiler.BeginScope(FrameScope)
	}
	for _, s := range p.stages {
		if !shouldExecute(s, p.ctx) {
			continue
		}
		if p.profiler != nil {
			p.profiler.BeginScope(s.Name())
		}
		p.guard(s, "render", func() error { return s.Render(p.ctx, write) })
		if p.profiler != nil {
			p.profiler.EndScope(s.Name())
		}
	}
	if p.profiler != nil {
		p.profiler.EndScope(FrameScope)
	}

	st := p.ctx.State()
	p.ctx.SetState(KeyFrame, st.Frame+1)
	p.ctx.SetState(KeyAccumulatedFrames, st.AccumulatedFrames+1)
	p.bus.Emit(events.FrameComplete, FrameEvent{Frame: st.Frame + 1, AccumulatedFrames: st.AccumulatedFrames + 1})
}

// Reset discards accumulated work. Listeners of events.PipelineReset run
// before any stage is reset; the context counters are zeroed last.
func (p *Pipeline) Reset() {
	if p.disposed {
		return
	}
	p.bus.Emit(events.PipelineReset, nil)
	for _, s := range p.stages {
		p.guard(s, "reset", func() error { s.Reset(); return nil })
	}
	p.ctx.Reset()
	// requests raised by the sweep itself are already satisfied
	p.resetPending = false
}

// SetSize validates the dimensions, then propagates them to every stage.
func (p *Pipeline) SetSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if p.disposed {
		return ErrDisposed
	}
	p.ctx.SetState(KeyWidth, width)
	p.ctx.SetState(KeyHeight, height)
	p.bus.Emit(events.PipelineResize, ResizeEvent{Width: width, Height: height})
	for _, s := range p.stages {
		p.guard(s, "resize", func() error { return s.SetSize(width, height) })
	}
	return nil
}

// Dispose releases every stage and the context. It is terminal.
func (p *Pipeline) Dispose() {
	if p.disposed {
		return
	}
	for _, s := range p.stages {
		p.guard(s, "dispose", func() error { s.Dispose(); return nil })
	}
	p.stages = nil
	p.ctx.Dispose()
	p.bus.RemoveAllListeners()
	p.profiler = nil
	p.disposed = true
}

// Stats returns timing over the last StatsWindow frames. It is empty unless
// EnableStats was called.
func (p *Pipeline) Stats() Stats {
	if p.profiler == nil {
		return Stats{}
	}
	return p.profiler.Stats()
}

func (p *Pipeline) guard(s Stage, hook string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("stage %q %s panicked: %v", s.Name(), hook, r)
		}
	}()
	if err := fn(); err != nil {
		p.logger.Errorf("stage %q %s failed: %v", s.Name(), hook, err)
	}
}
