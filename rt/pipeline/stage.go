package pipeline

import (
	"github.com/gekko3d/pathtracer/rt/events"
	"github.com/gekko3d/pathtracer/rt/gpu"
)

// ExecutionMode controls whether a stage consults its predicate each frame.
type ExecutionMode int

const (
	Always ExecutionMode = iota
	Conditional
)

// Stage is one unit of per-frame work.
//
// Initialize is called once when the stage is added to a pipeline. Render may
// be called zero or more times per tick, Reset and SetSize any number of
// times, and Dispose exactly once.
type Stage interface {
	Name() string
	Enabled() bool
	SetEnabled(enabled bool)
	ExecutionMode() ExecutionMode
	// ShouldExecute is consulted only for Conditional stages.
	ShouldExecute(ctx *Context) bool

	Initialize(ctx *Context, bus *events.Bus) error
	Render(ctx *Context, write gpu.RenderTarget) error
	Reset()
	SetSize(width, height int) error
	Dispose()
}

// BaseStage carries the bookkeeping every stage needs. Embed it and override
// the hooks you care about.
type BaseStage struct {
	name    string
	enabled bool
	mode    ExecutionMode

	Ctx *Context
	Bus *events.Bus
}

func NewBaseStage(name string, mode ExecutionMode) BaseStage {
	return BaseStage{name: name, enabled: true, mode: mode}
}

func (s *BaseStage) Name() string                 { return s.name }
func (s *BaseStage) Enabled() bool                { return s.enabled }
func (s *BaseStage) SetEnabled(enabled bool)      { s.enabled = enabled }
func (s *BaseStage) ExecutionMode() ExecutionMode { return s.mode }
func (s *BaseStage) ShouldExecute(*Context) bool  { return true }

func (s *BaseStage) Initialize(ctx *Context, bus *events.Bus) error {
	s.Ctx = ctx
	s.Bus = bus
	return nil
}

func (s *BaseStage) Render(*Context, gpu.RenderTarget) error { return nil }
func (s *BaseStage) Reset()                                  {}
func (s *BaseStage) SetSize(int, int) error                  { return nil }
func (s *BaseStage) Dispose()                                {}

// Emit publishes on the pipeline bus once the stage is initialized.
func (s *BaseStage) Emit(eventType string, payload any) {
	if s.Bus != nil {
		s.Bus.Emit(eventType, payload)
	}
}

// RequestReset asks the owning pipeline for a reset before the next frame.
func (s *BaseStage) RequestReset(reason string) {
	s.Emit(events.ResetRequested, ResetRequest{Stage: s.name, Reason: reason})
}

// ResetRequest is the payload of events.ResetRequested.
type ResetRequest struct {
	Stage  string
	Reason string
}

// shouldExecute applies the enabled flag and, for conditional stages, the
// predicate.
func shouldExecute(s Stage, ctx *Context) bool {
	if !s.Enabled() {
		return false
	}
	if s.ExecutionMode() == Conditional {
		return s.ShouldExecute(ctx)
	}
	return true
}
