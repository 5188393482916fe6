package pipeline

import (
	"time"

	"github.com/gekko3d/pathtracer/rt/events"
	"github.com/gekko3d/pathtracer/rt/gpu"
)

// Pass is one step of a composable post-processing chain. It reads from read
// and writes into write; the chain swaps the two after every pass.
type Pass interface {
	Render(write, read gpu.RenderTarget, delta time.Duration) error
	SetSize(width, height int) error
	Dispose()
}

// Adapter lets a whole Pipeline run as a single Pass. The pipeline produces
// its own image, so the read buffer is not consulted.
type Adapter struct {
	p *Pipeline
}

func NewAdapter(p *Pipeline) *Adapter {
	return &Adapter{p: p}
}

var _ Pass = (*Adapter)(nil)

func (a *Adapter) Render(write, _ gpu.RenderTarget, delta time.Duration) error {
	if a.p.Disposed() {
		return ErrDisposed
	}
	a.p.Advance(delta)
	a.p.Render(write)
	return nil
}

func (a *Adapter) SetSize(width, height int) error { return a.p.SetSize(width, height) }
func (a *Adapter) Dispose()                        { a.p.Dispose() }

func (a *Adapter) Pipeline() *Pipeline     { return a.p }
func (a *Adapter) Context() *Context       { return a.p.Context() }
func (a *Adapter) Events() *events.Bus     { return a.p.Events() }
func (a *Adapter) Stage(name string) Stage { return a.p.Stage(name) }
func (a *Adapter) Stats() Stats            { return a.p.Stats() }
