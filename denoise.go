package pathtracer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gekko3d/pathtracer/rt/events"
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/gekko3d/pathtracer/rt/stages"
)

// DenoiseInput is a host copy of the image handed to a Denoiser. Albedo and
// Normal are optional guides with the same layout as Color.
type DenoiseInput struct {
	Width  int
	Height int
	Color  []float32
	Albedo []float32
	Normal []float32
}

// Denoiser filters a finished image. Implementations must return promptly
// once ctx is cancelled.
type Denoiser interface {
	Denoise(ctx context.Context, in DenoiseInput) ([]float32, error)
}

// DenoiseEvent is the payload of events.DenoiseEnd.
type DenoiseEvent struct {
	Width  int
	Height int
	Err    error
}

// AtrousDenoiser is the built-in Denoiser, a heavier run of the spatial
// filter than the per-frame stage does.
type AtrousDenoiser struct {
	Options stages.AtrousOptions
}

func NewAtrousDenoiser(iterations int) *AtrousDenoiser {
	return &AtrousDenoiser{Options: stages.AtrousOptions{
		Iterations: iterations,
		ColorPhi:   0.4,
		NormalPhi:  0.1,
		AlbedoPhi:  0.1,
	}}
}

func (d *AtrousDenoiser) Denoise(ctx context.Context, in DenoiseInput) ([]float32, error) {
	n := in.Width * in.Height * 4
	if in.Width <= 0 || in.Height <= 0 || len(in.Color) != n {
		return nil, gpu.ErrInvalidSize
	}
	opt := d.Options
	if len(in.Normal) == n {
		opt.Normals = in.Normal
	}
	if len(in.Albedo) == n {
		opt.Albedo = in.Albedo
	}
	out, ok := stages.FilterAtrous(in.Color, in.Width, in.Height, opt, func() bool { return ctx.Err() != nil })
	if !ok {
		return nil, ctx.Err()
	}
	return out, nil
}

type denoiseResult struct {
	width  int
	height int
	pixels []float32
	err    error
}

// denoiseJob is one request. Each job has its own result slot so a cancelled
// worker finishing late cannot clobber its successor.
type denoiseJob struct {
	cancel context.CancelFunc
	result atomic.Pointer[denoiseResult]
}

// DenoiseScheduler runs a Denoiser off the render loop. At most one request
// is in flight; a new request cancels the previous one. Results are applied
// on the render loop by Poll, which publishes them as stages.TexDenoiser.
type DenoiseScheduler struct {
	denoiser Denoiser
	logger   Logger
	ctx      *pipeline.Context
	bus      *events.Bus

	job    *denoiseJob
	wg     sync.WaitGroup
	target *gpu.Target
}

func NewDenoiseScheduler(d Denoiser, logger Logger) *DenoiseScheduler {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &DenoiseScheduler{denoiser: d, logger: logger}
}

// Attach binds the scheduler to the pipeline it publishes into.
func (s *DenoiseScheduler) Attach(ctx *pipeline.Context, bus *events.Bus) {
	s.ctx = ctx
	s.bus = bus
}

// IsDenoising reports whether a request is outstanding.
func (s *DenoiseScheduler) IsDenoising() bool { return s.job != nil }

// Request snapshots tex and starts denoising it in the background.
func (s *DenoiseScheduler) Request(tex gpu.Texture, albedo, normal gpu.Texture) {
	if s.denoiser == nil || tex == nil || tex.Pixels() == nil {
		return
	}
	if s.job != nil {
		// the superseded job still owes its observers an end event
		s.stop()
		s.emit(events.DenoiseEnd, DenoiseEvent{Err: context.Canceled})
	}
	in := DenoiseInput{
		Width:  tex.Width(),
		Height: tex.Height(),
		Color:  append([]float32(nil), tex.Pixels()...),
	}
	if albedo != nil && gpu.SameSize(tex, albedo) {
		in.Albedo = append([]float32(nil), albedo.Pixels()...)
	}
	if normal != nil && gpu.SameSize(tex, normal) {
		in.Normal = append([]float32(nil), normal.Pixels()...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &denoiseJob{cancel: cancel}
	s.job = job
	s.emit(events.DenoiseStart, nil)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		pixels, err := s.denoiser.Denoise(ctx, in)
		job.result.Store(&denoiseResult{width: in.Width, height: in.Height, pixels: pixels, err: err})
	}()
}

// Poll applies a finished result. It reports whether one was applied.
func (s *DenoiseScheduler) Poll() bool {
	if s.job == nil {
		return false
	}
	r := s.job.result.Load()
	if r == nil {
		return false
	}
	s.job.cancel()
	s.job = nil

	if r.err == nil && len(r.pixels) != r.width*r.height*4 {
		r.err = gpu.ErrInvalidSize
	}
	if r.err != nil {
		s.logger.Warnf("denoise failed: %v", r.err)
		s.emit(events.DenoiseEnd, DenoiseEvent{Width: r.width, Height: r.height, Err: r.err})
		return true
	}
	if err := s.publish(r); err != nil {
		s.logger.Errorf("denoise publish: %v", err)
		s.emit(events.DenoiseEnd, DenoiseEvent{Width: r.width, Height: r.height, Err: err})
		return true
	}
	s.logger.Debugf("denoised %dx%d", r.width, r.height)
	s.emit(events.DenoiseEnd, DenoiseEvent{Width: r.width, Height: r.height})
	return true
}

func (s *DenoiseScheduler) publish(r *denoiseResult) error {
	if s.target == nil {
		t, err := gpu.NewTarget(gpu.DefaultTargetDescriptor(stages.TexDenoiser, r.width, r.height))
		if err != nil {
			return err
		}
		s.target = t
	} else if s.target.Width() != r.width || s.target.Height() != r.height {
		if err := s.target.Resize(r.width, r.height); err != nil {
			return err
		}
	}
	copy(s.target.Pixels(), r.pixels)
	if s.ctx != nil {
		// unstamped: stays current until the next reset removes it
		s.ctx.SetTexture("denoiser", stages.TexDenoiser, s.target)
	}
	return nil
}

// Cancel drops the in-flight request and the last published result.
func (s *DenoiseScheduler) Cancel() {
	wasBusy := s.job != nil
	s.stop()
	if s.ctx != nil {
		s.ctx.RemoveTexture(stages.TexDenoiser)
	}
	if wasBusy {
		s.emit(events.DenoiseEnd, DenoiseEvent{Err: context.Canceled})
	}
}

// Close cancels outstanding work and waits for the worker to exit.
func (s *DenoiseScheduler) Close() {
	s.stop()
	s.wg.Wait()
	if s.target != nil {
		s.target.Release()
		s.target = nil
	}
}

func (s *DenoiseScheduler) stop() {
	if s.job != nil {
		s.job.cancel()
		s.job = nil
	}
}

func (s *DenoiseScheduler) emit(eventType string, payload any) {
	if s.bus != nil {
		s.bus.Emit(eventType, payload)
	}
}

// IsCanceled reports whether a DenoiseEvent error came from cancellation.
func IsCanceled(err error) bool { return errors.Is(err, context.Canceled) }
