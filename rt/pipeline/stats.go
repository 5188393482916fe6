package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// StatsWindow is the number of frames timing is averaged over.
const StatsWindow = 60

// FrameScope is the profiler scope covering a whole Render call.
const FrameScope = "frame"

// Timing summarizes one scope over the window.
type Timing struct {
	Min     time.Duration
	Avg     time.Duration
	Max     time.Duration
	Samples int
}

// Stats is a snapshot of pipeline timing.
type Stats struct {
	Total  Timing
	Stages map[string]Timing
	// Order lists stage names in the order they were first timed.
	Order []string
}

func (s Stats) String() string {
	var sb strings.Builder
	sb.WriteString("Timings (CPU):\n")
	for _, name := range s.Order {
		writeTiming(&sb, name, s.Stages[name])
	}
	writeTiming(&sb, FrameScope, s.Total)
	return sb.String()
}

func writeTiming(sb *strings.Builder, name string, t Timing) {
	fmt.Fprintf(sb, "  %-15s: %.2f ms (min %.2f, max %.2f)\n", name, ms(t.Avg), ms(t.Min), ms(t.Max))
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

type ring struct {
	samples [StatsWindow]time.Duration
	n       int
	next    int
}

func (r *ring) push(d time.Duration) {
	r.samples[r.next] = d
	r.next = (r.next + 1) % StatsWindow
	if r.n < StatsWindow {
		r.n++
	}
}

func (r *ring) timing() Timing {
	if r.n == 0 {
		return Timing{}
	}
	t := Timing{Min: r.samples[0], Max: r.samples[0], Samples: r.n}
	var sum time.Duration
	for _, d := range r.samples[:r.n] {
		sum += d
		if d < t.Min {
			t.Min = d
		}
		if d > t.Max {
			t.Max = d
		}
	}
	t.Avg = sum / time.Duration(r.n)
	return t
}

// Profiler records scoped CPU durations into per-scope ring buffers.
type Profiler struct {
	starts map[string]time.Time
	scopes map[string]*ring
	order  []string
	now    func() time.Time
}

func NewProfiler() *Profiler {
	return &Profiler{
		starts: make(map[string]time.Time),
		scopes: make(map[string]*ring),
		now:    time.Now,
	}
}

func (p *Profiler) BeginScope(name string) {
	p.starts[name] = p.now()
	if _, ok := p.scopes[name]; !ok {
		p.scopes[name] = &ring{}
		if name != FrameScope {
			p.order = append(p.order, name)
		}
	}
}

func (p *Profiler) EndScope(name string) {
	start, ok := p.starts[name]
	if !ok {
		return
	}
	delete(p.starts, name)
	p.scopes[name].push(p.now().Sub(start))
}

// Record pushes an externally measured duration.
func (p *Profiler) Record(name string, d time.Duration) {
	if _, ok := p.scopes[name]; !ok {
		p.scopes[name] = &ring{}
		if name != FrameScope {
			p.order = append(p.order, name)
		}
	}
	p.scopes[name].push(d)
}

func (p *Profiler) Stats() Stats {
	s := Stats{
		Stages: make(map[string]Timing, len(p.order)),
		Order:  append([]string(nil), p.order...),
	}
	for _, name := range p.order {
		s.Stages[name] = p.scopes[name].timing()
	}
	if r, ok := p.scopes[FrameScope]; ok {
		s.Total = r.timing()
	}
	return s
}
