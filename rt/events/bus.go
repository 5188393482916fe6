package events

import "sort"

// Event names shared by the pipeline, its stages and external observers.
const (
	FrameComplete          = "frame:complete"
	PipelineReset          = "pipeline:reset"
	PipelineResize         = "pipeline:resize"
	PathTracerComplete     = "pathtracer:complete"
	ResetRequested         = "pathtracer:resetRequested"
	InteractionStart       = "pathtracer:interactionStart"
	InteractionEnd         = "pathtracer:interactionEnd"
	LightsUpdated          = "lights:updated"
	RenderReset            = "RenderReset"
	RenderComplete         = "RenderComplete"
	CameraSwitched         = "CameraSwitched"
	FocusChanged           = "focusChanged"
	DenoiseStart           = "denoise:start"
	DenoiseEnd             = "denoise:end"
	ResolutionChanged      = "resolutionChanged"
	MaterialBufferModified = "material:modified"
)

// Event is what listeners receive.
type Event struct {
	Type    string
	Payload any
}

// Listener handles a single delivered event.
type Listener func(Event)

// ListenerID identifies a registration made with On or Once.
type ListenerID uint64

// Logger is the subset of the root logger the bus reports listener faults to.
type Logger interface {
	Errorf(format string, args ...any)
}

type registration struct {
	id   ListenerID
	fn   Listener
	once bool
}

// Bus is a synchronous publish/subscribe channel.
//
// Delivery happens on the caller's goroutine, in registration order. The bus
// is not safe for concurrent use; all calls are expected from the render loop.
type Bus struct {
	listeners map[string][]registration
	nextID    ListenerID
	logger    Logger
}

func NewBus(logger Logger) *Bus {
	return &Bus{
		listeners: make(map[string][]registration),
		logger:    logger,
	}
}

// On registers a persistent listener.
func (b *Bus) On(eventType string, fn Listener) ListenerID {
	return b.add(eventType, fn, false)
}

// Once registers a listener that is removed before its first delivery runs.
func (b *Bus) Once(eventType string, fn Listener) ListenerID {
	return b.add(eventType, fn, true)
}

func (b *Bus) add(eventType string, fn Listener, once bool) ListenerID {
	if fn == nil {
		return 0
	}
	b.nextID++
	b.listeners[eventType] = append(b.listeners[eventType], registration{id: b.nextID, fn: fn, once: once})
	return b.nextID
}

// Off removes a listener registered by On or Once. It reports whether the
// listener was still registered.
func (b *Bus) Off(eventType string, id ListenerID) bool {
	regs := b.listeners[eventType]
	for i, r := range regs {
		if r.id == id {
			b.listeners[eventType] = append(regs[:i:i], regs[i+1:]...)
			if len(b.listeners[eventType]) == 0 {
				delete(b.listeners, eventType)
			}
			return true
		}
	}
	return false
}

// Emit delivers payload to every listener currently registered for eventType.
// A panicking listener is logged and does not stop delivery to the rest.
func (b *Bus) Emit(eventType string, payload any) {
	regs := b.listeners[eventType]
	if len(regs) == 0 {
		return
	}

	// Listeners may register or remove listeners while being called.
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)

	ev := Event{Type: eventType, Payload: payload}
	for _, r := range snapshot {
		// skip listeners removed by an earlier listener in this emit
		if r.once {
			if !b.Off(eventType, r.id) {
				continue
			}
		} else if !b.registered(eventType, r.id) {
			continue
		}
		b.deliver(r, ev)
	}
}

func (b *Bus) registered(eventType string, id ListenerID) bool {
	for _, r := range b.listeners[eventType] {
		if r.id == id {
			return true
		}
	}
	return false
}

func (b *Bus) deliver(r registration, ev Event) {
	defer func() {
		if rec := recover(); rec != nil && b.logger != nil {
			b.logger.Errorf("listener %d for %q panicked: %v", r.id, ev.Type, rec)
		}
	}()
	r.fn(ev)
}

// RemoveAllListeners clears the given event types, or every type when none is
// given.
func (b *Bus) RemoveAllListeners(eventTypes ...string) {
	if len(eventTypes) == 0 {
		b.listeners = make(map[string][]registration)
		return
	}
	for _, t := range eventTypes {
		delete(b.listeners, t)
	}
}

func (b *Bus) ListenerCount(eventType string) int {
	return len(b.listeners[eventType])
}

// EventNames returns the event types that currently have listeners, sorted.
func (b *Bus) EventNames() []string {
	names := make([]string, 0, len(b.listeners))
	for name := range b.listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
