package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Errorf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestBus_EmitInRegistrationOrder(t *testing.T) {
	bus := NewBus(nil)
	var order []int
	bus.On("tick", func(Event) { order = append(order, 1) })
	bus.On("tick", func(Event) { order = append(order, 2) })
	bus.On("tick", func(Event) { order = append(order, 3) })

	bus.Emit("tick", nil)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBus_PayloadDelivered(t *testing.T) {
	bus := NewBus(nil)
	var got Event
	bus.On("frame", func(ev Event) { got = ev })

	bus.Emit("frame", 42)
	assert.Equal(t, "frame", got.Type)
	assert.Equal(t, 42, got.Payload)
}

func TestBus_OnceFiresOnce(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	bus.Once("reset", func(Event) { calls++ })

	bus.Emit("reset", nil)
	bus.Emit("reset", nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.ListenerCount("reset"))
}

func TestBus_OffRemovesOnceAndOn(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	onID := bus.On("x", func(Event) { calls++ })
	onceID := bus.Once("x", func(Event) { calls += 10 })
	require.Equal(t, 2, bus.ListenerCount("x"))

	assert.True(t, bus.Off("x", onceID))
	assert.True(t, bus.Off("x", onID))
	assert.False(t, bus.Off("x", onID), "second removal reports missing listener")

	bus.Emit("x", nil)
	assert.Equal(t, 0, calls)
	assert.Empty(t, bus.EventNames())
}

func TestBus_PanickingListenerDoesNotBlockOthers(t *testing.T) {
	logger := &recordingLogger{}
	bus := NewBus(logger)
	var delivered []string
	bus.On("frame", func(Event) { delivered = append(delivered, "first") })
	bus.On("frame", func(Event) { panic("boom") })
	bus.On("frame", func(Event) { delivered = append(delivered, "third") })

	assert.NotPanics(t, func() { bus.Emit("frame", nil) })
	assert.Equal(t, []string{"first", "third"}, delivered)
	require.Len(t, logger.lines, 1)
	assert.Contains(t, logger.lines[0], "boom")
}

func TestBus_ListenerAddedDuringEmitWaitsForNextEmit(t *testing.T) {
	bus := NewBus(nil)
	late := 0
	bus.On("e", func(Event) {
		bus.On("e", func(Event) { late++ })
	})

	bus.Emit("e", nil)
	assert.Equal(t, 0, late)
	bus.Emit("e", nil)
	assert.Equal(t, 1, late)
}

func TestBus_ListenerRemovedDuringEmitIsSkipped(t *testing.T) {
	bus := NewBus(nil)
	var got []string
	var later ListenerID
	bus.On("x", func(Event) {
		got = append(got, "first")
		bus.Off("x", later)
	})
	later = bus.On("x", func(Event) { got = append(got, "later") })
	bus.On("x", func(Event) { got = append(got, "last") })

	bus.Emit("x", nil)
	assert.Equal(t, []string{"first", "last"}, got)
	assert.Equal(t, 2, bus.ListenerCount("x"))
}

func TestBus_RemoveAllListeners(t *testing.T) {
	bus := NewBus(nil)
	bus.On("a", func(Event) {})
	bus.On("b", func(Event) {})
	bus.On("c", func(Event) {})
	assert.Equal(t, []string{"a", "b", "c"}, bus.EventNames())

	bus.RemoveAllListeners("b")
	assert.Equal(t, []string{"a", "c"}, bus.EventNames())

	bus.RemoveAllListeners()
	assert.Empty(t, bus.EventNames())
	assert.Equal(t, 0, bus.ListenerCount("a"))
}

func TestBus_NilListenerIgnored(t *testing.T) {
	bus := NewBus(nil)
	assert.Equal(t, ListenerID(0), bus.On("a", nil))
	assert.Equal(t, 0, bus.ListenerCount("a"))
}
