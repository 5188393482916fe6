package pathtracer

import (
	"time"
)

// FrameTime tracks wall time between rendered frames.
type FrameTime struct {
	Time time.Time
	Dt   time.Duration
}

// Advance moves to now and returns the time since the previous frame. The
// first call returns zero.
func (t *FrameTime) Advance(now time.Time) time.Duration {
	if t.Time.IsZero() {
		t.Dt = 0
	} else {
		t.Dt = now.Sub(t.Time)
	}
	t.Time = now
	return t.Dt
}
