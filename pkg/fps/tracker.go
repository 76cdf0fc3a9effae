// Package fps measures delivered frame rate over a rolling one-second window.
package fps

import "time"

// Window is the measurement period. The rate is recomputed at most once per
// window and held in between.
const Window = time.Second

// Tracker counts frames and reports frames per second.
//
// A Tracker is not safe for concurrent use. It is written by the capture
// worker only; other goroutines see the float returned by Snapshot.
type Tracker struct {
	frameCount  uint64
	windowStart time.Time
	currentFPS  float64
}

// New returns a tracker whose first window starts at start.
func New(start time.Time) *Tracker {
	return &Tracker{windowStart: start}
}

// Tick records one delivered frame.
func (t *Tracker) Tick() {
	t.frameCount++
}

// Snapshot returns the current rate. When at least one Window has passed
// since the window started, the rate is recomputed from the frames counted in
// that window and a new window begins at now. Otherwise the previous rate is
// returned unchanged.
func (t *Tracker) Snapshot(now time.Time) float64 {
	elapsed := now.Sub(t.windowStart)
	if elapsed < Window {
		return t.currentFPS
	}

	elapsedMs := float64(elapsed) / float64(time.Millisecond)
	t.currentFPS = float64(t.frameCount) * 1000 / elapsedMs
	t.frameCount = 0
	t.windowStart = now
	return t.currentFPS
}

// FPS returns the last computed rate without touching the window.
func (t *Tracker) FPS() float64 {
	return t.currentFPS
}

// Pending returns the frames counted in the open window.
func (t *Tracker) Pending() uint64 {
	return t.frameCount
}
