package edge

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// Labels for the processing toggle.
const (
	LabelOn  = "Edge Detection ON"
	LabelOff = "Edge Detection OFF"
)

// Result describes one Apply call.
type Result struct {
	Buffer   *frame.Buffer
	Duration time.Duration
	// Filter is the label of the transform that produced Buffer.
	Filter string
	// Passthrough is set when the transform failed and the input was kept.
	Passthrough bool
}

// Stage applies a Transform to frames when enabled, and the identity
// otherwise. It times every call and never fails: a transform error passes
// the input through unchanged.
type Stage struct {
	transform Transform
	enabled   atomic.Bool
	now       func() time.Time
	logger    *slog.Logger

	processed atomic.Uint64
	failures  atomic.Uint64
	lastNanos atomic.Int64
}

// StageOption configures a Stage.
type StageOption func(*Stage)

// WithStageClock replaces time.Now.
func WithStageClock(now func() time.Time) StageOption {
	return func(s *Stage) {
		s.now = now
	}
}

// WithStageLogger sets the logger.
func WithStageLogger(l *slog.Logger) StageOption {
	return func(s *Stage) {
		s.logger = l
	}
}

// NewStage creates an enabled stage. A nil transform behaves as Identity.
func NewStage(t Transform, opts ...StageOption) *Stage {
	if t == nil {
		t = Identity{}
	}
	s := &Stage{
		transform: t,
		now:       time.Now,
	}
	s.enabled.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.With("component", "edge")
	}
	return s
}

// Apply processes buf and returns the display-ready frame.
func (s *Stage) Apply(buf *frame.Buffer) Result {
	start := s.now()

	if !s.enabled.Load() {
		res := Result{Buffer: buf, Filter: Identity{}.Name()}
		res.Duration = s.now().Sub(start)
		s.record(res.Duration)
		return res
	}

	res := Result{Filter: s.transform.Name()}
	var next *frame.Buffer
	out, err := s.transform.Process(buf.Pixels, buf.Width, buf.Height)
	if err == nil {
		if next, err = buf.WithPixels(out); err != nil {
			err = fmt.Errorf("%w: got %d, want %d", ErrOutputSize, len(out), len(buf.Pixels))
		}
	}

	if err != nil {
		s.failures.Add(1)
		s.logger.Warn("transform failed, passing frame through",
			"filter", res.Filter,
			"error", err,
		)
		res.Buffer = buf
		res.Passthrough = true
	} else {
		res.Buffer = next
	}

	res.Duration = s.now().Sub(start)
	s.record(res.Duration)
	return res
}

func (s *Stage) record(d time.Duration) {
	s.processed.Add(1)
	s.lastNanos.Store(int64(d))
}

// SetEnabled switches processing on or off. It takes effect on the next frame.
func (s *Stage) SetEnabled(on bool) {
	if s.enabled.Swap(on) != on {
		s.logger.Info("processing toggled", "label", label(on))
	}
}

// Toggle flips processing and returns the new state.
func (s *Stage) Toggle() bool {
	for {
		old := s.enabled.Load()
		if s.enabled.CompareAndSwap(old, !old) {
			s.logger.Info("processing toggled", "label", label(!old))
			return !old
		}
	}
}

// Enabled reports whether processing is on.
func (s *Stage) Enabled() bool {
	return s.enabled.Load()
}

// Label returns the user-visible processing label.
func (s *Stage) Label() string {
	return label(s.enabled.Load())
}

// Filter returns the label of the filter currently applied.
func (s *Stage) Filter() string {
	if !s.enabled.Load() {
		return Identity{}.Name()
	}
	return s.transform.Name()
}

// Processed returns the number of frames handled.
func (s *Stage) Processed() uint64 { return s.processed.Load() }

// Failures returns the number of transform errors.
func (s *Stage) Failures() uint64 { return s.failures.Load() }

// LastDuration returns the duration of the latest Apply.
func (s *Stage) LastDuration() time.Duration {
	return time.Duration(s.lastNanos.Load())
}

func label(on bool) string {
	if on {
		return LabelOn
	}
	return LabelOff
}
