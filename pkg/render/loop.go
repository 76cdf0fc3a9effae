package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// Mode selects when the loop renders.
type Mode int

const (
	// Continuous renders at a fixed rate regardless of new frames.
	Continuous Mode = iota
	// OnDemand renders only after RequestRender.
	OnDemand
)

// String returns the config name of the mode.
func (m Mode) String() string {
	if m == OnDemand {
		return "on-demand"
	}
	return "continuous"
}

// ParseMode converts a config name to a Mode. Unknown names are Continuous.
func ParseMode(s string) Mode {
	if s == "on-demand" || s == "ondemand" {
		return OnDemand
	}
	return Continuous
}

// Config controls the render loop.
type Config struct {
	Mode Mode
	// FPS is the tick rate in Continuous mode.
	FPS int
}

// DefaultConfig renders continuously at 60 FPS.
func DefaultConfig() Config {
	return Config{Mode: Continuous, FPS: 60}
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Ticks          uint64 `json:"ticks"`
	Uploads        uint64 `json:"uploads"`
	UploadErrors   uint64 `json:"upload_errors"`
	LastGeneration uint64 `json:"last_generation"`
	ViewportWidth  int    `json:"viewport_width"`
	ViewportHeight int    `json:"viewport_height"`
}

// Loop consumes frames from a Slot and draws them through a Backend.
type Loop struct {
	slot    *frame.Slot
	backend Backend
	cfg     Config
	logger  *slog.Logger

	wake    chan struct{}
	running atomic.Bool

	vpMu      sync.Mutex
	vpW, vpH  int
	vpPending bool

	ticks        atomic.Uint64
	uploads      atomic.Uint64
	uploadErrors atomic.Uint64
	lastGen      atomic.Uint64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(l *slog.Logger) LoopOption {
	return func(lp *Loop) {
		lp.logger = l
	}
}

// NewLoop creates a loop drawing frames from slot.
func NewLoop(slot *frame.Slot, backend Backend, cfg Config, opts ...LoopOption) *Loop {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultConfig().FPS
	}
	l := &Loop{
		slot:    slot,
		backend: backend,
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.With("component", "render")
	}
	return l
}

// Run locks the calling goroutine to its OS thread, initializes the backend
// and renders until ctx is done or the backend reports ErrSurfaceClosed,
// which Run returns. Cancellation returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t := &Thread{loop: l}
	if err := l.backend.Init(t); err != nil {
		return fmt.Errorf("render: init backend: %w", err)
	}
	defer l.backend.Release(t)

	l.logger.Info("render loop started", "mode", l.cfg.Mode.String(), "fps", l.cfg.FPS)

	var tick <-chan time.Time
	if l.cfg.Mode == Continuous {
		ticker := time.NewTicker(time.Second / time.Duration(l.cfg.FPS))
		defer ticker.Stop()
		tick = ticker.C
	}

	// First frame so the surface is never left undrawn.
	if err := l.tick(t); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("render loop stopped", "ticks", l.ticks.Load(), "uploads", l.uploads.Load())
			return nil
		case <-tick:
		case <-l.wake:
		}
		if err := l.tick(t); err != nil {
			return err
		}
	}
}

// tick runs one render pass. It never waits for data: with nothing new, the
// previous texture is drawn again.
func (l *Loop) tick(t *Thread) error {
	l.ticks.Add(1)

	l.vpMu.Lock()
	if l.vpPending {
		l.backend.Resize(t, l.vpW, l.vpH)
		l.vpPending = false
	}
	l.vpMu.Unlock()

	if buf, gen, ok := l.slot.TryConsume(); ok {
		if err := l.backend.Upload(t, buf); err != nil {
			l.uploadErrors.Add(1)
			l.logger.Warn("texture upload failed", "generation", gen, "error", err)
		} else {
			l.uploads.Add(1)
			l.lastGen.Store(gen)
		}
	}

	if err := l.backend.Draw(t); err != nil {
		if errors.Is(err, ErrSurfaceClosed) {
			l.logger.Info("render surface closed")
			return ErrSurfaceClosed
		}
		l.logger.Warn("draw failed", "error", err)
	}
	return nil
}

// RequestRender wakes the loop for one extra pass. Requests made while a
// wake is pending coalesce. Safe from any goroutine.
func (l *Loop) RequestRender() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// SetViewport records a new surface size, applied on the render thread at the
// next pass.
func (l *Loop) SetViewport(width, height int) {
	l.vpMu.Lock()
	l.vpW, l.vpH = width, height
	l.vpPending = true
	l.vpMu.Unlock()
	l.RequestRender()
}

// Running reports whether Run is active.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	l.vpMu.Lock()
	w, h := l.vpW, l.vpH
	l.vpMu.Unlock()
	return Stats{
		Ticks:          l.ticks.Load(),
		Uploads:        l.uploads.Load(),
		UploadErrors:   l.uploadErrors.Load(),
		LastGeneration: l.lastGen.Load(),
		ViewportWidth:  w,
		ViewportHeight: h,
	}
}
