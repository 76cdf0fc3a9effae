// Package pipeline owns the capture lifecycle and connects the capture
// session, the processing stage and the frame slot the render loop reads.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/camera"
	"github.com/teslashibe/go-edgecam/pkg/edge"
	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// ErrNotOpen is returned by WaitReady when no session exists.
var ErrNotOpen = errors.New("pipeline: not open")

// Pipeline runs one capture session at a time. Every Open creates a fresh
// session; Pause closes it and Resume opens a new one. Camera config changes
// made through Camera() reopen a live session.
type Pipeline struct {
	svc     camera.Service
	cameras *camera.Manager
	stage   *edge.Stage
	slot    *frame.Slot
	logger  *slog.Logger

	sessionOpts []camera.SessionOption
	onPublish   func(generation uint64)

	// mu serializes lifecycle calls.
	mu      sync.Mutex
	session *camera.Session
	paused  bool

	last atomic.Pointer[frame.Buffer]

	statsMu sync.RWMutex
	stats   Stats

	obsMu     sync.Mutex
	observers map[int]func(Stats)
	nextObs   int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger. Sessions log through it too.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithSessionOptions adds options passed to every session the pipeline creates.
func WithSessionOptions(opts ...camera.SessionOption) Option {
	return func(p *Pipeline) {
		p.sessionOpts = append(p.sessionOpts, opts...)
	}
}

// WithOnPublish registers a hook called on the capture worker after each
// publish, typically render.Loop.RequestRender in on-demand mode.
func WithOnPublish(fn func(generation uint64)) Option {
	return func(p *Pipeline) {
		p.onPublish = fn
	}
}

// New creates a pipeline capturing from svc and processing frames with stage.
// A nil stage passes frames through unchanged.
func New(svc camera.Service, cfg camera.Config, stage *edge.Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		svc:       svc,
		cameras:   camera.NewManager(cfg),
		stage:     stage,
		slot:      frame.NewSlot(),
		observers: make(map[int]func(Stats)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.With("component", "pipeline")
	}
	if p.stage == nil {
		p.stage = edge.NewStage(nil, edge.WithStageLogger(p.logger))
	}
	p.cameras.OnChange = p.applyCameraConfig
	p.stats = Stats{
		Label:      p.stage.Label(),
		Filter:     p.stage.Filter(),
		Processing: p.stage.Enabled(),
		State:      camera.StateIdle.String(),
	}
	return p
}

// Slot returns the slot the render loop consumes from.
func (p *Pipeline) Slot() *frame.Slot {
	return p.slot
}

// Camera returns the camera config manager. Updates take effect on the next
// open, immediately when a session is streaming.
func (p *Pipeline) Camera() *camera.Manager {
	return p.cameras
}

// Stage returns the processing stage.
func (p *Pipeline) Stage() *edge.Stage {
	return p.stage
}

// Open starts a new capture session. It fails with camera.ErrAlreadyOpened
// while a session is still live.
func (p *Pipeline) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return p.openLocked()
}

func (p *Pipeline) openLocked() error {
	if p.session != nil {
		switch p.session.State() {
		case camera.StateClosed, camera.StateError:
			p.session.Close()
		default:
			return fmt.Errorf("pipeline: %w", camera.ErrAlreadyOpened)
		}
	}

	opts := []camera.SessionOption{
		camera.WithLogger(p.logger),
		camera.WithOnStateChange(p.onStateChange),
	}
	opts = append(opts, p.sessionOpts...)
	s := camera.NewSession(p.svc, p.cameras.Config(), p.onFrame, opts...)
	p.session = s

	p.statsMu.Lock()
	p.stats.SessionID = s.ID()
	p.stats.Error = ""
	p.statsMu.Unlock()

	if err := s.Open(); err != nil {
		return err
	}
	p.logger.Info("pipeline opened", "session_id", s.ID())
	return nil
}

func (p *Pipeline) applyCameraConfig(cfg camera.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil || p.paused {
		return nil
	}
	p.logger.Info("camera config changed, reopening",
		"width", cfg.Width, "height", cfg.Height, "framerate", cfg.Framerate)
	if err := p.closeLocked(); err != nil {
		p.logger.Warn("close before reopen", "error", err)
	}
	return p.openLocked()
}

// WaitReady blocks until the current session streams or fails.
func (p *Pipeline) WaitReady(ctx context.Context) error {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil {
		return ErrNotOpen
	}
	return s.WaitReady(ctx)
}

// Close stops capture. The last frame stays in the slot and the pipeline can
// be opened again.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return p.closeLocked()
}

func (p *Pipeline) closeLocked() error {
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	p.setState(camera.StateClosed, nil)
	return err
}

// Pause closes the running session. Resume opens a new one.
func (p *Pipeline) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil || p.paused {
		return nil
	}
	p.paused = true
	p.logger.Info("pipeline paused")
	return p.closeLocked()
}

// Resume reopens capture after Pause. Without a preceding Pause it does
// nothing.
func (p *Pipeline) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return nil
	}
	p.paused = false
	p.logger.Info("pipeline resumed")
	return p.openLocked()
}

// Paused reports whether the pipeline is paused.
func (p *Pipeline) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// SetProcessing enables or disables the transform. Disabled frames are
// published unchanged.
func (p *Pipeline) SetProcessing(on bool) {
	p.stage.SetEnabled(on)
	p.refreshProcessing()
}

// ToggleProcessing flips processing and returns the new setting.
func (p *Pipeline) ToggleProcessing() bool {
	on := p.stage.Toggle()
	p.refreshProcessing()
	return on
}

func (p *Pipeline) refreshProcessing() {
	p.statsMu.Lock()
	p.stats.Processing = p.stage.Enabled()
	p.stats.Label = p.stage.Label()
	if !p.stats.Processing {
		p.stats.Filter = edge.Identity{}.Name()
	} else {
		p.stats.Filter = p.stage.Filter()
	}
	st := p.stats
	p.statsMu.Unlock()

	p.logger.Info("processing toggled", "label", st.Label)
	p.notify(st)
}

// onFrame runs on the capture worker for every decoded frame.
func (p *Pipeline) onFrame(buf *frame.Buffer, rate float64) {
	res := p.stage.Apply(buf)
	gen := p.slot.Publish(res.Buffer)
	p.last.Store(res.Buffer)

	slotStats := p.slot.Stats()

	p.statsMu.Lock()
	p.stats.FPS = rate
	p.stats.ProcessingTimeMs = res.Duration.Milliseconds()
	p.stats.Width = res.Buffer.Width
	p.stats.Height = res.Buffer.Height
	p.stats.Resolution = fmt.Sprintf("%dx%d", res.Buffer.Width, res.Buffer.Height)
	p.stats.Filter = res.Filter
	p.stats.Label = p.stage.Label()
	p.stats.Processing = p.stage.Enabled()
	p.stats.Frames++
	p.stats.Failures = p.stage.Failures()
	p.stats.Generation = gen
	p.stats.Dropped = slotStats.Dropped
	p.stats.Timestamp = res.Buffer.TimestampMs()
	st := p.stats
	p.statsMu.Unlock()

	if p.onPublish != nil {
		p.onPublish(gen)
	}
	p.notify(st)
}

func (p *Pipeline) onStateChange(st camera.State, err error) {
	p.setState(st, err)
	if st == camera.StateError {
		p.logger.Error("capture failed", "error", err)
	}
}

func (p *Pipeline) setState(st camera.State, err error) {
	p.statsMu.Lock()
	p.stats.State = st.String()
	if err != nil {
		p.stats.Error = err.Error()
	}
	s := p.stats
	p.statsMu.Unlock()
	p.notify(s)
}

// Stats returns the latest telemetry.
func (p *Pipeline) Stats() Stats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

// Last returns the most recently published frame.
func (p *Pipeline) Last() (*frame.Buffer, bool) {
	buf := p.last.Load()
	return buf, buf != nil
}

// Subscribe registers fn to receive every stats update. Callbacks run on the
// capture worker and must not block. The returned func unsubscribes.
func (p *Pipeline) Subscribe(fn func(Stats)) (unsubscribe func()) {
	p.obsMu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.obsMu.Unlock()

	return func() {
		p.obsMu.Lock()
		delete(p.observers, id)
		p.obsMu.Unlock()
	}
}

func (p *Pipeline) notify(st Stats) {
	p.obsMu.Lock()
	fns := make([]func(Stats), 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.obsMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
