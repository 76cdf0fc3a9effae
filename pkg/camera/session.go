package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/teslashibe/go-edgecam/internal/log"
)

// Session owns one open attempt of a camera: device handle, capture pipeline,
// processing reader and the repeating request.
//
// Lifecycle:
//
//	Idle → Opening → Configuring → Streaming → Closing → Closed
//	              ↘            ↘            ↘
//	                        Error
//
// Every transition after Open runs on the session's worker, and so does every
// driver callback. A Session is single-use: open a new one to retry.
type Session struct {
	id       string
	svc      Service
	cfg      Config
	worker   *Worker
	producer *Producer
	logger   *slog.Logger

	onStateChange func(State, error)
	producerOpts  []ProducerOption

	state atomic.Int32

	errMu sync.Mutex
	err   error

	ready     chan struct{}
	readyOnce sync.Once

	// lifecycle serializes Open and Close.
	lifecycle sync.Mutex

	// Worker-owned handles.
	device   Device
	pipeline Pipeline
	reader   Reader
	targets  []Target
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger. The session ID is added to it.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l.With("session_id", shortID(s.id))
	}
}

// WithOnStateChange registers fn for every state transition. fn runs on the
// goroutine performing the transition, usually the capture worker, and must
// not call Open or Close.
func WithOnStateChange(fn func(State, error)) SessionOption {
	return func(s *Session) {
		s.onStateChange = fn
	}
}

// WithProducerOptions passes options to the session's frame producer.
func WithProducerOptions(opts ...ProducerOption) SessionOption {
	return func(s *Session) {
		s.producerOpts = append(s.producerOpts, opts...)
	}
}

// NewSession creates an idle session. onFrame receives every decoded frame on
// the capture worker.
func NewSession(svc Service, cfg Config, onFrame FrameFunc, opts ...SessionOption) *Session {
	id := uuid.New().String()
	s := &Session{
		id:     id,
		svc:    svc,
		cfg:    cfg,
		worker: NewWorker("camera-" + shortID(id)),
		ready:  make(chan struct{}),
		logger: log.With("component", "camera", "session_id", shortID(id)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.producer = NewProducer(onFrame, append([]ProducerOption{WithProducerLogger(s.logger)}, s.producerOpts...)...)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Err returns the error that moved the session to StateError, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Producer returns the session's frame producer.
func (s *Session) Producer() *Producer {
	return s.producer
}

// Ready is closed once the session is streaming, failed or closed.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until setup has finished. It returns nil once streaming,
// the session error on failure, ErrClosed if closed first, or ctx's error.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	switch s.State() {
	case StateStreaming:
		return nil
	case StateError:
		return s.Err()
	default:
		return ErrClosed
	}
}

// Open starts the worker, selects a device and requests it. Device and
// pipeline setup continue asynchronously on the worker; use Ready or
// WaitReady to wait for them. Failures detected before the device request
// are returned directly as a *SessionError.
func (s *Session) Open() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if st := s.State(); st != StateIdle {
		return &SessionError{SessionID: s.id, State: st, Err: ErrAlreadyOpened}
	}

	s.worker.Start()

	var err error
	if !s.worker.Call(func() { err = s.open() }) {
		err = &SessionError{SessionID: s.id, State: s.State(), Err: ErrClosed}
	}
	return err
}

// open runs on the worker.
func (s *Session) open() error {
	s.setState(StateOpening, nil)

	devices, err := s.svc.Devices()
	if err != nil {
		return s.fail(classify(err, ErrAccessDenied))
	}

	info, ok := selectDevice(devices, s.cfg)
	if !ok {
		return s.fail(ErrNoDeviceFound)
	}
	s.logger.Info("camera selected", "device", info.ID, "name", info.Name, "facing", info.Facing.String())

	reader, err := s.svc.NewReader(ReaderConfig{
		Width:  s.cfg.Width,
		Height: s.cfg.Height,
		Format: FormatGray8,
		Depth:  s.cfg.ReaderDepth,
	})
	if err != nil {
		return s.fail(fmt.Errorf("%w: reader: %v", ErrConfigurationFailed, err))
	}
	s.reader = reader
	reader.SetOnImageAvailable(s.worker, s.onImageAvailable)

	err = s.svc.OpenDevice(info.ID, s.worker, DeviceCallbacks{
		OnOpened:       s.onDeviceOpened,
		OnDisconnected: s.onDeviceDisconnected,
		OnError:        s.onDeviceError,
	})
	if err != nil {
		return s.fail(classify(err, ErrAccessDenied))
	}
	return nil
}

func (s *Session) onDeviceOpened(dev Device) {
	if s.State() != StateOpening {
		s.logger.Debug("late device open, closing", "device", dev.ID(), "state", s.State().String())
		dev.Close()
		return
	}

	s.device = dev
	s.setState(StateConfiguring, nil)

	s.targets = s.targets[:0]
	if preview := s.svc.PreviewTarget(); preview != nil {
		s.targets = append(s.targets, preview)
	}
	s.targets = append(s.targets, s.reader)

	err := dev.CreatePipeline(s.targets, s.worker, PipelineCallbacks{
		OnConfigured:      s.onConfigured,
		OnConfigureFailed: s.onConfigureFailed,
	})
	if err != nil {
		s.fail(classify(err, ErrConfigurationFailed))
	}
}

func (s *Session) onConfigured(p Pipeline) {
	if s.State() != StateConfiguring {
		p.Close()
		return
	}

	s.pipeline = p
	if err := p.SetRepeatingRequest(s.cfg.Request(s.targets)); err != nil {
		s.fail(classify(err, ErrConfigurationFailed))
		return
	}
	s.setState(StateStreaming, nil)
}

func (s *Session) onConfigureFailed(p Pipeline, err error) {
	if p != nil && s.State() != StateConfiguring {
		p.Close()
		return
	}
	if p != nil {
		s.pipeline = p
	}
	if err == nil {
		err = ErrConfigurationFailed
	}
	s.fail(classify(err, ErrConfigurationFailed))
}

func (s *Session) onDeviceDisconnected(dev Device) {
	if s.device != dev {
		dev.Close()
		return
	}
	s.fail(ErrDeviceDisconnected)
}

func (s *Session) onDeviceError(dev Device, err error) {
	if dev != nil && s.device != dev {
		// Opening failed after the driver allocated a handle.
		dev.Close()
	}
	if !s.State().canFail() {
		return
	}
	s.fail(classify(err, ErrAccessDenied))
}

func (s *Session) onImageAvailable(r Reader) {
	if s.State() != StateStreaming {
		// Drain so the reader does not hold sensor buffers.
		if img, err := r.AcquireLatest(); err == nil && img != nil {
			img.Close()
		}
		return
	}
	s.producer.OnFrameReady(r)
}

// fail records err, releases handles and moves to StateError. Runs on the worker.
func (s *Session) fail(err error) error {
	st := s.State()
	serr := &SessionError{SessionID: s.id, State: st, Err: err}

	s.errMu.Lock()
	s.err = serr
	s.errMu.Unlock()

	s.logger.Error("capture failed", "state", st.String(), "error", err)
	s.release()
	s.setState(StateError, serr)
	return serr
}

// Close stops streaming and releases pipeline, device and reader in that
// order, then joins the worker. No callback runs after Close returns. Closing
// an idle or closed session is a no-op. Close must not be called from a frame
// or state callback.
func (s *Session) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch s.State() {
	case StateClosed:
		return nil
	case StateIdle:
		s.setState(StateClosed, nil)
		return nil
	}

	var err error
	ran := s.worker.Call(func() {
		s.setState(StateClosing, nil)
		err = s.release()
		s.setState(StateClosed, nil)
	})
	s.worker.Stop()

	if !ran {
		// Worker already gone; nothing can touch the handles any more.
		s.setState(StateClosing, nil)
		err = s.release()
		s.setState(StateClosed, nil)
	}

	s.logger.Info("camera closed",
		"delivered", s.producer.Delivered(),
		"skipped", s.producer.Skipped(),
	)
	return err
}

// release closes every handle the session holds. Safe to call repeatedly.
func (s *Session) release() error {
	var errs []error

	if s.pipeline != nil {
		if err := s.pipeline.StopRepeating(); err != nil {
			errs = append(errs, fmt.Errorf("stop repeating: %w", err))
		}
		if err := s.pipeline.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pipeline: %w", err))
		}
		s.pipeline = nil
	}
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
		s.device = nil
	}
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader: %w", err))
		}
		s.reader = nil
	}

	if len(errs) > 0 {
		s.logger.Warn("release errors", "error", errors.Join(errs...))
	}
	return errors.Join(errs...)
}

func (s *Session) setState(st State, err error) {
	old := State(s.state.Swap(int32(st)))
	if old == st {
		return
	}
	if st.settled() {
		s.readyOnce.Do(func() { close(s.ready) })
	}
	s.logger.Debug("state change", "from", old.String(), "to", st.String())
	if s.onStateChange != nil {
		s.onStateChange(st, err)
	}
}

// selectDevice returns the first device facing the configured way. An
// explicit device ID overrides facing.
func selectDevice(devices []DeviceInfo, cfg Config) (DeviceInfo, bool) {
	if cfg.Device != "" {
		for _, d := range devices {
			if d.ID == cfg.Device {
				return d, true
			}
		}
		return DeviceInfo{}, false
	}

	want := cfg.FacingOrDefault()
	for _, d := range devices {
		if d.Facing == want {
			return d, true
		}
	}
	return DeviceInfo{}, false
}

// classify keeps known sentinels and maps everything else to fallback.
func classify(err, fallback error) error {
	switch {
	case errors.Is(err, ErrAccessDenied),
		errors.Is(err, ErrNoDeviceFound),
		errors.Is(err, ErrConfigurationFailed),
		errors.Is(err, ErrDeviceDisconnected):
		return err
	}
	return fmt.Errorf("%w: %v", fallback, err)
}
