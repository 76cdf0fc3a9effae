package camera

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MockService is a scripted camera service for tests and the mock driver.
// Failures are injected through the exported fields, which must be set
// before the session is opened.
type MockService struct {
	// DevicesErr is returned by Devices.
	DevicesErr error
	// OpenErr is returned synchronously by OpenDevice.
	OpenErr error
	// OpenAsyncErr is delivered through DeviceCallbacks.OnError.
	OpenAsyncErr error
	// ConfigureErr is returned synchronously by CreatePipeline.
	ConfigureErr error
	// ConfigureAsyncErr is delivered through PipelineCallbacks.OnConfigureFailed.
	ConfigureAsyncErr error
	// RepeatErr is returned by SetRepeatingRequest.
	RepeatErr error
	// HoldOpen defers the open result until ReleaseOpen.
	HoldOpen bool
	// HoldConfigure defers the configure result until ReleaseConfigure.
	HoldConfigure bool
	// NoPreview makes PreviewTarget return nil.
	NoPreview bool

	logger  *slog.Logger
	devices []DeviceInfo

	mu               sync.Mutex
	calls            []string
	exec             Executor
	reader           *mockReader
	device           *MockDevice
	pendingOpen      func()
	pendingConfigure func()

	emitted        atomic.Uint64
	imagesClosed   atomic.Uint64
	deviceCloses   atomic.Uint64
	pipelineCloses atomic.Uint64
	readerCloses   atomic.Uint64
}

// DefaultMockDevices is a rear camera followed by a front camera.
var DefaultMockDevices = []DeviceInfo{
	{ID: "0", Name: "mock back", Facing: FacingBack},
	{ID: "1", Name: "mock front", Facing: FacingFront},
}

// NewMockService creates a mock service exposing devices. With no devices
// given, DefaultMockDevices is used.
func NewMockService(logger *slog.Logger, devices ...DeviceInfo) *MockService {
	if logger == nil {
		logger = slog.Default()
	}
	if len(devices) == 0 {
		devices = DefaultMockDevices
	}
	return &MockService{
		logger:  logger,
		devices: devices,
	}
}

func (m *MockService) record(format string, args ...any) {
	m.mu.Lock()
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

// Calls returns the driver calls made so far, in order.
func (m *MockService) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Devices implements Service.
func (m *MockService) Devices() ([]DeviceInfo, error) {
	m.record("devices")
	if m.DevicesErr != nil {
		return nil, m.DevicesErr
	}
	return append([]DeviceInfo(nil), m.devices...), nil
}

// NewReader implements Service.
func (m *MockService) NewReader(cfg ReaderConfig) (Reader, error) {
	m.record("new_reader %dx%d depth=%d", cfg.Width, cfg.Height, cfg.Depth)
	r := &mockReader{ImageQueue: NewImageQueue("mock-reader", cfg), svc: m}
	m.mu.Lock()
	m.reader = r
	m.mu.Unlock()
	return r, nil
}

// PreviewTarget implements Service.
func (m *MockService) PreviewTarget() Target {
	if m.NoPreview {
		return nil
	}
	return mockTarget("mock-preview")
}

// OpenDevice implements Service.
func (m *MockService) OpenDevice(id string, exec Executor, cb DeviceCallbacks) error {
	m.record("open_device %s", id)
	if m.OpenErr != nil {
		return m.OpenErr
	}

	known := false
	for _, d := range m.devices {
		if d.ID == id {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: unknown device %q", ErrNoDeviceFound, id)
	}

	dev := &MockDevice{id: id, svc: m, cb: cb}
	deliver := func() {
		var posted bool
		if m.OpenAsyncErr != nil {
			err := m.OpenAsyncErr
			posted = exec.Post(func() { cb.OnError(dev, err) })
		} else {
			posted = exec.Post(func() { cb.OnOpened(dev) })
		}
		if !posted {
			m.logger.Debug("mock: open result refused, closing device", "device", id)
			dev.Close()
		}
	}

	m.mu.Lock()
	m.exec = exec
	m.device = dev
	if m.HoldOpen {
		m.pendingOpen = deliver
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	deliver()
	return nil
}

// ReleaseOpen delivers a held open result. It reports whether one was pending.
func (m *MockService) ReleaseOpen() bool {
	m.mu.Lock()
	fn := m.pendingOpen
	m.pendingOpen = nil
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// ReleaseConfigure delivers a held configure result. It reports whether one
// was pending.
func (m *MockService) ReleaseConfigure() bool {
	m.mu.Lock()
	fn := m.pendingConfigure
	m.pendingConfigure = nil
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Disconnect reports the open device as disconnected.
func (m *MockService) Disconnect() bool {
	m.mu.Lock()
	exec, dev := m.exec, m.device
	m.mu.Unlock()
	if exec == nil || dev == nil {
		return false
	}
	return exec.Post(func() {
		if dev.cb.OnDisconnected != nil {
			dev.cb.OnDisconnected(dev)
		}
	})
}

// Emit pushes a gray frame into the reader. It returns false when there is no
// open reader.
func (m *MockService) Emit(pix []byte, width, height int) bool {
	return m.EmitImage(NewGrayImage(pix, width, height, 0, nil))
}

// EmitImage pushes img into the reader.
func (m *MockService) EmitImage(img Image) bool {
	m.mu.Lock()
	r := m.reader
	m.mu.Unlock()

	m.emitted.Add(1)
	tracked := &trackedImage{Image: img, svc: m}
	if r == nil {
		tracked.Close()
		return false
	}
	return r.Push(tracked)
}

// EmitSync emits a frame and waits until the worker has handled it.
func (m *MockService) EmitSync(pix []byte, width, height int) bool {
	ok := m.Emit(pix, width, height)
	m.Sync(time.Second)
	return ok
}

// Sync waits until every task posted on the session worker before the call
// has run. It returns false on timeout or when the worker is gone.
func (m *MockService) Sync(timeout time.Duration) bool {
	m.mu.Lock()
	exec := m.exec
	m.mu.Unlock()
	if exec == nil {
		return false
	}

	done := make(chan struct{})
	if !exec.Post(func() { close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Emitted returns the number of frames emitted, accepted or not.
func (m *MockService) Emitted() uint64 { return m.emitted.Load() }

// ImagesClosed returns the number of emitted images closed by anyone.
func (m *MockService) ImagesClosed() uint64 { return m.imagesClosed.Load() }

// DeviceCloses returns the number of device Close calls.
func (m *MockService) DeviceCloses() uint64 { return m.deviceCloses.Load() }

// PipelineCloses returns the number of pipeline Close calls.
func (m *MockService) PipelineCloses() uint64 { return m.pipelineCloses.Load() }

// ReaderCloses returns the number of reader Close calls.
func (m *MockService) ReaderCloses() uint64 { return m.readerCloses.Load() }

var _ Service = (*MockService)(nil)

// MockDevice is the device handed out by MockService.
type MockDevice struct {
	id     string
	svc    *MockService
	cb     DeviceCallbacks
	closed atomic.Bool
}

// ID implements Device.
func (d *MockDevice) ID() string { return d.id }

// CreatePipeline implements Device.
func (d *MockDevice) CreatePipeline(targets []Target, exec Executor, cb PipelineCallbacks) error {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.TargetName()
	}
	d.svc.record("create_pipeline %v", names)
	if d.svc.ConfigureErr != nil {
		return d.svc.ConfigureErr
	}

	p := &MockPipeline{svc: d.svc}
	deliver := func() {
		var posted bool
		if err := d.svc.ConfigureAsyncErr; err != nil {
			posted = exec.Post(func() { cb.OnConfigureFailed(p, err) })
		} else {
			posted = exec.Post(func() { cb.OnConfigured(p) })
		}
		if !posted {
			p.Close()
		}
	}

	if d.svc.HoldConfigure {
		d.svc.mu.Lock()
		d.svc.pendingConfigure = deliver
		d.svc.mu.Unlock()
		return nil
	}
	deliver()
	return nil
}

// Close implements Device.
func (d *MockDevice) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.svc.record("close_device %s", d.id)
	d.svc.deviceCloses.Add(1)
	return nil
}

// Closed reports whether the device has been closed.
func (d *MockDevice) Closed() bool { return d.closed.Load() }

// MockPipeline is the pipeline handed out by MockDevice.
type MockPipeline struct {
	svc       *MockService
	repeating atomic.Bool
	closed    atomic.Bool
}

// SetRepeatingRequest implements Pipeline.
func (p *MockPipeline) SetRepeatingRequest(req Request) error {
	p.svc.record("set_repeating targets=%d af=%d ae=%d", len(req.Targets), req.AFMode, req.AEMode)
	if p.svc.RepeatErr != nil {
		return p.svc.RepeatErr
	}
	p.repeating.Store(true)
	return nil
}

// StopRepeating implements Pipeline.
func (p *MockPipeline) StopRepeating() error {
	p.svc.record("stop_repeating")
	p.repeating.Store(false)
	return nil
}

// Close implements Pipeline.
func (p *MockPipeline) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.svc.record("close_pipeline")
	p.svc.pipelineCloses.Add(1)
	return nil
}

type mockReader struct {
	*ImageQueue
	svc *MockService
}

func (r *mockReader) Close() error {
	if r.ImageQueue.Closed() {
		return nil
	}
	r.svc.record("close_reader")
	r.svc.readerCloses.Add(1)
	return r.ImageQueue.Close()
}

type mockTarget string

func (t mockTarget) TargetName() string { return string(t) }

type trackedImage struct {
	Image
	svc    *MockService
	closed atomic.Bool
}

func (t *trackedImage) Close() {
	if t.closed.Swap(true) {
		return
	}
	t.svc.imagesClosed.Add(1)
	t.Image.Close()
}
