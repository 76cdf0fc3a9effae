// Package opencv is a camera backend using GoCV (OpenCV) video capture.
// Frames are read on a capture goroutine, converted to grayscale and pushed
// into the session's reader.
package opencv

import (
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-edgecam/pkg/camera"
)

// MaxReadFailures is the number of consecutive failed reads after which the
// device is reported as disconnected.
const MaxReadFailures = 30

// Options configures the backend.
type Options struct {
	// Devices are the capture indexes or paths to offer. Default "0".
	Devices []string
	// Facing is reported for every device.
	Facing camera.Facing
	// Framerate requested from the driver. 0 leaves the default.
	Framerate int
}

// Service implements camera.Service with gocv.VideoCapture.
type Service struct {
	opts   Options
	logger *slog.Logger
}

// New creates the backend. Devices are not probed until opened.
func New(opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Devices) == 0 {
		opts.Devices = []string{"0"}
	}
	if opts.Facing == camera.FacingUnknown {
		opts.Facing = camera.FacingBack
	}
	return &Service{
		opts:   opts,
		logger: logger.With("component", "opencv"),
	}
}

// Devices implements camera.Service.
func (s *Service) Devices() ([]camera.DeviceInfo, error) {
	devices := make([]camera.DeviceInfo, 0, len(s.opts.Devices))
	for _, id := range s.opts.Devices {
		devices = append(devices, camera.DeviceInfo{
			ID:     id,
			Name:   "opencv " + id,
			Facing: s.opts.Facing,
		})
	}
	return devices, nil
}

// NewReader implements camera.Service.
func (s *Service) NewReader(cfg camera.ReaderConfig) (camera.Reader, error) {
	if cfg.Format != camera.FormatGray8 {
		return nil, fmt.Errorf("opencv: unsupported reader format %d", cfg.Format)
	}
	return camera.NewImageQueue("opencv-reader", cfg), nil
}

// PreviewTarget implements camera.Service.
func (s *Service) PreviewTarget() camera.Target {
	return previewTarget{}
}

// OpenDevice implements camera.Service. Numeric IDs open a capture index,
// anything else is passed to OpenCV as a path or URL.
func (s *Service) OpenDevice(id string, exec camera.Executor, cb camera.DeviceCallbacks) error {
	go func() {
		var src interface{} = id
		if n, err := strconv.Atoi(id); err == nil {
			src = n
		}

		capture, err := gocv.OpenVideoCapture(src)
		if err != nil {
			err = fmt.Errorf("%w: %v", camera.ErrAccessDenied, err)
			exec.Post(func() { cb.OnError(nil, err) })
			return
		}
		if !capture.IsOpened() {
			capture.Close()
			err := fmt.Errorf("%w: capture %s not opened", camera.ErrAccessDenied, id)
			exec.Post(func() { cb.OnError(nil, err) })
			return
		}

		dev := &device{id: id, svc: s, capture: capture, cb: cb, exec: exec}
		if !exec.Post(func() { cb.OnOpened(dev) }) {
			s.logger.Debug("open result refused, closing device", "device", id)
			dev.Close()
		}
	}()
	return nil
}

var _ camera.Service = (*Service)(nil)

type previewTarget struct{}

func (previewTarget) TargetName() string { return "opencv-preview" }

type device struct {
	id      string
	svc     *Service
	capture *gocv.VideoCapture
	cb      camera.DeviceCallbacks
	exec    camera.Executor

	mu     sync.Mutex
	closed bool
}

func (d *device) ID() string { return d.id }

// CreatePipeline applies the reader size and frame rate to the capture.
func (d *device) CreatePipeline(targets []camera.Target, exec camera.Executor, cb camera.PipelineCallbacks) error {
	var q *camera.ImageQueue
	for _, t := range targets {
		if r, ok := t.(*camera.ImageQueue); ok {
			q = r
		}
	}
	if q == nil {
		return fmt.Errorf("%w: no reader among targets", camera.ErrConfigurationFailed)
	}

	cfg := q.Config()
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return camera.ErrClosed
	}
	d.capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	d.capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	if d.svc.opts.Framerate > 0 {
		d.capture.Set(gocv.VideoCaptureFPS, float64(d.svc.opts.Framerate))
	}
	d.mu.Unlock()

	p := &pipeline{dev: d, reader: q, width: cfg.Width, height: cfg.Height}
	if !exec.Post(func() { cb.OnConfigured(p) }) {
		p.Close()
	}
	return nil
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.svc.logger.Debug("device closed", "device", d.id)
	return d.capture.Close()
}

type pipeline struct {
	dev    *device
	reader *camera.ImageQueue
	width  int
	height int

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
	closed  bool

	frames atomic.Uint64
}

// SetRepeatingRequest applies the control modes and starts the capture loop.
func (p *pipeline) SetRepeatingRequest(req camera.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return camera.ErrClosed
	}
	if p.running {
		return nil
	}

	p.dev.mu.Lock()
	if p.dev.closed {
		p.dev.mu.Unlock()
		return camera.ErrClosed
	}
	af := 0.0
	if req.AFMode != camera.AFOff {
		af = 1
	}
	p.dev.capture.Set(gocv.VideoCaptureAutoFocus, af)
	// V4L2 auto exposure: 3 aperture priority, 1 manual.
	ae := 1.0
	if req.AEMode == camera.AEOn {
		ae = 3
	}
	p.dev.capture.Set(gocv.VideoCaptureAutoExposure, ae)
	p.dev.mu.Unlock()

	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(p.stop, p.done)

	p.dev.svc.logger.Info("capture started",
		"device", p.dev.id,
		"resolution", fmt.Sprintf("%dx%d", p.width, p.height),
	)
	return nil
}

func (p *pipeline) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	frame := gocv.NewMat()
	defer frame.Close()
	gray := gocv.NewMat()
	defer gray.Close()
	scaled := gocv.NewMat()
	defer scaled.Close()

	failures := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if ok := p.dev.capture.Read(&frame); !ok || frame.Empty() {
			failures++
			if failures >= MaxReadFailures {
				p.dev.svc.logger.Warn("capture stopped delivering", "device", p.dev.id, "failures", failures)
				if !p.dev.exec.Post(func() { p.dev.cb.OnDisconnected(p.dev) }) {
					p.dev.svc.logger.Debug("disconnect refused", "device", p.dev.id)
				}
				return
			}
			continue
		}
		failures = 0

		pix, w, h := p.toGray(frame, &gray, &scaled)
		if pix == nil {
			continue
		}
		p.frames.Add(1)
		p.reader.Push(camera.NewGrayImage(pix, w, h, 0, nil))
	}
}

// toGray converts frame to an 8-bit single channel image at the reader size.
func (p *pipeline) toGray(frame gocv.Mat, gray, scaled *gocv.Mat) ([]byte, int, int) {
	switch frame.Channels() {
	case 1:
		frame.CopyTo(gray)
	case 4:
		gocv.CvtColor(frame, gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(frame, gray, gocv.ColorBGRToGray)
	}

	out := gray
	if gray.Cols() != p.width || gray.Rows() != p.height {
		gocv.Resize(*gray, scaled, image.Pt(p.width, p.height), 0, 0, gocv.InterpolationLinear)
		out = scaled
	}
	if out.Empty() {
		return nil, 0, 0
	}
	return out.ToBytes(), out.Cols(), out.Rows()
}

// StopRepeating ends the capture loop and waits for it.
func (p *pipeline) StopRepeating() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stop)
	done := p.done
	p.mu.Unlock()

	<-done
	return nil
}

func (p *pipeline) Close() error {
	p.StopRepeating()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.dev.svc.logger.Debug("capture closed", "device", p.dev.id, "frames", p.frames.Load())
	return nil
}
