// Package gstreamer is a V4L2 camera backend built on a GStreamer appsink.
//
// Pipeline structure:
//
//	v4l2src → videoconvert → videoscale → capsfilter(GRAY8, W×H) → appsink
//
// The appsink keeps at most two buffers and drops older ones, so a slow
// consumer never backs up the sensor.
package gstreamer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/teslashibe/go-edgecam/pkg/camera"
)

// Options configures the backend.
type Options struct {
	// Pattern globs the device nodes to offer. Default "/dev/video*".
	Pattern string
	// Facing is reported for every device; V4L2 does not know which way a
	// lens points.
	Facing camera.Facing
	// Framerate caps the source rate. 0 leaves it to the driver.
	Framerate int
}

// Service implements camera.Service on top of GStreamer.
type Service struct {
	opts   Options
	logger *slog.Logger
}

// New initializes GStreamer and checks that v4l2src is available.
func New(opts Options, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Pattern == "" {
		opts.Pattern = "/dev/video*"
	}
	if opts.Facing == camera.FacingUnknown {
		opts.Facing = camera.FacingBack
	}

	gst.Init(nil)

	elem, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: v4l2src not available: %w", err)
	}
	elem.SetState(gst.StateNull)

	return &Service{
		opts:   opts,
		logger: logger.With("component", "gstreamer"),
	}, nil
}

// Devices implements camera.Service.
func (s *Service) Devices() ([]camera.DeviceInfo, error) {
	paths, err := filepath.Glob(s.opts.Pattern)
	if err != nil {
		return nil, fmt.Errorf("gstreamer: list devices: %w", err)
	}
	sort.Strings(paths)

	devices := make([]camera.DeviceInfo, 0, len(paths))
	for _, p := range paths {
		devices = append(devices, camera.DeviceInfo{
			ID:     p,
			Name:   filepath.Base(p),
			Facing: s.opts.Facing,
		})
	}
	return devices, nil
}

// NewReader implements camera.Service.
func (s *Service) NewReader(cfg camera.ReaderConfig) (camera.Reader, error) {
	if cfg.Format != camera.FormatGray8 {
		return nil, fmt.Errorf("gstreamer: unsupported reader format %d", cfg.Format)
	}
	return camera.NewImageQueue("appsink", cfg), nil
}

// PreviewTarget implements camera.Service. The preview is drawn by the
// render loop from processed frames, so the target only names the branch.
func (s *Service) PreviewTarget() camera.Target {
	return previewTarget{}
}

// OpenDevice implements camera.Service. The device node is checked on a
// separate goroutine and the result posted on exec.
func (s *Service) OpenDevice(id string, exec camera.Executor, cb camera.DeviceCallbacks) error {
	go func() {
		f, err := os.OpenFile(id, os.O_RDWR, 0)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				err = fmt.Errorf("%w: %v", camera.ErrAccessDenied, err)
			}
			exec.Post(func() { cb.OnError(nil, err) })
			return
		}
		f.Close()

		dev := &device{id: id, svc: s, cb: cb, exec: exec}
		if !exec.Post(func() { cb.OnOpened(dev) }) {
			s.logger.Debug("open result refused, closing device", "device", id)
			dev.Close()
		}
	}()
	return nil
}

var _ camera.Service = (*Service)(nil)

type previewTarget struct{}

func (previewTarget) TargetName() string { return "gst-preview" }

type device struct {
	id   string
	svc  *Service
	cb   camera.DeviceCallbacks
	exec camera.Executor

	mu     sync.Mutex
	closed bool
}

func (d *device) ID() string { return d.id }

// CreatePipeline builds the GStreamer pipeline feeding the reader among
// targets. The pipeline is created but left in the NULL state.
func (d *device) CreatePipeline(targets []camera.Target, exec camera.Executor, cb camera.PipelineCallbacks) error {
	var q *camera.ImageQueue
	for _, t := range targets {
		if r, ok := t.(*camera.ImageQueue); ok {
			q = r
		}
	}
	if q == nil {
		return fmt.Errorf("%w: no appsink reader among targets", camera.ErrConfigurationFailed)
	}

	p, err := newPipeline(d, q)
	if err != nil {
		exec.Post(func() { cb.OnConfigureFailed(nil, err) })
		return nil
	}
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
	return nil
}
