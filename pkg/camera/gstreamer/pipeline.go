package gstreamer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/teslashibe/go-edgecam/pkg/camera"
)

type pipeline struct {
	dev    *device
	reader *camera.ImageQueue
	width  int
	height int

	pipe    *gst.Pipeline
	appsink *app.Sink

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	playing bool
	closed  bool

	samples atomic.Uint64
	skipped atomic.Uint64
}

// grayStride is the row stride GStreamer uses for GRAY8 video frames.
func grayStride(width int) int {
	return (width + 3) &^ 3
}

func newPipeline(d *device, q *camera.ImageQueue) (*pipeline, error) {
	cfg := q.Config()

	gp, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("%w: create pipeline: %v", camera.ErrConfigurationFailed, err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("%w: create v4l2src: %v", camera.ErrConfigurationFailed, err)
	}
	src.SetProperty("device", d.id)

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("%w: create videoconvert: %v", camera.ErrConfigurationFailed, err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("%w: create videoscale: %v", camera.ErrConfigurationFailed, err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("%w: create capsfilter: %v", camera.ErrConfigurationFailed, err)
	}
	capsStr := fmt.Sprintf("video/x-raw,format=GRAY8,width=%d,height=%d", cfg.Width, cfg.Height)
	if fps := d.svc.opts.Framerate; fps > 0 {
		capsStr += fmt.Sprintf(",framerate=%d/1", fps)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("%w: create appsink: %v", camera.ErrConfigurationFailed, err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", cfg.Depth)
	appsink.SetProperty("drop", true)

	if err := gp.AddMany(src, convert, scale, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("%w: add elements: %v", camera.ErrConfigurationFailed, err)
	}
	if err := gst.ElementLinkMany(src, convert, scale, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("%w: link elements: %v", camera.ErrConfigurationFailed, err)
	}

	p := &pipeline{
		dev:     d,
		reader:  q,
		width:   cfg.Width,
		height:  cfg.Height,
		pipe:    gp,
		appsink: appsink,
	}
	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: p.onNewSample,
	})

	d.svc.logger.Debug("pipeline created", "device", d.id, "caps", capsStr)
	return p, nil
}

// onNewSample copies the mapped GRAY8 buffer into the reader.
func (p *pipeline) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		p.skipped.Add(1)
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		p.skipped.Add(1)
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		p.skipped.Add(1)
		return gst.FlowOK
	}

	// GStreamer reuses the buffer.
	pix := make([]byte, len(data))
	copy(pix, data)
	buffer.Unmap()

	stride := grayStride(p.width)
	if len(pix) < stride*(p.height-1)+p.width {
		stride = p.width
	}

	p.samples.Add(1)
	p.reader.Push(camera.NewGrayImage(pix, p.width, p.height, stride, nil))
	return gst.FlowOK
}

// SetRepeatingRequest starts the pipeline and the bus monitor. GStreamer
// leaves focus and exposure to the V4L2 driver defaults.
func (p *pipeline) SetRepeatingRequest(req camera.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return camera.ErrClosed
	}
	if p.playing {
		return nil
	}

	if err := p.pipe.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("%w: start pipeline: %v", camera.ErrConfigurationFailed, err)
	}
	p.playing = true
	p.stop = make(chan struct{})

	p.wg.Add(1)
	go p.monitor(p.stop)

	p.dev.svc.logger.Info("pipeline playing",
		"device", p.dev.id,
		"resolution", fmt.Sprintf("%dx%d", p.width, p.height),
		"af_mode", req.AFMode,
	)
	return nil
}

// monitor watches the bus and reports errors and end of stream as device
// failures.
func (p *pipeline) monitor(stop <-chan struct{}) {
	defer p.wg.Done()

	bus := p.pipe.GetPipelineBus()
	for {
		select {
		case <-stop:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			p.report(func() { p.dev.cb.OnDisconnected(p.dev) })
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			p.dev.svc.logger.Error("pipeline error",
				"device", p.dev.id,
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			err := fmt.Errorf("gstreamer: %s", gerr.Error())
			p.report(func() { p.dev.cb.OnError(p.dev, err) })
			return
		}
	}
}

func (p *pipeline) report(fn func()) {
	if !p.dev.exec.Post(fn) {
		p.dev.svc.logger.Debug("pipeline event refused", "device", p.dev.id)
	}
}

// StopRepeating pauses the pipeline and joins the bus monitor.
func (p *pipeline) StopRepeating() error {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	p.playing = false
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	if err := p.pipe.SetState(gst.StatePaused); err != nil {
		return fmt.Errorf("gstreamer: pause pipeline: %w", err)
	}
	return nil
}

// Close sets the pipeline to NULL, releasing the device node.
func (p *pipeline) Close() error {
	if err := p.StopRepeating(); err != nil {
		p.dev.svc.logger.Warn("stop before close failed", "error", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.pipe.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstreamer: failed to set pipeline to NULL: %w", err)
	}
	p.dev.svc.logger.Debug("pipeline closed",
		"device", p.dev.id,
		"samples", p.samples.Load(),
		"skipped", p.skipped.Load(),
	)
	return nil
}
