package camera

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/fps"
	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// FrameFunc receives each decoded frame with the current frame rate. It runs
// synchronously on the capture worker, so it must return quickly: a slow
// callback delays the handling of the next sensor frame.
type FrameFunc func(buf *frame.Buffer, fps float64)

// Producer turns reader events into intensity buffers.
type Producer struct {
	onFrame FrameFunc
	now     func() time.Time
	logger  *slog.Logger

	// tracker is only touched on the capture worker.
	tracker *fps.Tracker

	delivered atomic.Uint64
	skipped   atomic.Uint64
	lastFPS   atomic.Uint64 // math.Float64bits
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithClock replaces time.Now. Used to drive the FPS window in tests.
func WithClock(now func() time.Time) ProducerOption {
	return func(p *Producer) {
		p.now = now
	}
}

// WithProducerLogger sets the logger.
func WithProducerLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) {
		p.logger = l
	}
}

// NewProducer creates a producer delivering frames to onFrame, which may be nil.
func NewProducer(onFrame FrameFunc, opts ...ProducerOption) *Producer {
	p := &Producer{
		onFrame: onFrame,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.With("component", "producer")
	}
	p.tracker = fps.New(p.now())
	return p
}

// OnFrameReady handles one availability event from r. Frames that cannot be
// decoded are dropped without touching the FPS window. An event that finds
// the reader drained is ignored.
func (p *Producer) OnFrameReady(r Reader) {
	img, err := r.AcquireLatest()
	if err != nil {
		p.skip(fmt.Errorf("%w: acquire: %v", ErrFrameDecodeSkipped, err))
		return
	}
	if img == nil {
		// An earlier event already took the newest image.
		return
	}

	buf, err := p.extract(img)
	img.Close()
	if err != nil {
		p.skip(err)
		return
	}

	p.tracker.Tick()
	rate := p.tracker.Snapshot(buf.Timestamp)
	p.lastFPS.Store(math.Float64bits(rate))
	p.delivered.Add(1)

	if p.onFrame != nil {
		p.onFrame(buf, rate)
	}
}

// extract copies the intensity plane into a fresh width*height buffer.
func (p *Producer) extract(img Image) (*frame.Buffer, error) {
	w, h := img.Width(), img.Height()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: bad size %dx%d", ErrFrameDecodeSkipped, w, h)
	}

	plane, err := img.Plane(0)
	if err != nil {
		return nil, fmt.Errorf("%w: plane: %v", ErrFrameDecodeSkipped, err)
	}
	rowStride, pixStride := plane.RowStride, plane.PixelStride
	if rowStride == 0 {
		rowStride = w
	}
	if pixStride == 0 {
		pixStride = 1
	}

	need := (h-1)*rowStride + (w-1)*pixStride + 1
	if len(plane.Data) < need {
		return nil, fmt.Errorf("%w: plane has %d bytes, need %d", ErrFrameDecodeSkipped, len(plane.Data), need)
	}

	pix := make([]byte, w*h)
	switch {
	case rowStride == w && pixStride == 1:
		copy(pix, plane.Data[:w*h])
	case pixStride == 1:
		for y := 0; y < h; y++ {
			copy(pix[y*w:(y+1)*w], plane.Data[y*rowStride:y*rowStride+w])
		}
	default:
		for y := 0; y < h; y++ {
			row := plane.Data[y*rowStride:]
			for x := 0; x < w; x++ {
				pix[y*w+x] = row[x*pixStride]
			}
		}
	}

	return frame.New(pix, w, h, p.now())
}

func (p *Producer) skip(err error) {
	p.skipped.Add(1)
	p.logger.Debug("frame skipped", "error", err)
}

// Delivered returns the number of frames handed to the callback.
func (p *Producer) Delivered() uint64 {
	return p.delivered.Load()
}

// Skipped returns the number of frames dropped as undecodable.
func (p *Producer) Skipped() uint64 {
	return p.skipped.Load()
}

// FPS returns the rate reported with the last delivered frame.
func (p *Producer) FPS() float64 {
	return math.Float64frombits(p.lastFPS.Load())
}
