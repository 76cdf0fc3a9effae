package camera

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ImageQueue is a depth-bounded Reader shared by the camera backends. Pushing
// beyond the depth closes the oldest image, and AcquireLatest hands out the
// newest image while closing everything older. Memory stays bounded and the
// sensor side never waits on the consumer.
type ImageQueue struct {
	name string
	cfg  ReaderConfig

	mu      sync.Mutex
	images  []Image
	exec    Executor
	onImage func(Reader)
	closed  bool

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// NewImageQueue creates a reader. A depth below 1 is raised to 1.
func NewImageQueue(name string, cfg ReaderConfig) *ImageQueue {
	if cfg.Depth < 1 {
		cfg.Depth = 1
	}
	return &ImageQueue{
		name: name,
		cfg:  cfg,
	}
}

// TargetName implements Target.
func (q *ImageQueue) TargetName() string {
	return q.name
}

// Config returns the reader configuration.
func (q *ImageQueue) Config() ReaderConfig {
	return q.cfg
}

// SetOnImageAvailable implements Reader.
func (q *ImageQueue) SetOnImageAvailable(exec Executor, fn func(Reader)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.exec = exec
	q.onImage = fn
}

// Push adds img and posts an availability event. It returns false and closes
// img when the queue is closed.
func (q *ImageQueue) Push(img Image) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		img.Close()
		return false
	}
	if len(q.images) >= q.cfg.Depth {
		oldest := q.images[0]
		q.images[0] = nil
		q.images = q.images[1:]
		oldest.Close()
		q.dropped.Add(1)
	}
	q.images = append(q.images, img)
	exec, fn := q.exec, q.onImage
	q.mu.Unlock()

	q.pushed.Add(1)
	if exec != nil && fn != nil {
		exec.Post(func() { fn(q) })
	}
	return true
}

// AcquireLatest implements Reader.
func (q *ImageQueue) AcquireLatest() (Image, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, fmt.Errorf("reader %s: %w", q.name, ErrClosed)
	}
	n := len(q.images)
	if n == 0 {
		return nil, nil
	}

	latest := q.images[n-1]
	for i := 0; i < n-1; i++ {
		q.images[i].Close()
		q.dropped.Add(1)
	}
	q.images = q.images[:0]
	return latest, nil
}

// Close releases queued images. Later pushes are refused.
func (q *ImageQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for _, img := range q.images {
		img.Close()
	}
	q.images = nil
	q.exec = nil
	q.onImage = nil
	return nil
}

// Closed reports whether Close has been called.
func (q *ImageQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued images.
func (q *ImageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.images)
}

// Pushed returns the number of images accepted.
func (q *ImageQueue) Pushed() uint64 {
	return q.pushed.Load()
}

// Dropped returns the number of images discarded before being acquired.
func (q *ImageQueue) Dropped() uint64 {
	return q.dropped.Load()
}

var _ Reader = (*ImageQueue)(nil)

// GrayImage is an in-memory single-plane image.
type GrayImage struct {
	pix     []byte
	width   int
	height  int
	stride  int
	onClose func()
	closed  atomic.Bool
}

// NewGrayImage wraps pix as a width x height image with the given row stride.
// A stride of 0 means width. onClose, if set, runs once on Close.
func NewGrayImage(pix []byte, width, height, stride int, onClose func()) *GrayImage {
	if stride == 0 {
		stride = width
	}
	return &GrayImage{
		pix:     pix,
		width:   width,
		height:  height,
		stride:  stride,
		onClose: onClose,
	}
}

// Width implements Image.
func (g *GrayImage) Width() int { return g.width }

// Height implements Image.
func (g *GrayImage) Height() int { return g.height }

// Plane implements Image. Only plane 0 exists.
func (g *GrayImage) Plane(i int) (Plane, error) {
	if i != 0 {
		return Plane{}, fmt.Errorf("gray image has no plane %d", i)
	}
	if g.closed.Load() {
		return Plane{}, ErrClosed
	}
	return Plane{Data: g.pix, RowStride: g.stride, PixelStride: 1}, nil
}

// Close implements Image.
func (g *GrayImage) Close() {
	if g.closed.Swap(true) {
		return
	}
	if g.onClose != nil {
		g.onClose()
	}
}

// IsClosed reports whether Close has been called.
func (g *GrayImage) IsClosed() bool {
	return g.closed.Load()
}

var _ Image = (*GrayImage)(nil)
