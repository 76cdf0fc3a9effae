package render

import (
	"image"
	"sync"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// Canvas is a headless Backend. Its texture is an *image.Gray that uploads
// are copied into; draws are counted. The preview server and tests read it
// through Snapshot.
type Canvas struct {
	mu sync.Mutex

	tex       *image.Gray
	timestamp uint64
	vpW, vpH  int
	inited    bool
	released  bool
	closed    bool
	draws     uint64
	clears    uint64
	uploads   uint64
	reallocs  uint64
}

// NewCanvas creates a headless backend.
func NewCanvas() *Canvas {
	return &Canvas{}
}

func (c *Canvas) check(t *Thread) error {
	if !t.Valid() {
		return ErrInvalidThread
	}
	return nil
}

// Init implements Backend.
func (c *Canvas) Init(t *Thread) error {
	if err := c.check(t); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inited = true
	c.released = false
	return nil
}

// Upload implements Backend. The texture storage is kept while the size is
// unchanged and reallocated otherwise.
func (c *Canvas) Upload(t *Thread, buf *frame.Buffer) error {
	if err := c.check(t); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tex == nil || c.tex.Rect.Dx() != buf.Width || c.tex.Rect.Dy() != buf.Height {
		c.tex = image.NewGray(image.Rect(0, 0, buf.Width, buf.Height))
		c.reallocs++
	}
	copy(c.tex.Pix, buf.Pixels)
	c.timestamp = buf.TimestampMs()
	c.uploads++
	return nil
}

// Resize implements Backend.
func (c *Canvas) Resize(t *Thread, width, height int) {
	if c.check(t) != nil {
		return
	}
	c.mu.Lock()
	c.vpW, c.vpH = width, height
	c.mu.Unlock()
}

// Draw implements Backend.
func (c *Canvas) Draw(t *Thread) error {
	if err := c.check(t); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSurfaceClosed
	}
	if c.tex == nil {
		c.clears++
	} else {
		c.draws++
	}
	return nil
}

// Release implements Backend.
func (c *Canvas) Release(t *Thread) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
}

// Close makes the next Draw report ErrSurfaceClosed, like a closed window.
func (c *Canvas) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Snapshot returns a copy of the texture and its capture timestamp in Unix
// milliseconds. ok is false before the first upload.
func (c *Canvas) Snapshot() (img *image.Gray, timestampMs uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tex == nil {
		return nil, 0, false
	}
	cp := image.NewGray(c.tex.Rect)
	copy(cp.Pix, c.tex.Pix)
	return cp, c.timestamp, true
}

// CanvasStats are the headless backend counters.
type CanvasStats struct {
	Draws          uint64
	Clears         uint64
	Uploads        uint64
	Reallocs       uint64
	ViewportWidth  int
	ViewportHeight int
	Initialized    bool
	Released       bool
}

// Stats returns the backend counters.
func (c *Canvas) Stats() CanvasStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CanvasStats{
		Draws:          c.draws,
		Clears:         c.clears,
		Uploads:        c.uploads,
		Reallocs:       c.reallocs,
		ViewportWidth:  c.vpW,
		ViewportHeight: c.vpH,
		Initialized:    c.inited,
		Released:       c.released,
	}
}

var _ Backend = (*Canvas)(nil)
