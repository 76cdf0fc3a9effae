package edge

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// CannyConfig holds edge detector parameters.
type CannyConfig struct {
	Low  float32 `json:"low" yaml:"low"`   // Hysteresis lower threshold
	High float32 `json:"high" yaml:"high"` // Hysteresis upper threshold

	// Blur smooths the image before detection to suppress sensor noise.
	Blur       bool    `json:"blur" yaml:"blur"`
	BlurKernel int     `json:"blur_kernel" yaml:"blur_kernel"` // Odd kernel size
	BlurSigma  float64 `json:"blur_sigma" yaml:"blur_sigma"`
}

// DefaultCannyConfig returns thresholds 50/150 without blur.
func DefaultCannyConfig() CannyConfig {
	return CannyConfig{
		Low:        50,
		High:       150,
		Blur:       false,
		BlurKernel: 5,
		BlurSigma:  1.5,
	}
}

// Canny runs OpenCV Canny edge detection on gray frames.
type Canny struct {
	cfg CannyConfig

	// Scratch Mats are reused between frames.
	mu      sync.Mutex
	blurred gocv.Mat
	edges   gocv.Mat
}

// NewCanny creates a detector. Call Close to release the OpenCV buffers.
func NewCanny(cfg CannyConfig) *Canny {
	if cfg.BlurKernel <= 0 || cfg.BlurKernel%2 == 0 {
		cfg.BlurKernel = 5
	}
	return &Canny{
		cfg:     cfg,
		blurred: gocv.NewMat(),
		edges:   gocv.NewMat(),
	}
}

// Config returns the detector parameters.
func (c *Canny) Config() CannyConfig {
	return c.cfg
}

// Name implements Transform.
func (c *Canny) Name() string {
	if c.cfg.Blur {
		return "Canny Edge (blur)"
	}
	return "Canny Edge"
}

// Process implements Transform.
func (c *Canny) Process(pix []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 || len(pix) != width*height {
		return nil, fmt.Errorf("edge: canny input %d bytes for %dx%d", len(pix), width, height)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	src, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, pix)
	if err != nil {
		return nil, fmt.Errorf("edge: wrap frame: %w", err)
	}
	defer src.Close()

	in := src
	if c.cfg.Blur {
		k := c.cfg.BlurKernel
		gocv.GaussianBlur(src, &c.blurred, image.Pt(k, k), c.cfg.BlurSigma, c.cfg.BlurSigma, gocv.BorderDefault)
		in = c.blurred
	}

	gocv.Canny(in, &c.edges, c.cfg.Low, c.cfg.High)
	if c.edges.Empty() {
		return nil, fmt.Errorf("edge: canny produced no output")
	}

	out := c.edges.ToBytes()
	if len(out) != len(pix) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrOutputSize, len(out), len(pix))
	}
	return out, nil
}

// Close releases the scratch buffers.
func (c *Canny) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blurred.Close()
	c.edges.Close()
	return nil
}

var _ Transform = (*Canny)(nil)
