// Package edge provides the frame transforms applied between capture and
// display: Canny edge detection and the identity passthrough.
package edge

import "errors"

// ErrOutputSize is returned when a transform produces a buffer whose length
// differs from its input.
var ErrOutputSize = errors.New("edge: output size mismatch")

// Transform maps a width×height 8-bit intensity image to another of the same
// size. Implementations must not retain or modify pix.
type Transform interface {
	Process(pix []byte, width, height int) ([]byte, error)
	// Name is the filter label shown to viewers.
	Name() string
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc struct {
	Label string
	Fn    func(pix []byte, width, height int) ([]byte, error)
}

// Process calls f.Fn.
func (f TransformFunc) Process(pix []byte, width, height int) ([]byte, error) {
	return f.Fn(pix, width, height)
}

// Name returns f.Label.
func (f TransformFunc) Name() string {
	return f.Label
}

// Identity returns its input unchanged.
type Identity struct{}

// Process returns pix itself.
func (Identity) Process(pix []byte, width, height int) ([]byte, error) {
	return pix, nil
}

// Name returns "None".
func (Identity) Name() string {
	return "None"
}
