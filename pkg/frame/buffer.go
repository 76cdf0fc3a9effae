// Package frame holds captured intensity frames and the latest-wins slot
// that hands them from the capture worker to the render loop.
package frame

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// Sentinel errors for buffer construction.
var (
	// ErrInvalidDimensions is returned for zero or negative width/height.
	ErrInvalidDimensions = errors.New("frame: invalid dimensions")

	// ErrSizeMismatch is returned when the pixel count is not width*height.
	ErrSizeMismatch = errors.New("frame: pixel length does not match width*height")
)

// Buffer is one captured frame reduced to its single-channel intensity plane.
//
// A Buffer is owned by whoever holds it last: the producer creates it,
// Slot.Publish takes it, TryConsume hands it to the consumer. Pixels must not
// be modified once the buffer has been published.
type Buffer struct {
	Pixels    []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// New validates and wraps pixels. It never truncates: any length other than
// width*height is rejected.
func New(pixels []byte, width, height int, ts time.Time) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if len(pixels) != width*height {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d", ErrSizeMismatch, len(pixels), width, height)
	}
	return &Buffer{
		Pixels:    pixels,
		Width:     width,
		Height:    height,
		Timestamp: ts,
	}, nil
}

// TimestampMs returns the capture time in Unix milliseconds.
func (b *Buffer) TimestampMs() uint64 {
	if b.Timestamp.IsZero() {
		return 0
	}
	return uint64(b.Timestamp.UnixMilli())
}

// Len returns the number of pixels.
func (b *Buffer) Len() int {
	return len(b.Pixels)
}

// WithPixels returns a new buffer with the same geometry and timestamp but
// different pixel data. Used when a transform produces its output.
func (b *Buffer) WithPixels(pixels []byte) (*Buffer, error) {
	return New(pixels, b.Width, b.Height, b.Timestamp)
}

// Gray returns an image.Gray view over the pixel data. The image shares
// memory with the buffer.
func (b *Buffer) Gray() *image.Gray {
	return &image.Gray{
		Pix:    b.Pixels,
		Stride: b.Width,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}
