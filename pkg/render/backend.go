// Package render draws the latest published frame as a full-screen textured
// quad on a dedicated render thread.
//
// Every GPU call goes through a Backend, and every Backend method takes a
// *Thread. A Thread is only created inside Loop.Run on the locked OS thread,
// so GPU work cannot be issued from another goroutine.
package render

import (
	"errors"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// Sentinel errors for the render loop.
var (
	// ErrSurfaceClosed is returned by a Backend when its window or surface
	// has gone away. It ends Run.
	ErrSurfaceClosed = errors.New("render: surface closed")

	// ErrRunning is returned when Run is called on a loop already running.
	ErrRunning = errors.New("render: loop already running")

	// ErrInvalidThread is returned by backends given a Thread not created
	// by a running Loop.
	ErrInvalidThread = errors.New("render: invalid render thread")
)

// Thread proves the caller is on the render thread. The zero value is
// invalid; only Loop.Run creates valid ones.
type Thread struct {
	loop *Loop
}

// Valid reports whether t was created by a running loop.
func (t *Thread) Valid() bool {
	return t != nil && t.loop != nil && t.loop.running.Load()
}

// Backend owns the GPU context, the single intensity texture and the quad.
type Backend interface {
	// Init creates the context, texture and geometry.
	Init(t *Thread) error

	// Upload re-specifies the texture with buf at buf's size.
	Upload(t *Thread, buf *frame.Buffer) error

	// Resize sets the viewport.
	Resize(t *Thread, width, height int)

	// Draw renders the texture over the viewport, or clears when nothing has
	// been uploaded yet, and presents the result.
	Draw(t *Thread) error

	// Release frees everything Init created.
	Release(t *Thread)
}
