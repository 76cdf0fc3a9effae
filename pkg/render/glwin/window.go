// Package glwin is the on-screen render backend: an OpenGL 2.1 context in a glfw
// window drawing one luminance texture on a full-screen quad.
package glwin

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-gl/gl/v2.1/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/render"
)

const vertexShader = `
#version 120
attribute vec2 position;
attribute vec2 texCoord;
varying vec2 vTexCoord;
void main() {
	gl_Position = vec4(position, 0.0, 1.0);
	vTexCoord = texCoord;
}
` + "\x00"

const fragmentShader = `
#version 120
uniform sampler2D tex;
varying vec2 vTexCoord;
void main() {
	float y = texture2D(tex, vTexCoord).r;
	gl_FragColor = vec4(y, y, y, 1.0);
}
` + "\x00"

// Quad as a triangle strip: x, y, u, v. Row 0 of the frame is the top of
// the window, so v runs downward.
var quad = []float32{
	-1, -1, 0, 1,
	1, -1, 1, 1,
	-1, 1, 0, 0,
	1, 1, 1, 0,
}

// Options configures the window.
type Options struct {
	Title  string
	Width  int
	Height int
	// OnResize is called on the render thread when the framebuffer changes
	// size.
	OnResize func(width, height int)
}

// Window implements render.Backend.
type Window struct {
	opts   Options
	logger *slog.Logger

	win     *glfw.Window
	program uint32
	texture uint32
	vbo     uint32
	posLoc  uint32
	uvLoc   uint32

	texW, texH int
	hasTexture bool
}

// New creates an uninitialized window backend. The window itself is created
// by Init on the render thread.
func New(opts Options, logger *slog.Logger) *Window {
	if opts.Title == "" {
		opts.Title = "edgecam"
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 640, 480
	}
	if logger == nil {
		logger = log.With("component", "render.gl")
	}
	return &Window{opts: opts, logger: logger}
}

// Init implements render.Backend.
func (w *Window) Init(t *render.Thread) error {
	if !t.Valid() {
		return render.ErrInvalidThread
	}
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw init: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(w.opts.Width, w.opts.Height, w.opts.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("create window: %w", err)
	}
	win.MakeContextCurrent()
	glfw.SwapInterval(0)
	w.win = win

	if err := gl.Init(); err != nil {
		w.destroyWindow()
		return fmt.Errorf("gl init: %w", err)
	}

	program, err := linkProgram(vertexShader, fragmentShader)
	if err != nil {
		w.destroyWindow()
		return err
	}
	w.program = program
	w.posLoc = uint32(gl.GetAttribLocation(program, gl.Str("position\x00")))
	w.uvLoc = uint32(gl.GetAttribLocation(program, gl.Str("texCoord\x00")))

	gl.GenTextures(1, &w.texture)
	gl.BindTexture(gl.TEXTURE_2D, w.texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	// Rows are tightly packed single bytes.
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)

	gl.GenBuffers(1, &w.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, w.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(quad)*4, gl.Ptr(quad), gl.STATIC_DRAW)

	fbW, fbH := win.GetFramebufferSize()
	gl.Viewport(0, 0, int32(fbW), int32(fbH))
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		gl.Viewport(0, 0, int32(width), int32(height))
		if w.opts.OnResize != nil {
			w.opts.OnResize(width, height)
		}
	})

	w.logger.Info("gl window ready",
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)),
		"version", gl.GoStr(gl.GetString(gl.VERSION)),
		"framebuffer", fmt.Sprintf("%dx%d", fbW, fbH))
	return nil
}

// Upload implements render.Backend.
func (w *Window) Upload(t *render.Thread, buf *frame.Buffer) error {
	if !t.Valid() {
		return render.ErrInvalidThread
	}
	gl.BindTexture(gl.TEXTURE_2D, w.texture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.LUMINANCE,
		int32(buf.Width), int32(buf.Height), 0,
		gl.LUMINANCE, gl.UNSIGNED_BYTE, gl.Ptr(buf.Pixels))
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("gl: upload %dx%d: error 0x%x", buf.Width, buf.Height, code)
	}
	if buf.Width != w.texW || buf.Height != w.texH {
		w.logger.Debug("texture resized", "width", buf.Width, "height", buf.Height)
		w.texW, w.texH = buf.Width, buf.Height
	}
	w.hasTexture = true
	return nil
}

// Resize implements render.Backend.
func (w *Window) Resize(t *render.Thread, width, height int) {
	if !t.Valid() {
		return
	}
	gl.Viewport(0, 0, int32(width), int32(height))
}

// Draw implements render.Backend.
func (w *Window) Draw(t *render.Thread) error {
	if !t.Valid() {
		return render.ErrInvalidThread
	}

	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)

	if w.hasTexture {
		gl.UseProgram(w.program)
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, w.texture)
		gl.Uniform1i(gl.GetUniformLocation(w.program, gl.Str("tex\x00")), 0)

		gl.BindBuffer(gl.ARRAY_BUFFER, w.vbo)
		gl.EnableVertexAttribArray(w.posLoc)
		gl.VertexAttribPointer(w.posLoc, 2, gl.FLOAT, false, 4*4, gl.PtrOffset(0))
		gl.EnableVertexAttribArray(w.uvLoc)
		gl.VertexAttribPointer(w.uvLoc, 2, gl.FLOAT, false, 4*4, gl.PtrOffset(2*4))

		gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)

		gl.DisableVertexAttribArray(w.posLoc)
		gl.DisableVertexAttribArray(w.uvLoc)
	}

	w.win.SwapBuffers()
	glfw.PollEvents()
	if w.win.ShouldClose() {
		return render.ErrSurfaceClosed
	}
	return nil
}

// Release implements render.Backend.
func (w *Window) Release(t *render.Thread) {
	if w.win == nil {
		return
	}
	gl.DeleteBuffers(1, &w.vbo)
	gl.DeleteTextures(1, &w.texture)
	gl.DeleteProgram(w.program)
	w.destroyWindow()
	w.logger.Info("gl window released")
}

func (w *Window) destroyWindow() {
	if w.win != nil {
		w.win.Destroy()
		w.win = nil
	}
	glfw.Terminate()
}

func compileShader(src string, kind uint32) (uint32, error) {
	shader := gl.CreateShader(kind)
	csrc, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
		msg := strings.Repeat("\x00", int(n+1))
		gl.GetShaderInfoLog(shader, n, nil, gl.Str(msg))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("gl: compile shader: %s", strings.TrimRight(msg, "\x00"))
	}
	return shader, nil
}

func linkProgram(vsrc, fsrc string) (uint32, error) {
	vs, err := compileShader(vsrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vs)
	fs, err := compileShader(fsrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &n)
		msg := strings.Repeat("\x00", int(n+1))
		gl.GetProgramInfoLog(program, n, nil, gl.Str(msg))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("gl: link program: %s", strings.TrimRight(msg, "\x00"))
	}
	return program, nil
}

var _ render.Backend = (*Window)(nil)
