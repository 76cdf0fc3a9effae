// Edgecam - live camera edge detection on a GPU surface
//
// Captures frames from a camera, runs Canny edge detection on each one and
// draws the result every render tick, printing FPS and processing time.
//
// Usage:
//
//	edgecam -driver mock -render headless -duration 10s
//	edgecam -driver gstreamer -device /dev/video0 -render gl -preview 8080
//
// Send SIGUSR1 to toggle edge detection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/teslashibe/go-edgecam/internal/config"
	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/camera"
	"github.com/teslashibe/go-edgecam/pkg/camera/gstreamer"
	"github.com/teslashibe/go-edgecam/pkg/camera/opencv"
	"github.com/teslashibe/go-edgecam/pkg/edge"
	"github.com/teslashibe/go-edgecam/pkg/pipeline"
	"github.com/teslashibe/go-edgecam/pkg/preview"
	"github.com/teslashibe/go-edgecam/pkg/render"
	"github.com/teslashibe/go-edgecam/pkg/render/glwin"
)

func init() {
	// glfw must run on the main OS thread.
	runtime.LockOSThread()
}

var (
	configPath = flag.String("config", "", "YAML config file")
	driver     = flag.String("driver", "", "Camera driver: mock, opencv, gstreamer")
	device     = flag.String("device", "", "Camera device path or index")
	backend    = flag.String("render", "", "Render backend: headless, gl")
	mode       = flag.String("mode", "", "Render mode: continuous, on-demand")
	renderFPS  = flag.Int("fps", 0, "Render rate in continuous mode")
	width      = flag.Int("width", 0, "Capture width")
	height     = flag.Int("height", 0, "Capture height")
	preset     = flag.String("preset", "", "Camera preset: default, 720p, 1080p, low-latency, front")
	previewOn  = flag.String("preview", "", "Serve the preview API on this port")
	noProcess  = flag.Bool("no-process", false, "Start with edge detection off")
	blur       = flag.Bool("blur", false, "Gaussian blur before edge detection")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	duration   = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	statsEvery = flag.Duration("stats", time.Second, "Stats line interval")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "❌ config: %s\n", e)
		}
		os.Exit(2)
	}

	log.Init(cfg.LogLevel)
	logger := log.With("component", "edgecam")

	fmt.Println("🔥 edgecam")
	fmt.Println("==========")
	fmt.Printf("Driver: %s | Capture: %dx%d@%d | Render: %s (%s)\n",
		cfg.Driver, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.Framerate,
		cfg.Render.Backend, cfg.Render.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := run(ctx, cfg); err != nil {
		logger.Error("edgecam failed", "error", err)
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("👋 Bye")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()

	// Explicit flags win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "driver":
			cfg.Driver = *driver
		case "device":
			cfg.Camera.Device = *device
		case "render":
			cfg.Render.Backend = *backend
		case "mode":
			cfg.Render.Mode = *mode
		case "fps":
			cfg.Render.FPS = *renderFPS
		case "preset":
			if p, ok := camera.LookupPreset(*preset); ok {
				p.Device = cfg.Camera.Device
				cfg.Camera = p
			} else {
				log.Warn("unknown preset, ignoring", "preset", *preset, "available", camera.PresetNames())
			}
		case "preview":
			cfg.Preview.Enabled = true
			cfg.Preview.Port = *previewOn
		case "no-process":
			cfg.Processing = !*noProcess
		case "blur":
			cfg.Edge.Blur = *blur
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	// Size flags apply after a preset.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Camera.Width = *width
		case "height":
			cfg.Camera.Height = *height
		}
	})
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.With("component", "edgecam")

	svc, err := newService(ctx, cfg)
	if err != nil {
		return err
	}

	canny := edge.NewCanny(cfg.Edge)
	defer canny.Close()
	stage := edge.NewStage(canny, edge.WithStageLogger(log.With("component", "edge")))
	stage.SetEnabled(cfg.Processing)

	var loop *render.Loop
	var be render.Backend
	switch cfg.Render.Backend {
	case config.BackendGL:
		be = glwin.New(glwin.Options{
			Title:  cfg.Render.Title,
			Width:  cfg.Render.Width,
			Height: cfg.Render.Height,
			OnResize: func(w, h int) {
				logger.Debug("framebuffer resized", "width", w, "height", h)
			},
		}, log.With("component", "render.gl"))
	default:
		be = render.NewCanvas()
	}

	rcfg := render.Config{Mode: render.ParseMode(cfg.Render.Mode), FPS: cfg.Render.FPS}

	var pipeOpts []pipeline.Option
	if rcfg.Mode == render.OnDemand {
		pipeOpts = append(pipeOpts, pipeline.WithOnPublish(func(uint64) { loop.RequestRender() }))
	}
	p := pipeline.New(svc, cfg.Camera, stage, pipeOpts...)
	loop = render.NewLoop(p.Slot(), be, rcfg)

	defer p.Close()
	if err := p.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = p.WaitReady(readyCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("camera not ready: %w", err)
	}
	fmt.Printf("✅ Streaming (%s)\n", stage.Label())

	if cfg.Preview.Enabled {
		srv := preview.NewServer(preview.Config{
			Port:          cfg.Preview.Port,
			FrameInterval: cfg.Preview.FrameInterval,
			JPEGQuality:   cfg.Preview.JPEGQuality,
		}, p, log.With("component", "preview"))
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("preview server stopped", "error", err)
			}
		}()
		fmt.Printf("🌐 Preview: http://localhost:%s/api/stats\n", cfg.Preview.Port)
	}

	go printStats(ctx, p, *statsEvery)
	go toggleOnSignal(ctx, p)

	err = loop.Run(ctx)
	if errors.Is(err, render.ErrSurfaceClosed) {
		err = nil
	}

	st := p.Stats()
	rs := loop.Stats()
	fmt.Printf("\n📊 %d frames captured, %d uploaded, %d dropped | %s\n",
		st.Frames, rs.Uploads, st.Dropped, st)
	return err
}

func newService(ctx context.Context, cfg config.Config) (camera.Service, error) {
	facing := cfg.Camera.FacingOrDefault()
	switch cfg.Driver {
	case config.DriverGStreamer:
		opts := gstreamer.Options{Facing: facing, Framerate: cfg.Camera.Framerate}
		if cfg.Camera.Device != "" {
			opts.Pattern = cfg.Camera.Device
		}
		return gstreamer.New(opts, log.With("component", "gstreamer"))
	case config.DriverOpenCV:
		opts := opencv.Options{Facing: facing, Framerate: cfg.Camera.Framerate}
		if cfg.Camera.Device != "" {
			opts.Devices = []string{cfg.Camera.Device}
		}
		return opencv.New(opts, log.With("component", "opencv")), nil
	default:
		svc := camera.NewMockService(log.With("component", "mock"))
		interval := time.Second / time.Duration(cfg.Camera.Framerate)
		go svc.Run(ctx, cfg.Camera.Width, cfg.Camera.Height, interval)
		return svc, nil
	}
}

func printStats(ctx context.Context, p *pipeline.Pipeline, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := p.Stats()
			fmt.Printf("\r%s | %s | %s   ", st, st.Resolution, st.Label)
		}
	}
}

func toggleOnSignal(ctx context.Context, p *pipeline.Pipeline) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			p.ToggleProcessing()
			fmt.Printf("\n🔁 %s\n", p.Stats().Label)
		}
	}
}
