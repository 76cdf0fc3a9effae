// Package preview serves live frames and stats over HTTP and websockets, and
// accepts frames pushed by other devices the way the browser viewer does.
package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/camera"
	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/hub"
	"github.com/teslashibe/go-edgecam/pkg/pipeline"
)

// Source is what the server reads from. *pipeline.Pipeline implements it.
type Source interface {
	Stats() pipeline.Stats
	Last() (*frame.Buffer, bool)
	SetProcessing(on bool)
	ToggleProcessing() bool
	Subscribe(fn func(pipeline.Stats)) (unsubscribe func())
	Camera() *camera.Manager
}

// Config controls the preview server.
type Config struct {
	Port          string        `yaml:"port"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	JPEGQuality   int           `yaml:"jpeg_quality"`
}

// DefaultConfig listens on :8080 and streams frames at 10 Hz.
func DefaultConfig() Config {
	return Config{
		Port:          "8080",
		FrameInterval: 100 * time.Millisecond,
		JPEGQuality:   80,
	}
}

// Server is the preview HTTP server.
type Server struct {
	app    *fiber.App
	cfg    Config
	src    Source
	logger *slog.Logger

	statsHub  *hub.Hub
	framesHub *hub.Hub

	remoteMu sync.RWMutex
	remote   *RemoteFrame
}

// NewServer builds the routes. Call Run to serve.
func NewServer(cfg Config, src Source, logger *slog.Logger) *Server {
	def := DefaultConfig()
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if logger == nil {
		logger = log.With("component", "preview")
	}

	s := &Server{
		cfg:    cfg,
		src:    src,
		logger: logger,
	}
	s.statsHub = hub.New("stats",
		hub.WithLogger(logger.With("hub", "stats")),
		hub.WithGreeting(s.statsGreeting))
	s.framesHub = hub.New("frames", hub.WithLogger(logger.With("hub", "frames")))

	app := fiber.New(fiber.Config{
		AppName:               "edgecam preview",
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/stats", s.handleStats)
	api.Get("/frame", s.handleGetFrame)
	api.Post("/frame", s.handlePostFrame)
	api.Post("/processing", s.handleProcessing)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleUpdateCamera)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stats", websocket.New(s.handleStatsWS))
	app.Get("/ws/frames", websocket.New(s.handleFramesWS))

	s.app = app
	return s
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.statsHub.Run(ctx)
	go s.framesHub.Run(ctx)

	unsubscribe := s.src.Subscribe(func(st pipeline.Stats) {
		s.statsHub.BroadcastJSON(FromPipeline(st))
	})
	defer unsubscribe()

	go s.streamFrames(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("preview server listening", "addr", "http://localhost:"+s.cfg.Port)
		errCh <- s.app.Listen(":" + s.cfg.Port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("preview: listen: %w", err)
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			return fmt.Errorf("preview: shutdown: %w", err)
		}
		return nil
	}
}

// streamFrames pushes a JPEG of each new local frame to /ws/frames clients.
func (s *Server) streamFrames(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	var lastBuf *frame.Buffer
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.framesHub.ClientCount() == 0 {
			continue
		}
		buf, ok := s.src.Last()
		if !ok || buf == lastBuf {
			continue
		}
		lastBuf = buf

		data, err := EncodeJPEG(buf, s.cfg.JPEGQuality)
		if err != nil {
			s.logger.Warn("jpeg encode failed", "error", err)
			continue
		}
		s.framesHub.BroadcastFrame(data)
	}
}

// statsGreeting sends the current stats to a new /ws/stats client.
func (s *Server) statsGreeting() []hub.Message {
	data, err := json.Marshal(FromPipeline(s.src.Stats()))
	if err != nil {
		return nil
	}
	return []hub.Message{hub.Text(data)}
}

func (s *Server) handleStatsWS(c *websocket.Conn) {
	client := hub.NewClient(s.statsHub, c)
	if client == nil {
		return
	}
	client.OnMessage = func(data []byte) {
		if string(data) == "toggle" {
			on := s.src.ToggleProcessing()
			s.logger.Info("processing toggled from viewer", "processing", on)
		}
	}
	client.Run()
}

func (s *Server) handleFramesWS(c *websocket.Conn) {
	if client := hub.NewClient(s.framesHub, c); client != nil {
		client.Run()
	}
}
