// Package config loads go-edgecam settings from a YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-edgecam/pkg/camera"
	"github.com/teslashibe/go-edgecam/pkg/edge"
)

// Camera drivers.
const (
	DriverMock      = "mock"
	DriverOpenCV    = "opencv"
	DriverGStreamer = "gstreamer"
)

// Render backends.
const (
	BackendHeadless = "headless"
	BackendGL       = "gl"
)

// Config is the full application configuration.
type Config struct {
	Driver     string           `yaml:"driver"`
	Camera     camera.Config    `yaml:"camera"`
	Edge       edge.CannyConfig `yaml:"edge"`
	Processing bool             `yaml:"processing"`
	Render     RenderConfig     `yaml:"render"`
	Preview    PreviewConfig    `yaml:"preview"`
	LogLevel   string           `yaml:"log_level"`
}

// RenderConfig selects and tunes the render backend.
type RenderConfig struct {
	Backend string `yaml:"backend"` // headless or gl
	Mode    string `yaml:"mode"`    // continuous or on-demand
	FPS     int    `yaml:"fps"`
	Title   string `yaml:"title"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
}

// PreviewConfig controls the optional preview web server.
type PreviewConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Port          string        `yaml:"port"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	JPEGQuality   int           `yaml:"jpeg_quality"`
}

// Default returns the built-in configuration: mock driver, Canny enabled,
// headless continuous rendering at 60 FPS, preview off.
func Default() Config {
	return Config{
		Driver:     DriverMock,
		Camera:     camera.DefaultConfig(),
		Edge:       edge.DefaultCannyConfig(),
		Processing: true,
		Render: RenderConfig{
			Backend: BackendHeadless,
			Mode:    "continuous",
			FPS:     60,
			Title:   "edgecam",
			Width:   640,
			Height:  480,
		},
		Preview: PreviewConfig{
			Enabled:       false,
			Port:          "8080",
			FrameInterval: 100 * time.Millisecond,
			JPEGQuality:   80,
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from EDGECAM_DRIVER, EDGECAM_DEVICE,
// EDGECAM_RENDER, EDGECAM_PREVIEW_PORT and LOG_LEVEL. Setting the preview
// port also enables the preview server.
func (c *Config) ApplyEnv() {
	c.Driver = envString("EDGECAM_DRIVER", c.Driver)
	c.Camera.Device = envString("EDGECAM_DEVICE", c.Camera.Device)
	c.Render.Backend = envString("EDGECAM_RENDER", c.Render.Backend)
	if port := os.Getenv("EDGECAM_PREVIEW_PORT"); port != "" {
		c.Preview.Port = port
		c.Preview.Enabled = true
	}
	c.Render.FPS = envInt("EDGECAM_RENDER_FPS", c.Render.FPS)
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)
}

// Validate returns every problem found, or nil.
func (c *Config) Validate() []string {
	var errs []string

	switch c.Driver {
	case DriverMock, DriverOpenCV, DriverGStreamer:
	default:
		errs = append(errs, fmt.Sprintf("driver must be %s, %s, or %s", DriverMock, DriverOpenCV, DriverGStreamer))
	}
	switch c.Render.Backend {
	case BackendHeadless, BackendGL:
	default:
		errs = append(errs, "render.backend must be headless or gl")
	}
	if c.Render.Mode != "continuous" && c.Render.Mode != "on-demand" {
		errs = append(errs, "render.mode must be continuous or on-demand")
	}
	if c.Render.FPS < 1 || c.Render.FPS > 240 {
		errs = append(errs, "render.fps must be between 1 and 240")
	}
	if c.Edge.Low < 0 || c.Edge.High < c.Edge.Low {
		errs = append(errs, "edge thresholds must satisfy 0 <= low <= high")
	}
	if c.Preview.Enabled {
		if n, err := strconv.Atoi(c.Preview.Port); err != nil || n < 1 || n > 65535 {
			errs = append(errs, "preview.port must be a port number")
		}
	}

	for _, e := range c.Camera.Validate() {
		errs = append(errs, "camera: "+e)
	}
	return errs
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
