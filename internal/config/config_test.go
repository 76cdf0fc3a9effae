package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config invalid: %v", errs)
	}
	if cfg.Driver != DriverMock || cfg.Render.Backend != BackendHeadless {
		t.Errorf("driver=%q backend=%q", cfg.Driver, cfg.Render.Backend)
	}
	if cfg.Edge.Low != 50 || cfg.Edge.High != 150 {
		t.Errorf("edge thresholds = %v/%v, want 50/150", cfg.Edge.Low, cfg.Edge.High)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edgecam.yaml")
	data := `
driver: gstreamer
camera:
  width: 1280
  height: 720
  device: /dev/video2
edge:
  blur: true
render:
  mode: on-demand
preview:
  enabled: true
  port: "9090"
  frame_interval: 250ms
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.Driver != DriverGStreamer || cfg.Camera.Width != 1280 || cfg.Camera.Device != "/dev/video2" {
		t.Errorf("loaded %+v", cfg)
	}
	// Fields not in the file keep their defaults.
	if cfg.Camera.Framerate != 30 || cfg.Camera.ReaderDepth != 2 || cfg.Edge.High != 150 {
		t.Errorf("defaults lost: framerate=%d depth=%d high=%v", cfg.Camera.Framerate, cfg.Camera.ReaderDepth, cfg.Edge.High)
	}
	if !cfg.Edge.Blur || cfg.Render.Mode != "on-demand" {
		t.Errorf("blur=%v mode=%q", cfg.Edge.Blur, cfg.Render.Mode)
	}
	if cfg.Preview.FrameInterval != 250*time.Millisecond || cfg.Preview.Port != "9090" {
		t.Errorf("preview = %+v", cfg.Preview)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("loaded config invalid: %v", errs)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read config") {
		t.Errorf("missing file error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("driver: [unclosed"), 0o644)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Errorf("bad yaml error = %v", err)
	}

	cfg, err := Load("")
	if err != nil || cfg.Driver != DriverMock {
		t.Errorf("Load(\"\") = %+v, %v", cfg, err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("EDGECAM_DRIVER", "opencv")
	t.Setenv("EDGECAM_DEVICE", "1")
	t.Setenv("EDGECAM_RENDER", "gl")
	t.Setenv("EDGECAM_PREVIEW_PORT", "7000")
	t.Setenv("EDGECAM_RENDER_FPS", "nope")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Driver != DriverOpenCV || cfg.Camera.Device != "1" || cfg.Render.Backend != BackendGL {
		t.Errorf("driver=%q device=%q backend=%q", cfg.Driver, cfg.Camera.Device, cfg.Render.Backend)
	}
	if !cfg.Preview.Enabled || cfg.Preview.Port != "7000" {
		t.Errorf("preview = %+v", cfg.Preview)
	}
	if cfg.Render.FPS != 60 {
		t.Errorf("invalid EDGECAM_RENDER_FPS changed fps to %d", cfg.Render.FPS)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"driver", func(c *Config) { c.Driver = "v4l" }, "driver must be"},
		{"backend", func(c *Config) { c.Render.Backend = "vulkan" }, "render.backend"},
		{"mode", func(c *Config) { c.Render.Mode = "sometimes" }, "render.mode"},
		{"fps", func(c *Config) { c.Render.FPS = 0 }, "render.fps"},
		{"thresholds", func(c *Config) { c.Edge.Low, c.Edge.High = 200, 100 }, "edge thresholds"},
		{"port", func(c *Config) { c.Preview.Enabled, c.Preview.Port = true, "http" }, "preview.port"},
		{"camera", func(c *Config) { c.Camera.Width = 1 }, "camera: width"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			errs := cfg.Validate()
			if len(errs) != 1 || !strings.Contains(errs[0], tt.want) {
				t.Errorf("Validate() = %v, want one error containing %q", errs, tt.want)
			}
		})
	}
}
