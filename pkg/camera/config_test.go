package camera

import (
	"errors"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("Expected 640x480, got %dx%d", cfg.Width, cfg.Height)
	}
	// Depth 2 lets one frame be processed while the next is captured
	if cfg.ReaderDepth != 2 {
		t.Errorf("Expected ReaderDepth=2, got %d", cfg.ReaderDepth)
	}
	if cfg.FacingOrDefault() != FacingBack {
		t.Errorf("Expected rear camera, got %s", cfg.FacingOrDefault())
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("DefaultConfig invalid: %v", errs)
	}
}

func TestPresets_Valid(t *testing.T) {
	names := PresetNames()
	if len(names) != 5 || names[0] != Preset1080p {
		t.Errorf("PresetNames() = %v", names)
	}
	for _, name := range names {
		cfg, ok := LookupPreset(name)
		if !ok {
			t.Errorf("%s: preset missing", name)
			continue
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("%s: invalid preset: %v", name, errs)
		}
	}

	if _, ok := LookupPreset("4k"); ok {
		t.Error("Expected unknown preset to be missing")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errs   int
	}{
		{"valid", func(*Config) {}, 0},
		{"tiny width", func(c *Config) { c.Width = 8 }, 1},
		{"huge height", func(c *Config) { c.Height = 10000 }, 1},
		{"zero framerate", func(c *Config) { c.Framerate = 0 }, 1},
		{"zero depth", func(c *Config) { c.ReaderDepth = 0 }, 1},
		{"bad facing", func(c *Config) { c.Facing = "sideways" }, 1},
		{"bad af", func(c *Config) { c.AfMode = "macro" }, 1},
		{"bad ae", func(c *Config) { c.AeMode = "auto" }, 1},
		{"empty modes allowed", func(c *Config) { c.Facing, c.AfMode, c.AeMode = "", "", "" }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if got := len(cfg.Validate()); got != tt.errs {
				t.Errorf("got %d errors (%v), want %d", got, cfg.Validate(), tt.errs)
			}
		})
	}
}

func TestConfig_Request(t *testing.T) {
	tests := []struct {
		af, ae string
		wantAF AFMode
		wantAE AEMode
	}{
		{"continuous", "on", AFContinuous, AEOn},
		{"", "", AFContinuous, AEOn},
		{"auto", "on", AFAuto, AEOn},
		{"off", "off", AFOff, AEOff},
	}

	targets := []Target{mockTarget("a"), mockTarget("b")}
	for _, tt := range tests {
		cfg := Config{AfMode: tt.af, AeMode: tt.ae}
		req := cfg.Request(targets)
		if req.AFMode != tt.wantAF || req.AEMode != tt.wantAE {
			t.Errorf("Request(af=%q, ae=%q) = (%d, %d), want (%d, %d)",
				tt.af, tt.ae, req.AFMode, req.AEMode, tt.wantAF, tt.wantAE)
		}
		if len(req.Targets) != 2 {
			t.Errorf("Request targets = %d, want 2", len(req.Targets))
		}
	}
}

func TestParseFacing(t *testing.T) {
	tests := map[string]Facing{
		"back":     FacingBack,
		"rear":     FacingBack,
		"front":    FacingFront,
		"external": FacingExternal,
		"":         FacingUnknown,
	}
	for in, want := range tests {
		if got := ParseFacing(in); got != want {
			t.Errorf("ParseFacing(%q) = %s, want %s", in, got, want)
		}
	}
}

func intp(v int) *int { return &v }

func strp(v string) *string { return &v }

func TestPatch_Apply(t *testing.T) {
	base := DefaultConfig()
	tests := []struct {
		name    string
		patch   Patch
		want    func(*Config)
		wantErr bool
	}{
		{"empty", Patch{}, func(*Config) {}, false},
		{"size", Patch{Width: intp(320), Height: intp(240)}, func(c *Config) { c.Width, c.Height = 320, 240 }, false},
		{"preset then override", Patch{Preset: strp(Preset720p), Framerate: intp(15)}, func(c *Config) {
			c.Width, c.Height, c.Framerate = 1280, 720, 15
		}, false},
		{"strings", Patch{Facing: strp("front"), Device: strp("/dev/video2"), AfMode: strp("off"), AeMode: strp("off")}, func(c *Config) {
			c.Facing, c.Device, c.AfMode, c.AeMode = "front", "/dev/video2", "off", "off"
		}, false},
		{"unknown preset", Patch{Preset: strp("8k")}, func(*Config) {}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.patch.Apply(base)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
			want := base
			tt.want(&want)
			if got != want {
				t.Errorf("Apply() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestManager_Update(t *testing.T) {
	m := NewManager(DefaultConfig())

	var applied []Config
	m.OnChange = func(cfg Config) error {
		applied = append(applied, cfg)
		return nil
	}

	cfg, err := m.Update(Patch{Width: intp(320), Height: intp(240)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if cfg.Width != 320 || m.Config().Height != 240 {
		t.Errorf("Expected 320x240, got %dx%d", m.Config().Width, m.Config().Height)
	}
	if len(applied) != 1 {
		t.Errorf("Expected 1 OnChange call, got %d", len(applied))
	}

	before := m.Config()
	for _, p := range []Patch{{Preset: strp("8k")}, {Framerate: intp(500)}} {
		if _, err := m.Update(p); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Update(%+v) error = %v, want ErrInvalidConfig", p, err)
		}
	}
	if m.Config() != before || len(applied) != 1 {
		t.Error("Invalid update must not change the config")
	}
}

func TestManager_CallbackError(t *testing.T) {
	m := NewManager(DefaultConfig())
	boom := errors.New("reopen failed")
	m.OnChange = func(Config) error { return boom }

	err := m.Set(LowLatencyConfig())
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped callback error, got %v", err)
	}
	if m.Config() != LowLatencyConfig() {
		t.Error("Config not stored when OnChange fails")
	}
}
