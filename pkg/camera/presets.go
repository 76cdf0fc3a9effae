package camera

import "sort"

// Preset names accepted by LookupPreset.
const (
	PresetDefault    = "default"
	Preset720p       = "720p"
	Preset1080p      = "1080p"
	PresetLowLatency = "low-latency"
	PresetFront      = "front"
)

var presets = map[string]func() Config{
	PresetDefault: DefaultConfig,
	Preset720p: func() Config {
		cfg := DefaultConfig()
		cfg.Width, cfg.Height = 1280, 720
		return cfg
	},
	// Canny at this size costs noticeably more per frame.
	Preset1080p: func() Config {
		cfg := DefaultConfig()
		cfg.Width, cfg.Height = 1920, 1080
		return cfg
	},
	PresetLowLatency: LowLatencyConfig,
	PresetFront: func() Config {
		cfg := DefaultConfig()
		cfg.Facing = FacingFront.String()
		return cfg
	},
}

// LowLatencyConfig is a small 60 FPS capture with a single-image reader.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 320, 240
	cfg.Framerate = 60
	cfg.ReaderDepth = 1
	return cfg
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Config, bool) {
	fn, ok := presets[name]
	if !ok {
		return Config{}, false
	}
	return fn(), true
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
