// Package camera drives a camera sensor through a capture session: device
// selection, pipeline configuration, the repeating request and the frame
// producer, all running on one dedicated worker goroutine.
package camera

// Config holds capture session parameters.
// These can be modified via the preview API and take effect on the next open.
type Config struct {
	// === Processing reader ===
	Width     int `json:"width" yaml:"width"`         // Frame width in pixels
	Height    int `json:"height" yaml:"height"`       // Frame height in pixels
	Framerate int `json:"framerate" yaml:"framerate"` // Target FPS

	// ReaderDepth bounds the images held by the processing reader.
	// 2 lets one frame be processed while the next is captured.
	ReaderDepth int `json:"reader_depth" yaml:"reader_depth"`

	// === Device selection ===
	// Facing picks the first device pointing this way.
	// Values: "back", "front", "external"
	Facing string `json:"facing" yaml:"facing"`

	// Device is a backend-specific device path or index, e.g. "/dev/video0".
	Device string `json:"device" yaml:"device"`

	// === Controls ===
	// AfMode controls autofocus behavior.
	// Values: "off", "auto", "continuous"
	AfMode string `json:"af_mode" yaml:"af_mode"`

	// AeMode controls auto exposure.
	// Values: "on", "off"
	AeMode string `json:"ae_mode" yaml:"ae_mode"`
}

// Sensor limits accepted by Validate.
const (
	MaxWidth     = 4608
	MaxHeight    = 2592
	MaxFramerate = 120
	MaxDepth     = 8
)

// DefaultConfig returns 640x480 at 30 FPS with a depth-2 reader on the rear camera.
func DefaultConfig() Config {
	return Config{
		Width:       640,
		Height:      480,
		Framerate:   30,
		ReaderDepth: 2,

		Facing: "back",
		Device: "",

		// Continuous autofocus and auto exposure for live preview
		AfMode: "continuous",
		AeMode: "on",
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < 16 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 16 and 4608")
	}
	if c.Height < 16 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 16 and 2592")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.ReaderDepth < 1 || c.ReaderDepth > MaxDepth {
		errors = append(errors, "reader_depth must be between 1 and 8")
	}

	if c.Facing != "" && ParseFacing(c.Facing) == FacingUnknown {
		errors = append(errors, "facing must be back, front, or external")
	}

	validAfModes := map[string]bool{"off": true, "auto": true, "continuous": true}
	if c.AfMode != "" && !validAfModes[c.AfMode] {
		errors = append(errors, "af_mode must be off, auto, or continuous")
	}

	validAeModes := map[string]bool{"on": true, "off": true}
	if c.AeMode != "" && !validAeModes[c.AeMode] {
		errors = append(errors, "ae_mode must be on or off")
	}

	return errors
}

// FacingOrDefault returns the configured facing, defaulting to the rear camera.
func (c *Config) FacingOrDefault() Facing {
	if f := ParseFacing(c.Facing); f != FacingUnknown {
		return f
	}
	return FacingBack
}

// Request builds the repeating request for targets from the control modes.
func (c *Config) Request(targets []Target) Request {
	req := Request{
		Targets: targets,
		AFMode:  AFContinuous,
		AEMode:  AEOn,
	}
	switch c.AfMode {
	case "off":
		req.AFMode = AFOff
	case "auto":
		req.AFMode = AFAuto
	}
	if c.AeMode == "off" {
		req.AEMode = AEOff
	}
	return req
}
