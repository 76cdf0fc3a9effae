package camera

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidConfig is wrapped by Manager updates that fail validation.
var ErrInvalidConfig = errors.New("camera: invalid config")

// Patch is a partial config update, typically decoded from a JSON body.
// A Preset is applied first and the remaining fields override it.
type Patch struct {
	Preset      *string `json:"preset,omitempty"`
	Width       *int    `json:"width,omitempty"`
	Height      *int    `json:"height,omitempty"`
	Framerate   *int    `json:"framerate,omitempty"`
	ReaderDepth *int    `json:"reader_depth,omitempty"`
	Facing      *string `json:"facing,omitempty"`
	Device      *string `json:"device,omitempty"`
	AfMode      *string `json:"af_mode,omitempty"`
	AeMode      *string `json:"ae_mode,omitempty"`
}

// Apply returns base with the patch applied.
func (p Patch) Apply(base Config) (Config, error) {
	cfg := base
	if p.Preset != nil {
		preset, ok := LookupPreset(*p.Preset)
		if !ok {
			return base, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, *p.Preset)
		}
		cfg = preset
	}
	setInt(&cfg.Width, p.Width)
	setInt(&cfg.Height, p.Height)
	setInt(&cfg.Framerate, p.Framerate)
	setInt(&cfg.ReaderDepth, p.ReaderDepth)
	setString(&cfg.Facing, p.Facing)
	setString(&cfg.Device, p.Device)
	setString(&cfg.AfMode, p.AfMode)
	setString(&cfg.AeMode, p.AeMode)
	return cfg, nil
}

func setInt(dst, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Manager holds the camera config used for the next session. Whoever owns the
// session applies changes through OnChange.
type Manager struct {
	mu  sync.RWMutex
	cfg Config

	// OnChange runs after a valid config is stored. An error is returned to
	// the caller of Set or Update; the new config stays stored.
	OnChange func(cfg Config) error
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Config returns the current config.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Set validates and stores cfg, then runs OnChange.
func (m *Manager) Set(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	m.mu.Lock()
	m.cfg = cfg
	onChange := m.OnChange
	m.mu.Unlock()

	if onChange == nil {
		return nil
	}
	if err := onChange(cfg); err != nil {
		return fmt.Errorf("camera: apply config: %w", err)
	}
	return nil
}

// Update applies p to the current config and stores the result.
func (m *Manager) Update(p Patch) (Config, error) {
	cfg, err := p.Apply(m.Config())
	if err != nil {
		return m.Config(), err
	}
	if err := m.Set(cfg); err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			return m.Config(), err
		}
		return cfg, err
	}
	return cfg, nil
}
