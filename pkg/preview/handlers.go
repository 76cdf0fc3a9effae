package preview

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-edgecam/pkg/camera"
)

// StatsResponse is the GET /api/stats body.
type StatsResponse struct {
	Stats        FrameStats `json:"stats"`
	Processing   bool       `json:"processing"`
	State        string     `json:"state"`
	Frames       uint64     `json:"frames"`
	Dropped      uint64     `json:"dropped"`
	StatsClients int        `json:"stats_clients"`
	FrameClients int        `json:"frame_clients"`
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	st := s.src.Stats()
	return c.JSON(StatsResponse{
		Stats:        FromPipeline(st),
		Processing:   st.Processing,
		State:        st.State,
		Frames:       st.Frames,
		Dropped:      st.Dropped,
		StatsClients: s.statsHub.ClientCount(),
		FrameClients: s.framesHub.ClientCount(),
	})
}

// FrameResponse is the GET /api/frame body.
type FrameResponse struct {
	Image  string     `json:"image"`
	Stats  FrameStats `json:"stats"`
	Source string     `json:"source"`
}

// handleGetFrame returns the latest local frame, or the last pushed frame when
// nothing has been captured locally.
func (s *Server) handleGetFrame(c *fiber.Ctx) error {
	if buf, ok := s.src.Last(); ok {
		data, err := EncodeJPEG(buf, s.cfg.JPEGQuality)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(FrameResponse{
			Image:  DataURL("image/jpeg", data),
			Stats:  FromPipeline(s.src.Stats()),
			Source: "local",
		})
	}

	s.remoteMu.RLock()
	remote := s.remote
	s.remoteMu.RUnlock()
	if remote == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no frame yet"})
	}
	return c.JSON(FrameResponse{
		Image:  remote.DataURL(),
		Stats:  remote.Stats,
		Source: "remote",
	})
}

// PushRequest is the POST /api/frame body. Stats fields left out keep their
// previous values.
type PushRequest struct {
	Image string         `json:"image"`
	Stats map[string]any `json:"stats"`
}

func (s *Server) handlePostFrame(c *fiber.Ctx) error {
	var req PushRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Image == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "image is required"})
	}

	data, contentType, w, h, err := decodeImage(req.Image)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	s.remoteMu.Lock()
	var stats FrameStats
	if s.remote != nil {
		stats = s.remote.Stats
	}
	mergeStats(&stats, req.Stats)
	stats.Width, stats.Height = w, h
	s.remote = &RemoteFrame{
		Data:        data,
		ContentType: contentType,
		Stats:       stats,
		Received:    time.Now(),
	}
	s.remoteMu.Unlock()

	s.framesHub.BroadcastFrame(data)
	s.statsHub.BroadcastJSON(stats)
	s.logger.Debug("frame pushed", "content_type", contentType, "width", w, "height", h)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"accepted": true,
		"width":    w,
		"height":   h,
	})
}

// mergeStats applies the known keys of a partial stats object.
func mergeStats(dst *FrameStats, src map[string]any) {
	if v, ok := src["fps"].(float64); ok {
		dst.FPS = v
	}
	if v, ok := src["processingTime"].(float64); ok {
		dst.ProcessingTime = int64(v)
	}
	if v, ok := src["filterType"].(string); ok {
		dst.FilterType = v
	}
	if v, ok := src["timestamp"].(float64); ok {
		dst.Timestamp = uint64(v)
	}
}

// ProcessingRequest is the POST /api/processing body. Without Enabled the
// setting is toggled.
type ProcessingRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleProcessing(c *fiber.Ctx) error {
	var req ProcessingRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
	}

	var on bool
	if req.Enabled != nil {
		on = *req.Enabled
		s.src.SetProcessing(on)
	} else {
		on = s.src.ToggleProcessing()
	}

	st := s.src.Stats()
	return c.JSON(fiber.Map{
		"processing": on,
		"label":      st.Label,
		"filter":     st.Filter,
	})
}

// CameraResponse is the GET and POST /api/camera body.
type CameraResponse struct {
	Config  camera.Config `json:"config"`
	Presets []string      `json:"presets"`
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(CameraResponse{
		Config:  s.src.Camera().Config(),
		Presets: camera.PresetNames(),
	})
}

// handleUpdateCamera applies a camera.Patch. A streaming session is reopened
// with the result.
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	var patch camera.Patch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	cfg, err := s.src.Camera().Update(patch)
	if errors.Is(err, camera.ErrInvalidConfig) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("camera config updated", "width", cfg.Width, "height", cfg.Height, "framerate", cfg.Framerate)
	return c.JSON(CameraResponse{Config: cfg, Presets: camera.PresetNames()})
}
