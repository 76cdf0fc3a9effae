package pipeline

import "fmt"

// Stats is the telemetry snapshot refreshed on every frame.
type Stats struct {
	FPS              float64 `json:"fps"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Resolution       string  `json:"resolution"`
	Filter           string  `json:"filter"`
	Label            string  `json:"label"`
	Processing       bool    `json:"processing"`
	Frames           uint64  `json:"frames"`
	Failures         uint64  `json:"failures"`
	Generation       uint64  `json:"generation"`
	Dropped          uint64  `json:"dropped"`
	Timestamp        uint64  `json:"timestamp"`
	State            string  `json:"state"`
	SessionID        string  `json:"session_id,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// String formats the on-screen stats line.
func (s Stats) String() string {
	return fmt.Sprintf("FPS: %.1f | Processing: %dms", s.FPS, s.ProcessingTimeMs)
}
