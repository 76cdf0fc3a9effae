package preview

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/pipeline"
)

// ErrBadImage is returned for pushed frames that are not decodable images.
var ErrBadImage = errors.New("preview: invalid image")

// FrameStats is the stats record the browser viewer displays.
type FrameStats struct {
	FPS            float64 `json:"fps"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	ProcessingTime int64   `json:"processingTime"`
	FilterType     string  `json:"filterType"`
	Label          string  `json:"label,omitempty"`
	Timestamp      uint64  `json:"timestamp,omitempty"`
}

// FromPipeline converts pipeline telemetry to viewer stats.
func FromPipeline(st pipeline.Stats) FrameStats {
	return FrameStats{
		FPS:            st.FPS,
		Width:          st.Width,
		Height:         st.Height,
		ProcessingTime: st.ProcessingTimeMs,
		FilterType:     st.Filter,
		Label:          st.Label,
		Timestamp:      st.Timestamp,
	}
}

// RemoteFrame is a frame pushed by another device through POST /api/frame.
type RemoteFrame struct {
	Data        []byte
	ContentType string
	Stats       FrameStats
	Received    time.Time
}

// DataURL returns the frame as a data URL.
func (f *RemoteFrame) DataURL() string {
	return DataURL(f.ContentType, f.Data)
}

// DataURL builds a base64 data URL.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// EncodeJPEG encodes a gray frame.
func EncodeJPEG(buf *frame.Buffer, quality int) ([]byte, error) {
	var out bytes.Buffer
	if err := jpeg.Encode(&out, buf.Gray(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("preview: encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// decodeImage accepts raw base64 or a data URL and returns the image bytes,
// their content type and dimensions.
func decodeImage(s string) (data []byte, contentType string, width, height int, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", 0, 0, fmt.Errorf("%w: malformed data url", ErrBadImage)
		}
		s = s[comma+1:]
	}
	data, err = base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return data, "image/" + format, cfg.Width, cfg.Height, nil
}
