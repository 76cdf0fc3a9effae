package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/camera"
	"github.com/teslashibe/go-edgecam/pkg/edge"
	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/pipeline"
)

type fakeSource struct {
	mu      sync.Mutex
	st      pipeline.Stats
	last    *frame.Buffer
	cameras *camera.Manager
}

func (f *fakeSource) Stats() pipeline.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeSource) Last() (*frame.Buffer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.last != nil
}

func (f *fakeSource) SetProcessing(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.Processing = on
	f.st.Label = edge.LabelOff
	if on {
		f.st.Label = edge.LabelOn
	}
}

func (f *fakeSource) ToggleProcessing() bool {
	on := !f.Stats().Processing
	f.SetProcessing(on)
	return on
}

func (f *fakeSource) Subscribe(func(pipeline.Stats)) func() { return func() {} }

func (f *fakeSource) Camera() *camera.Manager { return f.cameras }

func newTestServer(t *testing.T) (*Server, *fakeSource) {
	t.Helper()
	src := &fakeSource{cameras: camera.NewManager(camera.DefaultConfig()), st: pipeline.Stats{
		FPS:              29.5,
		ProcessingTimeMs: 8,
		Width:            4,
		Height:           2,
		Filter:           "Canny Edge",
		Label:            edge.LabelOn,
		Processing:       true,
		Frames:           12,
		State:            "streaming",
	}}
	return NewServer(Config{}, src, log.Discard()), src
}

func do(t *testing.T, s *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, 2000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestServer_Stats(t *testing.T) {
	s, _ := newTestServer(t)
	resp, body := do(t, s, http.MethodGet, "/api/stats", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got StatsResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Stats.FPS != 29.5 || got.Stats.ProcessingTime != 8 || got.Stats.FilterType != "Canny Edge" {
		t.Errorf("stats = %+v", got.Stats)
	}
	if got.State != "streaming" || got.Frames != 12 || !got.Processing {
		t.Errorf("response = %+v", got)
	}
}

func TestServer_GetFrame(t *testing.T) {
	s, src := newTestServer(t)

	resp, _ := do(t, s, http.MethodGet, "/api/frame", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status without frames = %d, want 404", resp.StatusCode)
	}

	buf, err := frame.New([]byte{0, 64, 128, 255, 255, 128, 64, 0}, 4, 2, time.UnixMilli(5000))
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	src.mu.Lock()
	src.last = buf
	src.mu.Unlock()

	resp, body := do(t, s, http.MethodGet, "/api/frame", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got FrameResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(got.Image, prefix) || got.Source != "local" {
		t.Fatalf("image prefix/source wrong: source=%q", got.Source)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got.Image, prefix))
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("jpeg.Decode: %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Errorf("decoded %v, want 4x2", img.Bounds())
	}
}

func TestServer_PushFrame(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"image":"data:image/png;base64,` + pngBase64(t, 6, 3) + `","stats":{"fps":15,"processingTime":25,"filterType":"Canny Edge"}}`
	resp, _ := do(t, s, http.MethodPost, "/api/frame", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	// Partial update keeps earlier fields.
	body = `{"image":"` + pngBase64(t, 6, 3) + `","stats":{"fps":12.5}}`
	if resp, _ := do(t, s, http.MethodPost, "/api/frame", body); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("second push status = %d", resp.StatusCode)
	}

	resp, data := do(t, s, http.MethodGet, "/api/frame", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
	var got FrameResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Source != "remote" || !strings.HasPrefix(got.Image, "data:image/png;base64,") {
		t.Errorf("source=%q image prefix wrong", got.Source)
	}
	want := FrameStats{FPS: 12.5, Width: 6, Height: 3, ProcessingTime: 25, FilterType: "Canny Edge"}
	if got.Stats != want {
		t.Errorf("stats = %+v, want %+v", got.Stats, want)
	}
}

func TestServer_PushFrameRejects(t *testing.T) {
	s, _ := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing image", `{"stats":{}}`},
		{"bad base64", `{"image":"%%%"}`},
		{"not an image", `{"image":"` + base64.StdEncoding.EncodeToString([]byte("hello")) + `"}`},
		{"data url without comma", `{"image":"data:image/png;base64"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := do(t, s, http.MethodPost, "/api/frame", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestServer_Processing(t *testing.T) {
	s, src := newTestServer(t)

	tests := []struct {
		body  string
		want  bool
		label string
	}{
		{"", false, edge.LabelOff},
		{"", true, edge.LabelOn},
		{`{"enabled":false}`, false, edge.LabelOff},
		{`{"enabled":false}`, false, edge.LabelOff},
		{`{"enabled":true}`, true, edge.LabelOn},
	}
	for i, tt := range tests {
		resp, body := do(t, s, http.MethodPost, "/api/processing", tt.body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%d: status = %d", i, resp.StatusCode)
		}
		var got struct {
			Processing bool   `json:"processing"`
			Label      string `json:"label"`
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("%d: decode: %v", i, err)
		}
		if got.Processing != tt.want || got.Label != tt.label {
			t.Errorf("%d: got %+v, want processing=%v label=%q", i, got, tt.want, tt.label)
		}
		if src.Stats().Processing != tt.want {
			t.Errorf("%d: source not updated", i)
		}
	}
}

func TestServer_Camera(t *testing.T) {
	s, src := newTestServer(t)

	resp, body := do(t, s, http.MethodGet, "/api/camera", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
	var got CameraResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Config.Width != 640 || len(got.Presets) == 0 {
		t.Errorf("camera = %+v", got)
	}

	tests := []struct {
		body   string
		status int
	}{
		{`{"width":320,"height":240}`, http.StatusOK},
		{`{"preset":"nope"}`, http.StatusBadRequest},
		{`{"width":1}`, http.StatusBadRequest},
		{`[`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if resp, _ := do(t, s, http.MethodPost, "/api/camera", tt.body); resp.StatusCode != tt.status {
			t.Errorf("POST %s status = %d, want %d", tt.body, resp.StatusCode, tt.status)
		}
	}
	if cfg := src.cameras.Config(); cfg.Width != 320 || cfg.Height != 240 {
		t.Errorf("config = %dx%d, want 320x240", cfg.Width, cfg.Height)
	}
}

func TestServer_WebsocketRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t)
	resp, _ := do(t, s, http.MethodGet, "/ws/stats", "")
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestWatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/stats" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(FrameStats{FPS: 30, FilterType: "Canny Edge"})
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(FrameStats{FPS: 29, FilterType: "None"})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	var got []FrameStats
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := Watch(ctx, strings.TrimPrefix(srv.URL, "http://"), func(st FrameStats) {
		got = append(got, st)
	})
	if err != nil {
		t.Fatalf("Watch error = %v", err)
	}
	if len(got) != 2 || got[0].FPS != 30 || got[1].FilterType != "None" {
		t.Errorf("got %+v", got)
	}
}

func TestStatsURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"localhost:8080", "ws://localhost:8080/ws/stats", false},
		{"127.0.0.1:9000", "ws://127.0.0.1:9000/ws/stats", false},
		{"http://cam.local:8080", "ws://cam.local:8080/ws/stats", false},
		{"wss://cam.local/custom", "wss://cam.local/custom", false},
		{"ftp://cam.local", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := statsURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("statsURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("statsURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
