package edge

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/frame"
)

func mustBuffer(t *testing.T, pix []byte, w, h int) *frame.Buffer {
	t.Helper()
	buf, err := frame.New(pix, w, h, time.Unix(10, 0))
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return buf
}

func invert() Transform {
	return TransformFunc{Label: "Invert", Fn: func(pix []byte, w, h int) ([]byte, error) {
		out := make([]byte, len(pix))
		for i, v := range pix {
			out[i] = 255 - v
		}
		return out, nil
	}}
}

func TestIdentity(t *testing.T) {
	pix := []byte{1, 2, 3, 4}
	out, err := Identity{}.Process(pix, 2, 2)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}
	if !bytes.Equal(out, pix) {
		t.Errorf("got %v, want %v", out, pix)
	}
	if (Identity{}).Name() != "None" {
		t.Errorf("Name() = %q, want None", Identity{}.Name())
	}
}

func TestStage_Disabled(t *testing.T) {
	s := NewStage(invert(), WithStageLogger(log.Discard()))
	s.SetEnabled(false)

	pix := []byte{0, 10, 20, 30, 40, 50}
	buf := mustBuffer(t, pix, 3, 2)
	res := s.Apply(buf)

	if res.Buffer != buf {
		t.Error("disabled stage should hand back the same buffer")
	}
	if !bytes.Equal(res.Buffer.Pixels, []byte{0, 10, 20, 30, 40, 50}) {
		t.Errorf("pixels changed: %v", res.Buffer.Pixels)
	}
	if res.Filter != "None" {
		t.Errorf("Filter = %q, want None", res.Filter)
	}
	if s.Label() != LabelOff {
		t.Errorf("Label() = %q, want %q", s.Label(), LabelOff)
	}
}

func TestStage_Enabled(t *testing.T) {
	s := NewStage(invert(), WithStageLogger(log.Discard()))

	buf := mustBuffer(t, []byte{0, 255, 10, 245}, 2, 2)
	res := s.Apply(buf)

	want := []byte{255, 0, 245, 10}
	if !bytes.Equal(res.Buffer.Pixels, want) {
		t.Errorf("pixels = %v, want %v", res.Buffer.Pixels, want)
	}
	if res.Buffer.Timestamp != buf.Timestamp || res.Buffer.Width != 2 || res.Buffer.Height != 2 {
		t.Error("geometry or timestamp not carried over")
	}
	if !bytes.Equal(buf.Pixels, []byte{0, 255, 10, 245}) {
		t.Error("input buffer modified")
	}
	if res.Filter != "Invert" || s.Filter() != "Invert" {
		t.Errorf("Filter = %q, want Invert", res.Filter)
	}
	if s.Label() != LabelOn {
		t.Errorf("Label() = %q, want %q", s.Label(), LabelOn)
	}
}

func TestStage_Passthrough(t *testing.T) {
	tests := []struct {
		name string
		fn   func([]byte, int, int) ([]byte, error)
	}{
		{"error", func([]byte, int, int) ([]byte, error) { return nil, errors.New("opencv exception") }},
		{"short output", func(p []byte, w, h int) ([]byte, error) { return p[:1], nil }},
		{"long output", func(p []byte, w, h int) ([]byte, error) { return make([]byte, len(p)+1), nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStage(TransformFunc{Label: "Broken", Fn: tt.fn}, WithStageLogger(log.Discard()))
			buf := mustBuffer(t, []byte{1, 2, 3, 4}, 2, 2)

			res := s.Apply(buf)
			if !res.Passthrough {
				t.Error("Passthrough = false")
			}
			if res.Buffer != buf {
				t.Error("failed transform should pass the input through")
			}
			if s.Failures() != 1 {
				t.Errorf("Failures() = %d, want 1", s.Failures())
			}
		})
	}
}

func TestStage_Timing(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time {
		clock = clock.Add(7 * time.Millisecond)
		return clock
	}
	s := NewStage(invert(), WithStageClock(now), WithStageLogger(log.Discard()))

	res := s.Apply(mustBuffer(t, []byte{1}, 1, 1))
	if res.Duration != 7*time.Millisecond {
		t.Errorf("Duration = %v, want 7ms", res.Duration)
	}
	if s.LastDuration() != 7*time.Millisecond {
		t.Errorf("LastDuration() = %v, want 7ms", s.LastDuration())
	}
	if s.Processed() != 1 {
		t.Errorf("Processed() = %d, want 1", s.Processed())
	}
}

func TestStage_Toggle(t *testing.T) {
	s := NewStage(nil, WithStageLogger(log.Discard()))
	if !s.Enabled() {
		t.Fatal("new stage should be enabled")
	}
	if s.Toggle() {
		t.Error("first Toggle should disable")
	}
	if !s.Toggle() {
		t.Error("second Toggle should enable")
	}
	if s.Filter() != "None" {
		t.Errorf("nil transform Filter() = %q, want None", s.Filter())
	}
}
