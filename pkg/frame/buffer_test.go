package frame

import (
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	ts := time.UnixMilli(1700000000123)

	tests := []struct {
		name    string
		pixels  int
		width   int
		height  int
		wantErr error
	}{
		{name: "exact size", pixels: 12, width: 4, height: 3},
		{name: "too short", pixels: 11, width: 4, height: 3, wantErr: ErrSizeMismatch},
		{name: "too long", pixels: 13, width: 4, height: 3, wantErr: ErrSizeMismatch},
		{name: "zero width", pixels: 0, width: 0, height: 3, wantErr: ErrInvalidDimensions},
		{name: "negative height", pixels: 4, width: 4, height: -1, wantErr: ErrInvalidDimensions},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := New(make([]byte, tc.pixels), tc.width, tc.height, ts)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got err %v, want %v", err, tc.wantErr)
				}
				if buf != nil {
					t.Errorf("expected nil buffer on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if buf.Len() != tc.width*tc.height {
				t.Errorf("Len: got %d, want %d", buf.Len(), tc.width*tc.height)
			}
			if buf.TimestampMs() != 1700000000123 {
				t.Errorf("TimestampMs: got %d, want 1700000000123", buf.TimestampMs())
			}
		})
	}
}

func TestBuffer_WithPixels(t *testing.T) {
	buf, err := New([]byte{1, 2, 3, 4}, 2, 2, time.Now())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := buf.WithPixels([]byte{9, 9, 9, 9})
	if err != nil {
		t.Fatalf("WithPixels failed: %v", err)
	}
	if out.Width != 2 || out.Height != 2 || !out.Timestamp.Equal(buf.Timestamp) {
		t.Errorf("geometry/timestamp not carried over: %+v", out)
	}
	if buf.Pixels[0] != 1 {
		t.Errorf("original pixels modified")
	}

	if _, err := buf.WithPixels([]byte{1}); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("got err %v, want ErrSizeMismatch", err)
	}
}

func TestBuffer_Gray(t *testing.T) {
	buf, _ := New([]byte{10, 20, 30, 40, 50, 60}, 3, 2, time.Time{})
	img := buf.Gray()

	if got := img.GrayAt(2, 1).Y; got != 60 {
		t.Errorf("GrayAt(2,1): got %d, want 60", got)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Errorf("bounds: got %v", img.Bounds())
	}
	if buf.TimestampMs() != 0 {
		t.Errorf("zero timestamp should report 0 ms")
	}
}
