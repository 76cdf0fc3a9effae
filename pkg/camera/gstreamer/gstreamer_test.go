package gstreamer

import "testing"

func TestGrayStride(t *testing.T) {
	tests := []struct {
		width, want int
	}{
		{640, 640},
		{1, 4},
		{322, 324},
		{323, 324},
		{324, 324},
	}
	for _, tt := range tests {
		if got := grayStride(tt.width); got != tt.want {
			t.Errorf("grayStride(%d) = %d, want %d", tt.width, got, tt.want)
		}
	}
}
