package camera

import (
	"context"
	"time"
)

// Gradient renders a diagonal gray ramp shifted by phase, with a bright
// square that moves across the frame. It gives edge detection something to
// find when no sensor is attached.
func Gradient(width, height, phase int) []byte {
	pix := make([]byte, width*height)
	for y := 0; y < height; y++ {
		row := pix[y*width : (y+1)*width]
		for x := range row {
			row[x] = byte((x + y + phase) & 0xff)
		}
	}

	side := min(width, height) / 4
	if side == 0 {
		return pix
	}
	ox := (phase * 4) % max(width-side, 1)
	oy := (height - side) / 2
	for y := oy; y < oy+side; y++ {
		row := pix[y*width : (y+1)*width]
		for x := ox; x < ox+side && x < width; x++ {
			row[x] = 0xff
		}
	}
	return pix
}

// Run emits a synthetic frame every interval until ctx is done. Frames are
// dropped while no reader is open, so Run may start before the session.
func (m *MockService) Run(ctx context.Context, width, height int, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second / 30
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	phase := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Emit(Gradient(width, height, phase), width, height)
			phase++
		}
	}
}
