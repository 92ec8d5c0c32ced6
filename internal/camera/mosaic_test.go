package camera

import (
	"context"
	"image"
	"path/filepath"
	"testing"
	"time"
)

func solidFrame(w, h, channels int, v byte) *Frame {
	pix := make([]byte, w*h*channels)
	for i := range pix {
		pix[i] = v
	}
	return &Frame{Width: w, Height: h, Channels: channels, Pix: pix}
}

func pixelAt(f *Frame, x, y int) byte {
	return f.Pix[(y*f.Width+x)*3]
}

func TestCalculateLayout(t *testing.T) {
	size := Resolution{Width: 1280, Height: 960}
	tests := []struct {
		count      int
		cols, rows int
	}{
		{1, 1, 1},
		{2, 2, 1},
		{3, 2, 2},
		{4, 2, 2},
		{6, 4, 2},
	}

	for _, tt := range tests {
		l := calculateLayout(tt.count, size)
		if l.cols != tt.cols || l.rows != tt.rows {
			t.Errorf("count=%d: expected %dx%d, got %dx%d", tt.count, tt.cols, tt.rows, l.cols, l.rows)
		}
	}

	l := calculateLayout(4, size)
	if got := l.cell(3); got != image.Rect(640, 480, 1280, 960) {
		t.Errorf("Unexpected cell 3: %v", got)
	}
}

func TestCompose(t *testing.T) {
	// 2番目は未接続、3番目はモノクロ
	frames := []*Frame{
		solidFrame(8, 6, 3, 10),
		nil,
		solidFrame(4, 4, 1, 30),
		solidFrame(16, 12, 3, 40),
	}

	out, err := Compose(frames, Resolution{Width: 20, Height: 10})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("Invalid output: %v", err)
	}

	tests := []struct {
		name string
		x, y int
		want byte
	}{
		{"左上", 2, 2, 10},
		{"右上は黒", 12, 2, 0},
		{"左下", 2, 7, 30},
		{"右下", 15, 8, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pixelAt(out, tt.x, tt.y); got != tt.want {
				t.Errorf("Expected %d at (%d,%d), got %d", tt.want, tt.x, tt.y, got)
			}
		})
	}
}

func TestCompose_Errors(t *testing.T) {
	if _, err := Compose([]*Frame{solidFrame(2, 2, 3, 1)}, Resolution{}); err == nil {
		t.Error("Expected error for zero size")
	}
	if _, err := Compose(nil, Resolution{Width: 4, Height: 4}); err == nil {
		t.Error("Expected error for no frames")
	}
	bad := &Frame{Width: 2, Height: 2, Channels: 3, Pix: []byte{1}}
	if _, err := Compose([]*Frame{bad}, Resolution{Width: 4, Height: 4}); err == nil {
		t.Error("Expected error for invalid frame")
	}
}

func TestFleet_Mosaic(t *testing.T) {
	fleet := NewFleet(NewMockDiscoveryWithSerials("25308967"), (&MockWriterFactory{}).New, FleetConfig{
		OutputRoot: filepath.Join(t.TempDir(), "cam_video"),
		Session:    SessionConfig{RetrieveTimeout: 100 * time.Millisecond},
	}, testLogger)
	if _, err := fleet.DiscoverAndBind(context.Background(), referenceTargets); err != nil {
		t.Fatalf("DiscoverAndBind failed: %v", err)
	}

	size := Resolution{Width: 64, Height: 48}
	if _, ok, _ := fleet.Mosaic(size); ok {
		t.Error("Expected no mosaic before any frame")
	}

	if err := fleet.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	defer fleet.StopAll()

	waitFor(t, time.Second, func() bool {
		_, ok, _ := fleet.Mosaic(size)
		return ok
	})

	m, _, err := fleet.Mosaic(size)
	if err != nil {
		t.Fatalf("Mosaic failed: %v", err)
	}
	if m.Width != 64 || m.Height != 48 || m.Channels != 3 {
		t.Errorf("Unexpected mosaic format %dx%dx%d", m.Width, m.Height, m.Channels)
	}
	// 下カメラは未接続なので右上は黒
	if got := pixelAt(m, 48, 12); got != 0 {
		t.Errorf("Expected black cell for unbound role, got %d", got)
	}
}
