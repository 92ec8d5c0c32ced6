package indicator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestController(dev *MockDevice) *Controller {
	c := NewController(MockOpener(dev), Config{VendorID: 0x191a, ProductID: 0x6001, Settle: time.Second}, testLogger)
	c.sleep = func(time.Duration) {}
	return c
}

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		pattern Pattern
		code    byte
		label   string
	}{
		{Off, 0x00, "消灯"},
		{Red, 0x11, "赤"},
		{Green, 0x21, "緑"},
		{Yellow, 0x31, "黄"},
		{Blue, 0x41, "青"},
		{Violet, 0x51, "紫"},
		{Sky, 0x61, "空"},
		{White, 0x71, "白"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern.String(), func(t *testing.T) {
			cmd := BuildCommand(tt.pattern)
			want := [CommandSize]byte{0, 0, 0, 0x07, 0, tt.code, 0, 0, 0}
			if cmd != want {
				t.Errorf("Expected %v, got %v", want, cmd)
			}
			if tt.pattern.Label() != tt.label {
				t.Errorf("Expected label %s, got %s", tt.label, tt.pattern.Label())
			}
		})
	}
}

func TestParsePattern(t *testing.T) {
	for _, p := range Patterns {
		got, err := ParsePattern(p.String())
		if err != nil {
			t.Fatalf("ParsePattern(%s) failed: %v", p, err)
		}
		if got != p {
			t.Errorf("Expected %s, got %s", p, got)
		}
	}

	if _, err := ParsePattern("pink"); err == nil {
		t.Error("Expected error for unknown pattern")
	}
}

func TestController_NotConnected(t *testing.T) {
	c := newTestController(&MockDevice{})

	if err := c.SetPattern(Red); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Expected ErrNotConnected, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close on unconnected controller should be a no-op: %v", err)
	}
}

func TestController_ConnectTurnsOff(t *testing.T) {
	dev := &MockDevice{}
	c := newTestController(dev)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	// 2回目は何もしない
	if err := c.Connect(); err != nil {
		t.Fatalf("Second connect failed: %v", err)
	}

	writes := dev.Writes()
	if len(writes) != 1 {
		t.Fatalf("Expected 1 write on connect, got %d", len(writes))
	}
	if writes[0][5] != Off.Code() {
		t.Errorf("Expected OFF on connect, got %#x", writes[0][5])
	}
}

func TestController_ConnectFailure(t *testing.T) {
	c := NewController(func(uint16, uint16) (Device, error) {
		return nil, fmt.Errorf("no such device")
	}, Config{}, testLogger)

	if err := c.Connect(); err == nil {
		t.Fatal("Expected connect error")
	}
	if c.Connected() {
		t.Error("Expected controller to stay disconnected")
	}
}

func TestController_CloseAlwaysEndsWithOff(t *testing.T) {
	sequences := [][]Pattern{
		{},
		{Red},
		{Violet, Yellow, White},
		{Off, Blue, Off, Sky},
	}

	for i, seq := range sequences {
		t.Run(fmt.Sprintf("seq%d", i), func(t *testing.T) {
			dev := &MockDevice{}
			c := newTestController(dev)
			if err := c.Connect(); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}

			for _, p := range seq {
				if err := c.SetPattern(p); err != nil {
					t.Fatalf("SetPattern(%s) failed: %v", p, err)
				}
			}

			if err := c.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			code, ok := dev.LastCode()
			if !ok || code != Off.Code() {
				t.Errorf("Expected last command to be OFF, got %#x", code)
			}
			if dev.Closes() != 1 {
				t.Errorf("Expected device closed once, got %d", dev.Closes())
			}
			if c.Connected() {
				t.Error("Expected controller to be disconnected")
			}
		})
	}
}

func TestController_WriteError(t *testing.T) {
	dev := &MockDevice{}
	c := newTestController(dev)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	dev.WriteErr = fmt.Errorf("pipe broken")
	if err := c.SetPattern(Red); !errors.Is(err, ErrWrite) {
		t.Fatalf("Expected ErrWrite, got %v", err)
	}
	if c.Current() != Off {
		t.Errorf("Expected current pattern unchanged, got %s", c.Current())
	}
}

func TestController_UnknownPattern(t *testing.T) {
	dev := &MockDevice{}
	c := newTestController(dev)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := c.SetPattern(Red); err != nil {
		t.Fatalf("SetPattern failed: %v", err)
	}

	if err := c.SetPattern(Pattern(99)); !errors.Is(err, ErrUnknownPattern) {
		t.Fatalf("Expected ErrUnknownPattern, got %v", err)
	}

	// 消灯コマンドに化けて送信されない
	if n := len(dev.Writes()); n != 2 {
		t.Errorf("Expected no write for unknown pattern, got %d writes", n)
	}
	if c.Current() != Red {
		t.Errorf("Expected current pattern unchanged, got %s", c.Current())
	}
}
