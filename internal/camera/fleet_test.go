package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var referenceTargets = []Target{
	{Serial: "25308967", Role: RoleTop},
	{Serial: "21905526", Role: RoleUnder},
	{Serial: "25308969", Role: RoleInside},
	{Serial: "25308968", Role: RoleOutside},
}

func newTestFleet(t *testing.T, discovery *MockDiscovery, writers *MockWriterFactory) (*Fleet, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "cam_video")
	cfg := FleetConfig{
		OutputRoot: root,
		Session: SessionConfig{
			RetrieveTimeout: 100 * time.Millisecond,
			StopTimeout:     time.Second,
		},
	}
	return NewFleet(discovery, writers.New, cfg, testLogger), root
}

func TestFleet_DiscoverAndBind_Partial(t *testing.T) {
	// 4台設定のうち3台だけ接続されている
	discovery := NewMockDiscoveryWithSerials("25308967", "21905526", "25308968", "99999999")
	fleet, root := newTestFleet(t, discovery, &MockWriterFactory{})

	report, err := fleet.DiscoverAndBind(context.Background(), referenceTargets)
	if err != nil {
		t.Fatalf("DiscoverAndBind failed: %v", err)
	}

	if len(report.Bound) != 3 {
		t.Errorf("Expected 3 bound sessions, got %d", len(report.Bound))
	}
	if len(report.Warnings) != 1 {
		t.Errorf("Expected 1 warning, got %d: %v", len(report.Warnings), report.Warnings)
	}
	if len(report.Missing) != 1 || report.Missing[0].Role != RoleInside {
		t.Errorf("Expected inside to be missing, got %+v", report.Missing)
	}

	m := report.Mismatch()
	if m == nil {
		t.Fatal("Expected a config mismatch")
	}
	if m.Configured != 4 || m.Bound != 3 {
		t.Errorf("Unexpected mismatch %+v", m)
	}

	sessions := fleet.Sessions()
	want := []Role{RoleTop, RoleUnder, RoleOutside}
	if len(sessions) != len(want) {
		t.Fatalf("Expected %d sessions, got %d", len(want), len(sessions))
	}
	for i, s := range sessions {
		if s.Role() != want[i] {
			t.Errorf("Session %d: expected %s, got %s", i, want[i], s.Role())
		}
	}

	if _, ok := fleet.Session(RoleInside); ok {
		t.Error("Expected no session for inside")
	}

	// 全Roleの保存先が作成される
	for _, role := range Roles {
		dir := filepath.Join(root, "cam_video_"+string(role))
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			t.Errorf("Expected directory %s to exist", dir)
		}
	}
}

func TestFleet_DiscoverAndBind_AllMatched(t *testing.T) {
	discovery := NewMockDiscoveryWithSerials("25308968", "25308969", "21905526", "25308967")
	fleet, _ := newTestFleet(t, discovery, &MockWriterFactory{})

	report, err := fleet.DiscoverAndBind(context.Background(), referenceTargets)
	if err != nil {
		t.Fatalf("DiscoverAndBind failed: %v", err)
	}
	if report.Mismatch() != nil {
		t.Errorf("Expected no mismatch, got %v", report.Mismatch())
	}
	if len(fleet.Sessions()) != 4 {
		t.Errorf("Expected 4 sessions, got %d", len(fleet.Sessions()))
	}
}

func TestFleet_DiscoverAndBind_NoDevices(t *testing.T) {
	tests := []struct {
		name    string
		serials []string
	}{
		{name: "接続なし", serials: nil},
		{name: "シリアル不一致", serials: []string{"11111111", "22222222"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fleet, _ := newTestFleet(t, NewMockDiscoveryWithSerials(tt.serials...), &MockWriterFactory{})

			_, err := fleet.DiscoverAndBind(context.Background(), referenceTargets)
			if !errors.Is(err, ErrNoDevicesFound) {
				t.Fatalf("Expected ErrNoDevicesFound, got %v", err)
			}
			if len(fleet.Sessions()) != 0 {
				t.Error("Expected no sessions")
			}
		})
	}
}

func TestFleet_StartAllIsolatesFailures(t *testing.T) {
	discovery := NewMockDiscoveryWithSerials("25308967", "21905526", "25308969", "25308968")
	discovery.SetOpenError("21905526", fmt.Errorf("busy"))
	fleet, _ := newTestFleet(t, discovery, &MockWriterFactory{})

	if _, err := fleet.DiscoverAndBind(context.Background(), referenceTargets); err != nil {
		t.Fatalf("DiscoverAndBind failed: %v", err)
	}

	err := fleet.StartAll(context.Background())
	if !errors.Is(err, ErrDeviceOpen) {
		t.Fatalf("Expected ErrDeviceOpen from StartAll, got %v", err)
	}

	for _, info := range fleet.Snapshot() {
		want := StatusActive
		if info.Role == RoleUnder {
			want = StatusError
		}
		if info.Status != want {
			t.Errorf("%s: expected %s, got %s", info.Role, want, info.Status)
		}
	}

	// 録画中は再検出できない
	if _, err := fleet.DiscoverAndBind(context.Background(), referenceTargets); err == nil {
		t.Error("Expected rebind to be refused while recording")
	}

	if err := fleet.StopAll(); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if err := fleet.StopAll(); err != nil {
		t.Fatalf("Second StopAll failed: %v", err)
	}

	for _, serial := range []string{"25308967", "25308969", "25308968"} {
		dev, ok := discovery.Opened(serial)
		if !ok {
			t.Fatalf("Expected %s to be opened", serial)
		}
		if dev.Closes() != 1 {
			t.Errorf("%s: expected 1 close, got %d", serial, dev.Closes())
		}
	}
}

func TestFleet_StopAllContinuesAfterFailure(t *testing.T) {
	discovery := NewMockDiscoveryWithSerials("25308967", "21905526", "25308969", "25308968")
	closeErr := fmt.Errorf("handle busy")
	discovery.NewDevice = func(info DeviceInfo) *MockDevice {
		d := NewMockDevice(Resolution{Width: 8, Height: 6}, 3)
		if info.Serial == "21905526" {
			d.CloseErr = closeErr
		}
		return d
	}
	fleet, _ := newTestFleet(t, discovery, &MockWriterFactory{})

	if _, err := fleet.DiscoverAndBind(context.Background(), referenceTargets); err != nil {
		t.Fatalf("DiscoverAndBind failed: %v", err)
	}
	if err := fleet.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}

	err := fleet.StopAll()
	if !errors.Is(err, closeErr) {
		t.Fatalf("Expected StopAll to report the close error, got %v", err)
	}

	// 1台の解放に失敗しても残りは全て解放される
	for _, target := range referenceTargets {
		dev, ok := discovery.Opened(target.Serial)
		if !ok {
			t.Fatalf("Expected %s to be opened", target.Serial)
		}
		if dev.Closes() != 1 {
			t.Errorf("%s: expected 1 close, got %d", target.Role, dev.Closes())
		}
	}
	for _, info := range fleet.Snapshot() {
		if info.Status != StatusInactive {
			t.Errorf("%s: expected inactive, got %s", info.Role, info.Status)
		}
	}
}

func TestFleetConfig_DirNames(t *testing.T) {
	cfg := FleetConfig{
		OutputRoot: "/data/cam_video",
		DirNames:   map[Role]string{RoleTop: "upper"},
	}

	if got := cfg.dirName(RoleTop); got != "upper" {
		t.Errorf("Expected override, got %s", got)
	}
	if got := cfg.dirName(RoleUnder); got != "cam_video_under" {
		t.Errorf("Expected cam_video_under, got %s", got)
	}
}
