package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DeviceOpener は検出済みのカメラを実際のドライバーで開く関数
type DeviceOpener func(ctx context.Context, info DeviceInfo) (Device, error)

// LinuxDiscovery はsysfsを読んでUSBカメラのシリアル番号を取得する
type LinuxDiscovery struct {
	sysfsRoot string // 通常は /sys/class/video4linux
	devDir    string // 通常は /dev
	open      DeviceOpener
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery(open DeviceOpener) *LinuxDiscovery {
	return &LinuxDiscovery{
		sysfsRoot: "/sys/class/video4linux",
		devDir:    "/dev",
		open:      open,
	}
}

var videoNodePattern = regexp.MustCompile(`^video(\d+)$`)

// ScanDevices はシステム内のキャプチャデバイスを列挙する
//
// 1台のUVCカメラは複数のノード（映像とメタデータ）を持つため、
// indexが0のノードだけを対象にする。
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(d.sysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	var names []string
	for _, e := range entries {
		if videoNodePattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}

	// デバイス番号でソート
	sort.Slice(names, func(i, j int) bool {
		return extractDeviceNumber(names[i]) < extractDeviceNumber(names[j])
	})

	var devices []DeviceInfo
	for _, name := range names {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		node := filepath.Join(d.sysfsRoot, name)
		if idx, err := readSysfs(filepath.Join(node, "index")); err == nil && idx != "0" {
			continue
		}

		path := filepath.Join(d.devDir, name)
		devices = append(devices, DeviceInfo{
			Serial: d.readSerial(node),
			Model:  d.deviceName(node, path),
			Path:   path,
			Index:  extractDeviceNumber(name),
		})
	}

	return devices, nil
}

// OpenDevice はDeviceOpenerでカメラを開く
func (d *LinuxDiscovery) OpenDevice(ctx context.Context, info DeviceInfo) (Device, error) {
	if d.open == nil {
		return nil, fmt.Errorf("カメラドライバーが設定されていません")
	}
	return d.open(ctx, info)
}

// readSerial はノードが属するUSBデバイスのシリアル番号を読む
func (d *LinuxDiscovery) readSerial(node string) string {
	// device はUSBインターフェースを指すので、その親がUSBデバイス
	iface, err := filepath.EvalSymlinks(filepath.Join(node, "device"))
	if err != nil {
		return ""
	}
	serial, err := readSysfs(filepath.Join(filepath.Dir(iface), "serial"))
	if err != nil {
		return ""
	}
	return serial
}

// deviceName はカメラの表示名を返す
func (d *LinuxDiscovery) deviceName(node, path string) string {
	if name, err := readSysfs(filepath.Join(node, "name")); err == nil && name != "" {
		return name
	}
	if name := v4l2DeviceName(path); name != "" {
		return name
	}
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(path))
}

// v4l2DeviceName はv4l2-ctlを使って実際のデバイス名を取得する
func v4l2DeviceName(device string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	// "Card type" の行からカメラ名を抽出
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Card type") {
			continue
		}
		if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

func readSysfs(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// extractDeviceNumber はデバイス名から番号を抽出する
func extractDeviceNumber(device string) int {
	// videoXX から XX を抽出
	re := regexp.MustCompile(`video(\d+)`)
	matches := re.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}
