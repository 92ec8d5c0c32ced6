package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu       sync.Mutex
	devices  []DeviceInfo
	openErrs map[string]error
	opened   map[string]*MockDevice

	// NewDevice はOpenDeviceで返すデバイスを作る。nilならNewMockDeviceを使う
	NewDevice func(info DeviceInfo) *MockDevice
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices ...DeviceInfo) *MockDiscovery {
	return &MockDiscovery{
		devices:  devices,
		openErrs: make(map[string]error),
		opened:   make(map[string]*MockDevice),
	}
}

// NewMockDiscoveryWithSerials はシリアル番号だけを指定してMockDiscoveryを作成する
func NewMockDiscoveryWithSerials(serials ...string) *MockDiscovery {
	devices := make([]DeviceInfo, 0, len(serials))
	for i, s := range serials {
		devices = append(devices, DeviceInfo{
			Serial: s,
			Model:  fmt.Sprintf("テストカメラ %d", i+1),
			Path:   fmt.Sprintf("/dev/video%d", i*2),
			Index:  i * 2,
		})
	}
	return NewMockDiscovery(devices...)
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]DeviceInfo, len(m.devices))
	copy(result, m.devices)
	return result, nil
}

// OpenDevice はモックデバイスを返す
func (m *MockDiscovery) OpenDevice(_ context.Context, info DeviceInfo) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.openErrs[info.Serial]; err != nil {
		return nil, err
	}

	var dev *MockDevice
	if m.NewDevice != nil {
		dev = m.NewDevice(info)
	} else {
		dev = NewMockDevice(Resolution{Width: 32, Height: 24}, 3)
	}
	m.opened[info.Serial] = dev
	return dev, nil
}

// SetOpenError は指定シリアルのOpenDeviceを失敗させる
func (m *MockDiscovery) SetOpenError(serial string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrs[serial] = err
}

// Opened は最後にオープンされたデバイスを返す
func (m *MockDiscovery) Opened(serial string) (*MockDevice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.opened[serial]
	return dev, ok
}

// MockDevice はテスト用のカメラデバイス
//
// Retrieveのたびにピクセル値がフレーム番号になる画像を生成する。
type MockDevice struct {
	res      Resolution
	channels int
	interval time.Duration

	// RetrieveErr はn回目（1始まり）のRetrieveで返すエラーを決める
	RetrieveErr func(n int) error
	// CloseErr が設定されていればCloseは呼び出しを記録したうえで失敗する
	CloseErr error

	retrieves  atomic.Int64
	startGrabs atomic.Int32
	stopGrabs  atomic.Int32
	closes     atomic.Int32
}

// NewMockDevice は新しいMockDeviceを作成する
func NewMockDevice(res Resolution, channels int) *MockDevice {
	return &MockDevice{
		res:      res,
		channels: channels,
		interval: time.Millisecond,
	}
}

// StartGrab は呼び出し回数を記録する
func (d *MockDevice) StartGrab() error {
	d.startGrabs.Add(1)
	return nil
}

// Retrieve は生成したフレームを返す
func (d *MockDevice) Retrieve(ctx context.Context, timeout time.Duration) (*Frame, error) {
	n := int(d.retrieves.Add(1))

	wait := d.interval
	if wait > timeout {
		wait = timeout
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
	}

	if d.RetrieveErr != nil {
		if err := d.RetrieveErr(n); err != nil {
			return nil, err
		}
	}

	pix := make([]byte, d.res.Width*d.res.Height*d.channels)
	for i := range pix {
		pix[i] = byte(n)
	}
	return &Frame{
		Width:      d.res.Width,
		Height:     d.res.Height,
		Channels:   d.channels,
		Pix:        pix,
		CapturedAt: time.Now(),
	}, nil
}

// StopGrab は呼び出し回数を記録する
func (d *MockDevice) StopGrab() error {
	d.stopGrabs.Add(1)
	return nil
}

// Resolution は設定された解像度を返す
func (d *MockDevice) Resolution() Resolution { return d.res }

// Close は呼び出し回数を記録する
func (d *MockDevice) Close() error {
	d.closes.Add(1)
	return d.CloseErr
}

// Retrieves はRetrieveの呼び出し回数を返す
func (d *MockDevice) Retrieves() int { return int(d.retrieves.Load()) }

// StopGrabs はStopGrabの呼び出し回数を返す
func (d *MockDevice) StopGrabs() int { return int(d.stopGrabs.Load()) }

// Closes はCloseの呼び出し回数を返す
func (d *MockDevice) Closes() int { return int(d.closes.Load()) }

// MockWriter はテスト用の動画ライター
type MockWriter struct {
	Path string
	FPS  float64
	Size Resolution

	mu     sync.Mutex
	frames int
	closes int
}

// Write はフレーム数を記録する
func (w *MockWriter) Write(f *Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	w.frames++
	w.mu.Unlock()
	return nil
}

// Close は呼び出し回数を記録する
func (w *MockWriter) Close() error {
	w.mu.Lock()
	w.closes++
	w.mu.Unlock()
	return nil
}

// Frames は書き込まれたフレーム数を返す
func (w *MockWriter) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Closes はCloseの呼び出し回数を返す
func (w *MockWriter) Closes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closes
}

// MockWriterFactory は作成したMockWriterを記録する
type MockWriterFactory struct {
	mu      sync.Mutex
	writers []*MockWriter

	// Err が設定されていればNewは失敗する
	Err error
}

// New はWriterFactoryとして使う
func (f *MockWriterFactory) New(path string, fps float64, size Resolution) (VideoWriter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	w := &MockWriter{Path: path, FPS: fps, Size: size}
	f.writers = append(f.writers, w)
	return w, nil
}

// Writers は作成されたライター一覧を返す
func (f *MockWriterFactory) Writers() []*MockWriter {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]*MockWriter, len(f.writers))
	copy(result, f.writers)
	return result
}
