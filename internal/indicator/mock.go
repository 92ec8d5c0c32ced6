package indicator

import (
	"sync"
)

// MockDevice はテスト用のHIDデバイス。書き込まれたコマンドを記録する
type MockDevice struct {
	mu       sync.Mutex
	writes   [][]byte
	closed   int
	WriteErr error
}

// Write はコマンドを記録する
func (d *MockDevice) Write(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.WriteErr != nil {
		return 0, d.WriteErr
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	d.writes = append(d.writes, cp)
	return len(b), nil
}

// Close は呼び出し回数を記録する
func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// Writes は記録されたコマンドを返す
func (d *MockDevice) Writes() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([][]byte, len(d.writes))
	copy(result, d.writes)
	return result
}

// LastCode は最後に送られたLED制御バイトを返す
func (d *MockDevice) LastCode() (byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.writes) == 0 {
		return 0, false
	}
	return d.writes[len(d.writes)-1][5], true
}

// Closes はCloseの呼び出し回数を返す
func (d *MockDevice) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// MockOpener は常に同じMockDeviceを返すOpener
func MockOpener(dev *MockDevice) Opener {
	return func(uint16, uint16) (Device, error) {
		return dev, nil
	}
}
