//go:build windows

package ydci

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"dcr/internal/relay"
)

var (
	dll        = windows.NewLazyDLL("Ydci.dll")
	procOpen   = dll.NewProc("YdciOpen")
	procRlyOut = dll.NewProc("YdciRlyOutput")
	procClose  = dll.NewProc("YdciClose")
)

// Board は開いたリレーボード
type Board struct {
	mu sync.Mutex
	id uint16
}

// Open はボード識別スイッチが0のボードを開く
func Open(boardName string) (relay.Board, error) {
	if err := dll.Load(); err != nil {
		return nil, fmt.Errorf("Ydci.dll が見つかりません: %w", err)
	}

	name, err := windows.BytePtrFromString(boardName)
	if err != nil {
		return nil, err
	}

	var id uint16
	r, _, _ := procOpen.Call(
		uintptr(0),
		uintptr(unsafe.Pointer(name)),
		uintptr(unsafe.Pointer(&id)),
		uintptr(openNormal),
	)
	if r != resultSuccess {
		return nil, &resultError{op: "YdciOpen", code: r}
	}
	return &Board{id: id}, nil
}

// SetOutput は1チャンネルの状態を設定する
func (b *Board) SetOutput(ch relay.Channel, st relay.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := byte(st)
	r, _, _ := procRlyOut.Call(
		uintptr(b.id),
		uintptr(unsafe.Pointer(&data)),
		uintptr(ch),
		uintptr(1),
	)
	if r != resultSuccess {
		return &resultError{op: fmt.Sprintf("YdciRlyOutput(ch%d)", int(ch)), code: r}
	}
	return nil
}

// Close はボードを解放する
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r, _, _ := procClose.Call(uintptr(b.id)); r != resultSuccess {
		return &resultError{op: "YdciClose", code: r}
	}
	return nil
}
