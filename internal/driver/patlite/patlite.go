// Package patlite USB接続の信号灯をhidapi経由で開く
package patlite

import (
	"fmt"
	"sync"

	"github.com/sstallion/go-hid"

	"dcr/internal/indicator"
)

const (
	VendorID  uint16 = 0x191a
	ProductID uint16 = 0x6001
)

var (
	initOnce sync.Once
	initErr  error
)

func initHID() error {
	initOnce.Do(func() {
		initErr = hid.Init()
	})
	return initErr
}

// Open はベンダーIDと製品IDが一致する最初のデバイスを開く
func Open(vendorID, productID uint16) (indicator.Device, error) {
	if err := initHID(); err != nil {
		return nil, fmt.Errorf("hidapiの初期化に失敗: %w", err)
	}
	d, err := hid.OpenFirst(vendorID, productID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Info は検出された信号灯の情報
type Info struct {
	Path         string
	Serial       string
	Manufacturer string
	Product      string
}

// List は接続されている信号灯を列挙する
func List(vendorID, productID uint16) ([]Info, error) {
	if err := initHID(); err != nil {
		return nil, fmt.Errorf("hidapiの初期化に失敗: %w", err)
	}

	var infos []Info
	err := hid.Enumerate(vendorID, productID, func(info *hid.DeviceInfo) error {
		infos = append(infos, Info{
			Path:         info.Path,
			Serial:       info.SerialNbr,
			Manufacturer: info.MfrStr,
			Product:      info.ProductStr,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("HIDデバイスの列挙に失敗: %w", err)
	}
	return infos, nil
}

// Exit はhidapiの資源を解放する
func Exit() error {
	return hid.Exit()
}
