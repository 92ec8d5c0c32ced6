package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceOpen はカメラハンドルを取得できなかったことを示す
	ErrDeviceOpen = errors.New("カメラのオープンに失敗")
	// ErrWriterInit は動画ファイルを作成できなかったことを示す
	ErrWriterInit = errors.New("動画ライターの作成に失敗")
	// ErrRetrieve はフレーム取得の失敗を示す（次のループで再試行される）
	ErrRetrieve = errors.New("フレーム取得に失敗")
	// ErrRetrieveTimeout はフレーム取得がタイムアウトしたことを示す
	ErrRetrieveTimeout = errors.New("フレーム取得がタイムアウト")
	// ErrDeviceFatal はデバイスが回復不能な状態にあることを示す
	ErrDeviceFatal = errors.New("カメラが回復不能な状態")
	// ErrStopTimeout はキャプチャループが時間内に終了しなかったことを示す（解放は後で行われる）
	ErrStopTimeout = errors.New("停止がタイムアウト")
	// ErrNoDevicesFound は設定されたカメラが1台も見つからなかったことを示す
	ErrNoDevicesFound = errors.New("カメラデバイスが見つかりません")
	// ErrInvalidFrame はフレームの寸法とデータ長が一致しないことを示す
	ErrInvalidFrame = errors.New("不正なフレーム")
)

// ConfigMismatchError は設定台数より少ないカメラしか接続できなかったことを示す
type ConfigMismatchError struct {
	Configured int
	Bound      int
	Missing    []Target
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("予定台数 %d に対し、接続成功は %d 台です", e.Configured, e.Bound)
}
