package camera

import (
	"context"
	"fmt"
	"time"
)

// Role はカメラの論理的な設置位置を表す
type Role string

const (
	RoleTop     Role = "top"     // 上カメラ
	RoleUnder   Role = "under"   // 下カメラ
	RoleInside  Role = "inside"  // 内カメラ
	RoleOutside Role = "outside" // 外カメラ
)

// Roles は表示・保存で使う固定の並び順
var Roles = []Role{RoleTop, RoleUnder, RoleInside, RoleOutside}

// ParseRole は文字列をRoleに変換する
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("不明なカメラ位置: %q", s)
}

// Status はカメラセッションの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // 停止中
	StatusActive   Status = "active"   // 録画中
	StatusError    Status = "error"    // エラーで停止
)

// Target は設定ファイルで定義するシリアル番号と位置の対応
type Target struct {
	Serial string `yaml:"serial"`
	Role   Role   `yaml:"role"`
}

// DeviceInfo は検出された物理カメラの情報
type DeviceInfo struct {
	Serial string // シリアル番号
	Model  string // モデル名
	Path   string // デバイスパス（例: /dev/video0）
	Index  int    // ドライバーに渡すデバイス番号
}

// Resolution はカメラの解像度を表す
type Resolution struct {
	Width  int `json:"width"`  // 幅
	Height int `json:"height"` // 高さ
}

// Device は物理カメラのドライバーを抽象化する
//
// 実装はスレッドセーフである必要はない。1つのセッションのキャプチャループだけが
// StartGrab/Retrieve/StopGrab を呼び出す。
type Device interface {
	// StartGrab は画像取得を開始する
	StartGrab() error

	// Retrieve は最大timeoutまで1フレームの取得を待つ
	Retrieve(ctx context.Context, timeout time.Duration) (*Frame, error)

	// StopGrab は画像取得を停止する
	StopGrab() error

	// Resolution はネゴシエーション済みの解像度を返す
	Resolution() Resolution

	// Close はデバイスハンドルを解放する
	Close() error
}

// Discovery は物理カメラの列挙とオープンを担う
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラを列挙する
	ScanDevices(ctx context.Context) ([]DeviceInfo, error)

	// OpenDevice は指定されたカメラを開く
	OpenDevice(ctx context.Context, info DeviceInfo) (Device, error)
}

// VideoWriter は動画ファイルへの書き込み先
type VideoWriter interface {
	Write(frame *Frame) error
	Close() error
}

// WriterFactory は動画ファイルを作成する関数
type WriterFactory func(path string, fps float64, size Resolution) (VideoWriter, error)

// SessionInfo はセッションの状態のスナップショット
type SessionInfo struct {
	ID             string     `json:"id"`
	Role           Role       `json:"role"`
	Serial         string     `json:"serial"`
	Model          string     `json:"model"`
	Status         Status     `json:"status"`
	Recording      bool       `json:"recording"`
	OutputPath     string     `json:"output_path"`
	Resolution     Resolution `json:"resolution"`
	FramesCaptured uint64     `json:"frames_captured"`
	FramesDropped  uint64     `json:"frames_dropped"`
	RetrieveErrors uint64     `json:"retrieve_errors"`
	LastFrameAt    time.Time  `json:"last_frame_at"`
}
