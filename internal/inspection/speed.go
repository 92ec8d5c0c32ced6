package inspection

import (
	"sync/atomic"

	"dcr/internal/relay"
)

// SavedSpeed は設定画面で最後に設定された速度（1〜10）
type SavedSpeed struct {
	v atomic.Int32
}

// NewSavedSpeed は初期値を範囲内に収めて作成する
func NewSavedSpeed(initial int) *SavedSpeed {
	s := &SavedSpeed{}
	s.Set(initial)
	return s
}

// Get は現在の速度を返す
func (s *SavedSpeed) Get() int { return int(s.v.Load()) }

// Set は速度を範囲内に収めて保存し、保存した値を返す
func (s *SavedSpeed) Set(v int) int {
	v = relay.ClampSpeed(v)
	s.v.Store(int32(v))
	return v
}
