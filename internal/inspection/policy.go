package inspection

import (
	"fmt"
	"sort"

	"dcr/internal/indicator"
	"dcr/internal/ledger"
	"dcr/internal/relay"
)

// Action は判定結果ごとの信号灯とリレーの動作
type Action struct {
	Pattern indicator.Pattern `json:"pattern"`
	Channel relay.Channel     `json:"channel"`
	Pulse   bool              `json:"pulse"`
}

// Policy は判定結果から動作への対応表
//
// 全ての分類を同じ規則で扱う。対応がない分類は何もしない。
type Policy map[ledger.Label]Action

// DefaultPolicy は実機の既定の対応
func DefaultPolicy() Policy {
	return Policy{
		ledger.Mold:      {Pattern: indicator.Violet, Channel: relay.Remove, Pulse: true},
		ledger.Immature:  {Pattern: indicator.Yellow, Channel: relay.Remove, Pulse: true},
		ledger.Healthy:   {Pattern: indicator.White, Channel: relay.Transport, Pulse: true},
		ledger.StemCrack: {Pattern: indicator.Blue, Channel: relay.Remove, Pulse: true},
	}
}

// KeyMap は操作キーから判定結果への対応表
type KeyMap map[string]ledger.Label

// DefaultKeyMap は数字キー1〜4の対応
func DefaultKeyMap() KeyMap {
	return KeyMap{
		"1": ledger.Mold,
		"2": ledger.Immature,
		"3": ledger.Healthy,
		"4": ledger.StemCrack,
	}
}

// Keys はキーを昇順で返す
func (k KeyMap) Keys() []string {
	keys := make([]string, 0, len(k))
	for key := range k {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Validate は未定義の分類が含まれていないか検証する
func (k KeyMap) Validate() error {
	for key, l := range k {
		if !l.Valid() {
			return fmt.Errorf("キー %q に不明な判定結果が割り当てられています", key)
		}
	}
	return nil
}
