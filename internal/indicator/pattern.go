package indicator

import (
	"fmt"
	"strings"
)

// Pattern は信号灯の点灯パターン
type Pattern int

const (
	Off Pattern = iota
	Red
	Green
	Yellow
	Blue
	Violet
	Sky
	White
)

type patternInfo struct {
	name  string
	code  byte
	label string
}

// patternTable はパターンごとの制御値と表示名
var patternTable = map[Pattern]patternInfo{
	Off:    {name: "off", code: 0x00, label: "消灯"},
	Red:    {name: "red", code: 0x11, label: "赤"},
	Green:  {name: "green", code: 0x21, label: "緑"},
	Yellow: {name: "yellow", code: 0x31, label: "黄"},
	Blue:   {name: "blue", code: 0x41, label: "青"},
	Violet: {name: "violet", code: 0x51, label: "紫"},
	Sky:    {name: "sky", code: 0x61, label: "空"},
	White:  {name: "white", code: 0x71, label: "白"},
}

// Patterns は全パターン
var Patterns = []Pattern{Off, Red, Green, Yellow, Blue, Violet, Sky, White}

// Code はLED制御バイトを返す
func (p Pattern) Code() byte { return patternTable[p].code }

// Label は表示名を返す
func (p Pattern) Label() string { return patternTable[p].label }

func (p Pattern) String() string {
	if info, ok := patternTable[p]; ok {
		return info.name
	}
	return fmt.Sprintf("Pattern(%d)", int(p))
}

// ParsePattern は名前からパターンを得る
func ParsePattern(s string) (Pattern, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Patterns {
		if patternTable[p].name == s {
			return p, nil
		}
	}
	return Off, fmt.Errorf("不明な点灯パターン: %q", s)
}

// MarshalText はYAMLやJSONで名前として書き出すために使う
func (p Pattern) MarshalText() ([]byte, error) {
	if _, ok := patternTable[p]; !ok {
		return nil, fmt.Errorf("不明な点灯パターン: %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText は名前からパターンを読み込む
func (p *Pattern) UnmarshalText(b []byte) error {
	v, err := ParsePattern(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// CommandSize はコマンドのバイト数
const CommandSize = 9

// BuildCommand はパターンを点灯させるコマンドを組み立てる
func BuildCommand(p Pattern) [CommandSize]byte {
	var cmd [CommandSize]byte
	cmd[0] = 0x00     // レポートID
	cmd[1] = 0x00     // コマンドバージョン
	cmd[2] = 0x00     // コマンドID
	cmd[3] = 0x07     // ブザー制御（変更なし）
	cmd[4] = 0x00     // ブザー音量
	cmd[5] = p.Code() // LED制御
	return cmd
}
