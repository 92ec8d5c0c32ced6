package relay

import (
	"fmt"
	"strings"
)

// Channel はリレーボードの出力チャンネル
type Channel int

const (
	Remove    Channel = 0 // 被害果除去用
	Transport Channel = 1 // 健全果運搬用
)

// Channels は全チャンネル
var Channels = []Channel{Remove, Transport}

func (c Channel) String() string {
	switch c {
	case Remove:
		return "remove"
	case Transport:
		return "transport"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// ParseChannel は名前からチャンネルを得る
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remove":
		return Remove, nil
	case "transport":
		return Transport, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidChannel, s)
	}
}

// MarshalText はチャンネル名を書き出す
func (c Channel) MarshalText() ([]byte, error) {
	if c != Remove && c != Transport {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText はチャンネル名を読み込む
func (c *Channel) UnmarshalText(b []byte) error {
	v, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// State はリレー接点の状態
type State uint8

const (
	Open  State = 0 // 回路を開く
	Close State = 1 // 回路を閉じる
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "close"
}
