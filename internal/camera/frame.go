package camera

import (
	"fmt"
	"time"
)

// Frame は1枚の画像（幅×高さ×チャンネル数のピクセル配列）
type Frame struct {
	Role       Role
	Width      int
	Height     int
	Channels   int
	Pix        []byte // 行優先、チャンネルはBGR順
	CapturedAt time.Time
}

// Validate は寸法とデータ長の整合性を検証する
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 || f.Channels <= 0 {
		return fmt.Errorf("%w: %dx%dx%d", ErrInvalidFrame, f.Width, f.Height, f.Channels)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Pix) != want {
		return fmt.Errorf("%w: データ長 %d (期待値 %d)", ErrInvalidFrame, len(f.Pix), want)
	}
	return nil
}

// Clone はピクセルデータを含めたディープコピーを返す
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = make([]byte, len(f.Pix))
	copy(c.Pix, f.Pix)
	return &c
}

// copyInto はdstのバッファを再利用してfの内容を書き込む
func (f *Frame) copyInto(dst *Frame) {
	pix := dst.Pix
	if cap(pix) < len(f.Pix) {
		pix = make([]byte, len(f.Pix))
	}
	pix = pix[:len(f.Pix)]
	copy(pix, f.Pix)
	*dst = *f
	dst.Pix = pix
}

// ToBGR はモノクロ画像を3チャンネルのBGRに展開する
// 既に3チャンネルの場合はそのまま返す
func ToBGR(f *Frame) (*Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	switch f.Channels {
	case 3:
		return f, nil
	case 1:
		out := *f
		out.Channels = 3
		out.Pix = make([]byte, len(f.Pix)*3)
		for i, v := range f.Pix {
			j := i * 3
			out.Pix[j] = v
			out.Pix[j+1] = v
			out.Pix[j+2] = v
		}
		return &out, nil
	case 4:
		// BGRA -> BGR（アルファは捨てる）
		out := *f
		out.Channels = 3
		n := f.Width * f.Height
		out.Pix = make([]byte, n*3)
		for i := 0; i < n; i++ {
			copy(out.Pix[i*3:i*3+3], f.Pix[i*4:i*4+3])
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("%w: 未対応のチャンネル数 %d", ErrInvalidFrame, f.Channels)
	}
}
