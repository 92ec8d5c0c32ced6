package camera

import (
	"fmt"
	"image"
	"time"
)

// layout はモザイク画像の格子
type layout struct {
	cols, rows            int
	cellWidth, cellHeight int
}

// calculateLayout はフレーム数に基づいてレイアウトを計算する
func calculateLayout(frameCount int, size Resolution) layout {
	var cols, rows int

	switch frameCount {
	case 1:
		cols, rows = 1, 1
	case 2:
		cols, rows = 2, 1
	case 3, 4:
		cols, rows = 2, 2 // 3つの場合も2x2で1つ空き
	default:
		// 5つ以上の場合は横を多めにとる
		cols = int(float64(frameCount)*0.6) + 1
		rows = (frameCount + cols - 1) / cols
	}

	return layout{
		cols:       cols,
		rows:       rows,
		cellWidth:  size.Width / cols,
		cellHeight: size.Height / rows,
	}
}

// cell は指定したインデックスの配置位置を計算する
func (l layout) cell(index int) image.Rectangle {
	row := index / l.cols
	col := index % l.cols
	x, y := col*l.cellWidth, row*l.cellHeight
	return image.Rect(x, y, x+l.cellWidth, y+l.cellHeight)
}

// Compose はフレームを並べて1枚のBGR画像にする
//
// framesのインデックスが配置位置になる。nilの位置は黒のまま残す。
func Compose(frames []*Frame, size Resolution) (*Frame, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("無効な出力サイズ: %dx%d", size.Width, size.Height)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("結合するフレームがありません")
	}

	out := &Frame{
		Width:      size.Width,
		Height:     size.Height,
		Channels:   3,
		Pix:        make([]byte, size.Width*size.Height*3),
		CapturedAt: time.Now(),
	}

	l := calculateLayout(len(frames), size)
	for i, f := range frames {
		if f == nil {
			continue
		}
		src, err := ToBGR(f)
		if err != nil {
			return nil, fmt.Errorf("%s のフレーム: %w", f.Role, err)
		}
		drawScaled(out, src, l.cell(i))
	}
	return out, nil
}

// drawScaled はニアレストネイバー法でリサイズしながらdstのrに描画する
func drawScaled(dst, src *Frame, r image.Rectangle) {
	w, h := r.Dx(), r.Dy()
	for y := 0; y < h; y++ {
		sy := y * src.Height / h
		drow := ((r.Min.Y+y)*dst.Width + r.Min.X) * 3
		srow := sy * src.Width * 3
		for x := 0; x < w; x++ {
			sx := x * src.Width / w
			copy(dst.Pix[drow+x*3:drow+x*3+3], src.Pix[srow+sx*3:srow+sx*3+3])
		}
	}
}

// Mosaic は全Roleの最新フレームをRoles順に並べた画像を返す
//
// 未接続やフレーム未取得のRoleは黒で埋める。1枚もなければfalseを返す。
func (f *Fleet) Mosaic(size Resolution) (*Frame, bool, error) {
	frames := make([]*Frame, len(Roles))
	found := false
	for i, role := range Roles {
		s, ok := f.Session(role)
		if !ok {
			continue
		}
		if frame, ok := s.GetLatestFrame(); ok {
			frames[i] = frame
			found = true
		}
	}
	if !found {
		return nil, false, nil
	}

	m, err := Compose(frames, size)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}
