package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"dcr/internal/camera"
)

// VideoWriter はgocv.VideoWriterをcamera.VideoWriterとして扱う
type VideoWriter struct {
	vw   *gocv.VideoWriter
	size camera.Resolution
}

// NewWriterFactory は指定コーデック（FourCC）で動画ファイルを作るWriterFactoryを返す
func NewWriterFactory(codec string) camera.WriterFactory {
	return func(path string, fps float64, size camera.Resolution) (camera.VideoWriter, error) {
		vw, err := gocv.VideoWriterFile(path, codec, fps, size.Width, size.Height, true)
		if err != nil {
			return nil, fmt.Errorf("VideoWriterの作成に失敗: %w", err)
		}
		if !vw.IsOpened() {
			_ = vw.Close()
			return nil, fmt.Errorf("動画ファイルを開けません: %s (%s)", path, codec)
		}
		return &VideoWriter{vw: vw, size: size}, nil
	}
}

// Write はBGRフレームを書き込む。サイズが異なる場合はリサイズする
func (w *VideoWriter) Write(f *camera.Frame) error {
	mat, err := toMat(f)
	if err != nil {
		return err
	}
	defer mat.Close()

	if f.Width == w.size.Width && f.Height == w.size.Height {
		return w.vw.Write(mat)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(mat, &resized, image.Pt(w.size.Width, w.size.Height), 0, 0, gocv.InterpolationLinear); err != nil {
		return fmt.Errorf("リサイズに失敗: %w", err)
	}
	return w.vw.Write(resized)
}

// Close は動画ファイルを閉じる
func (w *VideoWriter) Close() error {
	return w.vw.Close()
}

// toMat はFrameをMatに変換する（ピクセルはコピーされる）
func toMat(f *camera.Frame) (gocv.Mat, error) {
	var mt gocv.MatType
	switch f.Channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 4:
		mt = gocv.MatTypeCV8UC4
	default:
		return gocv.Mat{}, fmt.Errorf("%w: 未対応のチャンネル数 %d", camera.ErrInvalidFrame, f.Channels)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Pix)
}
