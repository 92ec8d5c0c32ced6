package opencv

import (
	"fmt"

	"gocv.io/x/gocv"

	"dcr/internal/camera"
)

// JPEGEncoder は最新フレームをJPEGに変換する
type JPEGEncoder struct{}

// Encode はフレームをJPEGにエンコードする
func (JPEGEncoder) Encode(f *camera.Frame) ([]byte, error) {
	mat, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// ContentType はレスポンスのContent-Type
func (JPEGEncoder) ContentType() string { return "image/jpeg" }
