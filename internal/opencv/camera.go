package opencv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"dcr/internal/camera"
)

// maxReadFailures を超えて連続で読み取りに失敗したらデバイスを回復不能とみなす
const maxReadFailures = 50

// CameraOptions はカメラを開くときの要求値
type CameraOptions struct {
	Width  int // 0ならドライバーの既定値
	Height int
}

// NewOpener はV4L2経由でカメラを開くDeviceOpenerを返す
func NewOpener(opts CameraOptions) camera.DeviceOpener {
	return func(_ context.Context, info camera.DeviceInfo) (camera.Device, error) {
		return OpenCamera(info, opts)
	}
}

// Camera はgocv.VideoCaptureをcamera.Deviceとして扱う
//
// 読み取りは専用ゴルーチンで行い、最新の1枚だけを保持する。
type Camera struct {
	vc  *gocv.VideoCapture
	res camera.Resolution

	frames chan *camera.Frame
	fatal  chan struct{}

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// OpenCamera はデバイス番号でカメラを開く
func OpenCamera(info camera.DeviceInfo, opts CameraOptions) (*Camera, error) {
	vc, err := gocv.OpenVideoCaptureWithAPI(info.Index, gocv.VideoCaptureV4L2)
	if err != nil {
		return nil, fmt.Errorf("VideoCaptureの作成に失敗 (%s): %w", info.Path, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("カメラを開けません: %s", info.Path)
	}

	if opts.Width > 0 && opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &Camera{
		vc: vc,
		res: camera.Resolution{
			Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		},
		frames: make(chan *camera.Frame, 1),
		fatal:  make(chan struct{}),
	}, nil
}

// StartGrab は読み取りゴルーチンを開始する
func (c *Camera) StartGrab() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return nil
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.readLoop(c.stop, c.done)
	return nil
}

func (c *Camera) readLoop(stop, done chan struct{}) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()

	failures := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if ok := c.vc.Read(&mat); !ok || mat.Empty() {
			failures++
			if failures > maxReadFailures {
				close(c.fatal)
				return
			}
			continue
		}
		failures = 0

		frame := &camera.Frame{
			Width:      mat.Cols(),
			Height:     mat.Rows(),
			Channels:   mat.Channels(),
			Pix:        mat.ToBytes(),
			CapturedAt: time.Now(),
		}

		// 古いフレームは捨てて最新だけを残す
		select {
		case <-c.frames:
		default:
		}
		c.frames <- frame
	}
}

// Retrieve は最新フレームをtimeoutまで待つ
func (c *Camera) Retrieve(ctx context.Context, timeout time.Duration) (*camera.Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-c.frames:
		return f, nil
	case <-c.fatal:
		return nil, fmt.Errorf("%w: 連続 %d 回の読み取りに失敗", camera.ErrDeviceFatal, maxReadFailures)
	case <-timer.C:
		return nil, camera.ErrRetrieveTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StopGrab は読み取りゴルーチンを停止する
func (c *Camera) StopGrab() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop == nil {
		return nil
	}
	close(c.stop)
	<-c.done
	c.stop, c.done = nil, nil
	return nil
}

// Resolution はドライバーが返した解像度
func (c *Camera) Resolution() camera.Resolution { return c.res }

// Close はVideoCaptureを解放する
func (c *Camera) Close() error {
	if err := c.StopGrab(); err != nil {
		return err
	}
	return c.vc.Close()
}
