package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionConfig はセッション1つ分の録画設定
type SessionConfig struct {
	OutputDir       string        // 保存先ディレクトリ（例: cam_video/cam_video_top）
	FilePrefix      string        // ファイル名の接頭辞（通常はディレクトリ名と同じ）
	Extension       string        // 拡張子（例: .avi）
	FPS             float64       // 動画のフレームレート
	FrameSize       Resolution    // ゼロ値ならデバイスの解像度を使う
	RetrieveTimeout time.Duration // 1フレームの取得待ち上限
	StopTimeout     time.Duration // キャプチャループの終了待ち上限
	QueueDepth      int           // 書き込みキューの長さ
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Extension == "" {
		c.Extension = ".avi"
	}
	if c.FPS <= 0 {
		c.FPS = 20
	}
	if c.RetrieveTimeout <= 0 {
		c.RetrieveTimeout = 5 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 2 * time.Second
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 8
	}
	return c
}

// Session は1台のカメラのキャプチャと録画を管理する
//
// Startでデバイスを開いてキャプチャループを起動し、Stopでループを止めて
// デバイスと動画ファイルを解放する。最新フレームはGetLatestFrameで
// 任意のゴルーチンから取得できる。
type Session struct {
	id        string
	role      Role
	device    DeviceInfo
	discovery Discovery
	newWriter WriterFactory
	cfg       SessionConfig
	logger    *slog.Logger
	now       func() time.Time

	// lifecycle はStartとStopを直列化する。デバイスの待ち合わせ中も
	// muは保持しないのでInfoやStatusは止まらない
	lifecycle sync.Mutex

	mu         sync.Mutex
	status     Status
	handle     Device
	rec        *recorder
	cancel     context.CancelFunc
	done       chan struct{}
	outputPath string
	resolution Resolution

	fault atomic.Bool
	slot  frameSlot

	captured       atomic.Uint64
	dropped        atomic.Uint64
	retrieveErrors atomic.Uint64
	lastFrameAt    atomic.Int64
}

// NewSession は新しいSessionを作成する
func NewSession(role Role, device DeviceInfo, discovery Discovery, newWriter WriterFactory, cfg SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:        uuid.New().String(),
		role:      role,
		device:    device,
		discovery: discovery,
		newWriter: newWriter,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("role", string(role), "serial", device.Serial),
		now:       time.Now,
		status:    StatusInactive,
	}
}

// ID はセッションの識別子を返す
func (s *Session) ID() string { return s.id }

// Role はセッションのカメラ位置を返す
func (s *Session) Role() Role { return s.role }

// Start はデバイスを開き、動画ファイルを作成してキャプチャループを開始する
//
// ループの起動後すぐに戻る。既に動作中の場合は何もしない。
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	running := s.handle != nil
	s.mu.Unlock()
	if running {
		return nil
	}

	handle, err := s.discovery.OpenDevice(ctx, s.device)
	if err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("%w: %s (%s): %v", ErrDeviceOpen, s.role, s.device.Serial, err)
	}

	size := s.cfg.FrameSize
	if size.Width <= 0 || size.Height <= 0 {
		size = handle.Resolution()
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		_ = handle.Close()
		s.setStatus(StatusError)
		return fmt.Errorf("%w: 保存先の作成に失敗: %v", ErrWriterInit, err)
	}

	path := filepath.Join(s.cfg.OutputDir,
		fmt.Sprintf("%s_%s%s", s.cfg.FilePrefix, s.now().Format("20060102_150405"), s.cfg.Extension))
	writer, err := s.newWriter(path, s.cfg.FPS, size)
	if err != nil {
		_ = handle.Close()
		s.setStatus(StatusError)
		return fmt.Errorf("%w: %s: %v", ErrWriterInit, path, err)
	}

	if err := handle.StartGrab(); err != nil {
		_ = writer.Close()
		_ = handle.Close()
		s.setStatus(StatusError)
		return fmt.Errorf("%w: 画像取得の開始に失敗: %v", ErrDeviceOpen, err)
	}

	rec := newRecorder(writer, s.cfg.QueueDepth, &s.dropped, s.logger)
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.handle = handle
	s.rec = rec
	s.cancel = cancel
	s.done = done
	s.outputPath = path
	s.resolution = size
	s.fault.Store(false)
	s.slot.reset()
	s.status = StatusActive
	s.mu.Unlock()

	go s.captureLoop(loopCtx, handle, rec, done)

	s.logger.Info("録画を開始", "path", path, "width", size.Width, "height", size.Height)
	return nil
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// captureLoop はフレームを取得して最新フレームと動画ファイルに流す
func (s *Session) captureLoop(ctx context.Context, handle Device, rec *recorder, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := handle.Retrieve(ctx, s.cfg.RetrieveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrDeviceFatal) {
				s.fault.Store(true)
				s.logger.Error("カメラが応答しないためキャプチャを終了", "err", err)
				return
			}
			s.retrieveErrors.Add(1)
			s.logger.Warn("フレーム取得に失敗", "err", err)
			continue
		}

		bgr, err := ToBGR(frame)
		if err != nil {
			s.retrieveErrors.Add(1)
			s.logger.Warn("フレームの変換に失敗", "err", err)
			continue
		}
		bgr.Role = s.role
		if bgr.CapturedAt.IsZero() {
			bgr.CapturedAt = s.now()
		}

		s.slot.store(bgr)
		s.captured.Add(1)
		s.lastFrameAt.Store(bgr.CapturedAt.UnixNano())
		rec.enqueue(bgr)
	}
}

// GetLatestFrame は最後に取得したフレームのコピーを返す
//
// まだ1枚も取得していない場合はfalseを返す。
func (s *Session) GetLatestFrame() (*Frame, bool) {
	return s.slot.load()
}

// Stop はキャプチャループを停止し、デバイスと動画ファイルを解放する
//
// 2回目以降の呼び出しは何もしない。ループがStopTimeout以内に終わらない場合は
// 解放をバックグラウンドに任せてエラーを返す。
func (s *Session) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.handle == nil {
		s.mu.Unlock()
		return nil
	}
	handle, rec, done, path := s.handle, s.rec, s.done, s.outputPath
	s.cancel()
	s.handle, s.rec, s.cancel, s.done = nil, nil, nil, nil
	s.status = StatusInactive
	s.mu.Unlock()

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("キャプチャループの終了待ちがタイムアウト", "timeout", s.cfg.StopTimeout)
		go func() {
			<-done
			if err := release(handle, rec); err != nil {
				s.logger.Warn("カメラの解放に失敗", "err", err)
			}
		}()
		return fmt.Errorf("%w: カメラ %s", ErrStopTimeout, s.role)
	}

	if err := release(handle, rec); err != nil {
		return fmt.Errorf("カメラ %s の解放に失敗: %w", s.role, err)
	}

	s.logger.Info("録画を停止", "path", path, "frames", s.captured.Load())
	return nil
}

// release はStopGrab、動画ファイルのクローズ、ハンドル解放を順に行う
func release(handle Device, rec *recorder) error {
	var errs []error
	if err := handle.StopGrab(); err != nil {
		errs = append(errs, fmt.Errorf("画像取得の停止: %w", err))
	}
	if err := rec.close(); err != nil {
		errs = append(errs, fmt.Errorf("動画ファイルのクローズ: %w", err))
	}
	if err := handle.Close(); err != nil {
		errs = append(errs, fmt.Errorf("ハンドルの解放: %w", err))
	}
	return errors.Join(errs...)
}

// Status は現在の状態を返す
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	if s.status == StatusActive && s.fault.Load() {
		return StatusError
	}
	return s.status
}

// Info はセッションの状態のスナップショットを返す
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{
		ID:             s.id,
		Role:           s.role,
		Serial:         s.device.Serial,
		Model:          s.device.Model,
		Status:         s.statusLocked(),
		Recording:      s.handle != nil && !s.fault.Load(),
		OutputPath:     s.outputPath,
		Resolution:     s.resolution,
		FramesCaptured: s.captured.Load(),
		FramesDropped:  s.dropped.Load(),
		RetrieveErrors: s.retrieveErrors.Load(),
	}
	if ns := s.lastFrameAt.Load(); ns != 0 {
		info.LastFrameAt = time.Unix(0, ns)
	}
	return info
}
