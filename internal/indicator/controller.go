package indicator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNotConnected はConnect前に操作されたことを示す
	ErrNotConnected = errors.New("信号灯が接続されていません")
	// ErrWrite はコマンドの送信に失敗したことを示す
	ErrWrite = errors.New("信号灯への書き込みに失敗")
	// ErrUnknownPattern は制御値のないパターンが指定されたことを示す
	ErrUnknownPattern = errors.New("不明な点灯パターン")
)

// Device は開いたHIDデバイス
type Device interface {
	Write(b []byte) (int, error)
	Close() error
}

// Opener はベンダーIDと製品IDでデバイスを開く
type Opener func(vendorID, productID uint16) (Device, error)

// Config は信号灯の接続設定
type Config struct {
	VendorID  uint16
	ProductID uint16
	Settle    time.Duration // 接続後、最初のコマンドまでの待ち時間
}

// Controller は信号灯の接続と点灯パターンを管理する
type Controller struct {
	open   Opener
	cfg    Config
	logger *slog.Logger
	sleep  func(time.Duration)

	mu      sync.Mutex
	dev     Device
	current Pattern
}

// NewController は新しいControllerを作成する
func NewController(open Opener, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		open:   open,
		cfg:    cfg,
		logger: logger.With("device", "indicator"),
		sleep:  time.Sleep,
	}
}

// Connect はデバイスを開き、消灯状態にする
//
// 既に接続済みの場合は何もしない。
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		return nil
	}

	dev, err := c.open(c.cfg.VendorID, c.cfg.ProductID)
	if err != nil {
		return fmt.Errorf("信号灯 (%04x:%04x) のオープンに失敗: %w", c.cfg.VendorID, c.cfg.ProductID, err)
	}
	c.dev = dev
	c.logger.Info("信号灯に接続")

	if c.cfg.Settle > 0 {
		c.sleep(c.cfg.Settle)
	}
	if err := c.setPatternLocked(Off); err != nil {
		c.logger.Warn("初期化時の消灯に失敗", "err", err)
	}
	return nil
}

// Connected は接続済みかどうかを返す
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev != nil
}

// SetPattern は点灯パターンを切り替える
func (c *Controller) SetPattern(p Pattern) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPatternLocked(p)
}

func (c *Controller) setPatternLocked(p Pattern) error {
	if _, ok := patternTable[p]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPattern, int(p))
	}
	if c.dev == nil {
		return ErrNotConnected
	}

	cmd := BuildCommand(p)
	if _, err := c.dev.Write(cmd[:]); err != nil {
		c.logger.Error("コマンドの送信に失敗", "pattern", p.String(), "err", err)
		return fmt.Errorf("%w: %s: %v", ErrWrite, p.Label(), err)
	}
	c.current = p
	c.logger.Debug("点灯パターンを変更", "pattern", p.String(), "label", p.Label())
	return nil
}

// Current は最後に送信に成功したパターンを返す
func (c *Controller) Current() Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Close は消灯してからデバイスを閉じる
//
// 未接続の場合は何もしない。
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return nil
	}

	var errs []error
	if err := c.setPatternLocked(Off); err != nil {
		errs = append(errs, err)
	}
	if err := c.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("信号灯のクローズに失敗: %w", err))
	}
	c.dev = nil
	c.current = Off
	c.logger.Info("信号灯を切断")
	return errors.Join(errs...)
}
