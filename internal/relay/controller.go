package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNotConnected はConnect前に操作されたことを示す
	ErrNotConnected = errors.New("リレーボードが接続されていません")
	// ErrWrite はリレー出力の設定に失敗したことを示す
	ErrWrite = errors.New("リレー出力の設定に失敗")
	// ErrInvalidChannel は存在しないチャンネルが指定されたことを示す
	ErrInvalidChannel = errors.New("不正なチャンネル")
)

// Board は開いたリレーボード
type Board interface {
	SetOutput(ch Channel, st State) error
	Close() error
}

// Opener はボード名を指定してリレーボードを開く
type Opener func(boardName string) (Board, error)

// Config はリレーボードの設定
type Config struct {
	BoardName    string
	OpenDuration time.Duration // 噴射時間
	Timing       Timing
}

// Controller はリレーボードの接続とパルス動作を管理する
type Controller struct {
	open   Opener
	cfg    Config
	logger *slog.Logger
	after  func(time.Duration) <-chan time.Time

	mu    sync.Mutex
	board Board
}

// NewController は新しいControllerを作成する
func NewController(open Opener, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 200 * time.Millisecond
	}
	return &Controller{
		open:   open,
		cfg:    cfg,
		logger: logger.With("device", "relay", "board", cfg.BoardName),
		after:  time.After,
	}
}

// Connect はボードを開き、全チャンネルを閉じた状態にする
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.board != nil {
		return nil
	}

	board, err := c.open(c.cfg.BoardName)
	if err != nil {
		return fmt.Errorf("リレーボード %s のオープンに失敗: %w", c.cfg.BoardName, err)
	}
	c.board = board
	c.logger.Info("リレーボードに接続")

	if err := c.closeAllLocked(); err != nil {
		c.logger.Warn("初期状態の設定に失敗", "err", err)
	}
	return nil
}

// Connected は接続済みかどうかを返す
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board != nil
}

// Timing は待ち時間の計算に使う定数を返す
func (c *Controller) Timing() Timing { return c.cfg.Timing }

// Pulse は待ち時間の後にチャンネルを開き、噴射時間の後に閉じる
//
// 呼び出し元をブロックするので、ディスパッチャーのタスクから呼ぶこと。
// 待機中にctxがキャンセルされた場合は開かずに戻る。一度開いたチャンネルは必ず閉じる。
func (c *Controller) Pulse(ctx context.Context, ch Channel, speed int) error {
	wait, err := c.cfg.Timing.DelayFor(ch, speed)
	if err != nil {
		return err
	}
	if !c.Connected() {
		c.logger.Warn("ボード未接続のためパルス動作をスキップ", "channel", ch.String())
		return ErrNotConnected
	}

	log := c.logger.With("channel", ch.String(), "speed", ClampSpeed(speed))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.after(wait):
	}

	if err := c.setOutput(ch, Open); err != nil {
		log.Error("リレーを開けません", "err", err)
		if cerr := c.setOutput(ch, Close); cerr != nil {
			log.Error("リレーを閉じられません", "err", cerr)
		}
		return err
	}

	select {
	case <-ctx.Done():
	case <-c.after(c.cfg.OpenDuration):
	}

	if err := c.setOutput(ch, Close); err != nil {
		log.Error("リレーを閉じられません", "err", err)
		return err
	}

	log.Debug("パルス動作完了", "wait", wait, "open", c.cfg.OpenDuration)
	return nil
}

// StopAll は全チャンネルを閉じる。未接続なら警告を出して何もしない
func (c *Controller) StopAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.board == nil {
		c.logger.Warn("ボード未接続のため停止動作をスキップ")
		return nil
	}
	return c.closeAllLocked()
}

// Close は全チャンネルを閉じてからボードを解放する
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.board == nil {
		return nil
	}

	var errs []error
	if err := c.closeAllLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := c.board.Close(); err != nil {
		errs = append(errs, fmt.Errorf("リレーボードのクローズに失敗: %w", err))
	}
	c.board = nil
	c.logger.Info("リレーボードを切断")
	return errors.Join(errs...)
}

func (c *Controller) setOutput(ch Channel, st State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.board == nil {
		return ErrNotConnected
	}
	return c.setOutputLocked(ch, st)
}

func (c *Controller) setOutputLocked(ch Channel, st State) error {
	if err := c.board.SetOutput(ch, st); err != nil {
		return fmt.Errorf("%w: ch%d %s: %v", ErrWrite, int(ch), st, err)
	}
	return nil
}

func (c *Controller) closeAllLocked() error {
	var errs []error
	for _, ch := range Channels {
		if err := c.setOutputLocked(ch, Close); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
