// Package inspection 判定操作を受けて履歴・信号灯・リレーを連動させる
//
// # 責務
// - 判定結果を履歴に記録し、対応する信号灯とリレーの動作をディスパッチャーに投入する
// - 運転の開始・停止と速度設定の管理（運転中は速度を変更できない）
// - 判定結果の永続化と搬送装置への通知をバックグラウンドで行う
//
// # 仕様
// - Judgeはブロックしない。機器への書き込みは全てディスパッチャーのタスクで行う
// - タスクには履歴や速度の参照ではなく値のコピーを渡す
// - 信号灯の切り替えとリレーのパルスは順序が必要なので1つのタスクにまとめる
// - 運転を停止すると、その運転中に投入されてまだ終わっていない動作は取り消される
package inspection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"dcr/internal/dispatch"
	"dcr/internal/indicator"
	"dcr/internal/ledger"
	"dcr/internal/relay"
)

var (
	// ErrNotRunning は運転停止中に判定しようとしたことを示す
	ErrNotRunning = errors.New("運転が開始されていません")
	// ErrSettingsLocked は運転中に設定を変更しようとしたことを示す
	ErrSettingsLocked = errors.New("運転中は設定を変更できません")
	// ErrUnknownKey は割り当てのないキーが押されたことを示す
	ErrUnknownKey = errors.New("割り当てのないキー")
	// ErrShutdown は終了処理の後に操作されたことを示す
	ErrShutdown = errors.New("終了処理済み")
)

// Indicator は信号灯の操作
type Indicator interface {
	SetPattern(p indicator.Pattern) error
	Close() error
}

// Relay はリレーボードの操作
type Relay interface {
	Pulse(ctx context.Context, ch relay.Channel, speed int) error
	StopAll() error
	Close() error
}

// Journal は判定結果の永続化先
type Journal interface {
	Insert(ctx context.Context, runID string, rec ledger.Record) error
}

// Notifier は搬送装置へのコマンド通知
type Notifier interface {
	Notify(ctx context.Context, command string) error
}

// Publisher は状態の変化を画面へ配信する
type Publisher interface {
	Publish(ev Event)
}

// State は運転状態のスナップショット
type State struct {
	Running bool   `json:"running"`
	Speed   int    `json:"speed"`
	RunID   string `json:"run_id,omitempty"`
}

// Event は画面へ配信するイベント
type Event struct {
	Type    string              `json:"type"`
	Record  *ledger.Record      `json:"record,omitempty"`
	Row     *ledger.DisplayRow  `json:"row,omitempty"`
	History []ledger.DisplayRow `json:"history,omitempty"`
	State   *State              `json:"state,omitempty"`
}

const (
	EventJudgment = "judgment"
	EventState    = "state"
)

// Deps はControllerが使う部品
type Deps struct {
	Ledger     *ledger.Ledger
	Dispatcher *dispatch.Dispatcher
	Indicator  Indicator
	Relay      Relay
	Journal    Journal   // nilなら永続化しない
	Notifier   Notifier  // nilなら通知しない
	Publisher  Publisher // nilなら配信しない
	Confidence ConfidenceSource
	Policy     Policy
	KeyMap     KeyMap
	Speed      *SavedSpeed
	Logger     *slog.Logger
}

// Controller は検査ラインの操作を受け付ける
type Controller struct {
	deps   Deps
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	runID    string
	shutdown bool

	// run は運転中だけ有効で、停止時にキャンセルされる
	run     context.Context
	stopRun context.CancelFunc
}

// NewController は新しいControllerを作成する
func NewController(deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Confidence == nil {
		deps.Confidence = RandomConfidence{Min: 60, Max: 95}
	}
	if deps.Policy == nil {
		deps.Policy = DefaultPolicy()
	}
	if deps.KeyMap == nil {
		deps.KeyMap = DefaultKeyMap()
	}
	if deps.Speed == nil {
		deps.Speed = NewSavedSpeed(relay.DefaultSpeed)
	}
	return &Controller{
		deps:   deps,
		logger: deps.Logger,
	}
}

// State は現在の運転状態を返す
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{Running: c.running, Speed: c.deps.Speed.Get(), RunID: c.runID}
}

// Judge は確信度を決めて判定結果を記録する
func (c *Controller) Judge(label ledger.Label) (ledger.Record, error) {
	return c.JudgeWithConfidence(label, c.deps.Confidence.Next())
}

// JudgeKey は操作キーに割り当てられた判定結果を記録する
func (c *Controller) JudgeKey(key string) (ledger.Record, error) {
	label, ok := c.deps.KeyMap[key]
	if !ok {
		return ledger.Record{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return c.Judge(label)
}

// JudgeWithConfidence は指定した確信度で判定結果を記録し、機器の動作を投入する
//
// 運転停止中はErrNotRunningを返し、履歴は変わらない。
func (c *Controller) JudgeWithConfidence(label ledger.Label, confidence int) (ledger.Record, error) {
	if !label.Valid() {
		return ledger.Record{}, fmt.Errorf("不明な判定結果: %d", int(label))
	}

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return ledger.Record{}, ErrShutdown
	}
	if !c.running {
		c.mu.Unlock()
		return ledger.Record{}, ErrNotRunning
	}
	runID, run := c.runID, c.run
	rec := c.deps.Ledger.Classify(label, confidence)
	speed := c.deps.Speed.Get()
	c.mu.Unlock()

	log := c.logger.With("id", rec.ID, "label", label.String())
	log.Info("判定を記録", "confidence", rec.Confidence, "speed", speed)

	if action, ok := c.deps.Policy[label]; ok {
		c.deps.Dispatcher.Submit(fmt.Sprintf("actuate:%d", rec.ID), c.actuateTask(run, action, speed))
	}

	if c.deps.Journal != nil {
		journal := c.deps.Journal
		c.deps.Dispatcher.Submit(fmt.Sprintf("journal:%d", rec.ID), func(ctx context.Context) error {
			return journal.Insert(ctx, runID, rec)
		})
	}

	row := ledger.Row(rec)
	c.publish(Event{Type: EventJudgment, Record: &rec, Row: &row, History: c.deps.Ledger.Projection()})
	return rec, nil
}

// actuateTask は信号灯の切り替えとパルス動作を順に行うタスクを返す
//
// 信号灯の失敗はログに残してパルス動作を続ける。runが終わっていれば
// 何もせず、パルス動作の待機中に終われば開く前に中断する。
func (c *Controller) actuateTask(run context.Context, action Action, speed int) dispatch.Task {
	return func(ctx context.Context) error {
		if run.Err() != nil {
			c.logger.Info("運転停止済みのため動作を取り消し", "pattern", action.Pattern.String())
			return nil
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(run, cancel)
		defer stop()

		var errs []error
		if err := c.deps.Indicator.SetPattern(action.Pattern); err != nil {
			c.logger.Warn("信号灯の切り替えに失敗", "pattern", action.Pattern.String(), "err", err)
			errs = append(errs, err)
		}
		if action.Pulse {
			if err := c.deps.Relay.Pulse(ctx, action.Channel, speed); err != nil {
				if run.Err() != nil {
					c.logger.Info("運転停止のためパルス動作を中断", "channel", action.Channel.String())
				} else {
					errs = append(errs, err)
				}
			}
		}
		return errors.Join(errs...)
	}
}

// SetRunning は運転の開始・停止を切り替える
//
// 開始時は速度と回転開始を、停止時は消灯とリレー停止と回転停止を投入する。
func (c *Controller) SetRunning(on bool) (State, error) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return State{}, ErrShutdown
	}
	if c.running == on {
		st := c.stateLocked()
		c.mu.Unlock()
		return st, nil
	}

	c.running = on
	if on {
		c.runID = uuid.New().String()
		c.run, c.stopRun = context.WithCancel(context.Background())
	} else {
		c.stopRun()
	}
	st := c.stateLocked()
	c.mu.Unlock()

	if on {
		c.logger.Info("運転開始", "speed", st.Speed, "run_id", st.RunID)
		c.deps.Dispatcher.Submit("start", c.startTask(st.Speed))
	} else {
		c.logger.Info("運転停止", "run_id", st.RunID)
		c.deps.Dispatcher.Submit("stop", c.stopTask())
	}

	c.publish(Event{Type: EventState, State: &st})
	return st, nil
}

func (c *Controller) startTask(speed int) dispatch.Task {
	return func(ctx context.Context) error {
		if c.deps.Notifier == nil {
			return nil
		}
		if err := c.deps.Notifier.Notify(ctx, fmt.Sprintf("/set_speed/%d", speed)); err != nil {
			return err
		}
		return c.deps.Notifier.Notify(ctx, "/rotate")
	}
}

func (c *Controller) stopTask() dispatch.Task {
	return func(ctx context.Context) error {
		var errs []error
		if err := c.deps.Indicator.SetPattern(indicator.Off); err != nil {
			errs = append(errs, err)
		}
		if err := c.deps.Relay.StopAll(); err != nil {
			errs = append(errs, err)
		}
		if c.deps.Notifier != nil {
			if err := c.deps.Notifier.Notify(ctx, "/stop"); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Speed は保存されている速度を返す
func (c *Controller) Speed() int { return c.deps.Speed.Get() }

// SetSpeed は速度を1〜10に収めて保存する。運転中はErrSettingsLockedを返す
func (c *Controller) SetSpeed(v int) (int, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return c.deps.Speed.Get(), ErrSettingsLocked
	}
	saved := c.deps.Speed.Set(v)
	st := c.stateLocked()
	c.mu.Unlock()

	c.logger.Info("速度を保存", "speed", saved)
	c.publish(Event{Type: EventState, State: &st})
	return saved, nil
}

// SetPattern は信号灯を手動で切り替える（動作確認用）
func (c *Controller) SetPattern(p indicator.Pattern) {
	c.deps.Dispatcher.Submit("indicator:"+p.String(), func(context.Context) error {
		return c.deps.Indicator.SetPattern(p)
	})
}

// TestPulse はリレーを現在の速度で手動パルス動作させる（動作確認用）
func (c *Controller) TestPulse(ch relay.Channel) int {
	speed := c.deps.Speed.Get()
	c.deps.Dispatcher.Submit("pulse:"+ch.String(), func(ctx context.Context) error {
		return c.deps.Relay.Pulse(ctx, ch, speed)
	})
	return speed
}

// History は表示用の履歴を返す
func (c *Controller) History() []ledger.DisplayRow {
	return c.deps.Ledger.Projection()
}

// Records は履歴のレコードを返す
func (c *Controller) Records() []ledger.Record {
	return c.deps.Ledger.Records()
}

// DispatchStats はディスパッチャーの実行状況を返す
func (c *Controller) DispatchStats() dispatch.Stats {
	return c.deps.Dispatcher.Stats()
}

// Shutdown は受け付けを止め、残りのタスクを待ってから機器を安全な状態で切断する
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil
	}
	c.shutdown = true
	c.running = false
	stopRun := c.stopRun
	c.mu.Unlock()

	// 投入済みの動作は取り消さずに完了を待つ
	var errs []error
	if err := c.deps.Dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("タスクの完了待ちに失敗: %w", err))
	}
	if stopRun != nil {
		stopRun()
	}
	if err := c.deps.Indicator.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.deps.Relay.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Controller) publish(ev Event) {
	if c.deps.Publisher != nil {
		c.deps.Publisher.Publish(ev)
	}
}
