// Package dispatch 呼び出し元をブロックしないバックグラウンドタスク実行を担う
//
// 投入されたタスクはワーカーゴルーチンで実行される。タスクのエラーやpanicは
// ログに記録して数えるだけで、呼び出し元にも他のタスクにも影響しない。
// タスク間の実行順序は保証しない。順序が必要な処理は1つのタスクにまとめること。
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Task はバックグラウンドで実行する処理
type Task func(ctx context.Context) error

type job struct {
	name     string
	fn       Task
	queuedAt time.Time
}

// Stats は実行状況のスナップショット
type Stats struct {
	Workers   int    `json:"workers"`
	Pending   int    `json:"pending"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Panicked  uint64 `json:"panicked"`
	Rejected  uint64 `json:"rejected"`
}

// Dispatcher はタスクキューとワーカー群
//
// キューには上限がなく、Submitは常にすぐ戻る。
type Dispatcher struct {
	logger  *slog.Logger
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []job
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
	rejected  atomic.Uint64
}

// New はworkers個のワーカーを起動する。0以下ならCPU数を使う
func New(workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger:  logger,
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
	d.cond = sync.NewCond(&d.mu)

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	logger.Debug("ディスパッチャーを開始", "workers", workers)
	return d
}

// Submit はタスクをキューに入れる。Close後はfalseを返す
func (d *Dispatcher) Submit(name string, fn Task) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.rejected.Add(1)
		d.logger.Warn("停止済みのためタスクを破棄", "task", name)
		return false
	}
	d.queue = append(d.queue, job{name: name, fn: fn, queuedAt: time.Now()})
	d.mu.Unlock()

	d.submitted.Add(1)
	d.cond.Signal()
	return true
}

// worker はキューが空になり、かつClose済みになるまでタスクを実行する
func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		j := d.queue[0]
		d.queue[0] = job{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.run(id, j)
	}
}

// run は1つのタスクを実行し、エラーとpanicを回収する
func (d *Dispatcher) run(worker int, j job) {
	log := d.logger.With("task", j.name, "worker", worker)

	defer func() {
		if r := recover(); r != nil {
			d.panicked.Add(1)
			log.Error("タスクがpanicしました", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	if err := j.fn(d.ctx); err != nil {
		d.failed.Add(1)
		log.Error("タスクが失敗しました", "err", err)
		return
	}
	d.completed.Add(1)
	log.Debug("タスク完了", "wait", start.Sub(j.queuedAt), "elapsed", time.Since(start))
}

// Stats は実行状況を返す
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	pending := len(d.queue)
	d.mu.Unlock()

	return Stats{
		Workers:   d.workers,
		Pending:   pending,
		Submitted: d.submitted.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Panicked:  d.panicked.Load(),
		Rejected:  d.rejected.Load(),
	}
}

// Close は新しいタスクの受け付けを止め、キューに残ったタスクの完了を待つ
//
// ctxが先に終わった場合は実行中のタスクのctxをキャンセルしてctx.Err()を返す。
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Debug("ディスパッチャーを停止")
		return nil
	case <-ctx.Done():
		d.cancel()
		d.logger.Warn("タスクの完了待ちを打ち切り", "pending", d.Stats().Pending)
		return ctx.Err()
	}
}
