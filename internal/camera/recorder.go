package camera

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// recorder は動画ファイルへの書き込みをキャプチャループから切り離す
//
// キューが満杯のときは最も古いフレームを捨てる。ディスクが遅くても
// キャプチャループがブロックされることはない。
type recorder struct {
	writer VideoWriter
	queue  chan *Frame
	logger *slog.Logger

	dropped *atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error
}

// newRecorder は書き込みゴルーチンを開始する
func newRecorder(writer VideoWriter, depth int, dropped *atomic.Uint64, logger *slog.Logger) *recorder {
	if depth < 1 {
		depth = 1
	}
	r := &recorder{
		writer:  writer,
		queue:   make(chan *Frame, depth),
		logger:  logger,
		dropped: dropped,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// enqueue はフレームを書き込みキューに入れる（ブロックしない）
func (r *recorder) enqueue(f *Frame) {
	for {
		select {
		case r.queue <- f:
			return
		default:
		}

		// 満杯なら古いフレームを1枚捨てて再試行
		select {
		case <-r.queue:
			r.dropped.Add(1)
		default:
		}
	}
}

// run はキューからフレームを取り出して書き込む
func (r *recorder) run() {
	defer close(r.done)

	for f := range r.queue {
		if err := r.writer.Write(f); err != nil {
			r.logger.Warn("動画の書き込みに失敗", "err", err)
		}
	}
}

// close は残りのフレームを書き出してからライターを閉じる
func (r *recorder) close() error {
	r.closeOnce.Do(func() {
		close(r.queue)
		<-r.done
		r.closeErr = r.writer.Close()
	})
	return r.closeErr
}
