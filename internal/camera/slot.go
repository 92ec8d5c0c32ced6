package camera

import "sync"

// frameSlot は最新フレームを1枚だけ保持する共有バッファ
//
// 書き込みと読み出しはどちらもコピーで行い、ロックはコピーの間だけ保持する。
// 読み手が書き手のバッファを参照することはない。
type frameSlot struct {
	mu    sync.Mutex
	frame Frame
	valid bool
}

// store はフレームをスロットにコピーする
func (s *frameSlot) store(f *Frame) {
	s.mu.Lock()
	f.copyInto(&s.frame)
	s.valid = true
	s.mu.Unlock()
}

// load はスロットの内容のコピーを返す
func (s *frameSlot) load() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.valid {
		return nil, false
	}
	return s.frame.Clone(), true
}

// reset はスロットを空にする
func (s *frameSlot) reset() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}
