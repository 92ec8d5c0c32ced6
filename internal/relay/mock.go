package relay

import (
	"fmt"
	"sync"
)

// Output はMockBoardに記録された1回の出力
type Output struct {
	Channel Channel
	State   State
}

// MockBoard はテスト用のリレーボード
type MockBoard struct {
	mu      sync.Mutex
	outputs []Output
	closed  int

	// FailOn が設定されていれば、一致する出力でエラーを返す
	FailOn *Output
}

// SetOutput は出力を記録する
func (b *MockBoard) SetOutput(ch Channel, st State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailOn != nil && *b.FailOn == (Output{ch, st}) {
		return fmt.Errorf("mock failure")
	}
	b.outputs = append(b.outputs, Output{Channel: ch, State: st})
	return nil
}

// Close は呼び出し回数を記録する
func (b *MockBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

// Outputs は記録された出力を返す
func (b *MockBoard) Outputs() []Output {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]Output, len(b.outputs))
	copy(result, b.outputs)
	return result
}

// Closes はCloseの呼び出し回数を返す
func (b *MockBoard) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// MockOpener は常に同じMockBoardを返すOpener
func MockOpener(board *MockBoard) Opener {
	return func(string) (Board, error) {
		return board, nil
	}
}
