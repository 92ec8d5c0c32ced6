//go:build !windows

package ydci

import (
	"fmt"
	"runtime"

	"dcr/internal/relay"
)

// Open はWindows以外では常に失敗する
func Open(boardName string) (relay.Board, error) {
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, runtime.GOOS, boardName)
}
