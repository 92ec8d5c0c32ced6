// Package ydci リレーボード制御DLL（Ydci.dll）のバインディング
//
// Windows以外では常にエラーを返す。
package ydci

import (
	"errors"
	"fmt"
)

// ErrUnsupported は現在のOSでDLLが使えないことを示す
var ErrUnsupported = errors.New("サポートされていないOSです")

const (
	resultSuccess = 0 // 正常終了
	openNormal    = 0 // YdciOpenのフラグ
)

// resultError はDLLが返したエラーコード
type resultError struct {
	op   string
	code uintptr
}

func (e *resultError) Error() string {
	return fmt.Sprintf("%s に失敗しました。エラーコード: %d", e.op, e.code)
}
