//go:build !windows

package ydci

import (
	"errors"
	"testing"
)

func TestOpen_Unsupported(t *testing.T) {
	if _, err := Open("RLY-P4/2/0B-UBT"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Expected ErrUnsupported, got %v", err)
	}
}

func TestResultError(t *testing.T) {
	err := &resultError{op: "YdciOpen", code: 3}
	if err.Error() != "YdciOpen に失敗しました。エラーコード: 3" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
