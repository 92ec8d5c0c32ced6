// Package logging アプリケーション全体で使うslogロガーを組み立てる
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options はログの出力設定
type Options struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Dir    string `yaml:"dir"`    // 空でなければ dcr.log にも書き出す
}

// FileName はログディレクトリに作るファイル名
const FileName = "dcr.log"

// New はロガーを作成する。戻り値のio.Closerでログファイルを閉じる
func New(opts Options, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = stdout
	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("ログディレクトリの作成に失敗: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(opts.Dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("ログファイルのオープンに失敗: %w", err)
		}
		w = io.MultiWriter(stdout, f)
		closer = f
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, handlerOpts)
	case "json":
		h = slog.NewJSONHandler(w, handlerOpts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("不明なログ形式: %q", opts.Format)
	}

	return slog.New(h), closer, nil
}

// ParseLevel はログレベル名を変換する。空ならinfo
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("不明なログレベル: %q", s)
	}
	return level, nil
}

// Discard は何も出力しないロガーを返す
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
