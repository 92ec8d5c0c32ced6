// Package peer 搬送装置のコントローラー（Raspberry Pi）へのHTTP通知
package peer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPNotifier はコマンドをGETリクエストとして送る
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPNotifier は新しいHTTPNotifierを作成する
func NewHTTPNotifier(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("peer", baseURL),
	}
}

// Notify はコマンド（例: /rotate）を送信する
func (n *HTTPNotifier) Notify(ctx context.Context, command string) error {
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}
	url := n.baseURL + command

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("通知に失敗", "command", command, "err", err)
		return fmt.Errorf("通知 %s に失敗: %w", command, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		n.logger.Warn("通知先がエラーを返しました", "command", command, "status", resp.StatusCode)
		return fmt.Errorf("通知 %s に失敗: ステータス %d", command, resp.StatusCode)
	}

	n.logger.Debug("通知を送信", "command", command)
	return nil
}
