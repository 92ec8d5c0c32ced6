package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dcr/internal/camera"
	"dcr/internal/dispatch"
	"dcr/internal/indicator"
	"dcr/internal/inspection"
	"dcr/internal/ledger"
	"dcr/internal/relay"
	"dcr/internal/repository"
)

// Inspector は検査ラインの操作
type Inspector interface {
	State() inspection.State
	Judge(label ledger.Label) (ledger.Record, error)
	JudgeWithConfidence(label ledger.Label, confidence int) (ledger.Record, error)
	JudgeKey(key string) (ledger.Record, error)
	History() []ledger.DisplayRow
	SetRunning(on bool) (inspection.State, error)
	Speed() int
	SetSpeed(v int) (int, error)
	SetPattern(p indicator.Pattern)
	TestPulse(ch relay.Channel) int
	DispatchStats() dispatch.Stats
}

// Cameras はカメラフリートの参照
type Cameras interface {
	Snapshot() []camera.SessionInfo
	Report() *camera.BindReport
	Session(role camera.Role) (*camera.Session, bool)
	Mosaic(size camera.Resolution) (*camera.Frame, bool, error)
}

// JournalReader は永続化された判定結果の読み出し
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]repository.Judgment, error)
	CountByLabel(ctx context.Context, runID string) (map[ledger.Label]int, error)
}

// FrameEncoder は最新フレームを画像にする
type FrameEncoder interface {
	Encode(f *camera.Frame) ([]byte, error)
	ContentType() string
}

// Options はHTTPサーバーの設定
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps はハンドラーが使う部品
type Deps struct {
	Cameras   Cameras
	Inspector Inspector
	Journal   JournalReader // nilなら /api/judgments は503を返す
	Encoder   FrameEncoder  // nilなら /api/cameras/:role/frame は503を返す
	Hub       *Hub
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	opts       Options
	deps       Deps
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	started    time.Time
}

// New は新しいServerインスタンスを作成する
func New(opts Options, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(logger)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		opts:    opts,
		deps:    deps,
		logger:  logger,
		engine:  engine,
		started: time.Now(),
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      engine,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
	}
	s.setupRoutes()
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/status", s.handleStatus)

	api.GET("/cameras", s.handleCameras)
	api.GET("/cameras/:role/frame", s.handleCameraFrame)
	api.GET("/mosaic", s.handleMosaic)

	api.POST("/judgments", s.handleJudge)
	api.POST("/keys/:key", s.handleKey)
	api.GET("/history", s.handleHistory)
	api.GET("/judgments", s.handleJournal)
	api.GET("/judgments/summary", s.handleJournalSummary)

	api.GET("/speed", s.handleGetSpeed)
	api.PUT("/speed", s.handleSetSpeed)
	api.PUT("/run", s.handleSetRunning)

	// 動作確認用
	api.PUT("/indicator", s.handleSetIndicator)
	api.POST("/relay/pulse", s.handlePulse)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler はルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler { return s.engine }

// Hub はイベント配信用のHubを返す
func (s *Server) Hub() *Hub { return s.deps.Hub }

// Start はサーバーを起動し、ctxがキャンセルされたらシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve は指定されたリスナーで待ち受ける
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.deps.Hub.Run(hubCtx)

	// シャットダウン用のチャンネル
	errCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("シャットダウン要求を受信しました")
	case err := <-errCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}

// requestLogger はリクエストごとにslogで1行記録する
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// WebSocketとフレーム取得は頻繁なので記録しない
		if c.FullPath() == "/ws" || c.FullPath() == "/api/cameras/:role/frame" || c.FullPath() == "/api/mosaic" {
			return
		}
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}
