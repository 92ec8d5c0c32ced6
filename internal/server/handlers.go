package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dcr/internal/camera"
	"dcr/internal/dispatch"
	"dcr/internal/indicator"
	"dcr/internal/inspection"
	"dcr/internal/ledger"
	"dcr/internal/relay"
)

const (
	defaultJournalLimit = 100

	defaultMosaicWidth  = 1280
	defaultMosaicHeight = 960
	maxMosaicSide       = 4096
)

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func writeError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

// writeInspectionError は操作のエラーをステータスコードに対応させる
func writeInspectionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, inspection.ErrNotRunning):
		writeError(c, http.StatusConflict, "not_running", err)
	case errors.Is(err, inspection.ErrSettingsLocked):
		writeError(c, http.StatusConflict, "settings_locked", err)
	case errors.Is(err, inspection.ErrUnknownKey):
		writeError(c, http.StatusNotFound, "unknown_key", err)
	case errors.Is(err, inspection.ErrShutdown):
		writeError(c, http.StatusServiceUnavailable, "shutdown", err)
	default:
		writeError(c, http.StatusInternalServerError, "internal_error", err)
	}
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// StatusResponse はシステム状態
type StatusResponse struct {
	Status     string           `json:"status"`
	State      inspection.State `json:"state"`
	Cameras    CameraSummary    `json:"cameras"`
	Dispatcher dispatch.Stats   `json:"dispatcher"`
	Viewers    int              `json:"viewers"`
	Uptime     string           `json:"uptime"`
	Timestamp  time.Time        `json:"timestamp"`
}

// CameraSummary はカメラの接続台数
type CameraSummary struct {
	Configured int             `json:"configured"`
	Bound      int             `json:"bound"`
	Missing    []camera.Target `json:"missing"`
}

// handleStatus はステータス確認エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	var cams CameraSummary
	if r := s.deps.Cameras.Report(); r != nil {
		cams = CameraSummary{Configured: r.Configured, Bound: len(r.Bound), Missing: r.Missing}
	}

	c.JSON(http.StatusOK, StatusResponse{
		Status:     "running",
		State:      s.deps.Inspector.State(),
		Cameras:    cams,
		Dispatcher: s.deps.Inspector.DispatchStats(),
		Viewers:    s.deps.Hub.ClientCount(),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Timestamp:  time.Now(),
	})
}

// handleCameras はカメラ一覧を返す
func (s *Server) handleCameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cameras": s.deps.Cameras.Snapshot()})
}

// handleCameraFrame は最新フレームを画像で返す。まだフレームがなければ204
func (s *Server) handleCameraFrame(c *gin.Context) {
	role, err := camera.ParseRole(c.Param("role"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_role", err)
		return
	}

	session, ok := s.deps.Cameras.Session(role)
	if !ok {
		writeError(c, http.StatusNotFound, "camera_not_found", errors.New("指定されたカメラが見つかりません"))
		return
	}

	frame, ok := session.GetLatestFrame()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	s.writeFrame(c, frame)
}

// handleMosaic は全カメラの最新フレームを並べた画像を返す
func (s *Server) handleMosaic(c *gin.Context) {
	size := camera.Resolution{Width: defaultMosaicWidth, Height: defaultMosaicHeight}
	for _, p := range []struct {
		key string
		dst *int
	}{{"width", &size.Width}, {"height", &size.Height}} {
		v := c.Query(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxMosaicSide {
			writeError(c, http.StatusBadRequest, "invalid_size", errors.New("画像サイズが不正です"))
			return
		}
		*p.dst = n
	}

	frame, ok, err := s.deps.Cameras.Mosaic(size)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "compose_failed", err)
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	s.writeFrame(c, frame)
}

// writeFrame はフレームをエンコードして返す
func (s *Server) writeFrame(c *gin.Context, frame *camera.Frame) {
	if s.deps.Encoder == nil {
		writeError(c, http.StatusServiceUnavailable, "encoder_unavailable", errors.New("画像エンコーダーが設定されていません"))
		return
	}
	b, err := s.deps.Encoder.Encode(frame)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "encode_failed", err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, s.deps.Encoder.ContentType(), b)
}

// JudgeRequest は判定の登録リクエスト
type JudgeRequest struct {
	Label      string `json:"label" binding:"required"`
	Confidence *int   `json:"confidence"`
}

// JudgeResponse は登録された判定結果
type JudgeResponse struct {
	Record ledger.Record     `json:"record"`
	Row    ledger.DisplayRow `json:"row"`
}

// handleJudge は判定結果を登録する
func (s *Server) handleJudge(c *gin.Context) {
	var req JudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	label, err := ledger.ParseLabel(req.Label)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_label", err)
		return
	}

	var rec ledger.Record
	if req.Confidence != nil {
		rec, err = s.deps.Inspector.JudgeWithConfidence(label, *req.Confidence)
	} else {
		rec, err = s.deps.Inspector.Judge(label)
	}
	if err != nil {
		writeInspectionError(c, err)
		return
	}

	c.JSON(http.StatusCreated, JudgeResponse{Record: rec, Row: ledger.Row(rec)})
}

// handleKey は操作キーで判定結果を登録する
func (s *Server) handleKey(c *gin.Context) {
	rec, err := s.deps.Inspector.JudgeKey(c.Param("key"))
	if err != nil {
		writeInspectionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, JudgeResponse{Record: rec, Row: ledger.Row(rec)})
}

// handleHistory は表示用の履歴を返す
func (s *Server) handleHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": s.deps.Inspector.History()})
}

// handleJournal は永続化された判定結果を新しい順に返す
func (s *Server) handleJournal(c *gin.Context) {
	if s.deps.Journal == nil {
		writeError(c, http.StatusServiceUnavailable, "journal_disabled", errors.New("判定結果の保存が無効です"))
		return
	}

	limit := defaultJournalLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(c, http.StatusBadRequest, "invalid_limit", errors.New("limitは1以上の整数で指定してください"))
			return
		}
		limit = n
	}

	judgments, err := s.deps.Journal.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "journal_error", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"judgments": judgments})
}

// handleJournalSummary は運転ごとの判定結果の件数を返す
//
// run_idを省略すると現在の運転を集計する。
func (s *Server) handleJournalSummary(c *gin.Context) {
	if s.deps.Journal == nil {
		writeError(c, http.StatusServiceUnavailable, "journal_disabled", errors.New("判定結果の保存が無効です"))
		return
	}

	runID := c.Query("run_id")
	if runID == "" {
		runID = s.deps.Inspector.State().RunID
	}

	counts, err := s.deps.Journal.CountByLabel(c.Request.Context(), runID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "journal_error", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "counts": counts})
}

// SpeedRequest は速度の保存リクエスト
type SpeedRequest struct {
	Speed *int `json:"speed" binding:"required"`
}

// handleGetSpeed は保存されている速度を返す
func (s *Server) handleGetSpeed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"speed": s.deps.Inspector.Speed()})
}

// handleSetSpeed は速度を保存する
func (s *Server) handleSetSpeed(c *gin.Context) {
	var req SpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	saved, err := s.deps.Inspector.SetSpeed(*req.Speed)
	if err != nil {
		writeInspectionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"speed": saved})
}

// RunRequest は運転の切り替えリクエスト
type RunRequest struct {
	Running *bool `json:"running" binding:"required"`
}

// handleSetRunning は運転を開始・停止する
func (s *Server) handleSetRunning(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	st, err := s.deps.Inspector.SetRunning(*req.Running)
	if err != nil {
		writeInspectionError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// IndicatorRequest は信号灯の手動切り替えリクエスト
type IndicatorRequest struct {
	Pattern string `json:"pattern" binding:"required"`
}

// handleSetIndicator は信号灯を手動で切り替える
func (s *Server) handleSetIndicator(c *gin.Context) {
	var req IndicatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	p, err := indicator.ParsePattern(req.Pattern)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_pattern", err)
		return
	}

	s.deps.Inspector.SetPattern(p)
	c.JSON(http.StatusAccepted, gin.H{"pattern": p})
}

// PulseRequest はリレーの手動パルスリクエスト
type PulseRequest struct {
	Channel string `json:"channel" binding:"required"`
}

// handlePulse はリレーを手動でパルス動作させる
func (s *Server) handlePulse(c *gin.Context) {
	var req PulseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	ch, err := relay.ParseChannel(req.Channel)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_channel", err)
		return
	}

	speed := s.deps.Inspector.TestPulse(ch)
	c.JSON(http.StatusAccepted, gin.H{"channel": ch, "speed": speed})
}

// handleWebSocket は判定イベントのストリームを開始する
func (s *Server) handleWebSocket(c *gin.Context) {
	st := s.deps.Inspector.State()
	s.deps.Hub.serve(c.Writer, c.Request, inspection.Event{
		Type:    inspection.EventState,
		State:   &st,
		History: s.deps.Inspector.History(),
	})
}
