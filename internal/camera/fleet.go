package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FleetConfig はフリート全体の録画設定
type FleetConfig struct {
	OutputRoot string // 親ディレクトリ（例: cam_video）
	// DirNames はRoleごとの子ディレクトリ名。未設定のRoleは <OutputRootのベース名>_<role> になる
	DirNames map[Role]string
	Session  SessionConfig
}

// dirName はRoleの子ディレクトリ名を返す
func (c FleetConfig) dirName(role Role) string {
	if name, ok := c.DirNames[role]; ok && name != "" {
		return name
	}
	return filepath.Base(c.OutputRoot) + "_" + string(role)
}

// BindReport はDiscoverAndBindの結果
type BindReport struct {
	Configured int      `json:"configured"`
	Bound      []Role   `json:"bound"`
	Missing    []Target `json:"missing"`
	Warnings   []string `json:"warnings"`
}

// Mismatch は設定台数に満たない場合にConfigMismatchErrorを返す
func (r *BindReport) Mismatch() *ConfigMismatchError {
	if len(r.Missing) == 0 {
		return nil
	}
	return &ConfigMismatchError{
		Configured: r.Configured,
		Bound:      len(r.Bound),
		Missing:    r.Missing,
	}
}

// Fleet はシリアル番号でRoleに紐付けたカメラセッションの集合を管理する
type Fleet struct {
	discovery Discovery
	newWriter WriterFactory
	cfg       FleetConfig
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[Role]*Session
	report   *BindReport
}

// NewFleet は新しいFleetを作成する
func NewFleet(discovery Discovery, newWriter WriterFactory, cfg FleetConfig, logger *slog.Logger) *Fleet {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fleet{
		discovery: discovery,
		newWriter: newWriter,
		cfg:       cfg,
		logger:    logger,
		sessions:  make(map[Role]*Session),
	}
}

// DiscoverAndBind はカメラを列挙し、設定されたシリアル番号と一致するものをRoleに紐付ける
//
// 一致しないRoleは警告として報告し、見つかったものだけでセッションを作成する。
// 1台も一致しない場合はErrNoDevicesFoundを返す。
func (f *Fleet) DiscoverAndBind(ctx context.Context, targets []Target) (*BindReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for role, s := range f.sessions {
		if s.Status() == StatusActive {
			return nil, fmt.Errorf("カメラ %s が録画中のため再検出できません", role)
		}
	}

	devices, err := f.discovery.ScanDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	bySerial := make(map[string]DeviceInfo, len(devices))
	for _, d := range devices {
		bySerial[d.Serial] = d
	}

	report := &BindReport{Configured: len(targets)}
	sessions := make(map[Role]*Session, len(targets))
	used := make(map[string]bool, len(targets))

	for _, t := range targets {
		dev, ok := bySerial[t.Serial]
		if !ok {
			msg := fmt.Sprintf("シリアル %s (%s) のカメラが見つかりません", t.Serial, t.Role)
			report.Missing = append(report.Missing, t)
			report.Warnings = append(report.Warnings, msg)
			f.logger.Warn(msg, "role", string(t.Role), "serial", t.Serial)
			continue
		}

		dir := f.cfg.dirName(t.Role)
		scfg := f.cfg.Session
		scfg.OutputDir = filepath.Join(f.cfg.OutputRoot, dir)
		scfg.FilePrefix = dir

		sessions[t.Role] = NewSession(t.Role, dev, f.discovery, f.newWriter, scfg, f.logger)
		report.Bound = append(report.Bound, t.Role)
		used[t.Serial] = true
		f.logger.Info("カメラを割り当て", "role", string(t.Role), "serial", dev.Serial, "model", dev.Model)
	}

	for _, d := range devices {
		if !used[d.Serial] {
			f.logger.Info("設定にないカメラを無視", "serial", d.Serial, "path", d.Path)
		}
	}

	if len(sessions) == 0 {
		return report, fmt.Errorf("%w: 予定台数 %d, 検出 %d 台", ErrNoDevicesFound, len(targets), len(devices))
	}

	if err := f.setupFolders(); err != nil {
		return report, err
	}

	f.sessions = sessions
	f.report = report

	if m := report.Mismatch(); m != nil {
		f.logger.Warn(m.Error())
	}
	return report, nil
}

// setupFolders は全Roleの保存先ディレクトリを作成する（ロック済み前提）
func (f *Fleet) setupFolders() error {
	for _, role := range Roles {
		dir := filepath.Join(f.cfg.OutputRoot, f.cfg.dirName(role))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("保存先ディレクトリの作成に失敗: %w", err)
		}
	}
	return nil
}

// Report は直近のDiscoverAndBindの結果を返す
func (f *Fleet) Report() *BindReport {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.report
}

// StartAll は全セッションを開始する
//
// 1台の失敗は他のセッションに影響しない。失敗はまとめて返す。
func (f *Fleet) StartAll(ctx context.Context) error {
	var errs []error
	for _, s := range f.Sessions() {
		if err := s.Start(ctx); err != nil {
			f.logger.Error("カメラの開始に失敗", "role", string(s.Role()), "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll は全セッションを停止する
//
// 途中で失敗しても残りのセッションの停止を続ける。
func (f *Fleet) StopAll() error {
	var errs []error
	for _, s := range f.Sessions() {
		if err := s.Stop(); err != nil {
			f.logger.Error("カメラの停止に失敗", "role", string(s.Role()), "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Session は指定されたRoleのセッションを返す
func (f *Fleet) Session(role Role) (*Session, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s, ok := f.sessions[role]
	return s, ok
}

// Sessions はRolesの順に並べたセッション一覧を返す
func (f *Fleet) Sessions() []*Session {
	f.mu.RLock()
	defer f.mu.RUnlock()

	sessions := make([]*Session, 0, len(f.sessions))
	for _, role := range Roles {
		if s, ok := f.sessions[role]; ok {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

// Snapshot は全セッションの状態を返す
func (f *Fleet) Snapshot() []SessionInfo {
	sessions := f.Sessions()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}
