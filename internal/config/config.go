// Package config 設定ファイルと環境変数からアプリケーションの設定を読み込む
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dcr/internal/camera"
	"dcr/internal/indicator"
	"dcr/internal/inspection"
	"dcr/internal/ledger"
	"dcr/internal/logging"
	"dcr/internal/relay"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server     ServerConfig           `yaml:"server"`
	Camera     CameraConfig           `yaml:"camera"`
	Indicator  IndicatorConfig        `yaml:"indicator"`
	Relay      RelayConfig            `yaml:"relay"`
	Ledger     LedgerConfig           `yaml:"ledger"`
	Policy     map[string]PolicyEntry `yaml:"policy"` // 判定結果名 → 動作
	KeyMap     map[string]string      `yaml:"keymap"` // キー → 判定結果名
	Dispatcher DispatcherConfig       `yaml:"dispatcher"`
	Journal    JournalConfig          `yaml:"journal"`
	Peer       PeerConfig             `yaml:"peer"`
	Log        logging.Options        `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Targets    []camera.Target   `yaml:"targets"`     // シリアル番号と設置位置の対応
	OutputRoot string            `yaml:"output_root"` // 録画の親ディレクトリ
	DirNames   map[string]string `yaml:"dir_names"`   // 設置位置ごとの子ディレクトリ名

	Codec     string  `yaml:"codec"`     // FourCC
	Extension string  `yaml:"extension"` // 拡張子
	FPS       float64 `yaml:"fps"`

	// 録画サイズ。UseDeviceResolutionがtrueならカメラの解像度をそのまま使う
	Width               int  `yaml:"width"`
	Height              int  `yaml:"height"`
	UseDeviceResolution bool `yaml:"use_device_resolution"`

	RetrieveTimeout time.Duration `yaml:"retrieve_timeout"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`
	QueueDepth      int           `yaml:"queue_depth"`
}

// IndicatorConfig は信号灯の設定
type IndicatorConfig struct {
	VendorID  uint16        `yaml:"vendor_id"`
	ProductID uint16        `yaml:"product_id"`
	Settle    time.Duration `yaml:"settle"`
}

// RelayConfig はリレーボードの設定
type RelayConfig struct {
	BoardName    string        `yaml:"board_name"`
	OpenDuration time.Duration `yaml:"open_duration"`
	Timing       relay.Timing  `yaml:"timing"`
	DefaultSpeed int           `yaml:"default_speed"`
}

// LedgerConfig は判定履歴の設定
type LedgerConfig struct {
	Capacity      int `yaml:"capacity"`
	MinConfidence int `yaml:"min_confidence"`
	MaxConfidence int `yaml:"max_confidence"`
}

// PolicyEntry は判定結果1つ分の動作設定
type PolicyEntry struct {
	Pattern string `yaml:"pattern"` // 信号灯パターン名
	Channel string `yaml:"channel"` // リレーのチャンネル名
	Pulse   bool   `yaml:"pulse"`
}

// DispatcherConfig はバックグラウンドタスクの設定
type DispatcherConfig struct {
	Workers int `yaml:"workers"` // 0以下ならCPU数
}

// JournalConfig は判定結果の永続化設定
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// PeerConfig は搬送装置への通知設定
type PeerConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default は実機の既定値を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // WebSocket用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Targets: []camera.Target{
				{Serial: "25308967", Role: camera.RoleTop},
				{Serial: "21905526", Role: camera.RoleUnder},
				{Serial: "25308969", Role: camera.RoleInside},
				{Serial: "25308968", Role: camera.RoleOutside},
			},
			OutputRoot:      "cam_video",
			Codec:           "XVID",
			Extension:       ".avi",
			FPS:             20,
			Width:           1280,
			Height:          960,
			RetrieveTimeout: 5 * time.Second,
			StopTimeout:     2 * time.Second,
			QueueDepth:      8,
		},
		Indicator: IndicatorConfig{
			VendorID:  0x191a,
			ProductID: 0x6001,
			Settle:    time.Second,
		},
		Relay: RelayConfig{
			BoardName:    "RLY-P4/2/0B-UBT",
			OpenDuration: 200 * time.Millisecond,
			Timing:       relay.DefaultTiming(),
			DefaultSpeed: relay.DefaultSpeed,
		},
		Ledger: LedgerConfig{
			Capacity:      ledger.DefaultCapacity,
			MinConfidence: 60,
			MaxConfidence: 95,
		},
		Policy: map[string]PolicyEntry{
			"mold":       {Pattern: "violet", Channel: "remove", Pulse: true},
			"immature":   {Pattern: "yellow", Channel: "remove", Pulse: true},
			"healthy":    {Pattern: "white", Channel: "transport", Pulse: true},
			"stem_crack": {Pattern: "blue", Channel: "remove", Pulse: true},
		},
		KeyMap: map[string]string{
			"1": "mold",
			"2": "immature",
			"3": "healthy",
			"4": "stem_crack",
		},
		Journal: JournalConfig{
			Enabled: true,
			DBPath:  "data/judgments.db",
		},
		Peer: PeerConfig{
			Enabled: false,
			BaseURL: "http://192.168.2.2:5000",
			Timeout: 2 * time.Second,
		},
		Log: logging.Options{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load は設定を読み込む
//
// 既定値にYAMLファイル（pathが空なら読まない）を重ね、最後に環境変数で上書きする。
// .env の読み込みは呼び出し側が先に済ませておく。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("DCR_SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.OutputRoot = getEnvOrDefault("DCR_OUTPUT_DIR", c.Camera.OutputRoot)
	c.Log.Level = getEnvOrDefault("DCR_LOG_LEVEL", c.Log.Level)
	c.Journal.DBPath = getEnvOrDefault("DCR_DB_PATH", c.Journal.DBPath)

	if v := os.Getenv("DCR_PEER_URL"); v != "" {
		c.Peer.BaseURL = v
		c.Peer.Enabled = true
	}
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	if err := c.validateCamera(); err != nil {
		return err
	}

	if err := c.Relay.Timing.Validate(); err != nil {
		return err
	}
	if c.Relay.OpenDuration <= 0 {
		return fmt.Errorf("無効な噴射時間: %s", c.Relay.OpenDuration)
	}
	if c.Relay.DefaultSpeed < relay.MinSpeed || c.Relay.DefaultSpeed > relay.MaxSpeed {
		return fmt.Errorf("無効な既定速度: %d", c.Relay.DefaultSpeed)
	}

	if c.Ledger.Capacity < 1 {
		return fmt.Errorf("無効な履歴件数: %d", c.Ledger.Capacity)
	}
	if c.Ledger.MinConfidence > c.Ledger.MaxConfidence {
		return fmt.Errorf("確信度の範囲が不正: %d〜%d", c.Ledger.MinConfidence, c.Ledger.MaxConfidence)
	}

	if _, err := c.InspectionPolicy(); err != nil {
		return err
	}
	if _, err := c.InspectionKeyMap(); err != nil {
		return err
	}

	if c.Journal.Enabled && c.Journal.DBPath == "" {
		return errors.New("データベースのパスが設定されていません")
	}
	if c.Peer.Enabled && c.Peer.BaseURL == "" {
		return errors.New("搬送装置のURLが設定されていません")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateCamera() error {
	if len(c.Camera.Targets) == 0 {
		return errors.New("カメラが設定されていません")
	}

	serials := make(map[string]bool)
	roles := make(map[camera.Role]bool)
	for _, t := range c.Camera.Targets {
		if t.Serial == "" {
			return errors.New("カメラのシリアル番号が設定されていません")
		}
		if _, err := camera.ParseRole(string(t.Role)); err != nil {
			return err
		}
		if serials[t.Serial] {
			return fmt.Errorf("シリアル番号 %s が重複しています", t.Serial)
		}
		if roles[t.Role] {
			return fmt.Errorf("カメラ位置 %s が重複しています", t.Role)
		}
		serials[t.Serial] = true
		roles[t.Role] = true
	}

	for role := range c.Camera.DirNames {
		if _, err := camera.ParseRole(role); err != nil {
			return err
		}
	}

	if c.Camera.OutputRoot == "" {
		return errors.New("録画の保存先が設定されていません")
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("無効なフレームレート: %v", c.Camera.FPS)
	}
	if len(c.Camera.Codec) != 4 {
		return fmt.Errorf("コーデックは4文字で指定してください: %q", c.Camera.Codec)
	}
	if !c.Camera.UseDeviceResolution && (c.Camera.Width <= 0 || c.Camera.Height <= 0) {
		return fmt.Errorf("無効な録画サイズ: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	return nil
}

// FleetConfig はカメラフリートの設定に変換する
func (c *Config) FleetConfig() camera.FleetConfig {
	dirs := make(map[camera.Role]string, len(c.Camera.DirNames))
	for role, name := range c.Camera.DirNames {
		dirs[camera.Role(role)] = name
	}

	var size camera.Resolution
	if !c.Camera.UseDeviceResolution {
		size = camera.Resolution{Width: c.Camera.Width, Height: c.Camera.Height}
	}

	return camera.FleetConfig{
		OutputRoot: c.Camera.OutputRoot,
		DirNames:   dirs,
		Session: camera.SessionConfig{
			Extension:       c.Camera.Extension,
			FPS:             c.Camera.FPS,
			FrameSize:       size,
			RetrieveTimeout: c.Camera.RetrieveTimeout,
			StopTimeout:     c.Camera.StopTimeout,
			QueueDepth:      c.Camera.QueueDepth,
		},
	}
}

// IndicatorConfig は信号灯コントローラーの設定に変換する
func (c *Config) IndicatorConfig() indicator.Config {
	return indicator.Config{
		VendorID:  c.Indicator.VendorID,
		ProductID: c.Indicator.ProductID,
		Settle:    c.Indicator.Settle,
	}
}

// RelayConfig はリレーコントローラーの設定に変換する
func (c *Config) RelayConfig() relay.Config {
	return relay.Config{
		BoardName:    c.Relay.BoardName,
		OpenDuration: c.Relay.OpenDuration,
		Timing:       c.Relay.Timing,
	}
}

// InspectionPolicy は判定結果ごとの動作表に変換する
func (c *Config) InspectionPolicy() (inspection.Policy, error) {
	policy := make(inspection.Policy, len(c.Policy))
	for name, e := range c.Policy {
		label, err := ledger.ParseLabel(name)
		if err != nil {
			return nil, fmt.Errorf("policy: %w", err)
		}
		pattern, err := indicator.ParsePattern(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("policy.%s: %w", name, err)
		}
		ch, err := relay.ParseChannel(e.Channel)
		if err != nil {
			return nil, fmt.Errorf("policy.%s: %w", name, err)
		}
		policy[label] = inspection.Action{Pattern: pattern, Channel: ch, Pulse: e.Pulse}
	}
	return policy, nil
}

// InspectionKeyMap は操作キーの対応表に変換する
func (c *Config) InspectionKeyMap() (inspection.KeyMap, error) {
	keys := make(inspection.KeyMap, len(c.KeyMap))
	for key, name := range c.KeyMap {
		label, err := ledger.ParseLabel(name)
		if err != nil {
			return nil, fmt.Errorf("keymap.%s: %w", key, err)
		}
		keys[key] = label
	}
	return keys, nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
