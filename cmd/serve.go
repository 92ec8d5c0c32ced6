package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"dcr/internal/camera"
	"dcr/internal/config"
	"dcr/internal/dispatch"
	"dcr/internal/driver/patlite"
	"dcr/internal/driver/ydci"
	"dcr/internal/indicator"
	"dcr/internal/inspection"
	"dcr/internal/ledger"
	"dcr/internal/opencv"
	"dcr/internal/peer"
	"dcr/internal/relay"
	"dcr/internal/repository/sqlite"
	"dcr/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "カメラの録画と判定APIを開始する",
		Long: `設定されたシリアル番号のカメラを検出して録画を開始し、信号灯とリレーボードに接続して
判定APIを提供します。Ctrl+Cで全ての機器を安全な状態にしてから終了します。`,
		Example: `  # 既定の設定で起動
  dcr serve

  # 設定ファイルとポートを指定
  dcr serve --config dcr.yaml --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer closer.Close()

			// コマンドラインオプションで設定を上書き
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			return serve(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "サーバーのポート (デフォルト: 8080)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// カメラ
	discovery := camera.NewLinuxDiscovery(opencv.NewOpener(opencv.CameraOptions{
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	}))
	fleet := camera.NewFleet(discovery, opencv.NewWriterFactory(cfg.Camera.Codec), cfg.FleetConfig(), logger)

	if _, err := fleet.DiscoverAndBind(ctx, cfg.Camera.Targets); err != nil {
		return fmt.Errorf("カメラの割り当てに失敗: %w", err)
	}
	if err := fleet.StartAll(ctx); err != nil {
		logger.Warn("一部のカメラを開始できませんでした", "err", err)
	}
	defer func() {
		if err := fleet.StopAll(); err != nil {
			logger.Error("カメラの停止に失敗", "err", err)
		}
	}()

	// 信号灯とリレー。接続できなくても判定と録画は続ける
	ind := indicator.NewController(patlite.Open, cfg.IndicatorConfig(), logger)
	if err := ind.Connect(); err != nil {
		logger.Error("信号灯に接続できません", "err", err)
	}
	defer patlite.Exit()

	rel := relay.NewController(ydci.Open, cfg.RelayConfig(), logger)
	if err := rel.Connect(); err != nil {
		logger.Error("リレーボードに接続できません", "err", err)
	}

	deps := inspection.Deps{
		Ledger:     ledger.New(cfg.Ledger.Capacity),
		Dispatcher: dispatch.New(cfg.Dispatcher.Workers, logger),
		Indicator:  ind,
		Relay:      rel,
		Confidence: inspection.RandomConfidence{Min: cfg.Ledger.MinConfidence, Max: cfg.Ledger.MaxConfidence},
		Speed:      inspection.NewSavedSpeed(cfg.Relay.DefaultSpeed),
		Logger:     logger,
	}

	var err error
	if deps.Policy, err = cfg.InspectionPolicy(); err != nil {
		return err
	}
	if deps.KeyMap, err = cfg.InspectionKeyMap(); err != nil {
		return err
	}

	var journal server.JournalReader
	if cfg.Journal.Enabled {
		db, err := sqlite.New(cfg.Journal.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := sqlite.NewJudgmentRepository(db)
		deps.Journal = repo
		journal = repo
		logger.Info("判定結果を保存します", "path", cfg.Journal.DBPath)
	}

	if cfg.Peer.Enabled {
		deps.Notifier = peer.NewHTTPNotifier(cfg.Peer.BaseURL, cfg.Peer.Timeout, logger)
	}

	hub := server.NewHub(logger)
	deps.Publisher = hub
	ctrl := inspection.NewController(deps)

	srv := server.New(server.Options{
		Addr:         cfg.ServerAddress(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, server.Deps{
		Cameras:   fleet,
		Inspector: ctrl,
		Journal:   journal,
		Encoder:   opencv.JPEGEncoder{},
		Hub:       hub,
	}, logger)

	serveErr := srv.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Error("機器の終了処理に失敗", "err", err)
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}
