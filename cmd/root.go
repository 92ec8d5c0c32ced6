// Package cmd はdcrコマンドの実装です
package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"dcr/internal/config"
	"dcr/internal/logging"
)

// NewRootCmd はルートコマンドを作成する
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "dcr",
		Short: "果実選別ラインの撮影・判定・振り分け制御",
		Long: `dcrは検査ラインの4台のカメラを録画しながら、作業者の判定に合わせて
信号灯とリレー（噴射弁）を動かすコントローラーです。`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env があれば読み込む（なければ無視）
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "設定ファイル（YAML）のパス")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newDevicesCmd(&configPath),
		newDelayCmd(&configPath),
	)

	return cmd
}

// setup は設定を読み込んでロガーを作る
func setup(configPath string) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closer, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, closer, nil
}
