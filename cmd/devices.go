package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dcr/internal/camera"
	"dcr/internal/driver/patlite"
)

func newDevicesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "接続されているカメラと信号灯を一覧表示する",
		Long:  `カメラのシリアル番号を読み取り、設定されたカメラ位置との対応を表示します。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closer, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer closer.Close()

			devices, err := camera.NewLinuxDiscovery(nil).ScanDevices(cmd.Context())
			if err != nil {
				return err
			}

			roles := make(map[string]camera.Role, len(cfg.Camera.Targets))
			for _, t := range cfg.Camera.Targets {
				roles[t.Serial] = t.Role
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tSERIAL\tMODEL\tROLE")
			found := make(map[string]bool, len(devices))
			for _, d := range devices {
				role := "-"
				if r, ok := roles[d.Serial]; ok {
					role = string(r)
					found[d.Serial] = true
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Path, d.Serial, d.Model, role)
			}
			w.Flush()

			for _, t := range cfg.Camera.Targets {
				if !found[t.Serial] {
					fmt.Fprintf(out, "未接続: %s (%s)\n", t.Serial, t.Role)
				}
			}

			lights, err := patlite.List(cfg.Indicator.VendorID, cfg.Indicator.ProductID)
			defer patlite.Exit()
			if err != nil {
				fmt.Fprintf(out, "信号灯の列挙に失敗: %v\n", err)
				return nil
			}
			if len(lights) == 0 {
				fmt.Fprintf(out, "信号灯 %04x:%04x は接続されていません\n", cfg.Indicator.VendorID, cfg.Indicator.ProductID)
			}
			for _, l := range lights {
				fmt.Fprintf(out, "信号灯: %s %s (serial %s) %s\n", l.Manufacturer, l.Product, l.Serial, l.Path)
			}
			return nil
		},
	}
}
