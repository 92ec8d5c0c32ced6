package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dcr/internal/relay"
)

func newDelayCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delay",
		Short: "速度ごとの噴射までの待ち時間を表示する",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closer, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer closer.Close()

			timing := cfg.Relay.Timing
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SPEED\tPULSE DELAY\tREMOVE\tTRANSPORT")
			for speed := relay.MinSpeed; speed <= relay.MaxSpeed; speed++ {
				remove, transport := timing.ChannelDelaySeconds(speed)
				fmt.Fprintf(w, "%d\t%.4fs\t%.3fs\t%.3fs\n", speed, timing.SpeedTable[speed-1], remove, transport)
			}
			fmt.Fprintf(w, "\nopen duration: %s\n", cfg.Relay.OpenDuration)
			return w.Flush()
		},
	}
}
