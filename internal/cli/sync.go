package cli

import (
	"github.com/spf13/cobra"

	"tv-alert-mirror/internal/app"
)

var (
	syncAlerts bool
	syncLogs   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the mirrored state directly from the alert service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sync(cmd.Context(), app.SyncOptions{
			Alerts: syncAlerts,
			Logs:   syncLogs,
		})
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncAlerts, "alerts", false, "Fetch the full alert list")
	syncCmd.Flags().BoolVar(&syncLogs, "logs", false, "Fetch the full fire history")
}
