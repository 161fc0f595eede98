package cli

import (
	"github.com/spf13/cobra"

	"tv-alert-mirror/internal/app"
)

var (
	exportCSVPath   string
	exportPNGPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export mirrored fire logs to CSV and an activity chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			CSVPath:   exportCSVPath,
			PNGPath:   exportPNGPath,
			MaxPoints: exportMaxPoints,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Write fire logs to this CSV file")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Write a fires-per-day chart to this PNG file")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Downsample CSV output to at most this many rows (0 uses config)")
}
