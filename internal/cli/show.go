package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tv-alert-mirror/internal/app"
)

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show [alerts|logs]",
	Short: "Print mirrored alerts or fire logs from the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection := args[0]
		if collection != "alerts" && collection != "logs" {
			return fmt.Errorf("unknown collection %q, expected alerts or logs", collection)
		}

		return getApp().Show(cmd.Context(), app.ShowOptions{
			Collection: collection,
			Limit:      showLimit,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 0, "Maximum number of records to print (0 prints all)")
}
