package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wager-rewards/internal/app"
)

var (
	exportCSVPath string
	exportPNGPath string
	exportTopN    int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current wager leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportCSVPath == "" && exportPNGPath == "" {
			return fmt.Errorf("at least one of --csv or --png must be provided")
		}

		opts := app.ExportOptions{
			CSVPath: exportCSVPath,
			PNGPath: exportPNGPath,
			TopN:    exportTopN,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Write leaderboard CSV to this path")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Write leaderboard chart to this path")
	exportCmd.Flags().IntVar(&exportTopN, "top", 0, "Number of entries to export (default from config)")
}
