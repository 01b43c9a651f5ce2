package main

import (
	"github.com/spf13/cobra"

	"github.com/user/monitoring/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Launch an interactive terminal dashboard showing:
- daemon state and database counts
- monit instances with service health
- the most recent events

Press 'r' to refresh, 'q' to quit. The view also refreshes every 30 seconds.`,
	RunE: runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	return tui.NewApp(db, cfg).Run()
}
