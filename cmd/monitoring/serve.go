package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/monitoring/internal/daemon"
	"github.com/user/monitoring/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collector and Munin bridge web server",
	Long: `Run the web server in the foreground. Point monit's "set mmonit"
at http://<host>:<port>/collector to push reports.

Examples:
  monitoring serve
  monitoring serve --listen 127.0.0.1:8081`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		cfg.ListenAddr = addr
	}
	util.WatchConfig()

	svc, err := daemon.Wire(cmd.Context(), cfg, util.GetLogger())
	if err != nil {
		return err
	}
	defer svc.Close()

	util.Info("Serving collector on %s", cfg.ListenAddr)
	fmt.Printf("Collector listening on %s (schema version %d)\n", cfg.ListenAddr, svc.DB.Version())
	fmt.Println("Press Ctrl+C to stop")

	return svc.Web.ListenAndServe()
}
