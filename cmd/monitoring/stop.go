package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/user/monitoring/internal/daemon"
	"github.com/user/monitoring/internal/util"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the monitoring daemon",
	Long:  "Stop the running monitoring daemon gracefully.",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)
	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	fmt.Printf("Stopping daemon (PID %d)...\n", pid)

	if err := daemon.SendStop(cfg.DataDir); err != nil {
		return errors.Wrap(err, "failed to stop daemon")
	}

	for i := 0; i < 30; i++ {
		time.Sleep(time.Second)
		if running, _ := daemon.CheckRunning(cfg.DataDir); !running {
			fmt.Println("Daemon stopped")
			return nil
		}
	}

	util.Error("Daemon PID %d still running after 30s", pid)
	fmt.Println("Warning: Daemon may not have stopped completely")
	return nil
}
