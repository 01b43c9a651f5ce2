package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/user/monitoring/internal/daemon"
	"github.com/user/monitoring/internal/util"
)

var (
	foreground bool
	noWeb      bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitoring daemon",
	Long: `Start the daemon in the background. It serves the collector and the
Munin bridge, writes a status snapshot periodically and keeps the Munin
stats cache warm.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false,
		"Run in foreground instead of daemonizing")
	startCmd.Flags().BoolVar(&noWeb, "no-web", false,
		"Run only the periodic jobs, without the web server")
}

func runStart(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)
	if running {
		fmt.Printf("Daemon is already running (PID %d)\n", pid)
		return nil
	}

	if foreground {
		return runForeground()
	}

	return runDaemon()
}

func runForeground() error {
	fmt.Println("Starting monitoring in foreground mode...")
	util.WatchConfig()

	var opts []daemon.Option
	if noWeb {
		opts = append(opts, daemon.WithoutWeb())
	}
	d, err := daemon.New(cfg, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create daemon")
	}

	if err := d.Start(); err != nil {
		return errors.Wrap(err, "failed to start daemon")
	}

	if !noWeb {
		fmt.Printf("Collector: http://%s/collector\n", cfg.ListenAddr)
	}
	fmt.Println("Daemon started. Press Ctrl+C to stop.")

	d.Wait()
	return d.Stop()
}

func runDaemon() error {
	executable, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "failed to get executable path")
	}

	args := []string{"start", "--foreground"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}
	if noWeb {
		args = append(args, "--no-web")
	}

	// The logger writes cfg.LogFile itself; this only catches panics and
	// console output.
	outPath := filepath.Join(cfg.DataDir, "daemon.out")
	logFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to open daemon output file")
	}
	defer logFile.Close()

	procAttr := &os.ProcAttr{
		Dir:   "/",
		Env:   os.Environ(),
		Files: []*os.File{nil, logFile, logFile},
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	util.Debug("Re-executing %s %v", executable, args)
	proc, err := os.StartProcess(executable, append([]string{executable}, args...), procAttr)
	if err != nil {
		return errors.Wrap(err, "failed to start daemon process")
	}

	if err := proc.Release(); err != nil {
		util.Warn("Failed to release process: %v", err)
	}

	fmt.Printf("Monitoring daemon started (PID %d)\n", proc.Pid)
	fmt.Printf("Logs: %s\n", cfg.LogFile)

	return nil
}
