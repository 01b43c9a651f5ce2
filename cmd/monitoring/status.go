package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/monitoring/internal/daemon"
	"github.com/user/monitoring/internal/model"
	"github.com/user/monitoring/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Show the current status of the monitoring daemon and database counts.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("Monitoring Status"))

	fmt.Print(labelStyle.Render("Daemon: "))
	if running {
		fmt.Println(runningStyle.Render(fmt.Sprintf("Running (PID %d)", pid)))
	} else {
		fmt.Println(stoppedStyle.Render("Stopped"))
	}

	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil {
		printField("Started:", sf.StartTime.Format("2006-01-02 15:04:05"))
		printField("Uptime:", sf.Uptime)
		printField("Snapshot:", sf.LastCheck.Format("2006-01-02 15:04:05"))
		if sf.MuninVersion != "" {
			printField("Munin:", sf.MuninVersion)
		}

		if len(sf.Jobs) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Jobs"))
			for _, job := range sf.Jobs {
				printJob(job)
			}
		}

		if len(sf.HTTPD) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Monit httpd"))
			for _, c := range sf.HTTPD {
				state := runningStyle.Render(fmt.Sprintf("reachable (%.1f ms)", c.LatencyMs))
				if !c.Reachable {
					state = stoppedStyle.Render("unreachable: " + c.Error)
				}
				fmt.Printf("  %s %s %s\n", labelStyle.Render(c.Host), c.Addr, state)
			}
		}
	}

	db, err := openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := cmd.Context()

	fmt.Println()
	fmt.Println(titleStyle.Render("Database"))
	printField("Schema:", fmt.Sprintf("%d", db.Version()))

	if n, err := storage.NewMonitStorage(db).Count(ctx); err == nil {
		printField("Instances:", fmt.Sprintf("%d", n))
	}
	services := storage.NewServiceStorage(db)
	for _, st := range model.ServiceTypes() {
		if n, err := services.Count(ctx, st); err == nil {
			printField(st.String()+":", fmt.Sprintf("%d", n))
		}
	}
	if n, err := storage.NewEventStorage(db).Count(ctx); err == nil {
		printField("Events:", fmt.Sprintf("%d", n))
	}

	return nil
}

func printJob(job model.JobStatus) {
	state := "idle"
	if job.Running {
		state = "running"
	}
	fmt.Printf("  %s: %s (last: %s, result: %s, errors: %d)\n",
		labelStyle.Render(job.Name),
		valueStyle.Render(state),
		job.LastRun.Format("15:04:05"),
		job.LastResult,
		job.ErrorCount)
}
