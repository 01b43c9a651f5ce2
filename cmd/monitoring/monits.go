package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/monitoring/internal/storage"
)

var monitsCmd = &cobra.Command{
	Use:   "monits",
	Short: "List monit instances that reported",
	RunE:  runMonits,
}

func init() {
	monitsCmd.Flags().Bool("services", false, "also list the latest state of each service")
}

func runMonits(cmd *cobra.Command, args []string) error {
	withServices, _ := cmd.Flags().GetBool("services")

	db, err := openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := cmd.Context()

	instances, err := storage.NewMonitStorage(db).List(ctx)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		fmt.Println("No monit instance has reported yet")
		return nil
	}

	services := storage.NewServiceStorage(db)
	for _, inst := range instances {
		fmt.Println(titleStyle.Render(inst.LocalHostname))
		printField("Monit id:", inst.MonitID)
		printField("Version:", inst.Version)
		printField("Platform:", fmt.Sprintf("%s %s %s", inst.PlatformName, inst.PlatformRelease, inst.PlatformMachine))
		printField("Uptime:", inst.UptimeFormatted)

		if !withServices {
			fmt.Println()
			continue
		}
		rows, err := services.Latest(ctx, inst.ID)
		if err != nil {
			return err
		}
		for _, r := range rows {
			state := runningStyle.Render("ok")
			if r.Status != 0 {
				state = stoppedStyle.Render(fmt.Sprintf("failed %s", r.StatusMessage))
			}
			fmt.Printf("    %-10s %-24s %s\n", r.Type, r.Name, state)
		}
		fmt.Println()
	}
	return nil
}
