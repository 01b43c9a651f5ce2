package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/user/monitoring/internal/model"
	"github.com/user/monitoring/internal/report"
)

var (
	reportLast    string
	reportOutput  string
	reportEvents  bool
	reportDiagram bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a markdown report",
	Long: `Generate a markdown report of monit instances and events.

Examples:
  monitoring report --last 24h
  monitoring report --last 7d --output ./report.md
  monitoring report --last 1w --output -`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportLast, "last", "24h",
		"Time range (e.g., 1h, 24h, 7d, 2w)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"Output file path, - for stdout (default: reports/ in the data dir)")
	reportCmd.Flags().BoolVar(&reportEvents, "events", true,
		"Include the event timeline")
	reportCmd.Flags().BoolVar(&reportDiagram, "diagram", true,
		"Include a Mermaid diagram per instance")
}

func runReport(cmd *cobra.Command, args []string) error {
	duration, err := parseDuration(reportLast)
	if err != nil {
		return errors.Wrap(err, "invalid time range")
	}

	until := time.Now()
	since := until.Add(-duration)

	db, err := openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	gen := report.NewGenerator(db, cfg)
	data, err := gen.Generate(cmd.Context(), model.ReportOptions{
		Since:          since,
		Until:          until,
		OutputPath:     reportOutput,
		IncludeEvents:  reportEvents,
		IncludeDiagram: reportDiagram,
	})
	if err != nil {
		return errors.Wrap(err, "failed to generate report")
	}

	content := report.FormatMarkdown(data)
	if reportOutput == "-" {
		fmt.Print(content)
		return nil
	}

	path := reportOutput
	if path == "" {
		path = filepath.Join(cfg.DataDir, "reports",
			fmt.Sprintf("monitoring_report_%s.md", until.Format("20060102_150405")))
	}
	if err := writeFile(path, content); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	fmt.Printf("Report saved to: %s\n", path)

	fmt.Println()
	fmt.Println("Report Summary:")
	fmt.Printf("  Instances: %d\n", len(data.Instances))
	fmt.Printf("  Events: %d\n", data.EventTotal)

	return nil
}

// parseDuration accepts time.ParseDuration input plus whole days (7d) and
// weeks (2w).
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	for suffix, unit := range map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour} {
		if n := strings.TrimSuffix(s, suffix); n != s {
			count, err := cast.ToIntE(n)
			if err != nil || count <= 0 {
				return 0, errors.Errorf("invalid duration %q", s)
			}
			return time.Duration(count) * unit, nil
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
