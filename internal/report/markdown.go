package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/monitoring/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// FormatMarkdown renders report data as a markdown document.
func FormatMarkdown(data *ReportData) string {
	var sb strings.Builder

	sb.WriteString("# Monitoring Report\n\n")
	fmt.Fprintf(&sb, "Generated: %s  \n", data.GeneratedAt.Format(timeLayout))
	fmt.Fprintf(&sb, "Period: %s to %s\n\n", data.Since.Format(timeLayout), data.Until.Format(timeLayout))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Monit instances | %d |\n", len(data.Instances))
	fmt.Fprintf(&sb, "| Events | %d |\n\n", data.EventTotal)

	sb.WriteString("## Instances\n\n")
	if len(data.Instances) == 0 {
		sb.WriteString("No monit instance has reported yet.\n\n")
	}
	for _, ir := range data.Instances {
		inst := ir.Instance
		fmt.Fprintf(&sb, "### %s\n\n", inst.LocalHostname)
		fmt.Fprintf(&sb, "- Monit id: `%s`\n", inst.MonitID)
		if inst.Version != "" {
			fmt.Fprintf(&sb, "- Version: %s\n", inst.Version)
		}
		if inst.PlatformName != "" {
			fmt.Fprintf(&sb, "- Platform: %s %s (%s)\n", inst.PlatformName, inst.PlatformRelease, inst.PlatformMachine)
		}
		fmt.Fprintf(&sb, "- Uptime: %s\n", inst.UptimeFormatted)
		fmt.Fprintf(&sb, "- Services: %d (%d failing)\n\n", len(ir.Services), ir.Failing)

		if len(ir.Services) > 0 {
			sb.WriteString("| Service | Type | Status | Collected |\n|---|---|---|---|\n")
			for _, s := range ir.Services {
				fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
					escapeCell(s.Name), s.Type, statusText(s), time.Unix(s.CollectedSec, 0).UTC().Format(timeLayout))
			}
			sb.WriteString("\n")
		}

		if data.IncludeDiagram && len(ir.Services) > 0 {
			sb.WriteString(InstanceDiagram(ir))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("## Events\n\n")
	if data.EventTotal == 0 {
		sb.WriteString("No events in this period.\n\n")
	} else {
		sb.WriteString("| Service type | Events |\n|---|---|\n")
		for _, st := range model.ServiceTypes() {
			if n := data.EventCounts[st]; n > 0 {
				fmt.Fprintf(&sb, "| %s | %d |\n", st, n)
			}
		}
		sb.WriteString("\n")
	}

	if len(data.Timeline) > 0 {
		sb.WriteString("### Timeline\n\n")
		for _, e := range data.Timeline {
			fmt.Fprintf(&sb, "- %s **%s** %s (%s)\n",
				e.Event.CollectedAt().Format(timeLayout), e.Title(), e.Description(), e.Author)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func statusText(s model.ServiceRow) string {
	switch {
	case s.Status == 0:
		return "ok"
	case s.StatusMessage != "":
		return escapeCell(s.StatusMessage)
	default:
		return fmt.Sprintf("failed (%#x)", s.Status)
	}
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}
