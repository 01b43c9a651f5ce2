package report

import (
	"fmt"
	"strings"

	"github.com/user/monitoring/internal/model"
)

// InstanceDiagram creates a Mermaid flowchart of one instance and its
// services, grouped by service type. Failing services are highlighted.
func InstanceDiagram(ir InstanceReport) string {
	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart LR\n")
	fmt.Fprintf(&sb, "    M[%s]\n", label(ir.Instance.LocalHostname))

	byType := make(map[model.ServiceType][]model.ServiceRow)
	for _, s := range ir.Services {
		byType[s.Type] = append(byType[s.Type], s)
	}

	n := 0
	for _, st := range model.ServiceTypes() {
		rows := byType[st]
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "    subgraph %s\n", st)
		for _, s := range rows {
			n++
			node := fmt.Sprintf("S%d", n)
			class := ""
			if s.Status != 0 {
				class = ":::failed"
			}
			fmt.Fprintf(&sb, "        %s[%s]%s\n", node, label(s.Name), class)
		}
		sb.WriteString("    end\n")
		fmt.Fprintf(&sb, "    M --> %s\n", st)
	}

	sb.WriteString("    classDef failed fill:#FFB6C1,stroke:#FF0000\n")
	sb.WriteString("```\n")

	return sb.String()
}

// label quotes s for use as a Mermaid node label.
func label(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "#quot;") + `"`
}
