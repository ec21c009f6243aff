package style

import (
	"fmt"

	"github.com/imbue-ai/mng/internal/gc"
	"github.com/imbue-ai/mng/internal/query"
)

// AgentTable builds the listing table for query.ListAgents' result.
func AgentTable(views []query.AgentView) *Table {
	t := NewTable(
		Column{Name: "NAME", Width: 20},
		Column{Name: "STATE", Width: 10},
		Column{Name: "TYPE", Width: 12},
		Column{Name: "HOST", Width: 16},
		Column{Name: "PROVIDER", Width: 10},
	)
	for _, v := range views {
		t.AddRow(
			string(v.Agent.Name),
			v.Agent.State.String(),
			v.Agent.AgentType,
			string(v.HostName),
			v.Provider,
		)
	}
	return t
}

// FindingTable builds the gc --dry-run / gc report table.
func FindingTable(findings []gc.Finding) *Table {
	t := NewTable(
		Column{Name: "KIND", Width: 10},
		Column{Name: "REF", Width: 30},
		Column{Name: "PROVIDER", Width: 10},
		Column{Name: "STATUS", Width: 12},
		Column{Name: "REASON", Width: 30},
	)
	for _, f := range findings {
		status := "would destroy"
		renderStyle := Dim
		if f.Error != nil {
			status = "error"
			renderStyle = Error
		} else if f.Destroyed {
			status = "destroyed"
			renderStyle = Success
		}
		t.AddRow(string(f.Kind), f.Ref, f.Provider, renderStyle.Render(status), f.Reason)
	}
	return t
}

// FormatCount renders a small "N item(s)" summary line, used under both
// tables to report totals without the caller needing its own pluralizer.
func FormatCount(noun string, n int) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
