package tui

import (
	"fmt"
	"strings"
)

// detailHeight is the fixed number of lines for the detail panel.
const detailHeight = 5

// renderDetail produces the detail view for a selected finding.
func renderDetail(row *findingRow, width int) string {
	if row == nil {
		return styleDetailPanel.Width(width).Render("No finding selected")
	}

	var b strings.Builder

	label := rowStyle(*row).Render(severityLabel(*row))
	b.WriteString(fmt.Sprintf("%s  %s  [%s]\n", label, row.Kind, row.Status))
	b.WriteString(fmt.Sprintf("Location: %s\n", row.Location))
	b.WriteString(fmt.Sprintf("Detail: %s\n", row.Description))

	if row.Reference != "" {
		b.WriteString(fmt.Sprintf("Reference: %s", row.Reference))
	}

	return styleDetailPanel.Width(width).Render(b.String())
}
