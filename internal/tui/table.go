package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/ppiankov/codepatrol/internal/models"
)

// Row statuses relative to the after-scan.
const (
	statusOpen  = "open"
	statusFixed = "fixed"
)

// findingRow is the flattened, display-safe view of one finding.
// Secret snippets never reach it.
type findingRow struct {
	Kind        models.FindingKind
	Label       string
	Location    string
	Description string
	Reference   string
	Status      string
}

var tableColumns = []table.Column{
	{Title: "Kind", Width: 11},
	{Title: "Severity", Width: 12},
	{Title: "Location", Width: 32},
	{Title: "Description", Width: 40},
	{Title: "Status", Width: 7},
}

// rowsFromReport flattens the before-scan. When an after-scan exists, a
// finding missing from it is marked fixed.
func rowsFromReport(report *models.PatrolReport) []findingRow {
	var remaining map[string]bool
	if report.AfterFindings != nil {
		remaining = make(map[string]bool)
		for _, f := range report.AfterFindings.Findings() {
			remaining[rowFromFinding(f).key()] = true
		}
	}

	findings := report.BeforeFindings.Findings()
	rows := make([]findingRow, 0, len(findings))
	for _, f := range findings {
		row := rowFromFinding(f)
		row.Status = statusOpen
		if remaining != nil && !remaining[row.key()] {
			row.Status = statusFixed
		}
		rows = append(rows, row)
	}
	return rows
}

func rowFromFinding(f models.Finding) findingRow {
	switch v := f.(type) {
	case models.DependencyAdvisory:
		return findingRow{Kind: v.Kind(), Label: v.Severity, Location: v.Location(), Description: v.Title, Reference: v.Reference}
	case models.SecretLeak:
		return findingRow{Kind: v.Kind(), Label: string(v.PatternKind), Location: v.Location(), Description: "possible " + string(v.PatternKind) + " in source"}
	case models.StaticCheckFinding:
		return findingRow{Kind: v.Kind(), Label: v.Code, Location: v.Location(), Description: v.Message}
	default:
		return findingRow{Kind: f.Kind(), Location: f.Location(), Description: f.Describe()}
	}
}

func (r findingRow) key() string {
	return string(r.Kind) + "|" + r.Label + "|" + r.Location + "|" + r.Description
}

// buildRows converts finding rows to table rows.
func buildRows(rows []findingRow) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, table.Row{
			string(row.Kind),
			severityLabel(row),
			truncate(row.Location, tableColumns[2].Width),
			truncate(row.Description, tableColumns[3].Width),
			row.Status,
		})
	}
	return out
}

func severityLabel(row findingRow) string {
	switch row.Kind {
	case models.KindSecret:
		return "SECRET"
	case models.KindDependency:
		switch row.Label {
		case models.SeverityCritical:
			return "CRITICAL"
		case models.SeverityHigh:
			return "HIGH"
		case models.SeverityModerate:
			return "MODERATE"
		case models.SeverityLow:
			return "LOW"
		}
	}
	return row.Label
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	const ellipsis = "..."
	if maxLen <= len(ellipsis) {
		return s[:maxLen]
	}
	return s[:maxLen-len(ellipsis)] + ellipsis
}

// newTable creates a bubbles table with standard columns and styling.
func newTable(rows []table.Row, height int) table.Model {
	t := table.New(
		table.WithColumns(tableColumns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(colorAccent).
		Bold(false)
	t.SetStyles(s)

	return t
}
