package tui

import (
	"fmt"
	"strings"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/trend"
)

// headerHeight is the number of terminal lines the header occupies.
const headerHeight = 5

// renderHeader produces the header string from the report and an optional
// multi-run summary.
func renderHeader(report *models.PatrolReport, summary *trend.Summary, width int) string {
	var b strings.Builder

	// Line 1: title, risk and outcome
	riskText := riskStyle(report.RiskLevel).Render(strings.ToUpper(string(report.RiskLevel)))
	b.WriteString(fmt.Sprintf("Code Patrol %s  Risk: %s  %s", report.Date, riskText, outcomeLabel(report)))
	b.WriteString("\n")

	// Line 2: summary sentence
	b.WriteString(report.Summary)
	b.WriteString("\n")

	// Line 3: per-kind breakdown
	counts := report.BeforeFindings.CountsByKind()
	parts := make([]string, 0, 3)
	for _, kind := range []models.FindingKind{models.KindSecret, models.KindDependency, models.KindStatic} {
		if counts[kind] > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", kind, counts[kind]))
		}
	}
	b.WriteString(strings.Join(parts, "  "))
	b.WriteString("\n")

	// Line 4: sparkline
	if summary != nil && len(summary.FindingSparkline) > 0 {
		b.WriteString("Trend: ")
		b.WriteString(renderSparkline(summary.FindingSparkline))
	}

	return styleHeader.Width(width).Render(b.String())
}

func outcomeLabel(report *models.PatrolReport) string {
	switch {
	case report.RolledBack:
		return "rolled back"
	case report.UnverifiedEdits:
		return "unverified edits left"
	case len(report.Diffs) > 0:
		return fmt.Sprintf("kept %d file(s)", len(report.Diffs))
	case report.BeforeFindings.TotalFindings() == 0:
		return "clean"
	default:
		return "unchanged"
	}
}

// renderSparkline converts an int slice to a unicode sparkline string.
func renderSparkline(values []int) string {
	if len(values) == 0 {
		return ""
	}

	bars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	var b strings.Builder
	for _, v := range values {
		if hi == lo {
			b.WriteRune(bars[len(bars)/2])
		} else {
			normalized := float64(v-lo) / float64(hi-lo)
			idx := int(normalized * float64(len(bars)-1))
			b.WriteRune(bars[idx])
		}
	}

	first, last := values[0], values[len(values)-1]
	direction := trend.Stable
	switch {
	case last < first:
		direction = trend.Improving
	case last > first:
		direction = trend.Degrading
	}
	b.WriteString(fmt.Sprintf(" [%d→%d] %s", first, last, trend.Indicator(direction)))
	return b.String()
}
