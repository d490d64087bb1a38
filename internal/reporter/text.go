package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/codepatrol/internal/models"
)

var riskStyles = map[models.RiskLevel]lipgloss.Style{
	models.RiskCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	models.RiskHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
	models.RiskMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
	models.RiskLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	models.RiskClean:    lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
}

// TextReporter generates human-readable text reports
type TextReporter struct {
	writer io.Writer
}

// NewTextReporter creates a new text reporter
func NewTextReporter(writer io.Writer) *TextReporter {
	return &TextReporter{
		writer: writer,
	}
}

// Generate writes the report
func (r *TextReporter) Generate(report *models.PatrolReport) error {
	r.printHeader()
	r.printf("Date: %s   Run: %s\n", report.Date, report.RunID)
	if report.Duration > 0 {
		r.printf("Duration: %s\n", report.Duration.Round(time.Second))
	}
	r.printf("\n")

	r.printf("Risk Level: %s\n", RiskLabel(report.RiskLevel))
	r.printf("Summary: %s\n\n", report.Summary)

	r.printSnapshot("Before", &report.BeforeFindings)
	if report.AfterFindings != nil && len(report.Diffs) > 0 {
		r.printSnapshot("After", report.AfterFindings)
	}

	if len(report.Remediations) > 0 {
		r.printRemediations(report.Remediations)
	}
	if len(report.Diffs) > 0 {
		r.printDiffs(report.Diffs)
	}
	if report.Verification != nil {
		r.printVerification(report)
	}
	if report.QualityReview != nil {
		r.printReview(report.QualityReview)
	}
	if len(report.ManualRecommendations) > 0 {
		r.printRecommendations(report.ManualRecommendations)
	}
	if !report.SafetyNetCaptured && report.BeforeFindings.TotalFindings() > 0 {
		r.printf("\nSafety net: nothing captured (tree was clean or capture failed)\n")
	}
	if report.CostUnits > 0 || report.ActionCount > 0 {
		r.printf("\nAgent: %d actions, cost %.4f\n", report.ActionCount, report.CostUnits)
	}

	return nil
}

// RiskLabel renders a risk level with its color.
func RiskLabel(level models.RiskLevel) string {
	label := strings.ToUpper(string(level))
	if style, ok := riskStyles[level]; ok {
		return style.Render(label)
	}
	return label
}

func (r *TextReporter) printHeader() {
	r.printf("╔════════════════════════════════════════════╗\n")
	r.printf("║            Code Patrol Report              ║\n")
	r.printf("╚════════════════════════════════════════════╝\n\n")
}

func (r *TextReporter) printSnapshot(label string, s *models.ScanSnapshot) {
	r.printf("%s:\n", label)
	r.printf("--------------------------------------------------\n")
	r.printf("  Static-check errors: %d\n", len(s.StaticFindings))
	r.printf("  Potential secrets:   %d\n", len(s.Secrets))
	c := s.DependencyCounts
	r.printf("  Vulnerable deps:     %d (critical %d, high %d, moderate %d, low %d)\n",
		len(s.Advisories), c.Critical, c.High, c.Moderate, c.Low)
	r.printf("\n")
}

func (r *TextReporter) printRemediations(actions []models.RemediationAction) {
	r.printf("Remediations:\n")
	r.printf("--------------------------------------------------\n")
	for i, a := range actions {
		r.printf("  %d. [%s] %s\n", i+1, a.Category, a.Description)
		if len(a.FilesChanged) > 0 {
			r.printf("     Files: %s\n", strings.Join(a.FilesChanged, ", "))
		}
	}
	r.printf("\n")
}

func (r *TextReporter) printDiffs(diffs []models.FileDiff) {
	r.printf("Changes:\n")
	r.printf("--------------------------------------------------\n")
	for _, d := range diffs {
		r.printf("  %-40s +%d -%d\n", d.File, d.Additions, d.Deletions)
	}
	r.printf("\n")
}

func (r *TextReporter) printVerification(report *models.PatrolReport) {
	v := report.Verification
	r.printf("Verification:\n")
	r.printf("--------------------------------------------------\n")
	r.printf("  Build: %s\n", passFail(v.BuildPassed))
	r.printf("  Tests: %s\n", passFail(v.TestsPassed))
	if report.RolledBack {
		r.printf("  Changes rolled back\n")
	}
	if report.UnverifiedEdits {
		r.printf("  Changes NOT rolled back: no safety net was captured\n")
	}
	if v.ErrorExcerpt != "" {
		r.printf("  Error:\n")
		for _, line := range strings.Split(v.ErrorExcerpt, "\n") {
			r.printf("    %s\n", line)
		}
	}
	r.printf("\n")
}

func (r *TextReporter) printReview(qr *models.QualityReview) {
	r.printf("Quality Review (advisory): %s\n", qr.Verdict)
	for _, n := range qr.Notes {
		r.printf("  - %s\n", n)
	}
	r.printf("\n")
}

func (r *TextReporter) printRecommendations(recs []string) {
	r.printf("Manual Follow-up:\n")
	r.printf("--------------------------------------------------\n")
	for i, rec := range recs {
		r.printf("  %d. %s\n", i+1, rec)
	}
}

func (r *TextReporter) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(r.writer, format, args...)
}

func passFail(ok bool) string {
	if ok {
		return "PASSED"
	}
	return "FAILED"
}
