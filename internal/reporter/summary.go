package reporter

import (
	"fmt"
	"strings"

	"github.com/ppiankov/codepatrol/internal/models"
)

// Summary renders the one-line description stored on every report.
func Summary(r *models.PatrolReport) string {
	before := r.BeforeFindings.TotalFindings()
	if before == 0 {
		return "Clean: no findings"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Risk %s: %d %s", strings.ToUpper(string(r.RiskLevel)), before, plural(before, "finding", "findings"))

	switch {
	case r.RolledBack:
		b.WriteString("; remediation rolled back after failed verification")
	case r.UnverifiedEdits:
		b.WriteString("; unverified edits left in the working tree (no safety net)")
	case len(r.Diffs) == 0:
		b.WriteString("; no changes made")
	default:
		after := 0
		if r.AfterFindings != nil {
			after = r.AfterFindings.TotalFindings()
		}
		fmt.Fprintf(&b, "; %d %s kept, %d remaining",
			len(r.Remediations), plural(len(r.Remediations), "fix", "fixes"), after)
	}

	if n := len(r.ManualRecommendations); n > 0 {
		fmt.Fprintf(&b, "; %d manual %s", n, plural(n, "item", "items"))
	}
	return b.String()
}

// Title is the heading used by notifications and the knowledge store.
func Title(r *models.PatrolReport) string {
	return fmt.Sprintf("Code patrol %s: %s", r.Date, strings.ToUpper(string(r.RiskLevel)))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
