package reporter

import (
	"fmt"
	"strings"

	"github.com/ppiankov/codepatrol/internal/models"
)

// maxListedFindings caps each findings table in the markdown body.
const maxListedFindings = 25

// Markdown renders the long-form report body stored in the knowledge sink
// and posted to chat.
func Markdown(r *models.PatrolReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", Title(r))
	fmt.Fprintf(&b, "%s\n\n", r.Summary)

	b.WriteString("## Findings\n\n")
	b.WriteString("| Kind | Before | After |\n|---|---|---|\n")
	before := r.BeforeFindings.CountsByKind()
	var after map[models.FindingKind]int
	if r.AfterFindings != nil {
		after = r.AfterFindings.CountsByKind()
	}
	for _, kind := range []models.FindingKind{models.KindStatic, models.KindSecret, models.KindDependency} {
		afterCell := "n/a"
		if after != nil {
			afterCell = fmt.Sprintf("%d", after[kind])
		}
		fmt.Fprintf(&b, "| %s | %d | %s |\n", kind, before[kind], afterCell)
	}
	b.WriteString("\n")

	writeFindingList(&b, r.BeforeFindings)

	if len(r.Remediations) > 0 {
		b.WriteString("## Remediations\n\n")
		for _, a := range r.Remediations {
			fmt.Fprintf(&b, "- **%s**: %s", a.Category, a.Description)
			if len(a.FilesChanged) > 0 {
				fmt.Fprintf(&b, " (`%s`)", strings.Join(a.FilesChanged, "`, `"))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(r.Diffs) > 0 {
		b.WriteString("## Changes\n\n")
		for _, d := range r.Diffs {
			fmt.Fprintf(&b, "- `%s` +%d -%d\n", d.File, d.Additions, d.Deletions)
		}
		b.WriteString("\n")
	}

	if v := r.Verification; v != nil {
		b.WriteString("## Verification\n\n")
		fmt.Fprintf(&b, "- Build: %s\n- Tests: %s\n", passFail(v.BuildPassed), passFail(v.TestsPassed))
		if r.RolledBack {
			b.WriteString("- Changes were rolled back\n")
		}
		if r.UnverifiedEdits {
			b.WriteString("- Changes were left in place: no safety net was captured\n")
		}
		if v.ErrorExcerpt != "" {
			fmt.Fprintf(&b, "\n```\n%s\n```\n", v.ErrorExcerpt)
		}
		b.WriteString("\n")
	}

	if qr := r.QualityReview; qr != nil {
		fmt.Fprintf(&b, "## Quality review (advisory): %s\n\n", qr.Verdict)
		for _, n := range qr.Notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
		b.WriteString("\n")
	}

	if len(r.ManualRecommendations) > 0 {
		b.WriteString("## Manual follow-up\n\n")
		for _, rec := range r.ManualRecommendations {
			fmt.Fprintf(&b, "- [ ] %s\n", rec)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "_Run %s, %d agent actions, cost %.4f_\n", r.RunID, r.ActionCount, r.CostUnits)
	return b.String()
}

func writeFindingList(b *strings.Builder, s models.ScanSnapshot) {
	findings := s.Findings()
	if len(findings) == 0 {
		return
	}
	b.WriteString("### Details\n\n")
	for i, f := range findings {
		if i == maxListedFindings {
			fmt.Fprintf(b, "- ... and %d more\n", len(findings)-i)
			break
		}
		fmt.Fprintf(b, "- [%s] `%s` %s\n", f.Kind(), f.Location(), SafeDescription(f))
	}
	b.WriteString("\n")
}

// SafeDescription is Describe with secret snippets replaced by the pattern
// kind. Snippets may hold the secret itself; never publish them.
func SafeDescription(f models.Finding) string {
	if leak, ok := f.(models.SecretLeak); ok {
		return string(leak.PatternKind)
	}
	return f.Describe()
}
