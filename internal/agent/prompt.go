package agent

import (
	"fmt"
	"strings"

	"github.com/ppiankov/codepatrol/internal/models"
)

// maxItemsPerCategory bounds how many findings of one kind go into a prompt.
const maxItemsPerCategory = 50

const responseContract = `When you are done, reply with exactly one JSON object in this shape:
{"remediations":[{"category":"type-error|secret-leak|dependency|other","filesChanged":["path"],"description":"what you changed"}],
 "skipped":[{"category":"type-error|secret-leak|dependency|other","description":"what you did not fix and why"}]}`

// BuildProblemStatement renders one prompt covering every finding in the
// snapshot, ordered static checks, then secrets, then dependencies.
func BuildProblemStatement(s models.ScanSnapshot) string {
	var b strings.Builder

	b.WriteString("You are fixing defects found by an automated code patrol in this repository.\n")
	b.WriteString("Work in priority order: type errors first, then leaked secrets, then vulnerable dependencies.\n")
	b.WriteString("Only read, search, and edit files. Do not commit, push, or run shell commands.\n")
	b.WriteString("Fix what you can safely fix and list everything else as skipped.\n\n")

	if len(s.StaticFindings) > 0 {
		fmt.Fprintf(&b, "## 1. Static-check errors (%d)\n", len(s.StaticFindings))
		for i, f := range s.StaticFindings {
			if i == maxItemsPerCategory {
				fmt.Fprintf(&b, "- ... and %d more\n", len(s.StaticFindings)-i)
				break
			}
			fmt.Fprintf(&b, "- %s %s: %s\n", f.Location(), f.Code, f.Message)
		}
		b.WriteString("\n")
	}

	if len(s.Secrets) > 0 {
		fmt.Fprintf(&b, "## 2. Potential secrets in source (%d)\n", len(s.Secrets))
		b.WriteString("Move each value to an environment variable or config lookup. Never echo the value.\n")
		for i, f := range s.Secrets {
			if i == maxItemsPerCategory {
				fmt.Fprintf(&b, "- ... and %d more\n", len(s.Secrets)-i)
				break
			}
			fmt.Fprintf(&b, "- %s (%s)\n", f.Location(), f.PatternKind)
		}
		b.WriteString("\n")
	}

	if len(s.Advisories) > 0 {
		fmt.Fprintf(&b, "## 3. Vulnerable dependencies (%d)\n", len(s.Advisories))
		b.WriteString("Bump versions in the manifest only where a compatible fixed release exists.\n")
		for i, a := range s.Advisories {
			if i == maxItemsPerCategory {
				fmt.Fprintf(&b, "- ... and %d more\n", len(s.Advisories)-i)
				break
			}
			fmt.Fprintf(&b, "- %s [%s] %s", a.PackageName, a.Severity, a.Title)
			if a.Reference != "" {
				fmt.Fprintf(&b, " (%s)", a.Reference)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(responseContract)
	b.WriteString("\n")
	return b.String()
}
