// Package risk maps a scan snapshot to a deterministic risk level.
package risk

import (
	"fmt"

	"github.com/ppiankov/codepatrol/internal/models"
)

// MediumStaticThreshold is the static-check finding count that alone
// raises a snapshot to medium.
const MediumStaticThreshold = 10

// Classify returns the risk level of a snapshot and one recommendation line
// per non-empty finding category. It depends on nothing but the snapshot.
func Classify(s models.ScanSnapshot) (models.RiskLevel, []string) {
	return Level(s), Recommendations(s)
}

// Level applies the threshold table, most severe condition first.
func Level(s models.ScanSnapshot) models.RiskLevel {
	critical := s.AdvisoriesWithSeverity(models.SeverityCritical)
	high := s.AdvisoriesWithSeverity(models.SeverityHigh)
	moderate := s.AdvisoriesWithSeverity(models.SeverityModerate)
	low := s.AdvisoriesWithSeverity(models.SeverityLow)
	static := len(s.StaticFindings)

	switch {
	case critical > 0 || len(s.Secrets) > 0:
		return models.RiskCritical
	case high > 0:
		return models.RiskHigh
	case moderate > 0 || static >= MediumStaticThreshold:
		return models.RiskMedium
	case low > 0 || static > 0:
		return models.RiskLow
	default:
		return models.RiskClean
	}
}

// Recommendations lists manual follow-ups, static checks first, then
// secrets, then dependencies. The slice is never nil.
func Recommendations(s models.ScanSnapshot) []string {
	recs := []string{}

	if n := len(s.StaticFindings); n > 0 {
		recs = append(recs, fmt.Sprintf("Fix %d static-check %s", n, plural(n, "error", "errors")))
	}
	if n := len(s.Secrets); n > 0 {
		recs = append(recs, fmt.Sprintf("Remove %d potential %s from source and rotate the exposed credentials", n, plural(n, "secret", "secrets")))
	}
	if n := len(s.Advisories); n > 0 {
		recs = append(recs, fmt.Sprintf("Upgrade dependencies to resolve %d %s", n, plural(n, "advisory", "advisories")))
	}

	return recs
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
