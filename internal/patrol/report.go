package patrol

import (
	"time"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/reporter"
	"github.com/ppiankov/codepatrol/internal/risk"
)

// buildReport assembles the immutable report from the run state. Risk is
// always taken from the before-scan.
func buildReport(r *run, finishedAt time.Time) *models.PatrolReport {
	level, recs := risk.Classify(r.before)

	manual := make([]string, 0, len(recs)+len(r.outcome.Skipped)+len(r.notes))
	manual = append(manual, recs...)
	for _, s := range r.outcome.Skipped {
		manual = append(manual, s.Description)
	}
	manual = append(manual, r.notes...)

	report := &models.PatrolReport{
		RunID:                 r.id,
		Date:                  r.startedAt.UTC().Format("2006-01-02"),
		StartedAt:             r.startedAt,
		Duration:              finishedAt.Sub(r.startedAt),
		RiskLevel:             level,
		BeforeFindings:        r.before,
		AfterFindings:         r.after,
		Remediations:          r.outcome.Remediations,
		Diffs:                 r.diffs,
		Verification:          r.verified,
		CostUnits:             r.outcome.CostUnits,
		ActionCount:           r.outcome.ActionCount,
		ManualRecommendations: manual,
		RolledBack:            r.rolledBack,
		UnverifiedEdits:       r.unverified,
		QualityReview:         r.review,
		SafetyNetCaptured:     r.token.Captured(),
		Stages:                append([]models.StageTiming(nil), r.stages...),
	}

	if report.RolledBack {
		report.AfterFindings = nil
		report.Remediations = []models.RemediationAction{}
		report.Diffs = []models.FileDiff{}
		report.QualityReview = nil
	}
	if report.Remediations == nil {
		report.Remediations = []models.RemediationAction{}
	}
	if report.Diffs == nil {
		report.Diffs = []models.FileDiff{}
	}

	report.Summary = reporter.Summary(report)
	return report
}
