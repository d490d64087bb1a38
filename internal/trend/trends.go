// Package trend compares patrol runs over time.
package trend

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/codepatrol/internal/knowledge"
	"github.com/ppiankov/codepatrol/internal/models"
)

// Directions
const (
	Improving = "improving"
	Degrading = "degrading"
	Stable    = "stable"
)

// Trend compares the before-findings of two runs
type Trend struct {
	Direction        string    `json:"direction"`
	ChangePercent    float64   `json:"change_percent"`
	PreviousFindings int       `json:"previous_findings"`
	CurrentFindings  int       `json:"current_findings"`
	NewFindings      int       `json:"new_findings"`
	ResolvedFindings int       `json:"resolved_findings"`
	ComparedWith     time.Time `json:"compared_with"`
}

// KindTrend is the change of one finding kind between the first and last run
type KindTrend struct {
	Kind          models.FindingKind `json:"kind"`
	Current       int                `json:"current"`
	Previous      int                `json:"previous"`
	Change        int                `json:"change"`
	ChangePercent float64            `json:"change_percent"`
}

// Summary describes a window of runs, oldest first
type Summary struct {
	RunsAnalyzed     int                               `json:"runs_analyzed"`
	TimeRange        string                            `json:"time_range"`
	FindingSparkline []int                             `json:"finding_sparkline"`
	RiskSparkline    []models.RiskLevel                `json:"risk_sparkline"`
	ByKind           map[models.FindingKind]*KindTrend `json:"by_kind,omitempty"`
	KeptRuns         int                               `json:"kept_runs"`
	RolledBackRuns   int                               `json:"rolled_back_runs"`
	FixesKept        int                               `json:"fixes_kept"`
}

// Analyzer analyzes trends across multiple runs
type Analyzer struct{}

// NewAnalyzer creates a new trend analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// CalculateTrend compares current report with previous one
func (a *Analyzer) CalculateTrend(current, previous *models.PatrolReport) *Trend {
	if previous == nil {
		return nil
	}
	return compare(current.BeforeFindings.TotalFindings(), previous.BeforeFindings.TotalFindings(), previous.StartedAt)
}

func compare(current, previous int, comparedWith time.Time) *Trend {
	trend := &Trend{
		PreviousFindings: previous,
		CurrentFindings:  current,
		ComparedWith:     comparedWith,
	}

	change := current - previous
	if previous > 0 {
		trend.ChangePercent = float64(change) / float64(previous) * 100.0
	}

	switch {
	case change < 0:
		trend.Direction = Improving
		trend.ResolvedFindings = -change
	case change > 0:
		trend.Direction = Degrading
		trend.NewFindings = change
	default:
		trend.Direction = Stable
	}
	return trend
}

// AnalyzeLastNRuns analyzes trends across runs ordered oldest first
func (a *Analyzer) AnalyzeLastNRuns(runs []*models.PatrolReport) *Summary {
	if len(runs) == 0 {
		return nil
	}

	summary := &Summary{
		RunsAnalyzed:     len(runs),
		TimeRange:        timeRange(runs[0].StartedAt, runs[len(runs)-1].StartedAt, len(runs)),
		FindingSparkline: make([]int, len(runs)),
		RiskSparkline:    make([]models.RiskLevel, len(runs)),
		ByKind:           make(map[models.FindingKind]*KindTrend),
	}

	for i, run := range runs {
		summary.FindingSparkline[i] = run.BeforeFindings.TotalFindings()
		summary.RiskSparkline[i] = run.RiskLevel
		switch {
		case run.RolledBack:
			summary.RolledBackRuns++
		case run.UnverifiedEdits:
			// neither kept nor rolled back
		case len(run.Diffs) > 0:
			summary.KeptRuns++
			summary.FixesKept += len(run.Remediations)
		}
	}

	if len(runs) >= 2 {
		a.calculateKindTrends(runs[0], runs[len(runs)-1], summary)
	}
	return summary
}

// calculateKindTrends calculates trend for each finding kind
func (a *Analyzer) calculateKindTrends(earliest, latest *models.PatrolReport, summary *Summary) {
	previous := earliest.BeforeFindings.CountsByKind()
	current := latest.BeforeFindings.CountsByKind()

	for kind, currentCount := range current {
		previousCount := previous[kind]
		change := currentCount - previousCount

		changePercent := 0.0
		if previousCount > 0 {
			changePercent = float64(change) / float64(previousCount) * 100.0
		} else if currentCount > 0 {
			// Kind appeared
			changePercent = 100.0
		}

		summary.ByKind[kind] = &KindTrend{
			Kind:          kind,
			Current:       currentCount,
			Previous:      previousCount,
			Change:        change,
			ChangePercent: changePercent,
		}
	}
}

// SummarizeNotes builds a summary from knowledge-store notes. Notes carry
// no per-kind counts, so ByKind stays empty.
func (a *Analyzer) SummarizeNotes(notes []knowledge.Note) *Summary {
	if len(notes) == 0 {
		return nil
	}

	ordered := append([]knowledge.Note(nil), notes...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	summary := &Summary{
		RunsAnalyzed:     len(ordered),
		TimeRange:        timeRange(ordered[0].CreatedAt, ordered[len(ordered)-1].CreatedAt, len(ordered)),
		FindingSparkline: make([]int, len(ordered)),
		RiskSparkline:    make([]models.RiskLevel, len(ordered)),
	}
	for i, n := range ordered {
		summary.FindingSparkline[i] = n.TotalFindings
		summary.RiskSparkline[i] = models.RiskLevel(n.RiskLevel)
		if n.RolledBack {
			summary.RolledBackRuns++
		}
	}
	return summary
}

// GenerateComparisonReport creates a detailed comparison between two runs
func (a *Analyzer) GenerateComparisonReport(current, previous *models.PatrolReport) string {
	if previous == nil {
		return "No previous run to compare with"
	}

	trend := a.CalculateTrend(current, previous)

	var b strings.Builder
	fmt.Fprintf(&b, "Comparison: %s vs %s\n\n", formatDate(current.StartedAt), formatDate(previous.StartedAt))
	fmt.Fprintf(&b, "Overall: %d → %d findings (%.1f%% %s)\n",
		trend.PreviousFindings, trend.CurrentFindings, trend.ChangePercent, trend.Direction)
	fmt.Fprintf(&b, "Risk: %s → %s\n\n", previous.RiskLevel, current.RiskLevel)

	prevCounts := previous.BeforeFindings.CountsByKind()
	currCounts := current.BeforeFindings.CountsByKind()
	for _, kind := range []models.FindingKind{models.KindStatic, models.KindSecret, models.KindDependency} {
		prev, curr := prevCounts[kind], currCounts[kind]
		if prev == curr {
			continue
		}
		fmt.Fprintf(&b, "%s: %d → %d (%+d)\n", kind, prev, curr, curr-prev)
	}

	if trend.NewFindings > 0 {
		fmt.Fprintf(&b, "\nNew Findings: %d\n", trend.NewFindings)
	}
	if trend.ResolvedFindings > 0 {
		fmt.Fprintf(&b, "\nResolved Findings: %d\n", trend.ResolvedFindings)
	}
	return b.String()
}

func timeRange(earliest, latest time.Time, n int) string {
	if n < 2 {
		return "Single run"
	}
	days := int(latest.Sub(earliest).Hours() / 24)
	return fmt.Sprintf("Last %d days", days)
}

// formatDate formats a timestamp for display
func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// Indicator returns a visual indicator for trend direction
func Indicator(direction string) string {
	switch direction {
	case Improving:
		return "↓"
	case Degrading:
		return "↑"
	case Stable:
		return "→"
	default:
		return "?"
	}
}
