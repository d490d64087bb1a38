package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/codepatrol/internal/models"
)

// sampleReport builds a kept-run report with one finding of each kind.
func sampleReport(runID string, started time.Time) *models.PatrolReport {
	before := models.NewScanSnapshot(
		models.DependencyCounts{Total: 1, High: 1},
		[]models.DependencyAdvisory{{PackageName: "lodash", Severity: "high", Title: "Prototype pollution"}},
		[]models.SecretLeak{{File: "src/config.ts", Line: 12, PatternKind: models.PatternAPIKey, Snippet: "apiKey = \"sk-live-123\""}},
		[]models.StaticCheckFinding{{File: "src/app.ts", Line: 3, Code: "TS2345", Message: "Argument of type 'string' is not assignable"}},
		started,
	)
	after := models.NewScanSnapshot(
		models.DependencyCounts{Total: 1, High: 1},
		before.Advisories,
		before.Secrets,
		nil,
		started.Add(time.Minute),
	)
	return &models.PatrolReport{
		RunID:          runID,
		Date:           started.Format("2006-01-02"),
		StartedAt:      started,
		RiskLevel:      models.RiskCritical,
		BeforeFindings: before,
		AfterFindings:  &after,
		Remediations: []models.RemediationAction{
			{Category: models.CategoryTypeError, FilesChanged: []string{"src/app.ts"}, Description: "fixed argument type"},
		},
		Diffs:                 []models.FileDiff{{File: "src/app.ts", Additions: 1, Deletions: 1}},
		Verification:          &models.VerificationOutcome{BuildPassed: true, TestsPassed: true},
		ManualRecommendations: []string{"Rotate the leaked API key"},
	}
}

func TestFindingKeyOmitsSnippet(t *testing.T) {
	a := models.SecretLeak{File: "a.ts", Line: 1, PatternKind: models.PatternPassword, Snippet: "password = 'x'"}
	b := a
	b.Snippet = "password = 'y'"

	if findingKey(a) != findingKey(b) {
		t.Errorf("keys differ on snippet: %q vs %q", findingKey(a), findingKey(b))
	}
	if strings.Contains(findingKey(a), "password = ") {
		t.Errorf("key leaks snippet: %q", findingKey(a))
	}
}

func TestComputeDiffNewFindings(t *testing.T) {
	start := time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)
	baseline := sampleReport("r1", start)
	current := sampleReport("r2", start.Add(24*time.Hour))
	current.BeforeFindings.StaticFindings = append(current.BeforeFindings.StaticFindings,
		models.StaticCheckFinding{File: "src/new.ts", Line: 9, Code: "TS7006", Message: "implicit any"})

	result := computeDiff(baseline, current)

	if result.Summary.NewCount != 1 {
		t.Fatalf("NewCount = %d, want 1", result.Summary.NewCount)
	}
	if result.NewFindings[0].Location != "src/new.ts:9" {
		t.Errorf("new location = %q", result.NewFindings[0].Location)
	}
	if result.Summary.NewByKind["static"] != 1 {
		t.Errorf("NewByKind = %v", result.Summary.NewByKind)
	}
	if result.Summary.Delta != 1 {
		t.Errorf("Delta = %d, want 1", result.Summary.Delta)
	}
}

func TestComputeDiffResolvedFindings(t *testing.T) {
	start := time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)
	baseline := sampleReport("r1", start)
	current := sampleReport("r2", start.Add(24*time.Hour))
	current.BeforeFindings.Advisories = []models.DependencyAdvisory{}

	result := computeDiff(baseline, current)

	if result.Summary.ResolvedCount != 1 || result.Summary.NewCount != 0 {
		t.Fatalf("summary = %+v, want 1 resolved and 0 new", result.Summary)
	}
	if result.ResolvedFindings[0].Kind != models.KindDependency {
		t.Errorf("resolved kind = %q", result.ResolvedFindings[0].Kind)
	}
}

func TestComputeDiffNoChange(t *testing.T) {
	start := time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)
	result := computeDiff(sampleReport("r1", start), sampleReport("r2", start.Add(time.Hour)))

	if result.Summary.NewCount != 0 || result.Summary.ResolvedCount != 0 {
		t.Errorf("summary = %+v, want no drift", result.Summary)
	}

	var buf bytes.Buffer
	if err := printDiffText(&buf, result); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No drift detected.") {
		t.Errorf("output missing no-drift line:\n%s", buf.String())
	}
}

func TestComputeDiffEmptyReports(t *testing.T) {
	start := time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)
	empty := &models.PatrolReport{StartedAt: start, BeforeFindings: models.EmptySnapshot(start)}

	result := computeDiff(empty, empty)
	if result.NewFindings == nil || result.ResolvedFindings == nil {
		t.Error("finding lists should be empty, not nil")
	}
	if result.Summary.BaselineTotal != 0 || result.Summary.CurrentTotal != 0 {
		t.Errorf("totals = %d/%d, want 0/0", result.Summary.BaselineTotal, result.Summary.CurrentTotal)
	}
}

func TestPrintDiffTextHidesSecrets(t *testing.T) {
	start := time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)
	baseline := &models.PatrolReport{StartedAt: start, BeforeFindings: models.EmptySnapshot(start)}
	current := sampleReport("r2", start.Add(time.Hour))

	var buf bytes.Buffer
	if err := printDiffText(&buf, computeDiff(baseline, current)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "sk-live-123") {
		t.Errorf("diff output leaks a secret snippet:\n%s", out)
	}
	if !strings.Contains(out, "[SECRET] src/config.ts:12") {
		t.Errorf("diff output missing secret entry:\n%s", out)
	}
}
