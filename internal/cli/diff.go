package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/reporter"
)

var (
	diffFormat   string
	diffOutput   string
	diffBaseline string
	diffFailNew  bool
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show what changed between two patrol runs",
	Long: `Compare the findings of the latest patrol against a baseline.

Shows new findings, resolved findings, and the delta per kind. Runs are
compared on what the tree looked like when each patrol started.

By default compares the two most recent stored runs. Use --baseline to
compare against a report file instead.

Exit codes:
  0  No new findings (or --fail-new not set)
  1  New findings detected (with --fail-new)

Example:
  codepatrol diff
  codepatrol diff --fail-new
  codepatrol diff --baseline ./baseline-patrol.json --format json`,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text",
		"output format: text or json")
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "",
		"write output to file instead of stdout")
	diffCmd.Flags().StringVar(&diffBaseline, "baseline", "",
		"path to baseline report JSON (default: previous stored run)")
	diffCmd.Flags().BoolVar(&diffFailNew, "fail-new", false,
		"exit 1 if new findings are found (for CI gating)")
}

// DiffEntry is one finding in a diff. Secret snippets are never included.
type DiffEntry struct {
	Kind        models.FindingKind `json:"kind"`
	Location    string             `json:"location"`
	Description string             `json:"description"`
}

// DiffResult is the structured output of a diff operation.
type DiffResult struct {
	Baseline         string      `json:"baseline"`
	Current          string      `json:"current"`
	NewFindings      []DiffEntry `json:"new_findings"`
	ResolvedFindings []DiffEntry `json:"resolved_findings"`
	Summary          DiffSummary `json:"summary"`
}

// DiffSummary holds aggregate counts for a diff.
type DiffSummary struct {
	BaselineTotal int            `json:"baseline_total"`
	CurrentTotal  int            `json:"current_total"`
	NewCount      int            `json:"new_count"`
	ResolvedCount int            `json:"resolved_count"`
	Delta         int            `json:"delta"` // positive = more findings
	BaselineRisk  string         `json:"baseline_risk"`
	CurrentRisk   string         `json:"current_risk"`
	NewByKind     map[string]int `json:"new_by_kind"`
}

func runDiff(cmd *cobra.Command, args []string) error {
	if err := validateFormat(diffFormat, "text", "json"); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	current, err := store.GetLatestRun()
	if err != nil {
		fmt.Println("No stored runs found. Run 'codepatrol run' first.")
		return nil
	}

	var baseline *models.PatrolReport
	if diffBaseline != "" {
		baseline, err = loadReportFromFile(diffBaseline)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("failed to load baseline: %v", err)}
		}
	} else {
		reports, err := store.GetLastNRuns(2)
		if err != nil || len(reports) < 2 {
			fmt.Println("Need at least 2 stored runs for diff.")
			return nil
		}
		baseline = reports[0]
	}

	logger.Debug().
		Str("current", current.RunID).
		Str("baseline", baseline.RunID).
		Msg("comparing runs")

	result := computeDiff(baseline, current)

	w, closeFn, err := openOutput(diffOutput)
	if err != nil {
		return err
	}
	defer closeFn()

	if diffFormat == "json" {
		err = writeJSON(w, result)
	} else {
		err = printDiffText(w, result)
	}
	if err != nil {
		return err
	}

	if diffFailNew && result.Summary.NewCount > 0 {
		return &ThresholdExceededError{Violations: result.Summary.NewCount}
	}
	return nil
}

// findingKey identifies a finding across runs. Secret snippets are left out
// so a reworded match on the same line is still the same finding.
func findingKey(f models.Finding) string {
	return string(f.Kind()) + "|" + f.Location() + "|" + reporter.SafeDescription(f)
}

func entryOf(f models.Finding) DiffEntry {
	return DiffEntry{Kind: f.Kind(), Location: f.Location(), Description: reporter.SafeDescription(f)}
}

// computeDiff calculates new and resolved findings between baseline and current.
func computeDiff(baseline, current *models.PatrolReport) *DiffResult {
	baseFindings := baseline.BeforeFindings.Findings()
	currFindings := current.BeforeFindings.Findings()

	baseSet := make(map[string]bool, len(baseFindings))
	for _, f := range baseFindings {
		baseSet[findingKey(f)] = true
	}
	currSet := make(map[string]bool, len(currFindings))
	for _, f := range currFindings {
		currSet[findingKey(f)] = true
	}

	newFindings := []DiffEntry{}
	newByKind := map[string]int{}
	for _, f := range currFindings {
		if !baseSet[findingKey(f)] {
			newFindings = append(newFindings, entryOf(f))
			newByKind[string(f.Kind())]++
		}
	}

	resolved := []DiffEntry{}
	for _, f := range baseFindings {
		if !currSet[findingKey(f)] {
			resolved = append(resolved, entryOf(f))
		}
	}

	return &DiffResult{
		Baseline:         baseline.StartedAt.Format("2006-01-02 15:04:05"),
		Current:          current.StartedAt.Format("2006-01-02 15:04:05"),
		NewFindings:      newFindings,
		ResolvedFindings: resolved,
		Summary: DiffSummary{
			BaselineTotal: len(baseFindings),
			CurrentTotal:  len(currFindings),
			NewCount:      len(newFindings),
			ResolvedCount: len(resolved),
			Delta:         len(currFindings) - len(baseFindings),
			BaselineRisk:  string(baseline.RiskLevel),
			CurrentRisk:   string(current.RiskLevel),
			NewByKind:     newByKind,
		},
	}
}

func printDiffText(w io.Writer, r *DiffResult) error {
	p := func(format string, args ...interface{}) {
		_, _ = fmt.Fprintf(w, format, args...)
	}

	p("╔════════════════════════════════════════════╗\n")
	p("║            Code Patrol Drift Delta         ║\n")
	p("╚════════════════════════════════════════════╝\n\n")

	p("Baseline: %s (%s)\n", r.Baseline, r.Summary.BaselineRisk)
	p("Current:  %s (%s)\n\n", r.Current, r.Summary.CurrentRisk)

	deltaSign := "+"
	if r.Summary.Delta < 0 {
		deltaSign = ""
	}
	p("Findings: %d → %d (%s%d)\n", r.Summary.BaselineTotal, r.Summary.CurrentTotal, deltaSign, r.Summary.Delta)
	p("New: %d   Resolved: %d\n\n", r.Summary.NewCount, r.Summary.ResolvedCount)

	if len(r.NewFindings) > 0 {
		p("New Findings:\n")
		p("--------------------------------------------------\n")
		for _, e := range r.NewFindings {
			p("  [%s] %s: %s\n", strings.ToUpper(string(e.Kind)), e.Location, e.Description)
		}
		p("\n")
	}

	if len(r.ResolvedFindings) > 0 {
		p("Resolved Findings:\n")
		p("--------------------------------------------------\n")
		for _, e := range r.ResolvedFindings {
			p("  ✓ %s: %s\n", e.Location, e.Description)
		}
		p("\n")
	}

	if len(r.Summary.NewByKind) > 0 {
		p("New by Kind:\n")
		kinds := make([]string, 0, len(r.Summary.NewByKind))
		for k := range r.Summary.NewByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			p("  %s: %d\n", k, r.Summary.NewByKind[k])
		}
		p("\n")
	}

	if r.Summary.NewCount == 0 && r.Summary.ResolvedCount == 0 {
		p("No drift detected.\n")
	} else if r.Summary.NewCount == 0 {
		p("No new findings, only improvements.\n")
	}

	return nil
}

// loadReportFromFile loads a PatrolReport from a JSON file path.
func loadReportFromFile(path string) (*models.PatrolReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var report models.PatrolReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}
