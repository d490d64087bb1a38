package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codepatrol/internal/knowledge"
	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/trend"
)

var (
	historyLastN   int
	historyCompare bool
	historyFormat  string
	historySource  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show trends across stored patrol runs",
	Long: `Analyze archived patrol reports and show how the code health moves.

This command displays:
- Finding sparkline and direction across the last N runs
- Per-kind deltas between the first and last run
- How many runs kept fixes and how many were rolled back

With --source knowledge the entries come from the knowledge store instead
of the local report archive.

Example:
  codepatrol history
  codepatrol history --last 14
  codepatrol history --compare
  codepatrol history --source knowledge --format json`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLastN, "last", "n", 0,
		"number of runs to analyze (default from config)")
	historyCmd.Flags().BoolVarP(&historyCompare, "compare", "c", false,
		"compare latest run with previous")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "text",
		"output format: text or json")
	historyCmd.Flags().StringVar(&historySource, "source", "archive",
		"where to read runs from: archive or knowledge")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := validateFormat(historyFormat, "text", "json"); err != nil {
		return err
	}
	lastN := historyLastN
	if lastN <= 0 {
		lastN = cfg.LastRuns
	}

	out := cmd.OutOrStdout()
	switch historySource {
	case "archive":
		return archiveHistory(out, lastN)
	case "knowledge":
		return knowledgeHistory(cmd, out, lastN)
	default:
		return &ValidationError{Message: fmt.Sprintf("invalid source: %s (must be archive or knowledge)", historySource)}
	}
}

func archiveHistory(out io.Writer, lastN int) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	if historyCompare {
		reports, err := store.GetLastNRuns(2)
		if err != nil || len(reports) < 2 {
			fmt.Fprintln(out, "Need at least 2 runs for comparison.")
			return nil
		}
		fmt.Fprint(out, trend.NewAnalyzer().GenerateComparisonReport(reports[1], reports[0]))
		return nil
	}

	reports, err := store.GetLastNRuns(lastN)
	if err != nil || len(reports) == 0 {
		fmt.Fprintln(out, "No stored runs found. Run 'codepatrol run' to produce the first report.")
		return nil
	}
	logger.Debug().Int("runs", len(reports)).Msg("analyzing trends")

	summary := trend.NewAnalyzer().AnalyzeLastNRuns(reports)
	if historyFormat == "json" {
		return writeJSON(out, summary)
	}
	printTrendSummaryText(out, summary, reports)
	return nil
}

func knowledgeHistory(cmd *cobra.Command, out io.Writer, lastN int) error {
	path, err := cfg.KnowledgePath()
	if err != nil {
		return err
	}
	store, err := knowledge.Open(path, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	notes, err := store.Recent(cmd.Context(), lastN)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Fprintln(out, "The knowledge store has no entries yet.")
		return nil
	}

	summary := trend.NewAnalyzer().SummarizeNotes(notes)
	if historyFormat == "json" {
		return writeJSON(out, struct {
			Summary *trend.Summary   `json:"summary"`
			Notes   []knowledge.Note `json:"notes"`
		}{summary, notes})
	}

	fmt.Fprintf(out, "Knowledge entries: %d (%s)\n", summary.RunsAnalyzed, summary.TimeRange)
	if len(summary.FindingSparkline) > 0 {
		fmt.Fprintf(out, "Finding trend: %s\n", sparkline(summary.FindingSparkline))
	}
	fmt.Fprintln(out)
	for _, n := range notes {
		fmt.Fprintf(out, "  %s  %s\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Title)
		fmt.Fprintf(out, "                    %s\n", n.Summary)
	}
	return nil
}

// printTrendSummaryText prints the trend summary in human-readable format
func printTrendSummaryText(out io.Writer, summary *trend.Summary, reports []*models.PatrolReport) {
	fmt.Fprintln(out, "╔════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║         Code Patrol Trend Summary          ║")
	fmt.Fprintln(out, "╚════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Time Range: %s\n", summary.TimeRange)
	fmt.Fprintf(out, "Runs Analyzed: %d\n", summary.RunsAnalyzed)
	fmt.Fprintf(out, "Runs Kept: %d (%d fixes)  Rolled Back: %d\n", summary.KeptRuns, summary.FixesKept, summary.RolledBackRuns)
	fmt.Fprintln(out)

	latest := reports[len(reports)-1]
	fmt.Fprintf(out, "Latest Run: %s\n", latest.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Findings: %d  Risk: %s", latest.BeforeFindings.TotalFindings(), latest.RiskLevel)

	if len(reports) >= 2 {
		t := trend.NewAnalyzer().CalculateTrend(latest, reports[len(reports)-2])
		fmt.Fprintf(out, " (%s %s %.1f%%)", trend.Indicator(t.Direction), t.Direction, t.ChangePercent)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out)

	if len(summary.FindingSparkline) > 0 {
		fmt.Fprintln(out, "Finding Trend (over time):")
		fmt.Fprintf(out, "  %s\n", sparkline(summary.FindingSparkline))
	}

	if len(summary.ByKind) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "By Kind:")
		fmt.Fprintln(out, "--------------------------------------------------")

		kinds := make([]string, 0, len(summary.ByKind))
		for k := range summary.ByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			kt := summary.ByKind[models.FindingKind(k)]
			indicator := trend.Indicator(trend.Stable)
			if kt.Change < 0 {
				indicator = trend.Indicator(trend.Improving)
			} else if kt.Change > 0 {
				indicator = trend.Indicator(trend.Degrading)
			}
			fmt.Fprintf(out, "  %s: %d findings (%s %+d, %.1f%%)\n",
				k, kt.Current, indicator, kt.Change, kt.ChangePercent)
		}
	}

	if len(latest.ManualRecommendations) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Open Recommendations:")
		fmt.Fprintln(out, "--------------------------------------------------")
		for i, rec := range latest.ManualRecommendations {
			if i == 5 {
				break
			}
			fmt.Fprintf(out, "  %d. %s\n", i+1, rec)
		}
	}
}

// sparkline renders values as unicode bars
func sparkline(values []int) string {
	if len(values) == 0 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	bars := make([]rune, 0, len(values))
	for _, v := range values {
		if hi == lo {
			bars = append(bars, chars[len(chars)/2])
		} else {
			normalized := float64(v-lo) / float64(hi-lo)
			bars = append(bars, chars[int(normalized*float64(len(chars)-1))])
		}
	}
	return fmt.Sprintf("%s [%d → %d]", string(bars), values[0], values[len(values)-1])
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
