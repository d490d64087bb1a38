package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codepatrol/internal/metrics"
	"github.com/ppiankov/codepatrol/internal/reporter"
	"github.com/ppiankov/codepatrol/internal/risk"
	"github.com/ppiankov/codepatrol/internal/runner"
)

var (
	scanFormat    string
	scanFailOnAny bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the probes and classify risk without touching the tree",
	Long: `Scan runs the dependency audit, secret search and type check in
parallel, then prints the findings with their risk level.

Nothing is stashed, edited or persisted. A probe that fails or times out
contributes no findings and is reported on stderr.

Example:
  codepatrol scan
  codepatrol scan --format json
  codepatrol scan --fail-on-findings`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanFormat, "format", "text",
		"output format: text or json")
	scanCmd.Flags().BoolVar(&scanFailOnAny, "fail-on-findings", false,
		"exit 1 if anything was found")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := validateFormat(scanFormat, "text", "json"); err != nil {
		return err
	}

	dir, err := cfg.GetWorkdir()
	if err != nil {
		return err
	}

	s, err := buildScanner(cfg, dir, runner.New(runner.OSExec), metrics.Default(), logger)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}

	snap, results := s.ScanDetailed(cmd.Context())
	for _, res := range results {
		if res.Failed() {
			fmt.Fprintf(os.Stderr, "  ✗ %s: %v\n", res.Probe, res.Err)
		} else {
			logger.Debug().Str("probe", string(res.Probe)).Dur("duration", res.Duration).Msg("probe finished")
		}
	}

	level, recs := risk.Classify(snap)

	out := cmd.OutOrStdout()
	if scanFormat == "json" {
		if err := reporter.NewJSONReporter(out, true).GenerateSnapshot(snap, level, recs); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Risk Level: %s\n", reporter.RiskLabel(level))
		fmt.Fprintf(out, "Findings:   %d (static %d, secret %d, dependency %d)\n",
			snap.TotalFindings(), len(snap.StaticFindings), len(snap.Secrets), len(snap.Advisories))
		fmt.Fprintf(out, "Captured:   %s\n", snap.CapturedAt.Format(time.RFC3339))
		if snap.TotalFindings() > 0 {
			fmt.Fprintln(out)
			for _, f := range snap.Findings() {
				fmt.Fprintf(out, "  [%s] %s  %s\n", f.Kind(), f.Location(), reporter.SafeDescription(f))
			}
		}
		if len(recs) > 0 {
			fmt.Fprintln(out, "\nRecommendations:")
			for _, r := range recs {
				fmt.Fprintf(out, "  - %s\n", r)
			}
		}
	}

	if scanFailOnAny && snap.TotalFindings() > 0 {
		return &ThresholdExceededError{Violations: snap.TotalFindings()}
	}
	return nil
}
