package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a stored patrol report for structural consistency",
	Long: `Validate loads a patrol report JSON file and checks the guarantees every
report carries: a rolled-back report has no after-scan, remediations or
diffs; a verification result implies a diff or a rollback; no finding
list is null.

Returns exit 0 if valid, exit 2 if invalid with details on stderr.

Example:
  codepatrol validate .codepatrol/runs/2026-10-01T03-00-00-patrol.json`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	report, err := loadReportFromFile(args[0])
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("INVALID: %v", err)}
	}
	if err := report.CheckInvariants(); err != nil {
		return &ValidationError{Message: fmt.Sprintf("INVALID: %v", err)}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "VALID: run %s (%s, %s)\n", report.RunID, report.Date, report.RiskLevel)
	return nil
}
