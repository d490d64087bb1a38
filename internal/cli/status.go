package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/codepatrol/internal/trend"
	"github.com/ppiankov/codepatrol/internal/tui"
)

var (
	statusFormat      string
	statusInteractive bool
)

// isTTY reports whether stdout is a terminal; replaced in tests.
var isTTY = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest patrol report",
	Long: `Status prints the most recent archived patrol report.

With --interactive it opens a findings browser: filter by kind, search,
sort, and copy a finding to the clipboard.

Example:
  codepatrol status
  codepatrol status --format json
  codepatrol status --interactive`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "text",
		"output format: text, json, or markdown")
	statusCmd.Flags().BoolVarP(&statusInteractive, "interactive", "i", false,
		"open the interactive findings browser")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := validateFormat(statusFormat, "text", "json", "markdown", "md"); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	latest, err := store.GetLatestRun()
	if err != nil {
		logger.Debug().Err(err).Msg("no stored run")
		fmt.Fprintln(cmd.OutOrStdout(), "No stored runs found. Run 'codepatrol run' first.")
		return nil
	}

	if statusInteractive {
		if !isTTY() {
			return &ValidationError{Message: "--interactive requires a terminal"}
		}
		var summary *trend.Summary
		if runs, err := store.GetLastNRuns(cfg.LastRuns); err == nil {
			summary = trend.NewAnalyzer().AnalyzeLastNRuns(runs)
		}
		return tui.Run(latest, summary)
	}

	return generateOutput(latest, statusFormat, "")
}
