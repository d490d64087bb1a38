package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppiankov/codepatrol/internal/config"
	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/patrol"
	"github.com/ppiankov/codepatrol/internal/runner"
	"github.com/ppiankov/codepatrol/internal/storage"
	"github.com/ppiankov/codepatrol/internal/vcs"
)

var (
	runFormat   string
	runOutput   string
	runNoPolicy bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan, remediate, verify, and report in one guarded pass",
	Long: `Run performs a full patrol:

  1. Scan     - dependency audit, secret search and type check in parallel
  2. Guard    - stash pre-existing uncommitted work
  3. Remediate - hand the findings to the coding agent
  4. Verify   - build then test; failed edits are discarded
  5. Restore  - pop the stash, whatever happened
  6. Report   - archive the report, post it, record it

Only one run may hold a working tree at a time. A second run fails fast.

Exit codes:
  0  report produced and policy passed
  1  policy file violated
  3  run could not start (lock held, bad storage)`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFormat, "format", "text",
		"output format: text, json, markdown, or both")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "",
		"write output to file")
	runCmd.Flags().BoolVar(&runNoPolicy, "no-policy", false,
		"skip .codepatrol-policy.yaml evaluation")
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := validateFormat(runFormat, "text", "json", "markdown", "md", "both"); err != nil {
		return err
	}

	report, err := patrolOnce(cmd.Context(), cfg, logger)
	if err != nil {
		if errors.Is(err, patrol.ErrRunInProgress) {
			fmt.Fprintln(os.Stderr, "Another patrol is already running on this working tree.")
		}
		return err
	}

	if err := generateOutput(report, runFormat, runOutput); err != nil {
		return err
	}

	if runNoPolicy {
		return nil
	}
	dir, err := cfg.GetWorkdir()
	if err != nil {
		return err
	}
	return enforcePolicy(report, dir)
}

// runLockPath keys the run lock to the working tree: it lives in the tree's
// git directory so configs with different storage dirs still exclude each
// other. Outside a repository it falls back to the storage dir.
func runLockPath(ctx context.Context, c *config.Config, log zerolog.Logger) (string, error) {
	dir, err := c.GetWorkdir()
	if err != nil {
		return "", err
	}
	gitDir, err := vcs.NewGit(runner.New(runner.OSExec), dir, c.Git.Timeout).GitDir(ctx)
	if err == nil && gitDir != "" {
		return filepath.Join(gitDir, "codepatrol.lock"), nil
	}

	log.Debug().Err(err).Msg("no git directory, locking under storage dir")
	storagePath, serr := c.GetStoragePath()
	if serr != nil {
		return "", serr
	}
	return filepath.Join(storagePath, "patrol.lock"), nil
}

// patrolOnce runs one full patrol under the working-tree lock.
func patrolOnce(ctx context.Context, c *config.Config, log zerolog.Logger) (*models.PatrolReport, error) {
	storagePath, err := c.GetStoragePath()
	if err != nil {
		return nil, err
	}

	lockPath, err := runLockPath(ctx, c, log)
	if err != nil {
		return nil, err
	}
	lock, err := patrol.AcquireRunLock(lockPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	p, err := buildPipeline(c, log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.Close() }()

	log.Info().Str("workdir", c.Workdir).Msg("starting patrol")
	report := p.orchestrator.Run(ctx)

	if removed, err := storage.NewLocal(storagePath).Prune(c.KeepRuns); err != nil {
		log.Warn().Err(err).Msg("archive prune failed")
	} else if removed > 0 {
		log.Debug().Int("removed", removed).Msg("pruned archived reports")
	}

	if err := p.metrics.WriteTextfile(c.Metrics.Textfile); err != nil {
		log.Warn().Err(err).Msg("metrics textfile not written")
	}
	return report, nil
}
