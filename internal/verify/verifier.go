// Package verify runs the build and test gates over a remediated tree.
package verify

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/runner"
)

// DefaultTimeout bounds each gate.
const DefaultTimeout = 5 * time.Minute

// Default gate commands.
var (
	DefaultBuildCommand = []string{"npm", "run", "build"}
	DefaultTestCommand  = []string{"npm", "test"}
)

// Verifier runs a build gate then a test gate, stopping at the first failure.
type Verifier struct {
	runner *runner.Runner
	build  runner.Command
	test   runner.Command
	logger zerolog.Logger
}

// New creates a verifier. Zero timeouts fall back to DefaultTimeout.
func New(r *runner.Runner, build, test runner.Command, logger zerolog.Logger) *Verifier {
	if build.Timeout <= 0 {
		build.Timeout = DefaultTimeout
	}
	if test.Timeout <= 0 {
		test.Timeout = DefaultTimeout
	}
	return &Verifier{
		runner: r,
		build:  build,
		test:   test,
		logger: logger.With().Str("component", "verify").Logger(),
	}
}

// Verify runs the gates. A build failure returns immediately without
// running tests; a timeout counts as a failure of that gate.
func (v *Verifier) Verify(ctx context.Context) models.VerificationOutcome {
	res := v.runner.Run(ctx, v.build)
	if !res.OK() {
		v.logger.Warn().Str("command", res.Command).Int("exit_code", res.ExitCode).Bool("timed_out", res.TimedOut).Msg("build failed")
		return models.VerificationOutcome{
			BuildPassed:  false,
			TestsPassed:  false,
			ErrorExcerpt: Excerpt(res),
		}
	}

	res = v.runner.Run(ctx, v.test)
	if !res.OK() {
		v.logger.Warn().Str("command", res.Command).Int("exit_code", res.ExitCode).Bool("timed_out", res.TimedOut).Msg("tests failed")
		return models.VerificationOutcome{
			BuildPassed:  true,
			TestsPassed:  false,
			ErrorExcerpt: Excerpt(res),
		}
	}

	v.logger.Info().Msg("build and tests passed")
	return models.VerificationOutcome{BuildPassed: true, TestsPassed: true}
}

// Excerpt returns the tail of a failed command's output, where compilers
// and test runners print their summary, bounded to MaxErrorExcerpt runes.
func Excerpt(res runner.Result) string {
	text := strings.TrimSpace(res.Output())
	if text == "" && res.Err != nil {
		text = res.Err.Error()
	}
	r := []rune(text)
	if len(r) > models.MaxErrorExcerpt {
		r = r[len(r)-models.MaxErrorExcerpt:]
	}
	return string(r)
}
