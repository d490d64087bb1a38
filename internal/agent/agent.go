// Package agent drives the external coding agent that edits the tree.
package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/runner"
)

// Defaults for the agent invocation.
var (
	DefaultCommand      = []string{"claude"}
	DefaultAllowedTools = []string{"Read", "Edit", "Grep", "Glob"}
)

const (
	DefaultMaxTurns = 30
	DefaultTimeout  = 30 * time.Minute
)

// shellTools may never appear in the allow-list.
var shellTools = map[string]bool{"bash": true, "shell": true, "exec": true, "terminal": true}

// Outcome is the typed result of one remediation attempt. When Err is set
// the call failed, Remediations is empty and Skipped holds one synthetic item.
type Outcome struct {
	Remediations []models.RemediationAction
	Skipped      []models.SkippedItem
	CostUnits    float64
	ActionCount  int
	Err          error
}

// Failed reports whether the agent call produced no usable result.
func (o Outcome) Failed() bool { return o.Err != nil }

// FailureOutcome converts an error into the soft-failure outcome.
func FailureOutcome(err error) Outcome {
	return Outcome{
		Remediations: []models.RemediationAction{},
		Skipped: []models.SkippedItem{{
			Category:    models.CategoryOther,
			Description: fmt.Sprintf("Automated remediation failed (%s); manual follow-up needed", truncate(err.Error(), 200)),
		}},
		Err: err,
	}
}

// Options configures the agent subprocess.
type Options struct {
	Command      []string
	AllowedTools []string
	MaxTurns     int
	Dir          string
	Timeout      time.Duration
}

// CLIAgent runs a coding-agent CLI in print mode.
type CLIAgent struct {
	runner *runner.Runner
	opts   Options
	logger zerolog.Logger
}

// New validates opts and creates the agent.
func New(r *runner.Runner, opts Options, logger zerolog.Logger) (*CLIAgent, error) {
	if len(opts.Command) == 0 {
		opts.Command = DefaultCommand
	}
	if len(opts.AllowedTools) == 0 {
		opts.AllowedTools = DefaultAllowedTools
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if err := ValidateAllowedTools(opts.AllowedTools); err != nil {
		return nil, err
	}
	return &CLIAgent{
		runner: r,
		opts:   opts,
		logger: logger.With().Str("component", "agent").Logger(),
	}, nil
}

// ValidateAllowedTools rejects allow-lists that grant shell execution.
func ValidateAllowedTools(tools []string) error {
	for _, t := range tools {
		name := strings.ToLower(strings.TrimSpace(t))
		if i := strings.IndexByte(name, '('); i >= 0 {
			name = name[:i]
		}
		if shellTools[name] {
			return fmt.Errorf("tool %q grants shell access and cannot be allowed", t)
		}
	}
	return nil
}

// Command builds the argv for one prompt.
func (a *CLIAgent) Command(prompt string) runner.Command {
	args := append([]string(nil), a.opts.Command[1:]...)
	args = append(args,
		"-p", prompt,
		"--allowedTools", strings.Join(a.opts.AllowedTools, ","),
		"--output-format", "json",
		"--max-turns", strconv.Itoa(a.opts.MaxTurns),
	)
	return runner.Command{
		Name:    a.opts.Command[0],
		Args:    args,
		Dir:     a.opts.Dir,
		Timeout: a.opts.Timeout,
	}
}

// Remediate sends the problem statement and parses the reply. It never
// returns an error; failures become a FailureOutcome.
func (a *CLIAgent) Remediate(ctx context.Context, statement string) Outcome {
	res := a.runner.Run(ctx, a.Command(statement))
	if res.Err != nil {
		err := res.Err
		if excerpt := strings.TrimSpace(string(res.Stderr)); excerpt != "" {
			err = fmt.Errorf("%w: %s", res.Err, truncate(excerpt, 200))
		}
		a.logger.Warn().Err(err).Dur("duration", res.Duration).Msg("agent call failed")
		return FailureOutcome(err)
	}

	out, err := ParseResponse(res.Stdout)
	if err != nil {
		a.logger.Warn().Err(err).Msg("agent response unparseable")
		return FailureOutcome(err)
	}

	a.logger.Info().
		Int("remediations", len(out.Remediations)).
		Int("skipped", len(out.Skipped)).
		Float64("cost", out.CostUnits).
		Dur("duration", res.Duration).
		Msg("agent finished")
	return out
}
