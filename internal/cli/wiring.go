package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/codepatrol/internal/agent"
	"github.com/ppiankov/codepatrol/internal/config"
	"github.com/ppiankov/codepatrol/internal/knowledge"
	"github.com/ppiankov/codepatrol/internal/metrics"
	"github.com/ppiankov/codepatrol/internal/notify"
	"github.com/ppiankov/codepatrol/internal/patrol"
	"github.com/ppiankov/codepatrol/internal/review"
	"github.com/ppiankov/codepatrol/internal/runner"
	"github.com/ppiankov/codepatrol/internal/safetynet"
	"github.com/ppiankov/codepatrol/internal/scanner"
	"github.com/ppiankov/codepatrol/internal/storage"
	"github.com/ppiankov/codepatrol/internal/verify"
	"github.com/ppiankov/codepatrol/internal/vcs"
)

// buildScanner wires the three probes against dir.
func buildScanner(c *config.Config, dir string, r *runner.Runner, m *metrics.Metrics, log zerolog.Logger) (*scanner.Scanner, error) {
	audit, err := runner.FromArgv(c.Probes.Audit.Command, dir, c.Probes.Audit.Timeout)
	if err != nil {
		return nil, fmt.Errorf("probes.audit.command: %w", err)
	}
	static, err := runner.FromArgv(c.Probes.Static.Command, dir, c.Probes.Static.Timeout)
	if err != nil {
		return nil, fmt.Errorf("probes.static.command: %w", err)
	}
	secrets := scanner.NewSecretsProbe(r, scanner.SecretsOptions{
		Command:     c.Probes.Secrets.Command,
		Dir:         dir,
		Include:     c.Probes.Secrets.Include,
		ExcludeDirs: c.Probes.Secrets.ExcludeDirs,
		Timeout:     c.Probes.Secrets.Timeout,
	})

	return scanner.New(log, m,
		scanner.NewAuditProbe(r, audit),
		secrets,
		scanner.NewStaticProbe(r, static),
	), nil
}

// pipeline is a fully wired orchestrator plus the resources it holds open.
type pipeline struct {
	orchestrator *patrol.Orchestrator
	knowledge    *knowledge.Store
	metrics      *metrics.Metrics
}

// Close releases the knowledge store.
func (p *pipeline) Close() error {
	if p.knowledge == nil {
		return nil
	}
	return p.knowledge.Close()
}

// buildPipeline resolves every collaborator from the config. Optional
// sinks that cannot be opened are logged and left out.
func buildPipeline(c *config.Config, log zerolog.Logger) (*pipeline, error) {
	dir, err := c.GetWorkdir()
	if err != nil {
		return nil, err
	}
	storagePath, err := c.GetStoragePath()
	if err != nil {
		return nil, err
	}

	m := metrics.Default()
	r := runner.New(runner.OSExec)

	scan, err := buildScanner(c, dir, r, m, log)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	git := vcs.NewGit(r, dir, c.Git.Timeout)

	coder, err := agent.New(r, agent.Options{
		Command:      c.Agent.Command,
		AllowedTools: c.Agent.AllowedTools,
		MaxTurns:     c.Agent.MaxTurns,
		Dir:          dir,
		Timeout:      c.Agent.Timeout,
	}, log)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	build, err := runner.FromArgv(c.Verify.BuildCommand, dir, c.Verify.Timeout)
	if err != nil {
		return nil, &ValidationError{Message: "verify.build_command: " + err.Error()}
	}
	test, err := runner.FromArgv(c.Verify.TestCommand, dir, c.Verify.Timeout)
	if err != nil {
		return nil, &ValidationError{Message: "verify.test_command: " + err.Error()}
	}

	deps := patrol.Deps{
		Scanner:   scan,
		SafetyNet: safetynet.New(git, log),
		Agent:     coder,
		Diffs:     git,
		Verifier:  verify.New(r, build, test, log),
		Archive:   storage.NewLocal(storagePath),
		Metrics:   m,
		Logger:    log,
	}

	if c.Review.Enabled {
		rv, err := review.New(review.Options{
			APIKey:  c.Review.APIKey,
			BaseURL: c.Review.BaseURL,
			Model:   c.Review.Model,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("quality review disabled")
		} else {
			deps.Reviewer = rv
		}
	}

	if hook := notify.New(notify.Options{
		URL:     c.Notify.WebhookURL,
		Channel: c.Notify.Channel,
		Retries: c.Notify.Retries,
		Timeout: c.Notify.Timeout,
	}, log); hook != nil {
		deps.Notifier = patrol.WebhookNotifier{Webhook: hook}
	}

	p := &pipeline{metrics: m}

	dbPath, err := c.KnowledgePath()
	if err == nil {
		var store *knowledge.Store
		store, err = knowledge.Open(dbPath, log)
		if err == nil {
			p.knowledge = store
			deps.Knowledge = patrol.KnowledgeRecorder{Store: store}
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("knowledge store unavailable; reports will not be recorded there")
	}

	p.orchestrator = patrol.New(deps)
	return p, nil
}
