package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/runner"
)

// ProbeName identifies one of the scan probes.
type ProbeName string

const (
	ProbeAudit   ProbeName = "dependency-audit"
	ProbeSecrets ProbeName = "secret-leak"
	ProbeStatic  ProbeName = "static-check"
)

// Default per-probe timeouts.
const (
	DefaultAuditTimeout   = 60 * time.Second
	DefaultSecretsTimeout = 30 * time.Second
	DefaultStaticTimeout  = 120 * time.Second
)

// ProbeResult is the typed outcome of one probe run. A failed probe
// carries Err and empty finding lists; it never aborts a scan.
type ProbeResult struct {
	Probe      ProbeName                   `json:"probe"`
	Counts     models.DependencyCounts     `json:"counts"`
	Advisories []models.DependencyAdvisory `json:"advisories"`
	Secrets    []models.SecretLeak         `json:"secrets"`
	Static     []models.StaticCheckFinding `json:"static"`
	Duration   time.Duration               `json:"duration"`
	Err        error                       `json:"-"`
}

// Failed reports whether the probe fell back to an empty result.
func (r ProbeResult) Failed() bool {
	return r.Err != nil
}

// failed builds the empty result for a soft failure.
func failed(name ProbeName, d time.Duration, err error) ProbeResult {
	return ProbeResult{
		Probe:      name,
		Advisories: []models.DependencyAdvisory{},
		Secrets:    []models.SecretLeak{},
		Static:     []models.StaticCheckFinding{},
		Duration:   d,
		Err:        err,
	}
}

// Probe invokes one external analysis tool.
// Run must not panic in normal operation and reports failures in the result.
type Probe interface {
	Name() ProbeName
	Run(ctx context.Context) ProbeResult
}

// commandProbe is the shared subprocess plumbing of the built-in probes.
type commandProbe struct {
	runner *runner.Runner
	cmd    runner.Command
}

// exec runs the command. Tools that exit non-zero but produce output are
// handled by the caller; spawn failures and timeouts are returned as errors.
func (p commandProbe) exec(ctx context.Context) (runner.Result, error) {
	res := p.runner.Run(ctx, p.cmd)
	if res.TimedOut {
		return res, res.Err
	}
	if !res.Started() {
		return res, fmt.Errorf("%s: %w", p.cmd.Name, res.Err)
	}
	return res, nil
}
