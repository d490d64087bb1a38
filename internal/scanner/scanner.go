package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/codepatrol/internal/metrics"
	"github.com/ppiankov/codepatrol/internal/models"
)

// Scanner runs every probe and merges the results into one snapshot.
type Scanner struct {
	probes  []Probe
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a scanner over the given probes.
func New(logger zerolog.Logger, m *metrics.Metrics, probes ...Probe) *Scanner {
	return &Scanner{
		probes:  probes,
		logger:  logger.With().Str("component", "scanner").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

// Scan runs all probes concurrently and waits for every one of them.
// A probe that fails, times out, or panics contributes an empty result;
// Scan itself never fails.
func (s *Scanner) Scan(ctx context.Context) models.ScanSnapshot {
	snap, _ := s.ScanDetailed(ctx)
	return snap
}

// ScanDetailed is Scan plus the individual probe outcomes.
func (s *Scanner) ScanDetailed(ctx context.Context) (models.ScanSnapshot, []ProbeResult) {
	results := make([]ProbeResult, len(s.probes))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.probes {
		g.Go(func() error {
			results[i] = s.runProbe(gctx, p)
			return nil
		})
	}
	// Goroutines never return an error; Wait is only the join point.
	_ = g.Wait()

	var counts models.DependencyCounts
	var advisories []models.DependencyAdvisory
	var secrets []models.SecretLeak
	var static []models.StaticCheckFinding

	for _, r := range results {
		s.metrics.ObserveProbe(string(r.Probe), r.Duration, r.Failed())
		if r.Failed() {
			s.logger.Warn().
				Err(r.Err).
				Str("probe", string(r.Probe)).
				Dur("duration", r.Duration).
				Msg("probe failed, using empty result")
			continue
		}
		s.logger.Debug().
			Str("probe", string(r.Probe)).
			Dur("duration", r.Duration).
			Int("advisories", len(r.Advisories)).
			Int("secrets", len(r.Secrets)).
			Int("static", len(r.Static)).
			Msg("probe finished")

		if r.Probe == ProbeAudit {
			counts = r.Counts
		}
		advisories = append(advisories, r.Advisories...)
		secrets = append(secrets, r.Secrets...)
		static = append(static, r.Static...)
	}

	return models.NewScanSnapshot(counts, advisories, secrets, static, s.now()), results
}

// runProbe converts a panicking probe into a soft failure.
func (s *Scanner) runProbe(ctx context.Context, p Probe) (res ProbeResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = failed(p.Name(), time.Since(start), fmt.Errorf("probe panicked: %v", r))
		}
	}()
	res = p.Run(ctx)
	res.Probe = p.Name()
	return res
}

// HasIssues reports whether a snapshot warrants remediation.
func HasIssues(s models.ScanSnapshot) bool {
	return s.TotalFindings() > 0
}
