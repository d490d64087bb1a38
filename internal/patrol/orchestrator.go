// Package patrol runs the scan, remediate, verify, and report pipeline.
package patrol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/codepatrol/internal/agent"
	"github.com/ppiankov/codepatrol/internal/metrics"
	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/safetynet"
	"github.com/ppiankov/codepatrol/internal/scanner"
)

// Scanner produces one scan snapshot and never fails.
type Scanner interface {
	Scan(ctx context.Context) models.ScanSnapshot
}

// SafetyNet guards pre-existing uncommitted work.
type SafetyNet interface {
	Capture(ctx context.Context) (safetynet.Token, error)
	Discard(ctx context.Context, tok safetynet.Token) error
	Restore(ctx context.Context, tok safetynet.Token) error
}

// Remediator asks the coding agent to fix the findings.
type Remediator interface {
	Remediate(ctx context.Context, statement string) agent.Outcome
}

// DiffSource measures what changed against the last commit.
type DiffSource interface {
	DiffStat(ctx context.Context) ([]models.FileDiff, error)
	Diff(ctx context.Context) (string, error)
}

// Verifier runs the build and test gates.
type Verifier interface {
	Verify(ctx context.Context) models.VerificationOutcome
}

// Reviewer gives an advisory opinion on a kept diff.
type Reviewer interface {
	Review(ctx context.Context, diff string) (*models.QualityReview, error)
}

// Notifier delivers the report and returns a delivery handle, "" on failure.
type Notifier interface {
	Notify(ctx context.Context, r *models.PatrolReport) string
}

// KnowledgeSink stores the report for later trend queries.
type KnowledgeSink interface {
	Record(ctx context.Context, r *models.PatrolReport) error
}

// Archive keeps the JSON report on local disk.
type Archive interface {
	SaveReport(r *models.PatrolReport) error
}

// Deps are the collaborators of an Orchestrator. Reviewer, Notifier,
// Knowledge, Archive, and Metrics are optional.
type Deps struct {
	Scanner   Scanner
	SafetyNet SafetyNet
	Agent     Remediator
	Diffs     DiffSource
	Verifier  Verifier
	Reviewer  Reviewer
	Notifier  Notifier
	Knowledge KnowledgeSink
	Archive   Archive
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// Orchestrator is the pipeline state machine. One Orchestrator serves one
// working tree, and Run must not be called concurrently on the same tree.
type Orchestrator struct {
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "patrol").Logger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// run carries the state accumulated by one pipeline execution.
type run struct {
	id            string
	startedAt     time.Time
	state         State
	enteredAt     time.Time
	stages        []models.StageTiming
	logger        zerolog.Logger
	before        models.ScanSnapshot
	after         *models.ScanSnapshot
	token         safetynet.Token
	// captureFailed means there is no safety net; edits must not be discarded
	captureFailed bool
	outcome       agent.Outcome
	diffs         []models.FileDiff
	verified      *models.VerificationOutcome
	rolledBack    bool
	unverified    bool
	review        *models.QualityReview
	notes         []string
}

// Run executes the pipeline once and returns the report. Every failure
// past the first scan is soft; Run always returns a report.
func (o *Orchestrator) Run(ctx context.Context) *models.PatrolReport {
	r := &run{
		id:        o.newID(),
		startedAt: o.now(),
		state:     StateIdle,
	}
	r.enteredAt = r.startedAt
	r.logger = o.logger.With().Str("run_id", r.id).Logger()
	r.logger.Info().Msg("patrol started")

	// Step 1: scan
	o.enter(r, StateScanBefore)
	r.before = o.deps.Scanner.Scan(ctx)
	o.deps.Metrics.SetFindings("before", r.before)

	if !scanner.HasIssues(r.before) {
		o.enter(r, StateCleanReport)
		after := r.before
		r.after = &after
		return o.finish(ctx, r, OutcomeClean)
	}

	// Step 2: safety net, then remediation
	o.captureSafetyNet(ctx, r)

	o.enter(r, StateRemediating)
	r.outcome = o.remediate(ctx, r)

	// Step 3: rescan unconditionally; the agent's own report is not trusted
	o.enter(r, StateScanAfter)
	after := o.deps.Scanner.Scan(ctx)
	r.after = &after
	o.deps.Metrics.SetFindings("after", after)

	// Step 4: measure the change
	o.enter(r, StateDiffCapture)
	diffs, err := o.deps.Diffs.DiffStat(ctx)
	outcome := OutcomeUnchanged

	switch {
	case err != nil:
		// Without a diff nothing can be verified; drop the edits.
		r.logger.Error().Err(err).Msg("diff capture failed")
		if r.captureFailed {
			o.retainUnverified(r, "Could not measure remediation changes")
			outcome = OutcomeUnverified
			break
		}
		r.notes = append(r.notes, "Could not measure remediation changes; edits were discarded")
		o.rollback(ctx, r)
		outcome = OutcomeRolledBack

	case len(diffs) == 0:
		o.enter(r, StateSkipVerify)
		r.diffs = []models.FileDiff{}

	default:
		r.diffs = diffs
		o.enter(r, StateVerifying)
		v := o.deps.Verifier.Verify(ctx)
		r.verified = &v
		o.deps.Metrics.RecordVerification(v.Passed())

		if v.Passed() {
			o.enter(r, StateKeep)
			o.reviewDiff(ctx, r)
			outcome = OutcomeKept
		} else if r.captureFailed {
			o.retainUnverified(r, "Verification failed")
			outcome = OutcomeUnverified
		} else {
			o.rollback(ctx, r)
			outcome = OutcomeRolledBack
		}
	}

	// Step 5: return pre-existing work, whatever happened above
	o.enter(r, StateRestoring)
	o.restoreSafetyNet(ctx, r)

	return o.finish(ctx, r, outcome)
}

// finish builds, persists, and returns the report.
func (o *Orchestrator) finish(ctx context.Context, r *run, outcome string) *models.PatrolReport {
	o.enter(r, StateReporting)
	report := buildReport(r, o.now())

	if err := report.CheckInvariants(); err != nil {
		r.logger.Error().Err(err).Msg("report violates invariants")
	}

	o.enter(r, StatePersisting)
	o.persist(ctx, r, report)

	o.enter(r, StateDone)
	o.deps.Metrics.RecordRun(outcome, o.now())

	r.logger.Info().
		Str("outcome", outcome).
		Str("risk", string(report.RiskLevel)).
		Dur("duration", report.Duration).
		Msg(report.Summary)
	return report
}

// enter records the time spent in the current state and moves to next.
func (o *Orchestrator) enter(r *run, next State) {
	if !CanTransition(r.state, next) {
		r.logger.Error().Str("from", string(r.state)).Str("to", string(next)).Msg("illegal state transition")
	}

	now := o.now()
	if r.state != StateIdle {
		d := now.Sub(r.enteredAt)
		r.stages = append(r.stages, models.StageTiming{Stage: string(r.state), Duration: d})
		o.deps.Metrics.ObserveStage(string(r.state), d)
	}

	r.logger.Debug().Str("from", string(r.state)).Str("to", string(next)).Msg("transition")
	r.state = next
	r.enteredAt = now
}

func (o *Orchestrator) captureSafetyNet(ctx context.Context, r *run) {
	tok, err := o.deps.SafetyNet.Capture(ctx)
	if err != nil {
		// Proceeding without a safety net; uncommitted work is at risk.
		r.logger.Error().Err(err).Msg("safety net capture failed, continuing without it")
		r.notes = append(r.notes, "Safety net capture failed; check the working tree for lost uncommitted changes")
		r.captureFailed = true
	}
	r.token = tok
}

func (o *Orchestrator) restoreSafetyNet(ctx context.Context, r *run) {
	if !r.token.Captured() {
		return
	}
	// Restore even when the run was interrupted.
	if err := o.deps.SafetyNet.Restore(context.WithoutCancel(ctx), r.token); err != nil {
		r.logger.Error().Err(err).Str("label", r.token.Label()).Msg("failed to restore uncommitted work")
		r.notes = append(r.notes, fmt.Sprintf("Pre-existing uncommitted work is still stashed as %q; restore it with git stash pop", r.token.Label()))
	}
}

// remediate converts a panicking agent into a failed outcome.
func (o *Orchestrator) remediate(ctx context.Context, r *run) (out agent.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = agent.FailureOutcome(fmt.Errorf("agent panicked: %v", p))
		}
	}()

	out = o.deps.Agent.Remediate(ctx, agent.BuildProblemStatement(r.before))
	if out.Failed() {
		r.logger.Warn().Err(out.Err).Msg("remediation failed")
	}
	if out.Remediations == nil {
		out.Remediations = []models.RemediationAction{}
	}
	return out
}

func (o *Orchestrator) rollback(ctx context.Context, r *run) {
	o.enter(r, StateRollback)
	r.rolledBack = true
	if err := o.deps.SafetyNet.Discard(context.WithoutCancel(ctx), r.token); err != nil {
		r.logger.Error().Err(err).Msg("rollback failed")
		r.notes = append(r.notes, "Rollback failed; the working tree may still contain unverified edits")
	}
}

// retainUnverified leaves the agent's edits in place. Discarding resets the
// tree to the last commit, which without a safety net would also destroy
// the user's uncommitted work.
func (o *Orchestrator) retainUnverified(r *run, reason string) {
	o.enter(r, StateRetainUnverified)
	r.unverified = true
	r.logger.Error().Str("reason", reason).Msg("no safety net, leaving unverified edits in the working tree")
	r.notes = append(r.notes, reason+"; edits were not discarded because no safety net existed. Review the working tree before committing")
}

func (o *Orchestrator) reviewDiff(ctx context.Context, r *run) {
	if o.deps.Reviewer == nil {
		return
	}
	text, err := o.deps.Diffs.Diff(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("could not read diff for review")
		return
	}
	qr, err := o.deps.Reviewer.Review(ctx, text)
	if err != nil {
		r.logger.Warn().Err(err).Msg("quality review unavailable")
		return
	}
	r.review = qr
}

// persist hands the report to each sink independently. Sink failures are
// logged and never fail the run.
func (o *Orchestrator) persist(ctx context.Context, r *run, report *models.PatrolReport) {
	if o.deps.Archive != nil {
		if err := o.deps.Archive.SaveReport(report); err != nil {
			r.logger.Warn().Err(err).Msg("failed to archive report")
		}
	}

	if o.deps.Notifier != nil {
		if handle := o.deps.Notifier.Notify(ctx, report); handle == "" {
			r.logger.Warn().Msg("notification not delivered")
		} else {
			r.logger.Info().Str("delivery", handle).Msg("notification delivered")
		}
	}

	if o.deps.Knowledge != nil {
		if err := o.deps.Knowledge.Record(ctx, report); err != nil {
			r.logger.Warn().Err(err).Msg("failed to record report in knowledge store")
		}
	}
}

// ErrRunInProgress is returned when another patrol holds the run lock.
var ErrRunInProgress = errors.New("another patrol run is in progress")
