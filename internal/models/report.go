package models

import (
	"errors"
	"fmt"
	"time"
)

// RiskLevel is the five-value severity classification of a scan snapshot.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
	RiskClean    RiskLevel = "clean"
)

var riskRank = map[RiskLevel]int{
	RiskClean:    0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Rank orders risk levels; clean is 0 and critical is 4. Unknown levels rank -1.
func (r RiskLevel) Rank() int {
	if n, ok := riskRank[r]; ok {
		return n
	}
	return -1
}

// AtLeast reports whether r is as severe as other or more.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Rank() >= other.Rank()
}

// ParseRiskLevel validates a risk level string.
func ParseRiskLevel(s string) (RiskLevel, error) {
	level := RiskLevel(s)
	if level.Rank() < 0 {
		return "", fmt.Errorf("invalid risk level: %s (must be critical, high, medium, low, or clean)", s)
	}
	return level, nil
}

// RemediationCategory groups remediation actions and skipped items.
type RemediationCategory string

const (
	CategoryTypeError  RemediationCategory = "type-error"
	CategorySecretLeak RemediationCategory = "secret-leak"
	CategoryDependency RemediationCategory = "dependency"
	CategoryOther      RemediationCategory = "other"
)

// NormalizeCategory maps unknown category strings to CategoryOther.
func NormalizeCategory(s string) RemediationCategory {
	switch c := RemediationCategory(s); c {
	case CategoryTypeError, CategorySecretLeak, CategoryDependency, CategoryOther:
		return c
	default:
		return CategoryOther
	}
}

// RemediationAction is one fix the remediation agent reports having made.
type RemediationAction struct {
	Category     RemediationCategory `json:"category"`
	FilesChanged []string            `json:"files_changed"`
	Description  string              `json:"description"`
}

// SkippedItem is something the remediation agent declined or failed to fix.
type SkippedItem struct {
	Category    RemediationCategory `json:"category"`
	Description string              `json:"description"`
}

// FileDiff is the line-level change count of one file against the last commit.
type FileDiff struct {
	File      string `json:"file"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// MaxErrorExcerpt bounds VerificationOutcome.ErrorExcerpt.
const MaxErrorExcerpt = 500

// VerificationOutcome is the result of the build and test gates.
type VerificationOutcome struct {
	BuildPassed  bool   `json:"build_passed"`
	TestsPassed  bool   `json:"tests_passed"`
	ErrorExcerpt string `json:"error_excerpt,omitempty"`
}

// Passed is true when both gates passed.
func (v VerificationOutcome) Passed() bool {
	return v.BuildPassed && v.TestsPassed
}

// Review verdicts.
const (
	VerdictApprove  = "approve"
	VerdictConcerns = "concerns"
)

// QualityReview is the advisory opinion on a kept remediation diff.
// It never influences whether the diff is kept.
type QualityReview struct {
	Verdict string   `json:"verdict"`
	Notes   []string `json:"notes"`
	Model   string   `json:"model,omitempty"`
}

// StageTiming records how long the orchestrator spent in one state.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// PatrolReport is the terminal artifact of one pipeline run.
// It is built once by the orchestrator and never mutated afterwards.
type PatrolReport struct {
	RunID                 string               `json:"run_id"`
	Date                  string               `json:"date"`
	StartedAt             time.Time            `json:"started_at"`
	Duration              time.Duration        `json:"duration"`
	RiskLevel             RiskLevel            `json:"risk_level"`
	Summary               string               `json:"summary"`
	BeforeFindings        ScanSnapshot         `json:"before_findings"`
	AfterFindings         *ScanSnapshot        `json:"after_findings"`
	Remediations          []RemediationAction  `json:"remediations"`
	Diffs                 []FileDiff           `json:"diffs"`
	// Verification is set whenever the gates ran. A rolled-back run keeps
	// its failed verification while Diffs is empty, so consumers must not
	// assume a verification always has a matching diff.
	Verification          *VerificationOutcome `json:"verification"`
	CostUnits             float64              `json:"cost_units"`
	ActionCount           int                  `json:"action_count"`
	ManualRecommendations []string             `json:"manual_recommendations"`
	RolledBack            bool                 `json:"rolled_back"`
	// UnverifiedEdits marks edits left in the tree because no safety net
	// was captured and discarding would have destroyed uncommitted work.
	UnverifiedEdits       bool                 `json:"unverified_edits,omitempty"`
	QualityReview         *QualityReview       `json:"quality_review"`
	SafetyNetCaptured     bool                 `json:"safety_net_captured"`
	Stages                []StageTiming        `json:"stages,omitempty"`
}

// Invariant violations returned by CheckInvariants.
var (
	ErrRollbackShape      = errors.New("rolled_back must hold exactly when after_findings is null and remediations and diffs are empty")
	ErrVerificationNoDiff = errors.New("verification present without a diff")
	ErrNilFindingList     = errors.New("finding list is nil")
)

// CheckInvariants validates the structural guarantees every report carries.
func (r *PatrolReport) CheckInvariants() error {
	emptyOutcome := r.AfterFindings == nil && len(r.Remediations) == 0 && len(r.Diffs) == 0
	if r.RolledBack != emptyOutcome {
		return ErrRollbackShape
	}

	// A rolled-back run keeps its failed verification; the diff that was
	// verified is dropped together with the edits.
	if r.Verification != nil && len(r.Diffs) == 0 && !r.RolledBack {
		return ErrVerificationNoDiff
	}

	snapshots := []*ScanSnapshot{&r.BeforeFindings, r.AfterFindings}
	for _, s := range snapshots {
		if s == nil {
			continue
		}
		if s.Advisories == nil || s.Secrets == nil || s.StaticFindings == nil {
			return ErrNilFindingList
		}
	}

	if r.Remediations == nil || r.Diffs == nil || r.ManualRecommendations == nil {
		return ErrNilFindingList
	}

	return nil
}
