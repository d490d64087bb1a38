package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskLevelRank(t *testing.T) {
	order := []RiskLevel{RiskClean, RiskLow, RiskMedium, RiskHigh, RiskCritical}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i].Rank(), order[i-1].Rank())
		assert.True(t, order[i].AtLeast(order[i-1]))
		assert.False(t, order[i-1].AtLeast(order[i]))
	}
	assert.Equal(t, -1, RiskLevel("severe").Rank())
}

func TestParseRiskLevel(t *testing.T) {
	level, err := ParseRiskLevel("high")
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, level)

	_, err = ParseRiskLevel("HIGH")
	assert.Error(t, err)
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, CategorySecretLeak, NormalizeCategory("secret-leak"))
	assert.Equal(t, CategoryOther, NormalizeCategory("formatting"))
	assert.Equal(t, CategoryOther, NormalizeCategory(""))
}

func validReport() *PatrolReport {
	after := EmptySnapshot(time.Now())
	return &PatrolReport{
		BeforeFindings:        EmptySnapshot(time.Now()),
		AfterFindings:         &after,
		Remediations:          []RemediationAction{},
		Diffs:                 []FileDiff{},
		ManualRecommendations: []string{},
	}
}

func TestCheckInvariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *PatrolReport)
		want   error
	}{
		{"clean", func(r *PatrolReport) {}, nil},
		{"rolled back shape", func(r *PatrolReport) {
			r.AfterFindings = nil
			r.RolledBack = true
			r.Verification = &VerificationOutcome{}
		}, nil},
		{"rolled back with after", func(r *PatrolReport) { r.RolledBack = true }, ErrRollbackShape},
		{"null after without rollback", func(r *PatrolReport) { r.AfterFindings = nil }, ErrRollbackShape},
		{"verification without diff", func(r *PatrolReport) {
			r.Verification = &VerificationOutcome{BuildPassed: true, TestsPassed: true}
		}, ErrVerificationNoDiff},
		{"verification with diff", func(r *PatrolReport) {
			r.Diffs = []FileDiff{{File: "a.ts", Additions: 1}}
			r.Verification = &VerificationOutcome{BuildPassed: true, TestsPassed: true}
		}, nil},
		{"unverified edits keep failed verification", func(r *PatrolReport) {
			r.Diffs = []FileDiff{{File: "a.ts", Additions: 1}}
			r.Verification = &VerificationOutcome{BuildPassed: false}
			r.UnverifiedEdits = true
		}, nil},
		{"nil remediations", func(r *PatrolReport) { r.Remediations = nil }, ErrNilFindingList},
		{"nil snapshot list", func(r *PatrolReport) { r.BeforeFindings.Secrets = nil }, ErrNilFindingList},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReport()
			tt.mutate(r)
			err := r.CheckInvariants()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestVerificationPassed(t *testing.T) {
	assert.True(t, VerificationOutcome{BuildPassed: true, TestsPassed: true}.Passed())
	assert.False(t, VerificationOutcome{BuildPassed: true}.Passed())
	assert.False(t, VerificationOutcome{TestsPassed: true}.Passed())
}
