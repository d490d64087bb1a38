package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScanSnapshot_NilListsSerializeAsArrays(t *testing.T) {
	data, err := json.Marshal(EmptySnapshot(time.Unix(0, 0).UTC()))
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"advisories":[]`)
	assert.Contains(t, s, `"secrets":[]`)
	assert.Contains(t, s, `"static_findings":[]`)
}

func TestNewScanSnapshot_CopiesInput(t *testing.T) {
	static := []StaticCheckFinding{{File: "a.ts", Line: 1}}
	snap := NewScanSnapshot(DependencyCounts{}, nil, nil, static, time.Now())
	static[0].File = "changed.ts"

	assert.Equal(t, "a.ts", snap.StaticFindings[0].File)
}

func TestFindingsOrderAndCounts(t *testing.T) {
	snap := NewScanSnapshot(
		DependencyCounts{Total: 2, High: 1, Low: 1},
		[]DependencyAdvisory{{PackageName: "lodash", Severity: SeverityHigh}, {PackageName: "minimist", Severity: SeverityLow}},
		[]SecretLeak{{File: "cfg.ts", Line: 2, PatternKind: PatternPassword}},
		[]StaticCheckFinding{{File: "a.ts", Line: 7, Code: "TS2304", Message: "Cannot find name 'x'."}},
		time.Now(),
	)

	findings := snap.Findings()
	require.Len(t, findings, 4)
	assert.Equal(t, KindStatic, findings[0].Kind())
	assert.Equal(t, KindSecret, findings[1].Kind())
	assert.Equal(t, KindDependency, findings[2].Kind())
	assert.Equal(t, "a.ts:7", findings[0].Location())
	assert.Equal(t, "TS2304: Cannot find name 'x'.", findings[0].Describe())

	assert.Equal(t, 4, snap.TotalFindings())
	assert.Equal(t, map[FindingKind]int{KindStatic: 1, KindSecret: 1, KindDependency: 2}, snap.CountsByKind())
	assert.Equal(t, 1, snap.AdvisoriesWithSeverity(SeverityHigh))
	assert.Equal(t, 0, snap.AdvisoriesWithSeverity(SeverityCritical))
}

func TestTruncateSnippet(t *testing.T) {
	short := "password = hunter2"
	assert.Equal(t, short, TruncateSnippet(short))

	long := strings.Repeat("é", MaxSnippetLength+20)
	assert.Equal(t, MaxSnippetLength, len([]rune(TruncateSnippet(long))))
}

func TestLocationWithoutLine(t *testing.T) {
	assert.Equal(t, "a.ts", StaticCheckFinding{File: "a.ts"}.Location())
	assert.Equal(t, "lodash", DependencyAdvisory{PackageName: "lodash"}.Location())
}
