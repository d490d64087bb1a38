package models

import (
	"strconv"
	"time"
)

// FindingKind identifies which probe produced a finding.
type FindingKind string

const (
	KindDependency FindingKind = "dependency"
	KindSecret     FindingKind = "secret"
	KindStatic     FindingKind = "static"
)

// Advisory severities reported by the dependency-audit tool.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityModerate = "moderate"
	SeverityLow      = "low"
)

// SecretPattern is the category of a secret-leak match.
type SecretPattern string

const (
	PatternAPIKey      SecretPattern = "api-key"
	PatternAWSKey      SecretPattern = "aws-key"
	PatternPassword    SecretPattern = "password"
	PatternSecretToken SecretPattern = "secret-token"
	PatternPrivateKey  SecretPattern = "private-key"
	PatternBearerToken SecretPattern = "bearer-token"
)

// MaxSnippetLength bounds the stored text of a secret-leak match.
const MaxSnippetLength = 100

// Finding is implemented by every concrete defect type a probe can report.
type Finding interface {
	Kind() FindingKind
	// Location is a short human-readable pointer (file:line or package).
	Location() string
	// Describe is a one-line summary of the defect.
	Describe() string
}

// DependencyAdvisory is a vulnerable dependency reported by the audit tool.
type DependencyAdvisory struct {
	PackageName string `json:"package_name"`
	Severity    string `json:"severity"` // critical, high, moderate, low
	Title       string `json:"title"`
	Reference   string `json:"reference,omitempty"`
}

func (a DependencyAdvisory) Kind() FindingKind { return KindDependency }
func (a DependencyAdvisory) Location() string  { return a.PackageName }
func (a DependencyAdvisory) Describe() string {
	return a.Severity + ": " + a.Title
}

// SecretLeak is a line in a source file that looks like an embedded credential.
type SecretLeak struct {
	File        string        `json:"file"`
	Line        int           `json:"line"`
	PatternKind SecretPattern `json:"pattern_kind"`
	Snippet     string        `json:"snippet"`
}

func (s SecretLeak) Kind() FindingKind { return KindSecret }
func (s SecretLeak) Location() string  { return fileLine(s.File, s.Line) }
func (s SecretLeak) Describe() string  { return string(s.PatternKind) + ": " + s.Snippet }

// StaticCheckFinding is one diagnostic from the type/lint checker.
type StaticCheckFinding struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f StaticCheckFinding) Kind() FindingKind { return KindStatic }
func (f StaticCheckFinding) Location() string  { return fileLine(f.File, f.Line) }
func (f StaticCheckFinding) Describe() string  { return f.Code + ": " + f.Message }

// DependencyCounts is the per-severity vulnerability summary from the audit tool.
type DependencyCounts struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Moderate int `json:"moderate"`
	Low      int `json:"low"`
}

// ScanSnapshot is the immutable result of one full scan pass.
// Construct it with NewScanSnapshot; the slices are never nil.
type ScanSnapshot struct {
	DependencyCounts DependencyCounts     `json:"dependency_counts"`
	Advisories       []DependencyAdvisory `json:"advisories"`
	Secrets          []SecretLeak         `json:"secrets"`
	StaticFindings   []StaticCheckFinding `json:"static_findings"`
	CapturedAt       time.Time            `json:"captured_at"`
}

// NewScanSnapshot copies the given finding lists into a new snapshot.
// Nil inputs become empty slices so the snapshot always serializes as [].
func NewScanSnapshot(counts DependencyCounts, advisories []DependencyAdvisory, secrets []SecretLeak, static []StaticCheckFinding, capturedAt time.Time) ScanSnapshot {
	return ScanSnapshot{
		DependencyCounts: counts,
		Advisories:       append(make([]DependencyAdvisory, 0, len(advisories)), advisories...),
		Secrets:          append(make([]SecretLeak, 0, len(secrets)), secrets...),
		StaticFindings:   append(make([]StaticCheckFinding, 0, len(static)), static...),
		CapturedAt:       capturedAt,
	}
}

// EmptySnapshot returns a snapshot with no findings.
func EmptySnapshot(capturedAt time.Time) ScanSnapshot {
	return NewScanSnapshot(DependencyCounts{}, nil, nil, nil, capturedAt)
}

// TotalFindings counts every finding in the snapshot.
func (s ScanSnapshot) TotalFindings() int {
	return len(s.Advisories) + len(s.Secrets) + len(s.StaticFindings)
}

// Findings flattens the snapshot into a single list ordered
// static, secret, dependency.
func (s ScanSnapshot) Findings() []Finding {
	out := make([]Finding, 0, s.TotalFindings())
	for _, f := range s.StaticFindings {
		out = append(out, f)
	}
	for _, f := range s.Secrets {
		out = append(out, f)
	}
	for _, f := range s.Advisories {
		out = append(out, f)
	}
	return out
}

// CountsByKind returns the number of findings per probe kind.
func (s ScanSnapshot) CountsByKind() map[FindingKind]int {
	return map[FindingKind]int{
		KindStatic:     len(s.StaticFindings),
		KindSecret:     len(s.Secrets),
		KindDependency: len(s.Advisories),
	}
}

// AdvisoriesWithSeverity counts advisories at the given severity.
func (s ScanSnapshot) AdvisoriesWithSeverity(severity string) int {
	n := 0
	for _, a := range s.Advisories {
		if a.Severity == severity {
			n++
		}
	}
	return n
}

// TruncateSnippet shortens text to MaxSnippetLength runes.
func TruncateSnippet(text string) string {
	r := []rune(text)
	if len(r) <= MaxSnippetLength {
		return text
	}
	return string(r[:MaxSnippetLength])
}

func fileLine(file string, line int) string {
	if line <= 0 {
		return file
	}
	return file + ":" + strconv.Itoa(line)
}
