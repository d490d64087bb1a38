package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/runner"
)

// DefaultAuditCommand is the audit tool argv used when none is configured.
var DefaultAuditCommand = []string{"npm", "audit", "--json"}

// AuditProbe runs the dependency-audit tool and parses its JSON report.
type AuditProbe struct {
	commandProbe
}

// NewAuditProbe creates an audit probe for the given command.
func NewAuditProbe(r *runner.Runner, cmd runner.Command) *AuditProbe {
	if cmd.Timeout <= 0 {
		cmd.Timeout = DefaultAuditTimeout
	}
	return &AuditProbe{commandProbe{runner: r, cmd: cmd}}
}

// Name implements Probe.
func (p *AuditProbe) Name() ProbeName { return ProbeAudit }

// Run implements Probe. The audit tool exits non-zero when it finds
// vulnerabilities, so any parseable output counts as a valid result.
func (p *AuditProbe) Run(ctx context.Context) ProbeResult {
	start := time.Now()

	res, err := p.exec(ctx)
	if err != nil {
		return failed(ProbeAudit, time.Since(start), err)
	}

	counts, advisories, err := ParseAuditReport(res.Stdout)
	if err != nil {
		return failed(ProbeAudit, time.Since(start), err)
	}

	return ProbeResult{
		Probe:      ProbeAudit,
		Counts:     counts,
		Advisories: advisories,
		Secrets:    []models.SecretLeak{},
		Static:     []models.StaticCheckFinding{},
		Duration:   time.Since(start),
	}
}

// auditReport covers both audit report layouts: the current one keyed by
// "vulnerabilities" and the legacy one keyed by "advisories".
type auditReport struct {
	Metadata struct {
		Vulnerabilities map[string]int `json:"vulnerabilities"`
	} `json:"metadata"`
	Vulnerabilities map[string]auditVulnerability `json:"vulnerabilities"`
	Advisories      map[string]legacyAdvisory     `json:"advisories"`
	Error           *struct {
		Code    string `json:"code"`
		Summary string `json:"summary"`
	} `json:"error"`
}

type auditVulnerability struct {
	Name     string            `json:"name"`
	Severity string            `json:"severity"`
	Via      []json.RawMessage `json:"via"`
}

type auditVia struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type legacyAdvisory struct {
	ModuleName string `json:"module_name"`
	Severity   string `json:"severity"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

// ParseAuditReport extracts the severity summary and advisory list.
// Output that is not a JSON object, or that reports a tool error, is rejected.
func ParseAuditReport(data []byte) (models.DependencyCounts, []models.DependencyAdvisory, error) {
	var report auditReport
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return models.DependencyCounts{}, nil, fmt.Errorf("audit output is not a JSON object")
	}
	if err := json.Unmarshal([]byte(trimmed), &report); err != nil {
		return models.DependencyCounts{}, nil, fmt.Errorf("failed to parse audit output: %w", err)
	}
	if report.Error != nil {
		return models.DependencyCounts{}, nil, fmt.Errorf("audit tool error %s: %s", report.Error.Code, report.Error.Summary)
	}

	v := report.Metadata.Vulnerabilities
	counts := models.DependencyCounts{
		Critical: v["critical"],
		High:     v["high"],
		Moderate: v["moderate"],
		Low:      v["low"],
		Total:    v["total"],
	}
	if counts.Total == 0 {
		counts.Total = counts.Critical + counts.High + counts.Moderate + counts.Low + v["info"]
	}

	advisories := make([]models.DependencyAdvisory, 0, len(report.Vulnerabilities)+len(report.Advisories))

	for key, vuln := range report.Vulnerabilities {
		name := vuln.Name
		if name == "" {
			name = key
		}
		title, ref := firstVia(vuln.Via)
		if title == "" {
			title = "vulnerable dependency"
		}
		advisories = append(advisories, models.DependencyAdvisory{
			PackageName: name,
			Severity:    normalizeSeverity(vuln.Severity),
			Title:       title,
			Reference:   ref,
		})
	}

	for _, adv := range report.Advisories {
		advisories = append(advisories, models.DependencyAdvisory{
			PackageName: adv.ModuleName,
			Severity:    normalizeSeverity(adv.Severity),
			Title:       adv.Title,
			Reference:   adv.URL,
		})
	}

	sort.Slice(advisories, func(i, j int) bool {
		if advisories[i].PackageName != advisories[j].PackageName {
			return advisories[i].PackageName < advisories[j].PackageName
		}
		return advisories[i].Title < advisories[j].Title
	})

	return counts, advisories, nil
}

// firstVia returns the first advisory object in a "via" chain. Entries that
// are plain strings name another vulnerable package and carry no title.
func firstVia(via []json.RawMessage) (string, string) {
	for _, raw := range via {
		var v auditVia
		if err := json.Unmarshal(raw, &v); err == nil && v.Title != "" {
			return v.Title, v.URL
		}
	}
	for _, raw := range via {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil && name != "" {
			return "vulnerable through " + name, ""
		}
	}
	return "", ""
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case models.SeverityCritical:
		return models.SeverityCritical
	case models.SeverityHigh:
		return models.SeverityHigh
	case models.SeverityModerate, "medium":
		return models.SeverityModerate
	default:
		return models.SeverityLow
	}
}
