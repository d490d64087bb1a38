package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/codepatrol/internal/models"
)

// Policy defines enforcement rules for patrol results.
type Policy struct {
	Version string `yaml:"version"`
	Rules   Rules  `yaml:"rules"`
}

// Rules contains all configurable policy rules. Count rules apply to the
// findings still present when the run ends.
type Rules struct {
	MaxFindings           *int     `yaml:"max_findings,omitempty"`
	MaxRisk               string   `yaml:"max_risk,omitempty"`
	MaxSecrets            *int     `yaml:"max_secrets,omitempty"`
	MaxStaticFindings     *int     `yaml:"max_static_findings,omitempty"`
	MaxCriticalAdvisories *int     `yaml:"max_critical_advisories,omitempty"`
	ForbidKinds           []string `yaml:"forbid_kinds,omitempty"`
	FailOnRollback        bool     `yaml:"fail_on_rollback,omitempty"`
}

// Violation is a single policy failure.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Result holds the outcome of a policy check.
type Result struct {
	Pass       bool        `json:"pass"`
	Violations []Violation `json:"violations"`
}

// LoadFromFile reads a policy file. A missing file yields a nil policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if p.Rules.MaxRisk != "" {
		if _, err := models.ParseRiskLevel(p.Rules.MaxRisk); err != nil {
			return nil, fmt.Errorf("parse policy: max_risk: %w", err)
		}
	}

	return &p, nil
}

// FindPolicyFile searches for a policy file in dir and its parents up to
// the filesystem root.
func FindPolicyFile(dir string) string {
	names := []string{".codepatrol-policy.yaml", ".codepatrol-policy.yml"}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Remaining returns the findings left in the tree after the run: the
// after-scan when one was kept, otherwise the before-scan.
func Remaining(report *models.PatrolReport) models.ScanSnapshot {
	if report.AfterFindings != nil {
		return *report.AfterFindings
	}
	return report.BeforeFindings
}

// Evaluate checks a patrol report against the policy rules.
func (p *Policy) Evaluate(report *models.PatrolReport) *Result {
	if p == nil {
		return &Result{Pass: true}
	}

	var violations []Violation
	left := Remaining(report)

	// max_findings
	if p.Rules.MaxFindings != nil {
		if n := left.TotalFindings(); n > *p.Rules.MaxFindings {
			violations = append(violations, Violation{
				Rule:    "max_findings",
				Message: fmt.Sprintf("remaining findings %d exceeds limit %d", n, *p.Rules.MaxFindings),
			})
		}
	}

	// max_risk, judged on the before-scan like the report's own level
	if p.Rules.MaxRisk != "" {
		limit := models.RiskLevel(p.Rules.MaxRisk)
		if report.RiskLevel.Rank() > limit.Rank() {
			violations = append(violations, Violation{
				Rule:    "max_risk",
				Message: fmt.Sprintf("risk level %s exceeds limit %s", report.RiskLevel, limit),
			})
		}
	}

	// max_secrets
	if p.Rules.MaxSecrets != nil {
		if n := len(left.Secrets); n > *p.Rules.MaxSecrets {
			violations = append(violations, Violation{
				Rule:    "max_secrets",
				Message: fmt.Sprintf("remaining secrets %d exceeds limit %d", n, *p.Rules.MaxSecrets),
			})
		}
	}

	// max_static_findings
	if p.Rules.MaxStaticFindings != nil {
		if n := len(left.StaticFindings); n > *p.Rules.MaxStaticFindings {
			violations = append(violations, Violation{
				Rule:    "max_static_findings",
				Message: fmt.Sprintf("remaining static-check findings %d exceeds limit %d", n, *p.Rules.MaxStaticFindings),
			})
		}
	}

	// max_critical_advisories
	if p.Rules.MaxCriticalAdvisories != nil {
		if n := left.AdvisoriesWithSeverity(models.SeverityCritical); n > *p.Rules.MaxCriticalAdvisories {
			violations = append(violations, Violation{
				Rule:    "max_critical_advisories",
				Message: fmt.Sprintf("critical advisories %d exceeds limit %d", n, *p.Rules.MaxCriticalAdvisories),
			})
		}
	}

	// forbid_kinds
	if len(p.Rules.ForbidKinds) > 0 {
		counts := left.CountsByKind()
		for _, kind := range p.Rules.ForbidKinds {
			if n := counts[models.FindingKind(kind)]; n > 0 {
				violations = append(violations, Violation{
					Rule:    "forbid_kinds",
					Message: fmt.Sprintf("forbidden kind %q has %d findings", kind, n),
				})
			}
		}
	}

	// fail_on_rollback
	if p.Rules.FailOnRollback && report.RolledBack {
		violations = append(violations, Violation{
			Rule:    "fail_on_rollback",
			Message: "remediation was rolled back after failed verification",
		})
	}

	return &Result{
		Pass:       len(violations) == 0,
		Violations: violations,
	}
}
