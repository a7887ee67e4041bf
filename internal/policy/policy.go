package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/supaspectre/internal/assetscan"
	"github.com/ppiankov/supaspectre/internal/models"
)

// FileNames are the policy file names FindPolicyFile looks for
var FileNames = []string{".supaspectre-policy.yaml", ".supaspectre-policy.yml"}

// Policy defines enforcement rules for security reports.
type Policy struct {
	Version string `yaml:"version"`
	Rules   Rules  `yaml:"rules"`
}

// Rules contains all configurable policy rules.
type Rules struct {
	MaxRisk             string   `yaml:"max_risk,omitempty"`
	MaxAccessibleTables *int     `yaml:"max_accessible_tables,omitempty"`
	MaxLeaks            *int     `yaml:"max_leaks,omitempty"`
	ForbidServiceRole   bool     `yaml:"forbid_service_role,omitempty"`
	ForbidTables        []string `yaml:"forbid_tables,omitempty"`
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

// LoadFromFile reads a policy file. A missing file returns nil, nil.
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
		if _, ok := models.ParseRiskLevel(p.Rules.MaxRisk); !ok {
			return nil, fmt.Errorf("parse policy: unknown max_risk %q", p.Rules.MaxRisk)
		}
	}

	return &p, nil
}

// FindPolicyFile searches for a policy file in dir and its parents up to
// the filesystem root.
func FindPolicyFile(dir string) string {
	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Evaluate checks a report against the policy rules.
func (p *Policy) Evaluate(report *models.Report) *Result {
	if p == nil || report == nil {
		return &Result{Pass: true}
	}

	var violations []Violation

	if p.Rules.MaxRisk != "" {
		limit, _ := models.ParseRiskLevel(p.Rules.MaxRisk)
		if report.Summary.RiskLevel.Rank() > limit.Rank() {
			violations = append(violations, Violation{
				Rule:    "max_risk",
				Message: fmt.Sprintf("risk %s exceeds limit %s", report.Summary.RiskLevel, limit),
			})
		}
	}

	if p.Rules.MaxAccessibleTables != nil {
		if report.Summary.AccessibleCount > *p.Rules.MaxAccessibleTables {
			violations = append(violations, Violation{
				Rule:    "max_accessible_tables",
				Message: fmt.Sprintf("accessible tables %d exceeds limit %d", report.Summary.AccessibleCount, *p.Rules.MaxAccessibleTables),
			})
		}
	}

	if p.Rules.MaxLeaks != nil {
		if n := len(report.LeakDetections); n > *p.Rules.MaxLeaks {
			violations = append(violations, Violation{
				Rule:    "max_leaks",
				Message: fmt.Sprintf("credential leaks %d exceeds limit %d", n, *p.Rules.MaxLeaks),
			})
		}
	}

	if p.Rules.ForbidServiceRole {
		if cs := report.ConnectionSummary; cs != nil && (cs.APIKeyRole == models.RoleServiceRole || cs.BearerRole == models.RoleServiceRole) {
			violations = append(violations, Violation{
				Rule:    "forbid_service_role",
				Message: "report was generated with a service_role credential",
			})
		}
		for _, d := range report.AssetDetections {
			if assetscan.IsServiceKey(d) {
				violations = append(violations, Violation{
					Rule:    "forbid_service_role",
					Message: fmt.Sprintf("service key exposed in %s", d.AssetURL),
				})
			}
		}
	}

	for _, f := range report.Findings {
		if f.Accessible && slices.Contains(p.Rules.ForbidTables, f.Name) {
			violations = append(violations, Violation{
				Rule:    "forbid_tables",
				Message: fmt.Sprintf("table %q is readable", f.Name),
			})
		}
	}

	return &Result{
		Pass:       len(violations) == 0,
		Violations: violations,
	}
}
