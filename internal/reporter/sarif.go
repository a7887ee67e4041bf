package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ppiankov/supaspectre/internal/assetscan"
	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/report"
)

// SARIF rule ids
const (
	RuleTableReadable  = "supaspectre/table-readable"
	RuleTableUnknown   = "supaspectre/table-unverified"
	RuleKeyExposed     = "supaspectre/supabase-key-exposed"
	RuleServiceKey     = "supaspectre/service-key-exposed"
	RuleCredentialLeak = "supaspectre/credential-leak"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"

var ruleDescriptions = map[string]string{
	RuleTableReadable:  "Table readable with the exposed credentials",
	RuleTableUnknown:   "Table access could not be verified",
	RuleKeyExposed:     "Supabase API key embedded in a static asset",
	RuleServiceKey:     "Privileged Supabase key embedded in a static asset",
	RuleCredentialLeak: "Third-party credential exposed to the browser",
}

// SARIF 2.1.0 output for code scanning integrations.
// Minimal structures, only what's needed for valid SARIF.

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

// SARIFReporter writes a report as a SARIF 2.1.0 log
type SARIFReporter struct {
	writer  io.Writer
	version string
}

// NewSARIFReporter creates a SARIF reporter stamped with the tool version
func NewSARIFReporter(writer io.Writer, version string) *SARIFReporter {
	return &SARIFReporter{writer: writer, version: version}
}

// Generate writes one result per readable or unverified table, exposed
// Supabase key and credential leak
func (r *SARIFReporter) Generate(rep *models.Report) error {
	rules := map[string]sarifRule{}
	results := []sarifResult{}
	add := func(ruleID string, risk models.RiskLevel, text, uri string) {
		if _, ok := rules[ruleID]; !ok {
			rules[ruleID] = sarifRule{
				ID:               ruleID,
				ShortDescription: sarifMessage{Text: ruleDescriptions[ruleID]},
				DefaultConfig:    sarifDefaultConfig{Level: sarifLevel(risk)},
			}
		}
		results = append(results, sarifResult{
			RuleID:  ruleID,
			Level:   sarifLevel(risk),
			Message: sarifMessage{Text: text},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysical{ArtifactLocation: sarifArtifact{URI: uri}},
			}},
		})
	}

	for _, f := range rep.Findings {
		uri := strings.TrimRight(rep.BaseURL, "/") + "/" + f.Name
		switch f.PolicyState {
		case models.PolicyLikelyUnprotected:
			add(RuleTableReadable, f.RiskLevel, tableEvidence(f), uri)
		case models.PolicyUnknown:
			add(RuleTableUnknown, models.RiskMedium, tableEvidence(f), uri)
		}
	}
	for _, a := range rep.AssetDetections {
		id, risk := RuleKeyExposed, models.RiskHigh
		if assetscan.IsServiceKey(a) {
			id, risk = RuleServiceKey, models.RiskCritical
		}
		text := fmt.Sprintf("%s for project %s (%s)", orUnknown(a.KeyType), a.ProjectID, a.APIKeySnippet)
		add(id, risk, text, a.AssetURL)
	}
	for _, l := range rep.LeakDetections {
		uri := l.AssetURL
		if uri == "" {
			uri = l.SourceURL
		}
		risk := report.DeriveLeakRisk([]models.LeakDetection{l})
		add(RuleCredentialLeak, risk, l.Pattern+": "+l.MatchSnippet, uri)
	}

	ruleList := make([]sarifRule, 0, len(rules))
	for _, rl := range rules {
		ruleList = append(ruleList, rl)
	}
	sort.Slice(ruleList, func(i, j int) bool { return ruleList[i].ID < ruleList[j].ID })

	log := sarifLog{
		Schema:  sarifSchema,
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:    "supaspectre",
					Version: r.version,
					Rules:   ruleList,
				},
			},
			Results: results,
		}},
	}

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

func sarifLevel(risk models.RiskLevel) string {
	switch risk {
	case models.RiskCritical, models.RiskHigh:
		return "error"
	case models.RiskMedium:
		return "warning"
	default:
		return "note"
	}
}

func tableEvidence(f models.TableFinding) string {
	parts := []string{f.Name + ": " + string(f.PolicyState)}
	if len(f.SensitiveColumns) > 0 {
		parts = append(parts, "sensitive columns "+strings.Join(f.SensitiveColumns, ", "))
	}
	if f.Error != "" {
		parts = append(parts, f.Error)
	}
	return strings.Join(parts, ". ")
}
