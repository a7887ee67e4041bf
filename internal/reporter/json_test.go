package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/supaspectre/internal/models"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func sampleReport() *models.Report {
	return &models.Report{
		ID:        "report_sample",
		CreatedAt: time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC),
		ProjectID: "proj1",
		Schema:    "public",
		BaseURL:   "https://proj1.supabase.co/rest/v1",
		Domain:    "app.example.com",
		ConnectionSummary: &models.ConnectionSummary{
			APIKeyRole: "anon",
			BearerRole: "anon",
		},
		Summary: models.ReportSummary{
			RiskLevel:       models.RiskCritical,
			TableCount:      2,
			AccessibleCount: 1,
			ProtectedCount:  1,
			KeyFindings:     []string{"1 table respond with data using the current credentials."},
			RiskBreakdown:   map[models.RiskLevel]int{models.RiskCritical: 1},
		},
		Findings: []models.TableFinding{
			{
				Name:             "users",
				Accessible:       true,
				Status:           intPtr(200),
				RowCount:         int64Ptr(12345),
				Columns:          []string{"id", "password"},
				SensitiveColumns: []string{"password"},
				Warnings:         []string{"Table is readable with the current credentials."},
				Notes:            []string{},
				PolicyState:      models.PolicyLikelyUnprotected,
				RiskLevel:        models.RiskCritical,
			},
			{
				Name:        "audit",
				Status:      intPtr(401),
				Notes:       []string{"Access denied."},
				PolicyState: models.PolicyProtected,
				RiskLevel:   models.RiskLow,
			},
		},
		AssetDetections: []models.AssetDetection{
			{
				ProjectID:     "proj1",
				AssetURL:      "https://app.example.com/main.js",
				KeyType:       "anon key",
				APIKeySnippet: "eyJhbGci...abcdef",
				APIKey:        "eyJhbGciOiJIUzI1NiJ9.full.secret",
			},
		},
		LeakDetections: []models.LeakDetection{
			{
				Host:         "app.example.com",
				SourceURL:    "https://app.example.com/",
				AssetURL:     "https://app.example.com/vendor.js",
				Pattern:      "AWS Access Key",
				MatchSnippet: "AKIAQ3EG...W7LPZ",
			},
		},
		Recommendations: []models.Recommendation{
			{ID: "static-assets", Title: "Remove keys from static assets", Detail: "Rotate them.", Severity: models.RiskHigh},
			{ID: "rls", Title: "Enable Row Level Security", Detail: "Add policies.", Severity: models.RiskCritical},
		},
	}
}

func TestJSONReporterGenerate(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, false)

	if err := r.Generate(sampleReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.HasSuffix(output, "\n") {
		t.Error("expected trailing newline")
	}

	var result models.Report
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &result); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if result.ID != "report_sample" || len(result.Findings) != 2 {
		t.Errorf("round trip lost data: id=%q findings=%d", result.ID, len(result.Findings))
	}
	if strings.Contains(output, "full.secret") {
		t.Error("full api key written to JSON output")
	}
}

func TestJSONReporterDoesNotMutateReport(t *testing.T) {
	rep := sampleReport()
	var buf bytes.Buffer
	if err := NewJSONReporter(&buf, false).Generate(rep); err != nil {
		t.Fatal(err)
	}
	if rep.AssetDetections[0].APIKey == "" {
		t.Error("Generate cleared the caller's api key")
	}
}

func TestJSONReporterGeneratePretty(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, true)

	if err := r.Generate(sampleReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("expected pretty-printed JSON with indentation")
	}
}

func TestJSONReporterGenerateSummaryOnly(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, false)

	rep := sampleReport()
	rep.Trend = &models.Trend{Direction: models.TrendImproving, PreviousRisk: models.RiskCritical, CurrentRisk: models.RiskHigh}
	if err := r.GenerateSummaryOnly(rep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	for _, key := range []string{"id", "createdAt", "summary", "trend", "recommendations"} {
		if _, ok := result[key]; !ok {
			t.Errorf("expected %s field", key)
		}
	}
	if _, ok := result["findings"]; ok {
		t.Error("summary output includes findings")
	}
}
