package report

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/supaspectre/internal/analyzer"
	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/postgrest"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeToken(t *testing.T, payload map[string]any) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return header + "." + enc.EncodeToString(body) + ".c2lnbmF0dXJlLXBsYWNlaG9sZGVy"
}

func testBuilder() *Builder {
	return NewBuilder(
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "report_test" }),
	)
}

func recommendationIDs(recs []models.Recommendation) []string {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

// analyze runs the real analyzer against a fake REST surface
func analyze(t *testing.T, conn *models.Connection, handler http.HandlerFunc, tables ...string) []models.TableFinding {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	client := postgrest.New(conn, postgrest.WithBaseURL(ts.URL))
	return analyzer.New(client, conn.SchemaOrDefault()).AnalyzeTables(context.Background(), tables)
}

func TestBuildAnonAccessibleTable(t *testing.T) {
	conn := &models.Connection{
		ProjectID: "proj1",
		APIKey:    makeToken(t, map[string]any{"role": "anon", "ref": "proj1"}),
	}
	findings := analyze(t, conn, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "0-0/50")
		_, _ = w.Write([]byte(`[{"id":1,"password":"hash"}]`))
	}, "users")

	r := testBuilder().Build(Input{Connection: conn, Findings: findings})

	f := r.Findings[0]
	if !f.Accessible || f.RiskLevel != models.RiskCritical {
		t.Fatalf("users finding: accessible=%v risk=%s", f.Accessible, f.RiskLevel)
	}
	if !r.Summary.RiskLevel.AtLeast(models.RiskHigh) {
		t.Errorf("summary risk %s below high", r.Summary.RiskLevel)
	}
	if r.Summary.RiskLevel != models.RiskCritical {
		t.Errorf("summary risk = %s, want critical for anon access", r.Summary.RiskLevel)
	}
	if diff := cmp.Diff([]string{"1 table respond with data using the current credentials."}, r.Summary.KeyFindings); diff != "" {
		t.Errorf("key findings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"rls", "sensitive-columns", "filters"}, recommendationIDs(r.Recommendations)); diff != "" {
		t.Errorf("recommendations mismatch (-want +got):\n%s", diff)
	}
	if r.Recommendations[0].Severity != models.RiskCritical {
		t.Errorf("rls severity = %s", r.Recommendations[0].Severity)
	}
	if r.ConnectionSummary == nil || r.ConnectionSummary.APIKeyRole != "anon" {
		t.Errorf("unexpected connection summary %+v", r.ConnectionSummary)
	}
	if r.ConnectionSummary.UsesDistinctBearer {
		t.Error("bearer defaults to api key")
	}
	if r.BaseURL != "https://proj1.supabase.co/rest/v1" || r.Schema != "public" {
		t.Errorf("base=%s schema=%s", r.BaseURL, r.Schema)
	}
	if r.Domain != "proj1.supabase.co" {
		t.Errorf("Domain = %q", r.Domain)
	}
	if r.Summary.RiskBreakdown[models.RiskCritical] != 1 || r.Summary.TableRisk != models.RiskCritical {
		t.Errorf("breakdown=%v tableRisk=%s", r.Summary.RiskBreakdown, r.Summary.TableRisk)
	}
	if r.ID != "report_test" || !r.CreatedAt.Equal(fixedNow) {
		t.Errorf("id=%s createdAt=%s", r.ID, r.CreatedAt)
	}
}

func TestBuildProtectedTable(t *testing.T) {
	conn := &models.Connection{
		ProjectID: "proj1",
		APIKey:    makeToken(t, map[string]any{"role": "anon"}),
	}
	findings := analyze(t, conn, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"permission denied for table users"}`))
	}, "users")

	r := testBuilder().Build(Input{Connection: conn, Findings: findings})

	f := r.Findings[0]
	if f.Accessible || f.PolicyState != models.PolicyProtected {
		t.Fatalf("users finding: accessible=%v state=%s", f.Accessible, f.PolicyState)
	}
	if r.Summary.ProtectedCount != 1 || r.Summary.AccessibleCount != 0 {
		t.Errorf("protected=%d accessible=%d", r.Summary.ProtectedCount, r.Summary.AccessibleCount)
	}
	if diff := cmp.Diff([]string{"All checked tables returned 401/403 responses (1 protected)."}, r.Summary.KeyFindings); diff != "" {
		t.Errorf("key findings mismatch (-want +got):\n%s", diff)
	}
	if r.Summary.RiskLevel != models.RiskLow {
		t.Errorf("risk = %s, want low", r.Summary.RiskLevel)
	}
	if diff := cmp.Diff([]string{"regression-tests"}, recommendationIDs(r.Recommendations)); diff != "" {
		t.Errorf("recommendations mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildUnknownTables(t *testing.T) {
	conn := &models.Connection{ProjectID: "proj1", APIKey: "opaque"}
	findings := []models.TableFinding{
		{Name: "a", PolicyState: models.PolicyUnknown},
		{Name: "b", PolicyState: models.PolicyUnknown},
		{Name: "c", PolicyState: models.PolicyProtected},
	}
	r := testBuilder().Build(Input{Connection: conn, Findings: findings})
	if r.Summary.RiskLevel != models.RiskMedium {
		t.Errorf("risk = %s, want medium", r.Summary.RiskLevel)
	}
	want := []string{"2 tables returned non-auth errors that need manual review."}
	if diff := cmp.Diff(want, r.Summary.KeyFindings); diff != "" {
		t.Errorf("key findings mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildServiceRoleAndAssets(t *testing.T) {
	conn := &models.Connection{
		ProjectID: "proj1",
		APIKey:    makeToken(t, map[string]any{"role": "service_role"}),
		Bearer:    makeToken(t, map[string]any{"role": "authenticated", "sub": "user-1"}),
	}
	assets := []models.AssetDetection{
		{ProjectID: "proj1", AssetURL: "https://app.example.com/main.js", KeyType: "service role key", DetectedAt: fixedNow},
		{ProjectID: "proj1", AssetURL: "https://app.example.com/vendor.js", KeyType: "anon key", DetectedAt: fixedNow},
	}
	r := testBuilder().Build(Input{Connection: conn, Assets: assets})

	if r.Summary.RiskLevel != models.RiskCritical || r.Summary.AssetRisk != models.RiskCritical {
		t.Errorf("risk=%s assetRisk=%s", r.Summary.RiskLevel, r.Summary.AssetRisk)
	}
	if diff := cmp.Diff([]string{"2 exposed Supabase credentials discovered in static assets."}, r.Summary.KeyFindings); diff != "" {
		t.Errorf("key findings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"service-role", "static-assets", "regression-tests"}, recommendationIDs(r.Recommendations)); diff != "" {
		t.Errorf("recommendations mismatch (-want +got):\n%s", diff)
	}
	if !r.ConnectionSummary.UsesDistinctBearer || r.ConnectionSummary.BearerRole != "authenticated" {
		t.Errorf("unexpected connection summary %+v", r.ConnectionSummary)
	}
	if r.Domain != "app.example.com" {
		t.Errorf("Domain = %q", r.Domain)
	}
}

func TestBuildLeakOnlyFromSecretLeak(t *testing.T) {
	leaks := []models.LeakDetection{{
		Host:         "app.example.com",
		SourceURL:    "https://app.example.com/bundle.js",
		Pattern:      "Generic Secret",
		MatchSnippet: "abcd1234...ef5678",
		DetectedAt:   fixedNow,
	}}
	r := testBuilder().Build(Input{Leaks: leaks})

	if !r.LeakOnly {
		t.Fatal("expected leak-only report")
	}
	if !r.Summary.RiskLevel.AtLeast(models.RiskHigh) {
		t.Errorf("risk = %s, want at least high", r.Summary.RiskLevel)
	}
	if r.ConnectionSummary != nil {
		t.Error("leak-only report has no connection summary")
	}
	if r.ProjectID != "app.example.com" || r.Schema != "n/a" || r.BaseURL != "https://app.example.com" {
		t.Errorf("project=%q schema=%q base=%q", r.ProjectID, r.Schema, r.BaseURL)
	}
	if diff := cmp.Diff([]string{"1 potential API credential leak detected in static assets."}, r.Summary.KeyFindings); diff != "" {
		t.Errorf("key findings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"api-leaks", "regression-tests"}, recommendationIDs(r.Recommendations)); diff != "" {
		t.Errorf("recommendations mismatch (-want +got):\n%s", diff)
	}
	wantDetail := "1 potential API credential leak was detected. Review detections for app.example.com, revoke the exposed secrets, and remove them from client-side bundles."
	if r.Recommendations[0].Detail != wantDetail {
		t.Errorf("detail = %q", r.Recommendations[0].Detail)
	}
}

func TestBuildLeakOnlyEmpty(t *testing.T) {
	r := testBuilder().Build(Input{Connection: &models.Connection{Schema: "public"}})
	if r.ProjectID != "Unknown project" || r.BaseURL != "" || r.Schema != "public" {
		t.Errorf("project=%q base=%q schema=%q", r.ProjectID, r.BaseURL, r.Schema)
	}
	if diff := cmp.Diff([]string{leakOnlyFinding}, r.Summary.KeyFindings); diff != "" {
		t.Errorf("key findings mismatch (-want +got):\n%s", diff)
	}
	if r.Summary.RiskLevel != models.RiskLow {
		t.Errorf("risk = %s", r.Summary.RiskLevel)
	}
}

func TestBuildWithPreviousReport(t *testing.T) {
	conn := &models.Connection{ProjectID: "proj1", APIKey: "opaque"}
	previous := &models.Report{
		ID:        "report_old",
		CreatedAt: fixedNow.Add(-time.Hour),
		Summary:   models.ReportSummary{RiskLevel: models.RiskCritical, AccessibleCount: 1},
		Findings:  []models.TableFinding{{Name: "users", Accessible: true}},
	}
	r := testBuilder().Build(Input{
		Connection: conn,
		Findings:   []models.TableFinding{{Name: "users", PolicyState: models.PolicyProtected}},
		Previous:   previous,
	})
	if r.Trend == nil {
		t.Fatal("expected trend")
	}
	if r.Trend.Direction != models.TrendImproving || r.Trend.ComparedWith != "report_old" {
		t.Errorf("unexpected trend %+v", r.Trend)
	}
}
