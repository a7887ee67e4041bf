package tui

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ppiankov/supaspectre/internal/models"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func testReport() *models.Report {
	return &models.Report{
		ID:        "report_1",
		ProjectID: "abcdefghijklmnopqrst",
		Schema:    "public",
		Summary: models.ReportSummary{
			RiskLevel:       models.RiskCritical,
			TableCount:      3,
			AccessibleCount: 2,
			ProtectedCount:  1,
			RiskBreakdown: map[models.RiskLevel]int{
				models.RiskCritical: 1,
				models.RiskMedium:   1,
				models.RiskLow:      1,
			},
		},
		Findings: []models.TableFinding{
			{Name: "notes", Accessible: true, Status: intPtr(200), RowCount: int64Ptr(3), PolicyState: models.PolicyLikelyUnprotected, RiskLevel: models.RiskMedium},
			{Name: "secrets", Status: intPtr(401), PolicyState: models.PolicyProtected, RiskLevel: models.RiskLow},
			{
				Name: "users", Accessible: true, Status: intPtr(200), RowCount: int64Ptr(12345),
				SensitiveColumns: []string{"email", "password_hash"},
				Warnings:         []string{"Sensitive columns readable"},
				PolicyState:      models.PolicyLikelyUnprotected, RiskLevel: models.RiskCritical,
			},
		},
		AssetDetections: []models.AssetDetection{
			{ProjectID: "abcdefghijklmnopqrst", AssetURL: "https://app.example.com/main.js", KeyType: "anon", APIKeySnippet: "eyJh...abcd"},
		},
		LeakDetections: []models.LeakDetection{
			{Host: "app.example.com", SourceURL: "https://app.example.com/", Pattern: "AWS Access Key", MatchSnippet: "AKIA...7LPZ"},
		},
	}
}

// --- Collection tests ---

func TestCollectFindings(t *testing.T) {
	findings := collectFindings(testReport())
	if len(findings) != 5 {
		t.Fatalf("expected 5 findings, got %d", len(findings))
	}
	kinds := map[string]int{}
	for _, f := range findings {
		kinds[f.Kind]++
	}
	if kinds[kindTable] != 3 || kinds[kindKey] != 1 || kinds[kindLeak] != 1 {
		t.Errorf("kinds = %v", kinds)
	}

	leak := findings[4]
	if leak.Risk != models.RiskCritical {
		t.Errorf("aws leak risk = %s, want critical", leak.Risk)
	}
	if leak.Location != "https://app.example.com/" {
		t.Errorf("leak location falls back to source URL, got %q", leak.Location)
	}
	if findings[3].Risk != models.RiskHigh {
		t.Errorf("anon key risk = %s, want high", findings[3].Risk)
	}
}

func TestCollectFindingsServiceKey(t *testing.T) {
	rep := &models.Report{AssetDetections: []models.AssetDetection{{KeyType: "service_role", AssetURL: "https://a.test/x.js"}}}
	findings := collectFindings(rep)
	if len(findings) != 1 || findings[0].Risk != models.RiskCritical {
		t.Errorf("service key finding = %+v", findings)
	}
}

// --- Filter tests ---

func TestApplyFilters(t *testing.T) {
	findings := collectFindings(testReport())
	tests := []struct {
		name   string
		filter filterState
		want   int
	}{
		{"no filter", filterState{}, 5},
		{"kind", filterState{Kind: kindTable}, 3},
		{"risk critical", filterState{Risk: models.RiskCritical}, 2},
		{"risk high and above", filterState{Risk: models.RiskHigh}, 3},
		{"risk medium and above", filterState{Risk: models.RiskMedium}, 4},
		{"search subject", filterState{SearchText: "secrets"}, 1},
		{"search details", filterState{SearchText: "PASSWORD_HASH"}, 1},
		{"combined", filterState{Kind: kindTable, SearchText: "unprotected"}, 2},
		{"no match", filterState{SearchText: "nonexistent"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := applyFilters(findings, tt.filter); len(got) != tt.want {
				t.Errorf("expected %d findings, got %d", tt.want, len(got))
			}
		})
	}
}

// --- Sort tests ---

func TestSortFindingsByRisk(t *testing.T) {
	findings := collectFindings(testReport())
	sortFindings(findings, sortByRisk)
	if findings[0].Risk != models.RiskCritical {
		t.Errorf("expected critical first, got %s", findings[0].Risk)
	}
	if findings[len(findings)-1].Risk != models.RiskLow {
		t.Errorf("expected low last, got %s", findings[len(findings)-1].Risk)
	}
}

func TestSortFindingsBySubject(t *testing.T) {
	findings := collectFindings(testReport())
	sortFindings(findings, sortBySubject)
	if findings[0].Subject != "AWS Access Key" {
		t.Errorf("expected AWS Access Key first, got %s", findings[0].Subject)
	}
}

func TestUniqueKinds(t *testing.T) {
	kinds := uniqueKinds(collectFindings(testReport()))
	expected := []string{kindKey, kindLeak, kindTable}
	if len(kinds) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, kinds)
	}
	for i := range kinds {
		if kinds[i] != expected[i] {
			t.Errorf("expected %s at index %d, got %s", expected[i], i, kinds[i])
		}
	}
}

// --- Row building tests ---

func TestBuildRows(t *testing.T) {
	findings := collectFindings(testReport())
	sortFindings(findings, sortByRisk)
	rows := buildRows(findings)
	if len(rows) != len(findings) {
		t.Errorf("expected %d rows, got %d", len(findings), len(rows))
	}
	if rows[0][0] != "CRITICAL" {
		t.Errorf("expected CRITICAL, got %s", rows[0][0])
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"this is a very long string", 10, "this is..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestRiskLabel(t *testing.T) {
	if got := riskLabel(models.RiskHigh); got != "HIGH" {
		t.Errorf("riskLabel(high) = %q", got)
	}
	if got := riskLabel(""); got != "-" {
		t.Errorf("riskLabel(\"\") = %q", got)
	}
}

// --- Header rendering tests ---

func TestRenderHeader(t *testing.T) {
	output := renderHeader(testReport(), nil, 100)
	for _, want := range []string{"SupaSpectre", "CRITICAL", "Tables: 3 (2 accessible)", "Keys: 1", "Leaks: 1", "C:1"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected header to contain %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "H:") {
		t.Error("zero counts should be omitted from the breakdown")
	}
}

func TestRenderHeaderLeakOnly(t *testing.T) {
	rep := &models.Report{Domain: "app.example.com", LeakOnly: true}
	output := renderHeader(rep, nil, 100)
	if !strings.Contains(output, "Target: app.example.com") {
		t.Error("expected domain as target")
	}
	if strings.Contains(output, "Tables:") {
		t.Error("leak-only header should not show table counts")
	}
}

func TestRenderHeaderWithTrend(t *testing.T) {
	rep := testReport()
	rep.Trend = &models.Trend{Direction: models.TrendDegrading, PreviousRisk: models.RiskMedium}
	output := renderHeader(rep, []int{0, 1, 2}, 100)
	if !strings.Contains(output, "↑ from MEDIUM") {
		t.Error("expected degrading indicator")
	}
	if !strings.Contains(output, "[0→2]") {
		t.Error("expected exposure sparkline range")
	}
}

// --- Detail rendering tests ---

func TestRenderDetailNil(t *testing.T) {
	if output := renderDetail(nil, 80); !strings.Contains(output, "No finding selected") {
		t.Error("expected 'No finding selected' for nil finding")
	}
}

func TestRenderDetailShowsFields(t *testing.T) {
	item := &finding{Risk: models.RiskHigh, Kind: kindLeak, Subject: "Slack Token", Location: "https://a.test/x.js", Details: []string{"Match: xoxb...1234"}}
	output := renderDetail(item, 80)
	for _, want := range []string{"HIGH", "Slack Token", "Location: https://a.test/x.js", "xoxb...1234"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in detail", want)
		}
	}
}

func TestRenderDetailCapsLines(t *testing.T) {
	item := &finding{Kind: kindTable, Subject: "users", Details: []string{"a", "b", "c", "d", "e"}}
	output := renderDetail(item, 80)
	if !strings.Contains(output, "(+3 more)") {
		t.Errorf("expected overflow marker:\n%s", output)
	}
}

// --- Sparkline tests ---

func TestRenderSparkline(t *testing.T) {
	if got := renderSparkline(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := renderSparkline([]int{5, 5, 5}); !strings.Contains(got, "[5→5]") {
		t.Errorf("expected [5→5], got %q", got)
	}
	got := renderSparkline([]int{1, 2, 3, 4})
	if runes := []rune(got); runes[0] != '▁' || runes[3] != '█' {
		t.Errorf("unexpected bars %q", got)
	}
}

func TestSortFieldName(t *testing.T) {
	tests := []struct {
		field sortField
		want  string
	}{
		{sortByRisk, "risk"},
		{sortByKind, "kind"},
		{sortBySubject, "subject"},
		{sortByLocation, "location"},
		{sortField(99), "unknown"},
	}
	for _, tt := range tests {
		if got := sortFieldName(tt.field); got != tt.want {
			t.Errorf("sortFieldName(%d) = %q, want %q", tt.field, got, tt.want)
		}
	}
}

// --- Model state tests ---

func TestModelInit(t *testing.T) {
	m := New(testReport(), nil)
	if cmd := m.Init(); cmd != nil {
		t.Error("Init should return nil cmd")
	}
	if m.filteredFindings[0].Risk != models.RiskCritical {
		t.Errorf("expected critical first after initial sort, got %s", m.filteredFindings[0].Risk)
	}
}

func TestModelWindowResize(t *testing.T) {
	m := New(testReport(), nil)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model := updated.(Model)
	if model.width != 120 || model.height != 40 {
		t.Errorf("expected 120x40, got %dx%d", model.width, model.height)
	}
}

func TestModelQuit(t *testing.T) {
	m := New(testReport(), nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Error("expected quit command, got nil")
	}
}

func TestModelCycleSort(t *testing.T) {
	m := New(testReport(), nil)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	model := updated.(Model)
	if model.sortBy != sortByKind {
		t.Errorf("expected sort by kind after one cycle, got %d", model.sortBy)
	}
	if !strings.Contains(model.statusMsg, "kind") {
		t.Errorf("expected status to mention sort field, got %q", model.statusMsg)
	}
}

func TestNextRiskFloor(t *testing.T) {
	var got []models.RiskLevel
	floor := models.RiskLevel("")
	for range 4 {
		floor = nextRiskFloor(floor)
		got = append(got, floor)
	}
	want := []models.RiskLevel{models.RiskMedium, models.RiskHigh, models.RiskCritical, ""}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestModelRiskFloor(t *testing.T) {
	m := New(testReport(), nil)
	press := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}}

	updated, _ := m.Update(press)
	updated, _ = updated.Update(press)
	model := updated.(Model)
	if model.filters.Risk != models.RiskHigh {
		t.Fatalf("expected high floor after two presses, got %q", model.filters.Risk)
	}
	if len(model.filteredFindings) != 3 {
		t.Errorf("expected 3 findings at high and above, got %d", len(model.filteredFindings))
	}
	if model.statusMsg != "Risk: high+" {
		t.Errorf("status = %q", model.statusMsg)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = updated.(Model)
	if model.filters.Risk != "" || len(model.filteredFindings) != 5 {
		t.Errorf("esc should clear the risk floor, got %q with %d findings", model.filters.Risk, len(model.filteredFindings))
	}
}

func TestModelSearchEnter(t *testing.T) {
	m := New(testReport(), nil)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	model := updated.(Model)
	if model.mode != modeSearch {
		t.Fatalf("expected modeSearch, got %d", model.mode)
	}
	model.searchInput.SetValue("notes")

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)
	if model.mode != modeNormal {
		t.Errorf("expected modeNormal after enter, got %d", model.mode)
	}
	if len(model.filteredFindings) != 1 || model.filteredFindings[0].Subject != "notes" {
		t.Errorf("filtered = %+v", model.filteredFindings)
	}
}

func TestModelFilterKind(t *testing.T) {
	m := New(testReport(), nil)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}})
	model := updated.(Model)
	if model.mode != modeFilterKind {
		t.Fatalf("expected modeFilterKind, got %d", model.mode)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model = updated.(Model)
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)
	if model.filters.Kind != kindKey {
		t.Errorf("expected kind filter %q, got %q", kindKey, model.filters.Kind)
	}
	if len(model.filteredFindings) != 1 {
		t.Errorf("expected 1 key finding, got %d", len(model.filteredFindings))
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEscape})
	model = updated.(Model)
	if model.filters.Kind != "" || len(model.filteredFindings) != 5 {
		t.Errorf("esc should clear filters, got %+v (%d)", model.filters, len(model.filteredFindings))
	}
}

func TestModelFilterKindCursorBounds(t *testing.T) {
	m := New(testReport(), nil)
	m.mode = modeFilterKind

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	model := updated.(Model)
	if model.kindCursor != 0 {
		t.Errorf("expected cursor stays at 0, got %d", model.kindCursor)
	}
	for i := 0; i < 10; i++ {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
		model = updated.(Model)
	}
	if model.kindCursor != len(model.kindChoices) {
		t.Errorf("expected cursor clamped to %d, got %d", len(model.kindChoices), model.kindCursor)
	}
}

func TestModelCopy(t *testing.T) {
	m := New(testReport(), nil)
	var buf bytes.Buffer
	m.out = &buf

	m.copySelected()
	if m.statusMsg != "Copied!" {
		t.Fatalf("status = %q", m.statusMsg)
	}
	if !strings.HasPrefix(m.clipboard, "[CRITICAL]") {
		t.Errorf("clipboard = %q", m.clipboard)
	}
	if !strings.HasPrefix(buf.String(), "\033]52;c;") {
		t.Errorf("expected OSC 52 sequence, got %q", buf.String())
	}

	m.filteredFindings = nil
	m.table.SetRows(nil)
	m.copySelected()
	if m.statusMsg != "Nothing to copy" {
		t.Errorf("expected 'Nothing to copy', got %q", m.statusMsg)
	}
}

func TestModelView(t *testing.T) {
	m := New(testReport(), []int{1, 2})
	m.width = 100
	output := m.View()
	for _, want := range []string{"SupaSpectre", "q:quit", "5/5 findings", "Exposure:"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in view", want)
		}
	}

	m.mode = modeFilterKind
	if output := m.View(); !strings.Contains(output, "Filter by kind:") {
		t.Error("expected kind filter list in view")
	}
}

func TestModelDoesNotMutateReport(t *testing.T) {
	rep := testReport()
	first := rep.Findings[0].Name
	m := New(rep, nil)
	m.filters = filterState{Kind: kindLeak}
	m.rebuildTable()

	if len(m.allFindings) != 5 {
		t.Errorf("allFindings mutated: got %d", len(m.allFindings))
	}
	if rep.Findings[0].Name != first {
		t.Error("report findings reordered")
	}
}
