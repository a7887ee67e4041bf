package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/report"
)

const rule = "--------------------------------------------------\n"

// TextReporter generates human-readable text reports
type TextReporter struct {
	writer  io.Writer
	printer *message.Printer
}

// NewTextReporter creates a new text reporter
func NewTextReporter(writer io.Writer) *TextReporter {
	return &TextReporter{
		writer:  writer,
		printer: message.NewPrinter(language.English),
	}
}

// Generate writes the report as plain text
func (r *TextReporter) Generate(rep *models.Report) error {
	r.printHeader(rep)
	r.printSummary(rep)

	if rep.ConnectionSummary != nil {
		r.printCredentials(rep.ConnectionSummary)
	}
	if len(rep.Findings) > 0 {
		r.printFindings(rep.Findings)
	}
	if len(rep.AssetDetections) > 0 {
		r.printAssets(rep.AssetDetections)
	}
	if len(rep.LeakDetections) > 0 {
		r.printLeaks(rep.LeakDetections)
	}
	if len(rep.Recommendations) > 0 {
		r.printRecommendations(rep.Recommendations)
	}
	if rep.Trend != nil {
		r.printTrendInfo(rep.Trend)
	}
	return nil
}

func (r *TextReporter) printHeader(rep *models.Report) {
	r.printf("╔════════════════════════════════════════════╗\n")
	r.printf("║        SupaSpectre Security Report         ║\n")
	r.printf("╚════════════════════════════════════════════╝\n\n")

	r.printf("Report: %s\n", rep.ID)
	r.printf("Created: %s\n", formatTimestamp(rep.CreatedAt))
	if rep.LeakOnly {
		r.printf("Target: %s (leak detections only)\n", rep.ProjectID)
	} else {
		r.printf("Project: %s (schema %s)\n", rep.ProjectID, rep.Schema)
	}
	if rep.BaseURL != "" {
		r.printf("Base URL: %s\n", rep.BaseURL)
	}
	if rep.Domain != "" {
		r.printf("Domain: %s\n", rep.Domain)
	}
	r.printf("\n")
}

func (r *TextReporter) printSummary(rep *models.Report) {
	s := rep.Summary
	r.printf("Summary:\n")
	r.printf(rule)
	r.printf("  Risk Level: %s", strings.ToUpper(string(s.RiskLevel)))
	if rep.Trend != nil {
		r.printf(" %s from %s", TrendIndicator(rep.Trend.Direction), strings.ToUpper(string(rep.Trend.PreviousRisk)))
	}
	r.printf("\n")
	if !rep.LeakOnly {
		r.printf("  Tables: %d (%d accessible, %d protected, %d unknown)\n",
			s.TableCount, s.AccessibleCount, s.ProtectedCount, s.UnknownCount)
	}
	if len(s.RiskBreakdown) > 0 {
		parts := make([]string, 0, 4)
		for _, level := range severityOrder {
			parts = append(parts, fmt.Sprintf("%s %d", level, s.RiskBreakdown[level]))
		}
		r.printf("  Risk Breakdown: %s\n", strings.Join(parts, ", "))
	}
	if len(s.KeyFindings) > 0 {
		r.printf("\nKey Findings:\n")
		for _, line := range s.KeyFindings {
			r.printf("  - %s\n", line)
		}
	}
	r.printf("\n")
}

func (r *TextReporter) printCredentials(cs *models.ConnectionSummary) {
	r.printf("Credentials:\n")
	r.printf(rule)
	r.printf("  API key role: %s\n", orUnknown(cs.APIKeyRole))
	if cs.UsesDistinctBearer {
		r.printf("  Bearer role: %s\n", orUnknown(cs.BearerRole))
	} else {
		r.printf("  Bearer: same as API key\n")
	}
	if c := cs.APIKeyClaims; c != nil && c.Exp != nil {
		r.printf("  API key expires: %s\n", formatTimestamp(time.Unix(*c.Exp, 0).UTC()))
	}
	r.printf("\n")
}

func (r *TextReporter) printFindings(findings []models.TableFinding) {
	r.printf("Tables:\n")
	r.printf(rule)
	for _, f := range findings {
		r.printf("  [%s] %s  %s", strings.ToUpper(string(f.RiskLevel)), f.Name, f.PolicyState)
		if f.Status != nil {
			r.printf("  status %d", *f.Status)
		}
		if f.RowCount != nil {
			r.printf("  %s", r.printer.Sprintf("rows: %d", *f.RowCount))
		}
		r.printf("\n")
		if len(f.SensitiveColumns) > 0 {
			r.printf("     Sensitive columns: %s\n", strings.Join(f.SensitiveColumns, ", "))
		}
		for _, w := range f.Warnings {
			r.printf("     ! %s\n", w)
		}
		for _, n := range f.Notes {
			r.printf("     - %s\n", n)
		}
	}
	r.printf("\n")
}

func (r *TextReporter) printAssets(assets []models.AssetDetection) {
	r.printf("Exposed Supabase Keys:\n")
	r.printf(rule)
	for _, a := range assets {
		kind := a.KeyType
		if kind == "" {
			kind = "key"
		}
		r.printf("  - %s %s in %s\n", kind, a.APIKeySnippet, a.AssetURL)
		if a.KeyLabel != "" {
			r.printf("     Label: %s\n", a.KeyLabel)
		}
	}
	r.printf("\n")
}

func (r *TextReporter) printLeaks(leaks []models.LeakDetection) {
	r.printf("Credential Leaks:\n")
	r.printf(rule)
	for _, l := range leaks {
		where := l.SourceURL
		if l.AssetURL != "" && l.AssetURL != l.SourceURL {
			where = l.AssetURL
		}
		r.printf("  - [%s] %s at %s\n", l.Pattern, l.MatchSnippet, where)
		if l.EncodedSnippet != "" {
			r.printf("     Decoded from base64 %s\n", l.EncodedSnippet)
		}
	}
	r.printf("\n")
}

func (r *TextReporter) printRecommendations(recs []models.Recommendation) {
	r.printf("Recommended Actions:\n")
	r.printf(rule)
	for i, rec := range SortRecommendations(recs) {
		r.printf("  %d. [%s] %s\n", i+1, strings.ToUpper(string(rec.Severity)), rec.Title)
		r.printf("     %s\n", rec.Detail)
	}
	r.printf("\n")
}

func (r *TextReporter) printTrendInfo(trend *models.Trend) {
	r.printf("Trend Analysis:\n")
	r.printf(rule)
	r.printf("  Direction: %s %s\n", trend.Direction, TrendIndicator(trend.Direction))
	r.printf("  Risk: %s → %s\n", trend.PreviousRisk, trend.CurrentRisk)
	r.printf("  Accessible tables: %d → %d\n", trend.PreviousAccessible, trend.CurrentAccessible)
	if len(trend.NewlyExposed) > 0 {
		r.printf("  Newly exposed: %s\n", report.FormatList(trend.NewlyExposed))
	}
	if len(trend.NoLongerExposed) > 0 {
		r.printf("  No longer exposed: %s\n", report.FormatList(trend.NoLongerExposed))
	}
	r.printf("  Compared With: %s (%s)\n", trend.ComparedWith, formatTimestamp(trend.PreviousCreatedAt))
}

func (r *TextReporter) printf(format string, args ...any) {
	fmt.Fprintf(r.writer, format, args...)
}

var severityOrder = []models.RiskLevel{models.RiskCritical, models.RiskHigh, models.RiskMedium, models.RiskLow}

// SortRecommendations orders recommendations by severity, keeping the
// builder's order within a severity
func SortRecommendations(recs []models.Recommendation) []models.Recommendation {
	out := make([]models.Recommendation, 0, len(recs))
	for _, level := range severityOrder {
		for _, rec := range recs {
			if rec.Severity == level {
				out = append(out, rec)
			}
		}
	}
	for _, rec := range recs {
		if !rec.Severity.Valid() {
			out = append(out, rec)
		}
	}
	return out
}

// TrendIndicator returns an arrow for a trend direction
func TrendIndicator(direction string) string {
	switch direction {
	case models.TrendImproving:
		return "↓"
	case models.TrendDegrading:
		return "↑"
	case models.TrendStable:
		return "→"
	default:
		return "?"
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
