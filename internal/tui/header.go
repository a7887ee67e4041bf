package tui

import (
	"fmt"
	"strings"

	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/reporter"
)

// headerHeight is the number of terminal lines the header occupies.
const headerHeight = 5

// renderHeader produces the header string from a report and the accessible
// table counts of earlier reports for the same project.
func renderHeader(rep *models.Report, history []int, width int) string {
	var b strings.Builder
	summary := rep.Summary

	// Line 1: title and risk
	riskText := riskStyle(summary.RiskLevel).Render(riskLabel(summary.RiskLevel))
	b.WriteString(fmt.Sprintf("SupaSpectre  Risk: %s", riskText))
	if rep.Trend != nil {
		b.WriteString(fmt.Sprintf("  %s from %s", reporter.TrendIndicator(rep.Trend.Direction), riskLabel(rep.Trend.PreviousRisk)))
	}
	b.WriteString("\n")

	// Line 2: target and counts
	target := rep.ProjectID
	if target == "" {
		target = rep.Domain
	}
	b.WriteString(fmt.Sprintf("Target: %s", target))
	if !rep.LeakOnly {
		b.WriteString(fmt.Sprintf("  Tables: %d (%d accessible)", summary.TableCount, summary.AccessibleCount))
	}
	b.WriteString(fmt.Sprintf("  Keys: %d  Leaks: %d", len(rep.AssetDetections), len(rep.LeakDetections)))
	b.WriteString("\n")

	// Line 3: risk breakdown
	parts := make([]string, 0, len(models.RiskLevels))
	for i := len(models.RiskLevels) - 1; i >= 0; i-- {
		level := models.RiskLevels[i]
		if count := summary.RiskBreakdown[level]; count > 0 {
			label := fmt.Sprintf("%s:%d", strings.ToUpper(string(level)[:1]), count)
			parts = append(parts, riskStyle(level).Render(label))
		}
	}
	b.WriteString(strings.Join(parts, "  "))
	b.WriteString("\n")

	// Line 4: exposure history
	if len(history) > 0 {
		b.WriteString("Exposure: ")
		b.WriteString(renderSparkline(history))
	}

	return styleHeader.Width(width).Render(b.String())
}

// renderSparkline converts an int slice to a unicode sparkline string.
func renderSparkline(values []int) string {
	if len(values) == 0 {
		return ""
	}

	bars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	for _, v := range values {
		if hi == lo {
			b.WriteRune(bars[len(bars)/2])
		} else {
			normalized := float64(v-lo) / float64(hi-lo)
			b.WriteRune(bars[int(normalized*float64(len(bars)-1))])
		}
	}

	b.WriteString(fmt.Sprintf(" [%d→%d]", values[0], values[len(values)-1]))
	return b.String()
}
