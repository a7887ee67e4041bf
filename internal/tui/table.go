package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/supaspectre/internal/assetscan"
	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/report"
)

// Finding kinds shown in the Kind column
const (
	kindTable = "table"
	kindKey   = "key"
	kindLeak  = "leak"
)

// finding is one browsable row: a probed table, an exposed key or a leak.
type finding struct {
	Risk     models.RiskLevel
	Kind     string
	Subject  string
	Location string
	Details  []string
}

var tableColumns = []table.Column{
	{Title: "Risk", Width: 10},
	{Title: "Kind", Width: 6},
	{Title: "Subject", Width: 26},
	{Title: "Location", Width: 40},
}

// collectFindings flattens a report into rows.
func collectFindings(rep *models.Report) []finding {
	out := make([]finding, 0, len(rep.Findings)+len(rep.AssetDetections)+len(rep.LeakDetections))

	for _, f := range rep.Findings {
		var details []string
		if f.Status != nil {
			details = append(details, fmt.Sprintf("Status: %d", *f.Status))
		}
		if f.RowCount != nil {
			details = append(details, fmt.Sprintf("Rows: %d", *f.RowCount))
		}
		if len(f.SensitiveColumns) > 0 {
			details = append(details, "Sensitive: "+strings.Join(f.SensitiveColumns, ", "))
		}
		for _, w := range f.Warnings {
			details = append(details, "! "+w)
		}
		for _, n := range f.Notes {
			details = append(details, "- "+n)
		}
		if f.Error != "" {
			details = append(details, "Error: "+f.Error)
		}
		out = append(out, finding{
			Risk:     f.RiskLevel,
			Kind:     kindTable,
			Subject:  f.Name,
			Location: string(f.PolicyState),
			Details:  details,
		})
	}

	for _, d := range rep.AssetDetections {
		risk := models.RiskHigh
		if assetscan.IsServiceKey(d) {
			risk = models.RiskCritical
		}
		out = append(out, finding{
			Risk:     risk,
			Kind:     kindKey,
			Subject:  d.KeyType,
			Location: d.AssetURL,
			Details:  []string{"Key: " + d.APIKeySnippet, "Project: " + d.ProjectID},
		})
	}

	for _, l := range rep.LeakDetections {
		location := l.AssetURL
		if location == "" {
			location = l.SourceURL
		}
		details := []string{"Match: " + l.MatchSnippet}
		if l.ContextSnippet != "" {
			details = append(details, "Context: "+l.ContextSnippet)
		}
		if l.EncodedSnippet != "" {
			details = append(details, "Encoded: "+l.EncodedSnippet)
		}
		out = append(out, finding{
			Risk:     report.DeriveLeakRisk([]models.LeakDetection{l}),
			Kind:     kindLeak,
			Subject:  l.Pattern,
			Location: location,
			Details:  details,
		})
	}
	return out
}

// buildRows converts findings to table rows.
func buildRows(findings []finding) []table.Row {
	rows := make([]table.Row, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, table.Row{
			riskLabel(f.Risk),
			f.Kind,
			truncate(f.Subject, tableColumns[2].Width),
			truncate(f.Location, tableColumns[3].Width),
		})
	}
	return rows
}

func riskLabel(r models.RiskLevel) string {
	if r == "" {
		return "-"
	}
	return strings.ToUpper(string(r))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	const ellipsis = "..."
	if maxLen <= len(ellipsis) {
		return s[:maxLen]
	}
	return s[:maxLen-len(ellipsis)] + ellipsis
}

// newTable creates a bubbles table with standard columns and styling.
func newTable(rows []table.Row, height int) table.Model {
	t := table.New(
		table.WithColumns(tableColumns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(colorAccent).
		Bold(false)
	t.SetStyles(s)

	return t
}
