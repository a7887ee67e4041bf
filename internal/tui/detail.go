package tui

import (
	"fmt"
	"strings"
)

// detailHeight is the fixed number of lines for the detail panel.
const detailHeight = 5

// renderDetail produces the detail view for a selected finding.
func renderDetail(item *finding, width int) string {
	if item == nil {
		return styleDetailPanel.Width(width).Render("No finding selected")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s  %s %s\n", riskStyle(item.Risk).Render(riskLabel(item.Risk)), item.Kind, item.Subject))
	if item.Location != "" {
		b.WriteString(fmt.Sprintf("Location: %s\n", item.Location))
	}

	lines := item.Details
	if len(lines) > detailHeight-2 {
		lines = append(lines[:detailHeight-3:detailHeight-3], fmt.Sprintf("(+%d more)", len(item.Details)-(detailHeight-3)))
	}
	b.WriteString(strings.Join(lines, "\n"))

	return styleDetailPanel.Width(width).Render(b.String())
}
