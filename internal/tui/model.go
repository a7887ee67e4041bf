// Package tui renders a report as an interactive, filterable findings table.
package tui

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/supaspectre/internal/models"
)

type mode int

const (
	modeNormal mode = iota
	modeSearch
	modeFilterKind
)

const defaultTableHeight = 15

// Model is the top-level Bubble Tea model for the report viewer.
type Model struct {
	report      *models.Report
	history     []int
	allFindings []finding

	table            table.Model
	searchInput      textinput.Model
	filteredFindings []finding
	filters          filterState
	sortBy           sortField
	mode             mode
	kindChoices      []string
	kindCursor       int
	width            int
	height           int
	statusMsg        string
	// clipboard keeps the last copied text; the OSC 52 sequence goes to out
	clipboard string
	out       io.Writer
}

// New creates a viewer for rep. history holds the accessible table counts
// of the project's reports, oldest first, and may be nil.
func New(rep *models.Report, history []int) Model {
	findings := collectFindings(rep)
	sortFindings(findings, sortByRisk)

	ti := textinput.New()
	ti.Placeholder = "search..."
	ti.CharLimit = 64

	return Model{
		report:           rep,
		history:          history,
		allFindings:      findings,
		filteredFindings: findings,
		table:            newTable(buildRows(findings), defaultTableHeight),
		searchInput:      ti,
		sortBy:           sortByRisk,
		mode:             modeNormal,
		kindChoices:      uniqueKinds(findings),
		width:            80,
		height:           24,
		out:              os.Stdout,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(max(msg.Height-headerHeight-detailHeight-3, 3))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	switch m.mode {
	case modeSearch:
		m.searchInput, cmd = m.searchInput.Update(msg)
	default:
		m.table, cmd = m.table.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeSearch:
		return m.handleSearchKey(msg)
	case modeFilterKind:
		return m.handleFilterKindKey(msg)
	default:
		return m.handleNormalKey(msg)
	}
}

func (m Model) handleNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Search):
		m.mode = modeSearch
		m.searchInput.Focus()
		return m, textinput.Blink
	case key.Matches(msg, keys.FilterKind):
		m.mode = modeFilterKind
		m.kindCursor = 0
		return m, nil
	case key.Matches(msg, keys.RiskFloor):
		m.filters.Risk = nextRiskFloor(m.filters.Risk)
		m.rebuildTable()
		m.statusMsg = ""
		if m.filters.Risk != "" {
			m.statusMsg = fmt.Sprintf("Risk: %s+", m.filters.Risk)
		}
		return m, nil
	case key.Matches(msg, keys.Sort):
		m.sortBy = (m.sortBy + 1) % sortField(sortFieldCount)
		m.rebuildTable()
		m.statusMsg = fmt.Sprintf("Sort: %s", sortFieldName(m.sortBy))
		return m, nil
	case key.Matches(msg, keys.Copy):
		m.copySelected()
		return m, nil
	case key.Matches(msg, keys.ClearFilter):
		m.filters = filterState{}
		m.statusMsg = ""
		m.rebuildTable()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filters.SearchText = m.searchInput.Value()
		m.mode = modeNormal
		m.searchInput.Blur()
		m.rebuildTable()
		return m, nil
	case "esc":
		m.mode = modeNormal
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) handleFilterKindKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.kindCursor > 0 {
			m.kindCursor--
		}
	case "down", "j":
		if m.kindCursor < len(m.kindChoices) {
			m.kindCursor++
		}
	case "enter":
		m.filters.Kind = ""
		if m.kindCursor > 0 && m.kindCursor <= len(m.kindChoices) {
			m.filters.Kind = m.kindChoices[m.kindCursor-1]
		}
		m.mode = modeNormal
		m.rebuildTable()
		m.statusMsg = ""
		if m.filters.Kind != "" {
			m.statusMsg = fmt.Sprintf("Filter: %s", m.filters.Kind)
		}
	case "esc":
		m.mode = modeNormal
	}
	return m, nil
}

func (m *Model) rebuildTable() {
	filtered := applyFilters(m.allFindings, m.filters)
	sortFindings(filtered, m.sortBy)
	m.filteredFindings = filtered
	m.table.SetRows(buildRows(filtered))
}

func (m *Model) selected() *finding {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.filteredFindings) {
		return nil
	}
	return &m.filteredFindings[cursor]
}

// copySelected writes the selected finding to the clipboard via OSC 52.
func (m *Model) copySelected() {
	item := m.selected()
	if item == nil {
		m.statusMsg = "Nothing to copy"
		return
	}
	text := fmt.Sprintf("[%s] %s %s", riskLabel(item.Risk), item.Kind, item.Subject)
	if item.Location != "" {
		text += " @ " + item.Location
	}
	m.clipboard = text
	m.statusMsg = "Copied!"
	if m.out != nil {
		fmt.Fprintf(m.out, "\033]52;c;%s\a", base64.StdEncoding.EncodeToString([]byte(text)))
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(renderHeader(m.report, m.history, m.width))
	b.WriteString("\n")

	if m.mode == modeSearch {
		b.WriteString(styleSearchPrompt.Render("/ "))
		b.WriteString(m.searchInput.View())
		b.WriteString("\n")
	}

	if m.mode == modeFilterKind {
		b.WriteString(m.renderKindFilter())
		b.WriteString("\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")

	b.WriteString(renderDetail(m.selected(), m.width))
	b.WriteString("\n")

	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderKindFilter() string {
	var b strings.Builder
	b.WriteString("Filter by kind:\n")

	options := append([]string{"All"}, m.kindChoices...)
	for i, opt := range options {
		cursor := "  "
		if i == m.kindCursor {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s%s\n", cursor, opt))
	}
	return b.String()
}

func (m *Model) renderFooter() string {
	left := "q:quit  /:search  t:kind  r:risk  s:sort  c:copy  esc:clear"
	right := fmt.Sprintf("%d/%d findings", len(m.filteredFindings), len(m.allFindings))

	if m.statusMsg != "" {
		right = m.statusMsg + "  " + right
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return styleFooter.Render(left + strings.Repeat(" ", gap) + right)
}

// Run starts the Bubble Tea program.
func Run(rep *models.Report, history []int) error {
	p := tea.NewProgram(New(rep, history), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
