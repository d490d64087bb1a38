// Package tui is an interactive findings browser for a patrol report.
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
	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/trend"
)

// mode represents the current UI interaction mode.
type mode int

const (
	modeNormal mode = iota
	modeSearch
	modeFilterKind
)

const defaultTableHeight = 15

// Model is the top-level Bubble Tea model for the status browser.
type Model struct {
	// Data (immutable after init)
	report  *models.PatrolReport
	summary *trend.Summary
	allRows []findingRow

	// UI state
	table        table.Model
	searchInput  textinput.Model
	filteredRows []findingRow
	filters      filterState
	sortBy       sortField
	mode         mode
	kindChoices  []models.FindingKind
	kindCursor   int
	width        int
	height       int
	statusMsg    string
	// clipboard is captured here for testing; osc receives the escape
	clipboard string
	osc       io.Writer
}

// New creates a new TUI model from a report and an optional trend summary.
func New(report *models.PatrolReport, summary *trend.Summary) Model {
	rows := rowsFromReport(report)
	sortRows(rows, sortByKind)
	t := newTable(buildRows(rows), defaultTableHeight)

	ti := textinput.New()
	ti.Placeholder = "search..."
	ti.CharLimit = 64

	return Model{
		report:       report,
		summary:      summary,
		allRows:      rows,
		filteredRows: rows,
		table:        t,
		searchInput:  ti,
		sortBy:       sortByKind,
		mode:         modeNormal,
		kindChoices:  uniqueKinds(rows),
		width:        80,
		height:       24,
		osc:          os.Stdout,
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
		tableH := msg.Height - headerHeight - detailHeight - 3
		if tableH < 3 {
			tableH = 3
		}
		m.table.SetHeight(tableH)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	switch m.mode {
	case modeSearch:
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	default:
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
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
	case key.Matches(msg, keys.OpenOnly):
		if m.filters.Status == statusOpen {
			m.filters.Status = ""
			m.statusMsg = ""
		} else {
			m.filters.Status = statusOpen
			m.statusMsg = "Open only"
		}
		m.rebuildTable()
		return m, nil
	case key.Matches(msg, keys.Sort):
		m.sortBy = (m.sortBy + 1) % sortField(sortFieldCount)
		m.rebuildTable()
		m.statusMsg = fmt.Sprintf("Sort: %s", sortFieldName(m.sortBy))
		return m, nil
	case key.Matches(msg, keys.Copy):
		m.copySelectedRow()
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
		if m.kindCursor == 0 {
			m.filters.Kind = ""
		} else if m.kindCursor <= len(m.kindChoices) {
			m.filters.Kind = m.kindChoices[m.kindCursor-1]
		}
		m.mode = modeNormal
		m.rebuildTable()
		if m.filters.Kind != "" {
			m.statusMsg = fmt.Sprintf("Filter: %s", m.filters.Kind)
		} else {
			m.statusMsg = ""
		}
	case "esc":
		m.mode = modeNormal
	}
	return m, nil
}

func (m *Model) rebuildTable() {
	filtered := applyFilters(m.allRows, m.filters)
	sortRows(filtered, m.sortBy)
	m.filteredRows = filtered
	m.table.SetRows(buildRows(filtered))
}

func (m *Model) selectedRow() *findingRow {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.filteredRows) {
		return nil
	}
	return &m.filteredRows[cursor]
}

// copySelectedRow writes the selected finding to the clipboard via OSC 52.
func (m *Model) copySelectedRow() {
	row := m.selectedRow()
	if row == nil {
		m.statusMsg = "Nothing to copy"
		return
	}
	text := fmt.Sprintf("[%s] %s %s: %s", row.Kind, severityLabel(*row), row.Location, row.Description)
	m.clipboard = text
	m.statusMsg = "Copied!"
	if m.osc != nil {
		fmt.Fprintf(m.osc, "\033]52;c;%s\a", base64.StdEncoding.EncodeToString([]byte(text)))
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(renderHeader(m.report, m.summary, m.width))
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

	b.WriteString(renderDetail(m.selectedRow(), m.width))
	b.WriteString("\n")

	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderKindFilter() string {
	var b strings.Builder
	b.WriteString("Filter by kind:\n")

	options := []string{"All"}
	for _, k := range m.kindChoices {
		options = append(options, string(k))
	}
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
	left := "q:quit  /:search  f:kind  o:open  s:sort  c:copy  esc:clear"
	right := fmt.Sprintf("%d/%d findings", len(m.filteredRows), len(m.allRows))

	if m.statusMsg != "" {
		right = m.statusMsg + "  " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return styleFooter.Render(left + strings.Repeat(" ", gap) + right)
}

// Run starts the Bubble Tea program. Called from the status command.
func Run(report *models.PatrolReport, summary *trend.Summary) error {
	m := New(report, summary)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
