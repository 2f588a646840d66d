// ABOUTME: Terminal pipeline board using the bubbletea framework
// ABOUTME: Shows one column per live pool and reloads whenever a pool partition changes
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/pipeline"
	"github.com/harperreed/agencyops/store"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewBoard ViewMode = iota
	ViewDetail
)

const loadTimeout = 5 * time.Second

// Model is the main bubbletea model
type Model struct {
	machine *pipeline.Machine
	changes chan store.Event
	unsubs  []func()

	viewMode ViewMode
	columns  map[models.Pool][]models.Opportunity
	column   int
	row      int
	selected *models.Opportunity

	keys keyMap
	help help.Model

	width  int
	height int
	err    error
}

type loadedMsg struct {
	columns map[models.Pool][]models.Opportunity
	err     error
}

type changedMsg store.Event

// NewModel creates a board subscribed to every live pool partition. Call
// Close when the program exits.
func NewModel(s *store.Store, machine *pipeline.Machine) *Model {
	m := &Model{
		machine: machine,
		changes: make(chan store.Event, 64),
		columns: make(map[models.Pool][]models.Opportunity),
		keys:    defaultKeyMap(),
		help:    help.New(),
		width:   160,
		height:  30,
	}
	for _, p := range models.LivePools {
		m.unsubs = append(m.unsubs, s.Subscribe(store.OpportunityPartition(p), m.notify))
	}
	return m
}

// notify never blocks the committing goroutine; one queued change is enough
// to trigger a full reload.
func (m *Model) notify(ev store.Event) {
	select {
	case m.changes <- ev:
	default:
	}
}

// Close cancels the store subscriptions.
func (m *Model) Close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.waitForChange())
}

func (m *Model) load() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		opps, err := m.machine.List(ctx, "")
		if err != nil {
			return loadedMsg{err: err}
		}
		columns := make(map[models.Pool][]models.Opportunity, len(models.LivePools))
		for _, o := range opps {
			columns[o.Pool] = append(columns[o.Pool], o)
		}
		for p := range columns {
			pipeline.SortByScore(columns[p])
		}
		return loadedMsg{columns: columns}
	}
}

func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		return changedMsg(<-m.changes)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case loadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.columns = msg.columns
			m.clampCursor()
			m.refreshSelected()
		}
		return m, nil
	case changedMsg:
		return m, tea.Batch(m.load(), m.waitForChange())
	}
	return m, nil
}

func (m *Model) View() string {
	if m.viewMode == ViewDetail && m.selected != nil {
		return m.renderDetailView()
	}
	return m.renderBoardView()
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, m.load()
	}

	if m.viewMode == ViewDetail {
		if key.Matches(msg, m.keys.Back) {
			m.viewMode = ViewBoard
			m.selected = nil
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Left):
		if m.column > 0 {
			m.column--
			m.clampCursor()
		}
	case key.Matches(msg, m.keys.Right):
		if m.column < len(models.LivePools)-1 {
			m.column++
			m.clampCursor()
		}
	case key.Matches(msg, m.keys.Up):
		if m.row > 0 {
			m.row--
		}
	case key.Matches(msg, m.keys.Down):
		if m.row < len(m.currentColumn())-1 {
			m.row++
		}
	case key.Matches(msg, m.keys.Open):
		col := m.currentColumn()
		if m.row < len(col) {
			o := col[m.row]
			m.selected = &o
			m.viewMode = ViewDetail
		}
	}
	return m, nil
}

func (m *Model) currentColumn() []models.Opportunity {
	return m.columns[models.LivePools[m.column]]
}

func (m *Model) clampCursor() {
	n := len(m.currentColumn())
	if m.row >= n {
		m.row = max(n-1, 0)
	}
}

// refreshSelected swaps the detail record for its reloaded version, or
// returns to the board when it left the pool.
func (m *Model) refreshSelected() {
	if m.selected == nil {
		return
	}
	for _, col := range m.columns {
		for i := range col {
			if col[i].ID == m.selected.ID {
				o := col[i]
				m.selected = &o
				return
			}
		}
	}
	m.selected = nil
	m.viewMode = ViewBoard
}

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Open    key.Binding
	Back    key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:    key.NewBinding(key.WithKeys("left", "h", "shift+tab"), key.WithHelp("←/h", "prev pool")),
		Right:   key.NewBinding(key.WithKeys("right", "l", "tab"), key.WithHelp("→/l", "next pool")),
		Open:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Back:    key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Left, k.Right, k.Open, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Open, k.Back, k.Refresh, k.Help, k.Quit},
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activeColumnStyle = columnStyle.
				BorderForeground(lipgloss.Color("170"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)
