// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package driveui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/junegunn/fzf/src/util"

	"github.com/patchbay-collective/patchbay/drive"
	"github.com/patchbay-collective/patchbay/lib/ref"
)

// statusFadeDelay is how long an operation notice stays visible.
const statusFadeDelay = 4 * time.Second

const nameWidth = 32

// Actions are the drive operations the model can request. Each call
// returns at once; its outcome arrives later as a ResultMsg.
type Actions interface {
	Refresh()
	Open(id ref.DocumentID)
	Trash(id ref.DocumentID)
	Untrash(id ref.DocumentID)
	Duplicate(id ref.DocumentID)
	SetOrder(order drive.Order)
}

// EntriesMsg carries the directory cache after a change, in display
// order.
type EntriesMsg struct {
	Entries []drive.Entry
	Order   drive.Order
}

// ResultMsg reports the outcome of an Actions call.
type ResultMsg struct {
	Operation string
	Entry     drive.Entry
	Err       error
}

// LoggedOutMsg reports that the relay refused the account's token.
type LoggedOutMsg struct{}

type statusFadeMsg struct{ sequence int }

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
	emptyStyle  = lipgloss.NewStyle().Faint(true)
)

// Model is the bubbletea model of the document browser.
type Model struct {
	actions Actions
	account string
	keys    KeyMap

	table table.Model
	help  help.Model

	entries     []drive.Entry
	visible     []drive.Entry
	order       drive.Order
	showTrashed bool
	loaded      bool
	loggedOut   bool

	// filtering is set while the query is being typed; query stays
	// applied after Enter until Esc clears it.
	filtering bool
	query     []rune
	slab      *util.Slab

	status         string
	statusIsError  bool
	statusSequence int
}

// NewModel returns a browser for account that sends requests to
// actions.
func NewModel(account string, order drive.Order, actions Actions) Model {
	columns := []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Name", Width: nameWidth},
		{Title: "Author", Width: 16},
		{Title: "Opened", Width: 16},
		{Title: "Status", Width: 8},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(true), table.WithHeight(15))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	t.SetStyles(styles)

	return Model{
		actions: actions,
		account: account,
		keys:    DefaultKeyMap,
		table:   t,
		help:    help.New(),
		order:   order,
		slab:    util.MakeSlab(16*1024, 2048),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(max(msg.Height-5, 3))
		m.help.Width = msg.Width
		return m, nil

	case EntriesMsg:
		m.entries = msg.Entries
		m.order = msg.Order
		m.loaded = true
		m.rebuild()
		return m, nil

	case ResultMsg:
		if msg.Err != nil {
			return m, m.setStatus(fmt.Sprintf("%s failed: %v", msg.Operation, msg.Err), true)
		}
		text := fmt.Sprintf("%s: %s", msg.Operation, msg.Entry.Name)
		if msg.Operation == "open" {
			text = fmt.Sprintf("%s is live in session %s", msg.Entry.Name, msg.Entry.Session)
		}
		return m, m.setStatus(text, false)

	case LoggedOutMsg:
		m.loggedOut = true
		m.status = "the relay refused this account's token; restart with a renewed user.token"
		m.statusIsError = true
		return m, nil

	case statusFadeMsg:
		if msg.sequence == m.statusSequence {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if m.filtering {
		return m.handleFilterKey(msg), true
	}
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit, true
	case m.loggedOut:
		return nil, false
	case key.Matches(msg, m.keys.Refresh):
		m.actions.Refresh()
		return nil, true
	case key.Matches(msg, m.keys.Sort):
		order := m.order
		order.Key = (order.Key + 1) % (drive.SortOpened + 1)
		m.actions.SetOrder(order)
		return nil, true
	case key.Matches(msg, m.keys.ShowTrashed):
		m.showTrashed = !m.showTrashed
		m.rebuild()
		return nil, true
	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		return nil, true
	case msg.Type == tea.KeyEsc && len(m.query) > 0:
		m.query = nil
		m.rebuild()
		return nil, true
	}

	selected, ok := m.Selected()
	if !ok {
		return nil, false
	}
	switch {
	case key.Matches(msg, m.keys.Open):
		if selected.Trashed {
			return m.setStatus("restore the document before opening it", true), true
		}
		m.actions.Open(selected.ID)
	case key.Matches(msg, m.keys.Trash):
		if selected.Trashed {
			m.actions.Untrash(selected.ID)
		} else {
			m.actions.Trash(selected.ID)
		}
	case key.Matches(msg, m.keys.Duplicate):
		m.actions.Duplicate(selected.ID)
	default:
		return nil, false
	}
	return nil, true
}

func (m *Model) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC:
		return tea.Quit
	case tea.KeyEsc:
		m.filtering = false
		m.query = nil
	case tea.KeyEnter:
		m.filtering = false
		return nil
	case tea.KeyBackspace:
		if len(m.query) == 0 {
			return nil
		}
		m.query = m.query[:len(m.query)-1]
	case tea.KeySpace:
		m.query = append(m.query, ' ')
	case tea.KeyRunes:
		m.query = append(m.query, []rune(strings.ToLower(string(msg.Runes)))...)
	default:
		return nil
	}
	m.rebuild()
	return nil
}

func (m *Model) setStatus(text string, isError bool) tea.Cmd {
	m.statusSequence++
	m.status = text
	m.statusIsError = isError
	sequence := m.statusSequence
	return tea.Tick(statusFadeDelay, func(time.Time) tea.Msg { return statusFadeMsg{sequence: sequence} })
}

// rebuild recomputes the visible rows, keeping the cursor on the same
// document when it is still shown.
func (m *Model) rebuild() {
	current, hadSelection := m.Selected()

	var visible []drive.Entry
	for _, entry := range m.entries {
		if entry.Trashed && !m.showTrashed {
			continue
		}
		if len(m.query) > 0 && fuzzyScore(entry.Name, m.query, m.slab) == 0 {
			continue
		}
		visible = append(visible, entry)
	}
	m.visible = visible

	rows := make([]table.Row, len(m.visible))
	cursor := 0
	for i, entry := range m.visible {
		rows[i] = row(entry)
		if hadSelection && entry.ID == current.ID {
			cursor = i
		}
	}
	m.table.SetRows(rows)
	if len(rows) > 0 {
		m.table.SetCursor(cursor)
	}
}

func row(entry drive.Entry) table.Row {
	opened := "never"
	if !entry.Opened.IsZero() {
		opened = entry.Opened.Local().Format("2006-01-02 15:04")
	}
	status := ""
	switch {
	case entry.Trashed:
		status = "trashed"
	case entry.Open():
		status = "open"
	}
	return table.Row{entry.ID.String(), ansi.Truncate(entry.Name, nameWidth-1, "…"), entry.Author, opened, status}
}

// Selected returns the entry under the cursor.
func (m Model) Selected() (drive.Entry, bool) {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.visible) {
		return drive.Entry{}, false
	}
	return m.visible[cursor], true
}

// Visible returns the entries shown as rows.
func (m Model) Visible() []drive.Entry { return m.visible }

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	trash := ""
	if m.showTrashed {
		trash = " · showing trash"
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Patchbay drive · %s · sorted by %s%s", m.account, m.order.Key, trash)))
	b.WriteString("\n")
	switch {
	case m.filtering:
		b.WriteString(statusStyle.Render("/"+string(m.query)+"▏") + "\n")
	case len(m.query) > 0:
		b.WriteString(statusStyle.Render("filter: "+string(m.query)+" (esc clears)") + "\n")
	}

	switch {
	case !m.loaded:
		b.WriteString(emptyStyle.Render("  loading…") + "\n")
	case len(m.visible) == 0 && len(m.query) > 0:
		b.WriteString(emptyStyle.Render("  no documents match") + "\n")
	case len(m.visible) == 0:
		b.WriteString(emptyStyle.Render("  no documents") + "\n")
	default:
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}

	switch {
	case m.status == "":
		b.WriteString("\n")
	case m.statusIsError:
		b.WriteString(errorStyle.Render(m.status) + "\n")
	default:
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
