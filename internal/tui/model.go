// Package tui is a terminal account switcher. It lists the vault's
// accounts, switches and removes them, and redraws whenever the vault
// reports a change.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/benaskins/xsession/internal/logbuf"
	"github.com/benaskins/xsession/internal/notify"
	"github.com/benaskins/xsession/internal/vault"
)

// Accounts is the part of the vault the switcher uses.
type Accounts interface {
	List() ([]vault.AccountInfo, error)
	Active() (string, bool, error)
	SetActive(username string) error
	Remove(username string) error
}

const logLines = 3

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type loadedMsg struct {
	accounts []vault.AccountInfo
	active   string
	err      error
}

type switchedMsg struct {
	username string
	err      error
}

type removedMsg struct {
	username string
	err      error
}

type eventMsg notify.Event

type logMsg struct{}

// Model is the bubbletea model of the switcher.
type Model struct {
	accounts Accounts
	events   <-chan notify.Event
	logs     *logbuf.Ring
	keys     keyMap
	help     help.Model

	list    []vault.AccountInfo
	active  string
	cursor  int
	loaded  bool
	pending string // username awaiting remove confirmation
	status  string
	err     error
	notice  string
}

// New returns a switcher over accounts. events and logs may be nil.
func New(accounts Accounts, events <-chan notify.Event, logs *logbuf.Ring) Model {
	return Model{
		accounts: accounts,
		events:   events,
		logs:     logs,
		keys:     defaultKeys(),
		help:     help.New(),
	}
}

// WithNotice shows a persistent message above the list, such as the
// placeholder account warning after a legacy import.
func (m Model) WithNotice(s string) Model {
	m.notice = s
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), waitForEvent(m.events), waitForLog(m.logs))
}

func (m Model) load() tea.Cmd {
	a := m.accounts
	return func() tea.Msg {
		list, err := a.List()
		if err != nil {
			return loadedMsg{err: err}
		}
		active, _, err := a.Active()
		return loadedMsg{accounts: list, active: active, err: err}
	}
}

func (m Model) switchTo(username string) tea.Cmd {
	a := m.accounts
	return func() tea.Msg {
		return switchedMsg{username: username, err: a.SetActive(username)}
	}
}

func (m Model) remove(username string) tea.Cmd {
	a := m.accounts
	return func() tea.Msg {
		return removedMsg{username: username, err: a.Remove(username)}
	}
}

func waitForEvent(ch <-chan notify.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func waitForLog(r *logbuf.Ring) tea.Cmd {
	if r == nil {
		return nil
	}
	return func() tea.Msg {
		<-r.Updated()
		return logMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case loadedMsg:
		m.loaded = true
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.list = msg.accounts
		m.active = msg.active
		if m.cursor >= len(m.list) {
			m.cursor = max(len(m.list)-1, 0)
		}
		return m, nil

	case switchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("switched to %s", msg.username)
		return m, m.load()

	case removedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("removed %s", msg.username)
		return m, m.load()

	case eventMsg:
		return m, tea.Batch(m.load(), waitForEvent(m.events))

	case logMsg:
		return m, waitForLog(m.logs)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pending != "" {
		switch {
		case key.Matches(msg, m.keys.Remove):
			name := m.pending
			m.pending = ""
			return m, m.remove(name)
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		default:
			m.pending = ""
			m.status = "remove cancelled"
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.list)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Switch):
		if name, ok := m.selected(); ok {
			return m, m.switchTo(name)
		}
	case key.Matches(msg, m.keys.Remove):
		if name, ok := m.selected(); ok {
			m.pending = name
			m.status = ""
		}
	case key.Matches(msg, m.keys.Refresh):
		return m, m.load()
	}
	return m, nil
}

func (m Model) selected() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.list) {
		return "", false
	}
	return m.list[m.cursor].Username, true
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Accounts"))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(warnStyle.Render(m.notice))
		b.WriteString("\n\n")
	}

	switch {
	case !m.loaded:
		b.WriteString(dimStyle.Render("loading…"))
		b.WriteString("\n")
	case len(m.list) == 0 && m.err == nil:
		b.WriteString(dimStyle.Render("no accounts yet"))
		b.WriteString("\n")
	}

	for i, a := range m.list {
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		marker := "  "
		name := a.Username
		if a.Username == m.active {
			marker = activeStyle.Render("● ")
			name = activeStyle.Render(name)
		}
		line := cursor + marker + name
		if a.DisplayName != "" {
			line += " " + dimStyle.Render("("+a.DisplayName+")")
		}
		line += "  " + dimStyle.Render("last used "+formatTime(a.LastUsed))
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.pending != "":
		b.WriteString(warnStyle.Render(fmt.Sprintf("press d again to remove %s, any other key to cancel", m.pending)))
		b.WriteString("\n")
	case m.err != nil:
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(dimStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")

	if m.logs != nil {
		for _, l := range m.logs.Last(logLines) {
			b.WriteString(dimStyle.Render(l))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func formatTime(unix int64) string {
	if unix == 0 {
		return "never"
	}
	return time.Unix(unix, 0).Local().Format("2006-01-02 15:04")
}

// Run shows the switcher full-screen until the user quits or ctx ends.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
