// Package tui is the live terminal view of a bookmark collection.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mikepea/smartmark/pkg/smartmark/bookmarklist"
)

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeConfirm
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	urlStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	modalStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// Model drives a bookmarklist.List from key presses.
type Model struct {
	ctx    context.Context
	list   *bookmarklist.List
	mode   mode
	cursor int

	title textinput.Model
	url   textinput.Model

	pending uint
	status  *bookmarklist.Notification
	closed  bool
}

type changedMsg struct{}

type noteMsg bookmarklist.Notification

type listClosedMsg struct{}

type addDoneMsg struct{ err error }

type deleteDoneMsg struct{ err error }

// New returns a model over l. Requests run with ctx.
func New(ctx context.Context, l *bookmarklist.List) Model {
	title := textinput.New()
	title.Placeholder = "Title"
	title.CharLimit = 256
	title.Width = 50

	url := textinput.New()
	url.Placeholder = "https://..."
	url.CharLimit = 2048
	url.Width = 50

	return Model{ctx: ctx, list: l, title: title, url: url}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitChange(), m.waitNote())
}

func (m Model) waitChange() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-m.list.Changes(); !ok {
			return listClosedMsg{}
		}
		return changedMsg{}
	}
}

func (m Model) waitNote() tea.Cmd {
	return func() tea.Msg {
		n, ok := <-m.list.Notifications()
		if !ok {
			return listClosedMsg{}
		}
		return noteMsg(n)
	}
}

func (m Model) submit() tea.Cmd {
	m.list.SetInput(m.title.Value(), m.url.Value())
	return func() tea.Msg {
		return addDoneMsg{err: m.list.Submit(m.ctx)}
	}
}

func (m Model) remove(id uint) tea.Cmd {
	return func() tea.Msg {
		return deleteDoneMsg{err: m.list.RequestDelete(m.ctx, id, bookmarklist.AlwaysConfirm)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.mode {
		case modeAdd:
			return m.updateAdd(msg)
		case modeConfirm:
			return m.updateConfirm(msg)
		}
		return m.updateBrowse(msg)

	case changedMsg:
		m.clampCursor()
		return m, m.waitChange()

	case noteMsg:
		n := bookmarklist.Notification(msg)
		m.status = &n
		return m, m.waitNote()

	case listClosedMsg:
		m.closed = true
		return m, nil

	case addDoneMsg:
		if msg.err == nil {
			// the list clears its input once the insert is accepted
			title, url := m.list.Input()
			m.title.SetValue(title)
			m.url.SetValue(url)
			m.title.Blur()
			m.url.Blur()
			m.mode = modeBrowse
			return m, nil
		}
		if errors.Is(msg.err, bookmarklist.ErrEmptyField) {
			m.status = &bookmarklist.Notification{Level: bookmarklist.LevelError, Message: "Title and URL are required", Err: msg.err}
		}
		return m, nil

	case deleteDoneMsg:
		m.pending = 0
		return m, nil
	}

	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "n", "right":
		if m.list.NextPage() {
			m.cursor = 0
		}
	case "p", "left":
		if m.list.PrevPage() {
			m.cursor = 0
		}
	case "j", "down":
		if m.cursor < len(m.list.View().Visible)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "a":
		m.mode = modeAdd
		m.url.Blur()
		cmd := m.title.Focus()
		return m, cmd
	case "d":
		visible := m.list.View().Visible
		if m.cursor < len(visible) {
			m.pending = visible[m.cursor].ID
			m.mode = modeConfirm
		}
	}
	return m, nil
}

func (m Model) updateAdd(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.title.Blur()
		m.url.Blur()
		m.mode = modeBrowse
		return m, nil
	case "tab", "shift+tab":
		var cmd tea.Cmd
		if m.title.Focused() {
			m.title.Blur()
			cmd = m.url.Focus()
		} else {
			m.url.Blur()
			cmd = m.title.Focus()
		}
		return m, cmd
	case "enter":
		if m.list.Busy() {
			return m, nil
		}
		return m, m.submit()
	}

	var cmd tea.Cmd
	if m.title.Focused() {
		m.title, cmd = m.title.Update(msg)
	} else {
		m.url, cmd = m.url.Update(msg)
	}
	m.list.SetInput(m.title.Value(), m.url.Value())
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "y", "Y":
		m.mode = modeBrowse
		return m, m.remove(m.pending)
	case "n", "N", "esc":
		m.mode = modeBrowse
		m.pending = 0
	}
	return m, nil
}

func (m *Model) clampCursor() {
	n := len(m.list.View().Visible)
	if m.cursor >= n {
		m.cursor = max(0, n-1)
	}
}

func (m Model) View() string {
	var b strings.Builder
	v := m.list.View()

	b.WriteString(titleStyle.Render("Smartmark"))
	b.WriteString("\n\n")

	switch {
	case v.Empty:
		b.WriteString("Your collection is empty.\n")
	case v.OutOfRange:
		fmt.Fprintf(&b, "Page %d is past the last page (%d).\n", v.Page, v.TotalPages)
	default:
		for i, row := range v.Visible {
			host := urlStyle.Render(bookmarklist.Hostname(row.URL))
			line := fmt.Sprintf("  %s  %s", row.Title, host)
			if i == m.cursor {
				line = selectedStyle.Render("> "+row.Title) + "  " + host
			}
			b.WriteString(line + "\n")
		}
	}

	if v.ShowControls {
		fmt.Fprintf(&b, "\nPage %d of %d", v.Page, v.TotalPages)
		if v.HasPrev {
			b.WriteString("  [p]rev")
		}
		if v.HasNext {
			b.WriteString("  [n]ext")
		}
		b.WriteString("\n")
	}

	switch m.mode {
	case modeAdd:
		form := m.title.View() + "\n" + m.url.View()
		if m.list.Busy() {
			form += "\nSaving..."
		}
		b.WriteString("\n" + modalStyle.Render(form) + "\n")
	case modeConfirm:
		b.WriteString("\n" + modalStyle.Render(bookmarklist.DeletePrompt+" [y/n]") + "\n")
	}

	if m.status != nil {
		style := successStyle
		if m.status.Level == bookmarklist.LevelError {
			style = errorStyle
		}
		b.WriteString("\n" + style.Render(m.status.Message) + "\n")
	}
	if m.list.FeedLost() || m.closed {
		b.WriteString(errorStyle.Render(bookmarklist.MsgFeedLost) + "\n")
	}

	help := "[j/k]nav [n/p]page [a]dd [d]elete [q]uit"
	if m.mode == modeAdd {
		help = "[tab]switch field [enter]save [esc]cancel"
	}
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

// Run shows the list until the user quits or ctx is done.
func Run(ctx context.Context, l *bookmarklist.List, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(New(ctx, l), tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()

	_, err := p.Run()
	return err
}
