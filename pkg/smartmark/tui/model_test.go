package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikepea/smartmark/pkg/smartmark/bookmarklist"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

// echoPersistence publishes every successful write back on its feed.
type echoPersistence struct {
	mu      sync.Mutex
	nextID  uint
	events  chan bookmarklist.Event
	deletes []uint
}

func (p *echoPersistence) Insert(_ context.Context, title, url string) (models.Bookmark, error) {
	p.mu.Lock()
	p.nextID++
	row := models.Bookmark{ID: p.nextID, Title: title, URL: url}
	p.mu.Unlock()
	p.events <- bookmarklist.Event{Kind: bookmarklist.Insert, Row: row}
	return row, nil
}

func (p *echoPersistence) Delete(_ context.Context, id uint) error {
	p.mu.Lock()
	p.deletes = append(p.deletes, id)
	p.mu.Unlock()
	p.events <- bookmarklist.Event{Kind: bookmarklist.Delete, Row: models.Bookmark{ID: id}}
	return nil
}

func (p *echoPersistence) Subscribe(context.Context, uint) (bookmarklist.Subscription, error) {
	return p, nil
}

func (p *echoPersistence) Events() <-chan bookmarklist.Event { return p.events }

func (p *echoPersistence) Close() error { return nil }

func seed(n int) []models.Bookmark {
	rows := make([]models.Bookmark, n)
	for i := range rows {
		id := uint(n - i)
		rows[i] = models.Bookmark{ID: id, Title: fmt.Sprintf("Bookmark %d", id), URL: fmt.Sprintf("https://example.com/%d", id)}
	}
	return rows
}

func newTestModel(t *testing.T, initial []models.Bookmark) (Model, *bookmarklist.List, *echoPersistence) {
	t.Helper()
	p := &echoPersistence{nextID: 1000, events: make(chan bookmarklist.Event, 16)}
	l, err := bookmarklist.Open(context.Background(), p, 1, initial)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return New(context.Background(), l), l, p
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(Model)
	}
	return m, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestView_Empty(t *testing.T) {
	m, _, _ := newTestModel(t, nil)
	assert.Contains(t, m.View(), "Your collection is empty.")
}

func TestView_ShowsHostname(t *testing.T) {
	m, _, _ := newTestModel(t, []models.Bookmark{{ID: 1, Title: "Effective Go", URL: "https://go.dev/doc/effective_go"}})

	out := m.View()
	assert.Contains(t, out, "Effective Go")
	assert.Contains(t, out, "go.dev")
	assert.NotContains(t, out, "/doc/effective_go")
}

func TestUpdate_QQuits(t *testing.T) {
	m, _, _ := newTestModel(t, seed(2))

	_, cmd := press(t, m, runes("q"))
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok, "expected quit message")
}

func TestUpdate_Paging(t *testing.T) {
	m, l, _ := newTestModel(t, seed(7))

	m, _ = press(t, m, runes("j"), runes("j"))
	assert.Equal(t, 2, m.cursor)

	m, _ = press(t, m, runes("n"))
	assert.Equal(t, 2, l.View().Page)
	assert.Equal(t, 0, m.cursor)
	assert.Len(t, l.View().Visible, 2)
	assert.Contains(t, m.View(), "Page 2 of 2")

	// no page 3
	m, _ = press(t, m, runes("n"))
	assert.Equal(t, 2, l.View().Page)

	// cursor stays inside the page
	m, _ = press(t, m, runes("j"), runes("j"), runes("j"))
	assert.Equal(t, 1, m.cursor)

	m, _ = press(t, m, runes("p"))
	assert.Equal(t, 1, l.View().Page)
}

func TestUpdate_AddForm(t *testing.T) {
	m, l, _ := newTestModel(t, seed(1))

	m, _ = press(t, m, runes("a"))
	assert.Equal(t, modeAdd, m.mode)
	assert.True(t, m.title.Focused())

	// q is typed, not a quit
	m, _ = press(t, m, runes("q Go"), tea.KeyMsg{Type: tea.KeyTab}, runes("https://go.dev"))
	assert.Equal(t, "q Go", m.title.Value())
	assert.Equal(t, "https://go.dev", m.url.Value())
	title, url := l.Input()
	assert.Equal(t, "q Go", title)
	assert.Equal(t, "https://go.dev", url)

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	msg := cmd()
	done, ok := msg.(addDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)

	m, _ = send(m, msg)
	assert.Equal(t, modeBrowse, m.mode)
	assert.Empty(t, m.title.Value())
	assert.Empty(t, m.url.Value())

	require.Eventually(t, func() bool {
		return len(l.Snapshot().Collection) == 2
	}, time.Second, 10*time.Millisecond)
	// live inserts are appended
	assert.Equal(t, "Bookmark 1", l.Snapshot().Collection[0].Title)
	assert.Equal(t, "q Go", l.Snapshot().Collection[1].Title)
}

func TestUpdate_AddDuplicateKeepsForm(t *testing.T) {
	m, l, _ := newTestModel(t, seed(1))

	m, _ = press(t, m, runes("a"), runes("Again"), tea.KeyMsg{Type: tea.KeyTab}, runes("https://example.com/1/"))
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	msg := cmd()
	done := msg.(addDoneMsg)
	assert.ErrorIs(t, done.err, bookmarklist.ErrDuplicateURL)

	m, _ = send(m, msg)
	assert.Equal(t, modeAdd, m.mode)
	assert.Equal(t, "Again", m.title.Value())
	title, _ := l.Input()
	assert.Equal(t, "Again", title)
}

func TestUpdate_EscCancelsAdd(t *testing.T) {
	m, _, _ := newTestModel(t, seed(1))

	m, _ = press(t, m, runes("a"), tea.KeyMsg{Type: tea.KeyEscape})
	assert.Equal(t, modeBrowse, m.mode)
	assert.False(t, m.title.Focused())
}

func TestUpdate_DeleteConfirmed(t *testing.T) {
	m, l, p := newTestModel(t, seed(3))

	m, _ = press(t, m, runes("j"), runes("d"))
	assert.Equal(t, modeConfirm, m.mode)
	assert.Equal(t, uint(2), m.pending)
	assert.Contains(t, m.View(), bookmarklist.DeletePrompt)

	m, cmd := press(t, m, runes("y"))
	require.NotNil(t, cmd)
	msg := cmd()
	require.NoError(t, msg.(deleteDoneMsg).err)
	m, _ = send(m, msg)
	assert.Equal(t, modeBrowse, m.mode)

	p.mu.Lock()
	assert.Equal(t, []uint{2}, p.deletes)
	p.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(l.Snapshot().Collection) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestUpdate_DeleteDeclined(t *testing.T) {
	m, _, p := newTestModel(t, seed(3))

	m, cmd := press(t, m, runes("d"), runes("n"))
	assert.Nil(t, cmd)
	assert.Equal(t, modeBrowse, m.mode)
	assert.Zero(t, m.pending)
	assert.Empty(t, p.deletes)
}

func TestUpdate_NotificationShown(t *testing.T) {
	m, _, _ := newTestModel(t, seed(1))

	m, cmd := send(m, noteMsg(bookmarklist.Notification{Level: bookmarklist.LevelSuccess, Message: bookmarklist.MsgAdded}))
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), bookmarklist.MsgAdded)
}

func TestUpdate_ListClosed(t *testing.T) {
	m, _, _ := newTestModel(t, seed(1))

	m, _ = send(m, listClosedMsg{})
	assert.True(t, strings.Contains(m.View(), bookmarklist.MsgFeedLost))
}

func send(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}
