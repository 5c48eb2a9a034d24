package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikepea/smartmark/pkg/smartmark/bookmarklist"
	"github.com/mikepea/smartmark/pkg/smartmark/database"
	"github.com/mikepea/smartmark/pkg/smartmark/feed"
	"github.com/mikepea/smartmark/pkg/smartmark/importexport"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/server"
	"github.com/mikepea/smartmark/pkg/smartmark/store"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(":memory:", database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	broker := feed.NewMemory(16, logger.NewNop())

	router := server.NewRouter(server.Deps{
		DB:        db,
		Store:     store.New(db, broker, logger.NewNop()),
		Logger:    logger.NewNop(),
		BaseURL:   "http://localhost",
		Heartbeat: time.Second,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		broker.Close()
		srv.Close()
	})
	return srv
}

func registeredClient(t *testing.T, srv *httptest.Server, email string) *Client {
	t.Helper()
	c := New(srv.URL)
	_, err := c.Register(context.Background(), email, "password123", "Test User")
	require.NoError(t, err)
	return c
}

func TestSSEReader(t *testing.T) {
	stream := strings.Join([]string{
		": comment",
		"event:ready",
		`data:{"subscription":"abc"}`,
		"",
		"event: insert",
		"data: line one",
		"data: line two",
		"id: 7",
		"",
		"",
		"event:ping",
		"data:{}",
	}, "\n")
	r := newSSEReader(strings.NewReader(stream))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, sseEvent{Name: "ready", Data: `{"subscription":"abc"}`}, ev)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, sseEvent{Name: "insert", Data: "line one\nline two"}, ev)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "ping", ev.Name)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLoginMeLogout(t *testing.T) {
	srv := setupTestServer(t)
	registeredClient(t, srv, "test@example.com")

	c := New(srv.URL)
	resp, err := c.Login(context.Background(), "TEST@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Token())
	assert.Equal(t, "test@example.com", resp.User.Email)

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, me.ID)

	require.NoError(t, c.Logout(context.Background()))
	assert.Empty(t, c.Token())
}

func TestBadLogin(t *testing.T) {
	srv := setupTestServer(t)
	registeredClient(t, srv, "test@example.com")

	_, err := New(srv.URL).Login(context.Background(), "test@example.com", "wrong-password")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
}

func TestUnauthenticated(t *testing.T) {
	srv := setupTestServer(t)
	c := New(srv.URL)

	_, err := c.List(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, bookmarklist.KindUnauthorized, bookmarklist.KindOf(err))

	_, err = c.Subscribe(context.Background(), 0)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestInsertListDelete(t *testing.T) {
	srv := setupTestServer(t)
	c := registeredClient(t, srv, "test@example.com")
	ctx := context.Background()

	created, err := c.Insert(ctx, "Go", "https://go.dev")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "https://go.dev", list[0].URL)

	require.NoError(t, c.Delete(ctx, created.ID))

	err = c.Delete(ctx, created.ID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, bookmarklist.KindNotFound, bookmarklist.KindOf(err))
}

func TestInsertValidation(t *testing.T) {
	srv := setupTestServer(t)
	c := registeredClient(t, srv, "test@example.com")

	_, err := c.Insert(context.Background(), "Broken", "not-a-url")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestServerUnreachable(t *testing.T) {
	srv := setupTestServer(t)
	url := srv.URL
	srv.Close()

	_, err := New(url, WithTimeout(time.Second)).List(context.Background())
	require.Error(t, err)
	assert.Equal(t, bookmarklist.KindNetwork, bookmarklist.KindOf(err))
}

func TestSubscribeReceivesChanges(t *testing.T) {
	srv := setupTestServer(t)
	c := registeredClient(t, srv, "test@example.com")
	ctx := context.Background()

	sub, err := c.Subscribe(ctx, 0)
	require.NoError(t, err)
	defer sub.Close()

	created, err := c.Insert(ctx, "Go", "https://go.dev")
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, created.ID))

	for _, want := range []bookmarklist.EventKind{bookmarklist.Insert, bookmarklist.Delete} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, want, ev.Kind)
			assert.Equal(t, created.ID, ev.Row.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestSubscribeCloseEndsStream(t *testing.T) {
	srv := setupTestServer(t)
	c := registeredClient(t, srv, "test@example.com")

	sub, err := c.Subscribe(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("expected events channel to close")
	}
}

func TestListDrivenByClient(t *testing.T) {
	srv := setupTestServer(t)
	c := registeredClient(t, srv, "test@example.com")
	other := registeredClient(t, srv, "other@example.com")
	ctx := context.Background()

	initial, err := c.List(ctx)
	require.NoError(t, err)
	l, err := bookmarklist.Open(ctx, c, 0, initial)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.RequestAdd(ctx, "Go", "https://go.dev"))
	require.Eventually(t, func() bool { return l.View().Total == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = other.Insert(ctx, "Theirs", "https://example.org")
	require.NoError(t, err)

	assert.ErrorIs(t, l.RequestAdd(ctx, "Again", "https://GO.dev/"), bookmarklist.ErrDuplicateURL)

	id := l.View().Visible[0].ID
	require.NoError(t, l.RequestDelete(ctx, id, bookmarklist.AlwaysConfirm))
	require.Eventually(t, func() bool { return l.View().Empty }, 2*time.Second, 10*time.Millisecond)
}

func TestImportExport(t *testing.T) {
	srv := setupTestServer(t)
	c := registeredClient(t, srv, "test@example.com")
	ctx := context.Background()

	result, err := c.Import(ctx, []importexport.PinboardBookmark{
		{Href: "https://go.dev", Description: "Go"},
		{Href: "https://go.dev/", Description: "Go again"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Duplicates)

	exported, err := c.Export(ctx)
	require.NoError(t, err)
	require.Len(t, exported, 1)
	assert.Equal(t, "Go", exported[0].Description)
}

func TestAPIErrorIs(t *testing.T) {
	assert.True(t, errors.Is(&APIError{Status: 401}, ErrUnauthenticated))
	assert.False(t, errors.Is(&APIError{Status: 403}, ErrUnauthenticated))
	assert.Equal(t, "Bookmark not found (HTTP 404)", (&APIError{Status: 404, Message: "Bookmark not found"}).Error())
}
