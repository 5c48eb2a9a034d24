package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikepea/smartmark/pkg/smartmark/database"
	"github.com/mikepea/smartmark/pkg/smartmark/feed"
	"github.com/mikepea/smartmark/pkg/smartmark/importexport"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/server"
	"github.com/mikepea/smartmark/pkg/smartmark/store"
)

func setupTestServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(":memory:", database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	broker := feed.NewMemory(16, logger.NewNop())
	srv := httptest.NewServer(server.NewRouter(server.Deps{
		DB:        db,
		Store:     store.New(db, broker, logger.NewNop()),
		Logger:    logger.NewNop(),
		BaseURL:   "http://localhost",
		Heartbeat: time.Second,
	}))
	t.Cleanup(func() {
		broker.Close()
		srv.Close()
	})

	t.Setenv("SMARTMARK_SERVER", srv.URL)
	t.Setenv("SMARTMARK_HOME", t.TempDir())
	return srv.URL
}

// run executes the CLI once with args and stdin, returning stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, "", args...)
	require.NoError(t, err, "smartmark %s", strings.Join(args, " "))
	return out
}

func register(t *testing.T) {
	t.Helper()
	out := mustRun(t, "register", "--email", "cli@example.com", "--name", "CLI User", "--password", "password123")
	assert.Equal(t, "Registered and logged in as cli@example.com\n", out)
}

func TestSessionLifecycle(t *testing.T) {
	setupTestServer(t)

	_, err := run(t, "", "whoami")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	register(t)
	assert.Equal(t, "cli@example.com (CLI User)\n", mustRun(t, "whoami"))

	assert.Equal(t, "Logged out\n", mustRun(t, "logout"))
	_, err = run(t, "", "whoami")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, "Not logged in\n", mustRun(t, "logout"))

	out, err := run(t, "password123\n", "login", "--email", "cli@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Password: Logged in as cli@example.com\n", out)

	_, err = run(t, "", "login", "--email", "cli@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid email or password")
}

func TestAddListDelete(t *testing.T) {
	setupTestServer(t)
	register(t)

	assert.Equal(t, "Your collection is empty.\n", mustRun(t, "list"))

	assert.Equal(t, "Bookmark added successfully\n", mustRun(t, "add", "Go", "https://go.dev"))
	assert.Equal(t, "Bookmark added successfully\n", mustRun(t, "add", "  Gin  ", "https://gin-gonic.com"))

	_, err := run(t, "", "add", "Go again", "HTTPS://GO.DEV/")
	require.Error(t, err)
	assert.Equal(t, "This URL already exists in your library", err.Error())

	_, err = run(t, "", "add", " ", "https://example.com")
	require.Error(t, err)

	out := mustRun(t, "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Gin")
	assert.Contains(t, lines[2], "https://go.dev")
	id := strings.Fields(lines[2])[0]

	out, err = run(t, "n\n", "rm", id)
	require.NoError(t, err)
	assert.Equal(t, "Delete this bookmark? [y/N] Cancelled.\n", out)

	assert.Equal(t, "Deleted\n", mustRun(t, "rm", "--yes", id))
	assert.NotContains(t, mustRun(t, "list"), "go.dev")

	_, err = run(t, "", "rm", "--yes", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = run(t, "", "rm", "abc")
	assert.Error(t, err)
}

func TestListPaging(t *testing.T) {
	setupTestServer(t)
	register(t)

	for i := 0; i < 7; i++ {
		mustRun(t, "add", "Site", "https://example.com/"+string(rune('a'+i)))
	}

	out := mustRun(t, "list")
	assert.Contains(t, out, "Page 1 of 2 | Next: --page 2")

	out = mustRun(t, "list", "--page", "2")
	assert.Contains(t, out, "Page 2 of 2 | Previous: --page 1")
	assert.Contains(t, out, "https://example.com/a")

	assert.Equal(t, "Page 3 is past the last page (2).\n", mustRun(t, "list", "--page", "3"))

	_, err := run(t, "", "list", "--page", "0")
	assert.Error(t, err)
}

func TestImportExport(t *testing.T) {
	setupTestServer(t)
	register(t)

	dir := t.TempDir()
	in := filepath.Join(dir, "pinboard.json")
	data := `[
		{"href": "https://go.dev", "description": "Go", "time": "2024-01-01T00:00:00Z"},
		{"href": "https://go.dev/", "description": "Go again"},
		{"href": "not a url", "description": "Broken"}
	]`
	require.NoError(t, os.WriteFile(in, []byte(data), 0o600))

	out := mustRun(t, "import", in)
	assert.Equal(t, "Imported 1, skipped 1 duplicates and 1 invalid entries\n", out)

	out = mustRun(t, "export")
	var rows []importexport.ExportBookmark
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "https://go.dev", rows[0].Href)
	assert.Equal(t, "2024-01-01T00:00:00Z", rows[0].Time)

	file := filepath.Join(dir, "export.json")
	assert.Equal(t, "Exported 1 bookmarks to "+file+"\n", mustRun(t, "export", "-o", file))
	_, err := os.Stat(file)
	assert.NoError(t, err)

	_, err = run(t, "", "import", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestExpiredSession(t *testing.T) {
	setupTestServer(t)

	s, err := LoadSettings(nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveToken("not.a.jwt"))

	_, err = run(t, "", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smartmark login")
}
