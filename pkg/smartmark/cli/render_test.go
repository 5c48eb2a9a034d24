package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/mikepea/smartmark/pkg/smartmark/bookmarklist"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

func numbered(n int) []models.Bookmark {
	rows := make([]models.Bookmark, n)
	for i := range rows {
		rows[i] = models.Bookmark{
			ID:    uint(i + 1),
			Title: fmt.Sprintf("Bookmark %d", i+1),
			URL:   fmt.Sprintf("https://example.com/%d", i+1),
		}
	}
	return rows
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		rows int
		page int
	}{
		{"render_first_page", 12, 1},
		{"render_middle_page", 12, 2},
		{"render_single_page", 2, 1},
		{"render_empty", 0, 1},
		{"render_out_of_range", 12, 4},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := bookmarklist.NewState(numbered(tt.rows))
			state.Page = tt.page

			var buf bytes.Buffer
			require.NoError(t, Render(&buf, bookmarklist.Paginate(state)))
			g.Assert(t, tt.name, buf.Bytes())
		})
	}
}
