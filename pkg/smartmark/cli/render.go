package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mikepea/smartmark/pkg/smartmark/bookmarklist"
)

// Render writes a page of bookmarks as a plain table.
func Render(w io.Writer, v bookmarklist.View) error {
	if v.Empty {
		_, err := fmt.Fprintln(w, "Your collection is empty.")
		return err
	}
	if v.OutOfRange {
		_, err := fmt.Fprintf(w, "Page %d is past the last page (%d).\n", v.Page, v.TotalPages)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tHOST\tURL")
	for _, b := range v.Visible {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", b.ID, b.Title, bookmarklist.Hostname(b.URL), b.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !v.ShowControls {
		return nil
	}
	parts := []string{fmt.Sprintf("Page %d of %d", v.Page, v.TotalPages)}
	if v.HasPrev {
		parts = append(parts, fmt.Sprintf("Previous: --page %d", v.Page-1))
	}
	if v.HasNext {
		parts = append(parts, fmt.Sprintf("Next: --page %d", v.Page+1))
	}
	_, err := fmt.Fprintf(w, "\n%s\n", strings.Join(parts, " | "))
	return err
}
