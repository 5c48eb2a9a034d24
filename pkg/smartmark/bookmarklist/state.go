package bookmarklist

import (
	"net/url"
	"strings"

	"github.com/mikepea/smartmark/pkg/smartmark/feed"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

// PageSize is the number of bookmarks shown per page.
const PageSize = 5

// EventKind is the kind of change an Event carries.
type EventKind string

const (
	Insert EventKind = "insert"
	Update EventKind = "update"
	Delete EventKind = "delete"
)

// Event is the single inbound message the list reacts to, whatever
// transport delivered it.
type Event struct {
	Kind EventKind
	Row  models.Bookmark
}

// FromFeed converts a change-feed event. Deletes carry the removed row.
func FromFeed(ev feed.Event) Event {
	return Event{Kind: EventKind(ev.Kind), Row: ev.Row()}
}

// State is the list's data: the loaded collection in insertion order and
// the 1-based current page.
type State struct {
	Collection []models.Bookmark
	Page       int
}

// NewState starts at page 1 with a copy of initial, keeping the first
// occurrence of each ID.
func NewState(initial []models.Bookmark) State {
	collection := make([]models.Bookmark, 0, len(initial))
	seen := make(map[uint]struct{}, len(initial))
	for _, b := range initial {
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		collection = append(collection, b)
	}
	return State{Collection: collection, Page: 1}
}

// Reduce applies ev to s and returns the new state. s is not modified.
// Inserts of a known ID and deletes of an unknown ID leave the state as
// is; updates are ignored.
func Reduce(s State, ev Event) State {
	switch ev.Kind {
	case Insert:
		if indexOf(s.Collection, ev.Row.ID) >= 0 {
			return s
		}
		next := make([]models.Bookmark, len(s.Collection), len(s.Collection)+1)
		copy(next, s.Collection)
		return State{Collection: append(next, ev.Row), Page: s.Page}

	case Delete:
		i := indexOf(s.Collection, ev.Row.ID)
		if i < 0 {
			return s
		}
		next := make([]models.Bookmark, 0, len(s.Collection)-1)
		next = append(next, s.Collection[:i]...)
		next = append(next, s.Collection[i+1:]...)
		return State{Collection: next, Page: s.Page}
	}
	return s
}

func indexOf(collection []models.Bookmark, id uint) int {
	for i, b := range collection {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// View is the paginated projection of a State.
type View struct {
	Visible      []models.Bookmark
	Total        int
	Page         int
	TotalPages   int
	HasPrev      bool
	HasNext      bool
	ShowControls bool
	Empty        bool
	// OutOfRange is set when the collection shrank below the current page.
	// The page is left where it is.
	OutOfRange bool
}

// Paginate derives the view of s.
func Paginate(s State) View {
	page := s.Page
	if page < 1 {
		page = 1
	}
	total := len(s.Collection)
	totalPages := (total + PageSize - 1) / PageSize
	if totalPages < 1 {
		totalPages = 1
	}

	start := (page - 1) * PageSize
	end := start + PageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	visible := make([]models.Bookmark, end-start)
	copy(visible, s.Collection[start:end])

	return View{
		Visible:      visible,
		Total:        total,
		Page:         page,
		TotalPages:   totalPages,
		HasPrev:      page > 1,
		HasNext:      page < totalPages,
		ShowControls: totalPages > 1,
		Empty:        total == 0,
		OutOfRange:   page > totalPages,
	}
}

// NormalizeURL is the form used for duplicate detection: surrounding
// whitespace trimmed, lowercased, trailing slashes removed.
func NormalizeURL(raw string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(raw)), "/")
}

// Hostname is the host part of a bookmark URL, shown beside its title. An
// unparseable or host-less URL is returned trimmed as is.
func Hostname(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

// HasDuplicate reports whether rawURL matches a bookmark in collection after
// normalization.
func HasDuplicate(collection []models.Bookmark, rawURL string) bool {
	want := NormalizeURL(rawURL)
	for _, b := range collection {
		if NormalizeURL(b.URL) == want {
			return true
		}
	}
	return false
}
