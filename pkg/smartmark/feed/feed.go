package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

// Kind is the type of change carried by an Event.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event names used on the HTTP event stream besides the change kinds.
const (
	StreamReady = "ready"
	StreamPing  = "ping"
)

// Event is one row-level change to a user's bookmarks.
// New is set for inserts and updates, Old for updates and deletes.
type Event struct {
	Kind Kind             `json:"kind"`
	New  *models.Bookmark `json:"new"`
	Old  *models.Bookmark `json:"old"`
}

// Row returns the bookmark the event is about.
func (e Event) Row() models.Bookmark {
	switch {
	case e.Kind == KindDelete && e.Old != nil:
		return *e.Old
	case e.New != nil:
		return *e.New
	case e.Old != nil:
		return *e.Old
	}
	return models.Bookmark{}
}

// ErrClosed is returned by a broker after Close.
var ErrClosed = errors.New("feed: broker closed")

// Broker fans out bookmark changes to the subscribers of one owner.
type Broker interface {
	Publish(ctx context.Context, userID uint, ev Event) error
	Subscribe(ctx context.Context, userID uint) (*Subscription, error)
	Close() error
}

// Subscription delivers the events of one owner on C until closed.
// C is closed when the subscription ends, whichever side ends it.
type Subscription struct {
	ID     string
	UserID uint
	C      <-chan Event

	once    sync.Once
	release func()
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
	return nil
}
