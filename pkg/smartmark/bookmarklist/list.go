// Package bookmarklist keeps a user's bookmark collection in sync with the
// change feed and mediates add and delete requests against persistence.
//
// The collection only changes through feed events. A successful insert or
// delete is reflected once its event arrives.
package bookmarklist

import (
	"context"
	"strings"
	"sync"

	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

// notificationBuffer is how many notifications are held for a slow reader
// before new ones are dropped.
const notificationBuffer = 16

// Option configures a List.
type Option func(*List)

// WithLogger sets the list's logger.
func WithLogger(log logger.Logger) Option {
	return func(l *List) { l.log = log }
}

// List is a live, paginated view of one user's bookmarks.
type List struct {
	mu       sync.Mutex
	state    State
	busy     bool
	title    string
	url      string
	closed   bool
	feedLost bool

	p      Persistence
	sub    Subscription
	userID uint
	log    logger.Logger

	notes     chan Notification
	changes   chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Open subscribes to userID's change feed and returns a list seeded with
// initial. The feed is consumed until Close.
func Open(ctx context.Context, p Persistence, userID uint, initial []models.Bookmark, opts ...Option) (*List, error) {
	l := &List{
		state:   NewState(initial),
		p:       p,
		userID:  userID,
		log:     logger.NewNop(),
		notes:   make(chan Notification, notificationBuffer),
		changes: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	sub, err := p.Subscribe(ctx, userID)
	if err != nil {
		return nil, newPersistenceError(OpSubscribe, err)
	}
	l.sub = sub

	go l.consume()
	return l, nil
}

func (l *List) consume() {
	defer close(l.done)
	events := l.sub.Events()
	for {
		select {
		case <-l.stop:
			return
		case ev, ok := <-events:
			if !ok {
				l.feedClosed()
				return
			}
			l.Apply(ev)
		}
	}
}

func (l *List) feedClosed() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.feedLost = true
	l.mu.Unlock()

	l.log.Warn("bookmark feed ended", logger.Uint("user_id", l.userID))
	l.notify(Notification{Level: LevelError, Message: MsgFeedLost})
	l.signal()
}

// Close releases the subscription and stops the feed consumer. Requests
// still in flight complete, but their results no longer touch the list.
func (l *List) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		close(l.stop)
		err = l.sub.Close()
		<-l.done

		l.mu.Lock()
		close(l.notes)
		close(l.changes)
		l.mu.Unlock()
	})
	return err
}

// Apply folds a change event into the collection.
func (l *List) Apply(ev Event) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	before := len(l.state.Collection)
	l.state = Reduce(l.state, ev)
	after := len(l.state.Collection)
	l.mu.Unlock()

	l.log.Debug("applied bookmark change",
		logger.String("kind", string(ev.Kind)),
		logger.Uint("bookmark_id", ev.Row.ID),
		logger.Int("before", before),
		logger.Int("after", after))
	l.signal()
}

// RequestAdd inserts a bookmark. Title and URL are trimmed first. The
// collection is not touched; the insert shows up through the feed.
func (l *List) RequestAdd(ctx context.Context, title, url string) error {
	title, url = strings.TrimSpace(title), strings.TrimSpace(url)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if title == "" || url == "" {
		l.mu.Unlock()
		return ErrEmptyField
	}
	if HasDuplicate(l.state.Collection, url) {
		l.mu.Unlock()
		l.notify(Notification{Level: LevelError, Message: MsgDuplicate, Err: ErrDuplicateURL})
		return ErrDuplicateURL
	}
	if l.busy {
		l.mu.Unlock()
		return ErrBusy
	}
	l.busy = true
	l.mu.Unlock()
	l.signal()

	_, err := l.p.Insert(ctx, title, url)

	l.mu.Lock()
	l.busy = false
	if err == nil {
		l.title, l.url = "", ""
	}
	l.mu.Unlock()
	l.signal()

	if err != nil {
		perr := newPersistenceError(OpInsert, err)
		l.log.Error("failed to add bookmark", logger.Uint("user_id", l.userID), logger.Error(err))
		l.notify(Notification{Level: LevelError, Message: MsgAddFailed, Err: perr})
		return perr
	}
	l.notify(Notification{Level: LevelSuccess, Message: MsgAdded})
	return nil
}

// RequestDelete asks c for confirmation and then deletes id. A nil
// Confirmer declines. Deletes are not serialized.
func (l *List) RequestDelete(ctx context.Context, id uint, c Confirmer) error {
	if l.isClosed() {
		return ErrClosed
	}
	if c == nil {
		return ErrCancelled
	}
	ok, err := c.Confirm(ctx, DeletePrompt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelled
	}

	if err := l.p.Delete(ctx, id); err != nil {
		perr := newPersistenceError(OpDelete, err)
		l.log.Error("failed to delete bookmark",
			logger.Uint("user_id", l.userID),
			logger.Uint("bookmark_id", id),
			logger.Error(err))
		l.notify(Notification{Level: LevelError, Message: MsgDeleteFailed, Err: perr})
		return perr
	}
	l.notify(Notification{Level: LevelSuccess, Message: MsgDeleted})
	return nil
}

// NextPage advances one page if there is one.
func (l *List) NextPage() bool {
	l.mu.Lock()
	moved := Paginate(l.state).HasNext
	if moved {
		l.state.Page++
	}
	l.mu.Unlock()
	if moved {
		l.signal()
	}
	return moved
}

// PrevPage goes back one page if not on the first.
func (l *List) PrevPage() bool {
	l.mu.Lock()
	moved := l.state.Page > 1
	if moved {
		l.state.Page--
	}
	l.mu.Unlock()
	if moved {
		l.signal()
	}
	return moved
}

// View returns the current page.
func (l *List) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Paginate(l.state)
}

// Snapshot returns a copy of the full state.
func (l *List) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	collection := make([]models.Bookmark, len(l.state.Collection))
	copy(collection, l.state.Collection)
	return State{Collection: collection, Page: l.state.Page}
}

// Busy reports whether an add is in flight.
func (l *List) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy
}

// FeedLost reports whether the change feed ended before Close.
func (l *List) FeedLost() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feedLost
}

// Input returns the pending add form values.
func (l *List) Input() (title, url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.title, l.url
}

// SetInput records the pending add form values.
func (l *List) SetInput(title, url string) {
	l.mu.Lock()
	l.title, l.url = title, url
	l.mu.Unlock()
}

// Submit sends the pending input through RequestAdd.
func (l *List) Submit(ctx context.Context) error {
	title, url := l.Input()
	return l.RequestAdd(ctx, title, url)
}

// Notifications delivers user messages. It is closed by Close.
func (l *List) Notifications() <-chan Notification { return l.notes }

// Changes receives a value whenever the view may have changed. Signals are
// coalesced. It is closed by Close.
func (l *List) Changes() <-chan struct{} { return l.changes }

func (l *List) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *List) notify(n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.notes <- n:
	default:
		l.log.Warn("dropping notification", logger.String("message", n.Message))
	}
}

func (l *List) signal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.changes <- struct{}{}:
	default:
	}
}
