package bookmarklist

import (
	"context"
	"sync"

	"github.com/mikepea/smartmark/pkg/smartmark/feed"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
	"github.com/mikepea/smartmark/pkg/smartmark/store"
)

// Persistence is the remote store the list writes through. The owner is
// implied by the implementation.
type Persistence interface {
	Insert(ctx context.Context, title, url string) (models.Bookmark, error)
	Delete(ctx context.Context, id uint) error
	Subscribe(ctx context.Context, userID uint) (Subscription, error)
}

// Subscription is an open change feed. Events is closed when the feed ends.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// FeedSubscription adapts a channel of feed events.
type FeedSubscription struct {
	out     chan Event
	stop    chan struct{}
	once    sync.Once
	closeFn func() error
	err     error
}

// NewFeedSubscription converts events from src until src is closed or the
// subscription is. closeFn releases the underlying feed and may be nil.
func NewFeedSubscription(src <-chan feed.Event, closeFn func() error) *FeedSubscription {
	s := &FeedSubscription{
		out:     make(chan Event),
		stop:    make(chan struct{}),
		closeFn: closeFn,
	}
	go func() {
		defer close(s.out)
		for {
			select {
			case <-s.stop:
				return
			case ev, ok := <-src:
				if !ok {
					return
				}
				select {
				case s.out <- FromFeed(ev):
				case <-s.stop:
					return
				}
			}
		}
	}()
	return s
}

func (s *FeedSubscription) Events() <-chan Event { return s.out }

func (s *FeedSubscription) Close() error {
	s.once.Do(func() {
		close(s.stop)
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
	})
	return s.err
}

// StoreAdapter runs the list in-process against a store.Store on behalf of
// one user.
type StoreAdapter struct {
	Store  *store.Store
	UserID uint
}

func (a StoreAdapter) Insert(ctx context.Context, title, url string) (models.Bookmark, error) {
	return a.Store.Insert(ctx, models.Bookmark{UserID: a.UserID, Title: title, URL: url})
}

func (a StoreAdapter) Delete(ctx context.Context, id uint) error {
	return a.Store.Delete(ctx, a.UserID, id)
}

func (a StoreAdapter) Subscribe(ctx context.Context, userID uint) (Subscription, error) {
	sub, err := a.Store.Subscribe(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewFeedSubscription(sub.C, sub.Close), nil
}
