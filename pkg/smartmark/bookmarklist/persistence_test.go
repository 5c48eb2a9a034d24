package bookmarklist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikepea/smartmark/pkg/smartmark/database"
	"github.com/mikepea/smartmark/pkg/smartmark/feed"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
	"github.com/mikepea/smartmark/pkg/smartmark/store"
)

func TestStoreAdapterEndToEnd(t *testing.T) {
	db, err := database.Open(":memory:", database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	broker := feed.NewMemory(16, logger.NewNop())
	t.Cleanup(func() { broker.Close() })
	s := store.New(db, broker, logger.NewNop())

	user := models.User{Email: "test@example.com", Name: "Test"}
	require.NoError(t, db.Create(&user).Error)

	ctx := context.Background()
	l, err := Open(ctx, StoreAdapter{Store: s, UserID: user.ID}, user.ID, nil)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.RequestAdd(ctx, "Go", "https://go.dev"))
	require.Eventually(t, func() bool { return l.View().Total == 1 }, 2*time.Second, 5*time.Millisecond)

	added := l.View().Visible[0]
	assert.Equal(t, "https://go.dev", added.URL)
	assert.ErrorIs(t, l.RequestAdd(ctx, "Go again", "https://GO.dev/"), ErrDuplicateURL)

	require.NoError(t, l.RequestDelete(ctx, added.ID, AlwaysConfirm))
	require.Eventually(t, func() bool { return l.View().Empty }, 2*time.Second, 5*time.Millisecond)

	err = l.RequestDelete(ctx, added.ID, AlwaysConfirm)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindNotFound, perr.Kind)
}

func TestFeedSubscriptionClose(t *testing.T) {
	src := make(chan feed.Event)
	released := 0
	sub := NewFeedSubscription(src, func() error {
		released++
		return nil
	})

	row := models.Bookmark{ID: 1, URL: "https://go.dev"}
	go func() { src <- feed.Event{Kind: feed.KindInsert, New: &row} }()

	select {
	case ev := <-sub.Events():
		assert.Equal(t, Insert, ev.Kind)
		assert.Equal(t, uint(1), ev.Row.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 1, released)

	_, ok := <-sub.Events()
	assert.False(t, ok)
}
