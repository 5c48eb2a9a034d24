package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
	}
	return Event{}
}

func assertClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case _, ok := <-sub.C:
		assert.False(t, ok, "expected subscription channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription to close")
	}
}

func TestEventJSON(t *testing.T) {
	ev := Event{Kind: KindDelete, Old: &models.Bookmark{ID: 7, Title: "Go", URL: "https://go.dev"}}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "delete", raw["kind"])
	assert.Nil(t, raw["new"])
	assert.NotNil(t, raw["old"])
}

func TestEventRow(t *testing.T) {
	oldRow := &models.Bookmark{ID: 1, Title: "old"}
	newRow := &models.Bookmark{ID: 1, Title: "new"}

	assert.Equal(t, "new", Event{Kind: KindInsert, New: newRow}.Row().Title)
	assert.Equal(t, "old", Event{Kind: KindDelete, Old: oldRow}.Row().Title)
	assert.Equal(t, "new", Event{Kind: KindUpdate, New: newRow, Old: oldRow}.Row().Title)
	assert.Equal(t, uint(0), Event{Kind: KindInsert}.Row().ID)
}

func TestMemoryFanOutPerUser(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(4, logger.NewNop())
	defer b.Close()

	alice1, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)
	alice2, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)
	bob, err := b.Subscribe(ctx, 2)
	require.NoError(t, err)

	ev := Event{Kind: KindInsert, New: &models.Bookmark{ID: 10, UserID: 1}}
	require.NoError(t, b.Publish(ctx, 1, ev))

	assert.Equal(t, uint(10), receive(t, alice1).New.ID)
	assert.Equal(t, uint(10), receive(t, alice2).New.ID)

	select {
	case got := <-bob.C:
		t.Fatalf("bob received another user's event: %+v", got)
	default:
	}
}

func TestMemorySubscriptionClose(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(4, logger.NewNop())
	defer b.Close()

	sub, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers(1))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, b.Subscribers(1))
	assertClosed(t, sub)

	assert.NoError(t, b.Publish(ctx, 1, Event{Kind: KindInsert}))
}

func TestMemoryContextCancelClosesSubscription(t *testing.T) {
	b := NewMemory(4, logger.NewNop())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)

	cancel()
	assertClosed(t, sub)
	assert.Eventually(t, func() bool { return b.Subscribers(1) == 0 }, time.Second, 10*time.Millisecond)
}

func TestMemoryDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(1, logger.NewNop())
	defer b.Close()

	sub, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, 1, Event{Kind: KindInsert, New: &models.Bookmark{ID: 1}}))
	require.NoError(t, b.Publish(ctx, 1, Event{Kind: KindInsert, New: &models.Bookmark{ID: 2}}))

	assert.Equal(t, uint(1), receive(t, sub).New.ID)
	select {
	case ev := <-sub.C:
		t.Fatalf("expected second event to be dropped, got %+v", ev)
	default:
	}
}

func TestMemoryClose(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(4, logger.NewNop())

	sub, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	assertClosed(t, sub)
	assert.NoError(t, sub.Close())

	_, err = b.Subscribe(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Publish(ctx, 1, Event{}), ErrClosed)
}

func newRedisBroker(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	b := NewRedis(client, 4, logger.NewNop())
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestChannelKey(t *testing.T) {
	assert.Equal(t, "smartmark:bookmarks:42", ChannelKey(42))
}

func TestRedisPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b, _ := newRedisBroker(t)

	alice, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)
	bob, err := b.Subscribe(ctx, 2)
	require.NoError(t, err)

	row := &models.Bookmark{ID: 5, UserID: 1, Title: "Redis", URL: "https://redis.io"}
	require.NoError(t, b.Publish(ctx, 1, Event{Kind: KindInsert, New: row}))

	got := receive(t, alice)
	assert.Equal(t, KindInsert, got.Kind)
	require.NotNil(t, got.New)
	assert.Equal(t, "https://redis.io", got.New.URL)
	assert.Nil(t, got.Old)

	select {
	case ev := <-bob.C:
		t.Fatalf("bob received another user's event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisIgnoresMalformedPayload(t *testing.T) {
	ctx := context.Background()
	b, mr := newRedisBroker(t)

	sub, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)

	mr.Publish(ChannelKey(1), "not json")
	require.NoError(t, b.Publish(ctx, 1, Event{Kind: KindDelete, Old: &models.Bookmark{ID: 3}}))

	got := receive(t, sub)
	assert.Equal(t, KindDelete, got.Kind)
	assert.Equal(t, uint(3), got.Old.ID)
}

func TestRedisSubscriptionClose(t *testing.T) {
	ctx := context.Background()
	b, _ := newRedisBroker(t)

	sub, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assertClosed(t, sub)
}

func TestRedisClose(t *testing.T) {
	ctx := context.Background()
	b, _ := newRedisBroker(t)

	sub, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	assertClosed(t, sub)

	_, err = b.Subscribe(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Publish(ctx, 1, Event{}), ErrClosed)
}
