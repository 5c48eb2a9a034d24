package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mikepea/smartmark/pkg/smartmark/logger"
)

// KeyPrefixChannel is the prefix of the per-owner pub/sub channel.
const KeyPrefixChannel = "smartmark:bookmarks:"

// ChannelKey returns the pub/sub channel carrying userID's changes.
func ChannelKey(userID uint) string {
	return KeyPrefixChannel + strconv.FormatUint(uint64(userID), 10)
}

// Redis is a broker backed by Redis pub/sub, so several server processes
// can share one change feed. The client is owned by the caller.
type Redis struct {
	client *goredis.Client
	buffer int
	log    logger.Logger

	mu     sync.Mutex
	subs   map[string]*goredis.PubSub
	closed bool
}

// NewRedis creates a broker publishing on client.
func NewRedis(client *goredis.Client, buffer int, log logger.Logger) *Redis {
	if buffer <= 0 {
		buffer = 1
	}
	return &Redis{
		client: client,
		buffer: buffer,
		log:    log,
		subs:   make(map[string]*goredis.PubSub),
	}
}

func (r *Redis) Publish(ctx context.Context, userID uint, ev Event) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal feed event: %w", err)
	}
	if err := r.client.Publish(ctx, ChannelKey(userID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish feed event: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, userID uint) (*Subscription, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	ps := r.client.Subscribe(ctx, ChannelKey(userID))
	// Wait for the subscribe confirmation so no publish after return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ChannelKey(userID), err)
	}

	id := uuid.NewString()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ps.Close()
		return nil, ErrClosed
	}
	r.subs[id] = ps
	r.mu.Unlock()

	out := make(chan Event, r.buffer)
	sub := &Subscription{ID: id, UserID: userID, C: out}
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	sub.release = func() {
		stop()
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
		_ = ps.Close()
	}

	go r.forward(ps, out, id, userID)
	return sub, nil
}

func (r *Redis) forward(ps *goredis.PubSub, out chan<- Event, id string, userID uint) {
	defer close(out)

	for msg := range ps.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			r.log.Warn("ignoring malformed feed event",
				logger.String("subscription", id),
				logger.Error(err))
			continue
		}
		select {
		case out <- ev:
		default:
			r.log.Warn("dropping feed event for slow subscriber",
				logger.String("subscription", id),
				logger.Uint("user_id", userID),
				logger.String("kind", string(ev.Kind)))
		}
	}
}

// Close ends every open subscription. The Redis client stays open.
func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	for id, ps := range r.subs {
		_ = ps.Close()
		delete(r.subs, id)
	}
	return nil
}
