package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mikepea/smartmark/pkg/smartmark/logger"
)

// Memory is an in-process broker. Each subscriber gets a buffered channel;
// events for a subscriber whose buffer is full are dropped and logged.
type Memory struct {
	mu     sync.RWMutex
	subs   map[uint]map[string]chan Event
	buffer int
	log    logger.Logger
	closed bool
}

// NewMemory creates an in-process broker.
func NewMemory(buffer int, log logger.Logger) *Memory {
	if buffer <= 0 {
		buffer = 1
	}
	return &Memory{
		subs:   make(map[uint]map[string]chan Event),
		buffer: buffer,
		log:    log,
	}
}

func (m *Memory) Publish(_ context.Context, userID uint, ev Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	for id, ch := range m.subs[userID] {
		select {
		case ch <- ev:
		default:
			m.log.Warn("dropping feed event for slow subscriber",
				logger.String("subscription", id),
				logger.Uint("user_id", userID),
				logger.String("kind", string(ev.Kind)))
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, userID uint) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	id := uuid.NewString()
	ch := make(chan Event, m.buffer)
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[string]chan Event)
	}
	m.subs[userID][id] = ch

	sub := &Subscription{ID: id, UserID: userID, C: ch}
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	sub.release = func() {
		stop()
		m.remove(userID, id)
	}

	m.log.Debug("feed subscription opened",
		logger.String("subscription", id),
		logger.Uint("user_id", userID))
	return sub, nil
}

func (m *Memory) remove(userID uint, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.subs[userID][id]
	if !ok {
		return
	}
	delete(m.subs[userID], id)
	if len(m.subs[userID]) == 0 {
		delete(m.subs, userID)
	}
	close(ch)
}

// Subscribers returns the number of open subscriptions for userID.
func (m *Memory) Subscribers(userID uint) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[userID])
}

// Close ends every subscription and rejects further use.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for userID, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(m.subs, userID)
	}
	return nil
}
