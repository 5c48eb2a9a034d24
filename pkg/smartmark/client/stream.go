package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mikepea/smartmark/pkg/smartmark/bookmarklist"
	"github.com/mikepea/smartmark/pkg/smartmark/feed"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
)

const maxEventSize = 1 << 20

type sseEvent struct {
	Name string
	Data string
}

// sseReader parses a text/event-stream body.
type sseReader struct {
	sc *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxEventSize)
	return &sseReader{sc: sc}
}

// Next returns the next dispatched event, or io.EOF at the end of the stream.
func (r *sseReader) Next() (sseEvent, error) {
	var (
		ev      sseEvent
		data    []string
		pending bool
	)
	for r.sc.Scan() {
		line := r.sc.Text()
		if line == "" {
			if pending {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		}
	}
	if err := r.sc.Err(); err != nil {
		return sseEvent{}, err
	}
	if pending {
		ev.Data = strings.Join(data, "\n")
		return ev, nil
	}
	return sseEvent{}, io.EOF
}

// Subscribe opens the user's change stream. The server scopes the stream to
// the token's owner, so userID is not sent. It returns once the server has
// confirmed the subscription.
func (c *Client) Subscribe(ctx context.Context, userID uint) (bookmarklist.Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := c.newRequest(streamCtx, http.MethodGet, "/api/bookmarks/events", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		return nil, readError(resp)
	}

	reader := newSSEReader(resp.Body)
	first, err := reader.Next()
	if err == nil && first.Name != feed.StreamReady {
		err = fmt.Errorf("unexpected first event %q", first.Name)
	}
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("event stream not ready: %w", err)
	}

	out := make(chan feed.Event, 16)
	go c.forward(streamCtx, reader, resp.Body, out)

	return bookmarklist.NewFeedSubscription(out, func() error {
		cancel()
		return nil
	}), nil
}

func (c *Client) forward(ctx context.Context, reader *sseReader, body io.Closer, out chan<- feed.Event) {
	defer close(out)
	defer body.Close()

	for {
		ev, err := reader.Next()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				c.log.Warn("event stream failed", logger.Error(err))
			}
			return
		}

		switch feed.Kind(ev.Name) {
		case feed.KindInsert, feed.KindUpdate, feed.KindDelete:
		default:
			continue
		}

		var fe feed.Event
		if err := json.Unmarshal([]byte(ev.Data), &fe); err != nil {
			c.log.Warn("skipping malformed event", logger.String("event", ev.Name), logger.Error(err))
			continue
		}
		select {
		case out <- fe:
		case <-ctx.Done():
			return
		}
	}
}
