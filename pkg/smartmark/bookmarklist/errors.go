package bookmarklist

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/mikepea/smartmark/pkg/smartmark/store"
)

var (
	// ErrDuplicateURL is returned by RequestAdd when the URL is already in
	// the collection. No request is sent.
	ErrDuplicateURL = errors.New("this URL already exists in your library")
	// ErrEmptyField is returned by RequestAdd for a blank title or URL.
	ErrEmptyField = errors.New("title and URL are required")
	// ErrBusy is returned by RequestAdd while another add is in flight.
	ErrBusy = errors.New("an add is already in progress")
	// ErrCancelled is returned by RequestDelete when the user declines.
	ErrCancelled = errors.New("delete cancelled")
	// ErrClosed is returned by actions on a closed list.
	ErrClosed = errors.New("bookmark list closed")
)

// Persistence operations named in PersistenceError.Op.
const (
	OpInsert    = "insert"
	OpDelete    = "delete"
	OpSubscribe = "subscribe"
)

// ErrorKind classifies a persistence failure.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindConflict     ErrorKind = "conflict"
	KindOther        ErrorKind = "other"
)

// PersistenceError wraps a failure of the persistence collaborator.
type PersistenceError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func newPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Kind: KindOf(err), Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s bookmark failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// statusCoder is implemented by errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch code := sc.StatusCode(); {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return KindUnauthorized
		case code == http.StatusNotFound:
			return KindNotFound
		case code == http.StatusConflict:
			return KindConflict
		case code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
			return KindNetwork
		}
		return KindOther
	}

	if errors.Is(err, store.ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindOther
}
