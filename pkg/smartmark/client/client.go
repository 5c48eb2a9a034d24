// Package client talks to a smartmark server over HTTP. A Client can back a
// bookmarklist.List directly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mikepea/smartmark/pkg/smartmark/auth"
	"github.com/mikepea/smartmark/pkg/smartmark/importexport"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

// ErrUnauthenticated matches any APIError with status 401.
var ErrUnauthenticated = errors.New("not logged in")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthenticated && e.Status == http.StatusUnauthorized
}

const defaultTimeout = 15 * time.Second

// Client is a smartmark API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        logger.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. It must not set a Timeout, or
// event streams are cut off; per-request limits come from WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token (JWT or API key).
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds every request except the event stream. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("api request",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("duration", time.Since(start)))

	if resp.StatusCode >= http.StatusBadRequest {
		return readError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// readError builds an APIError from the server's {"error": "..."} body.
func readError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := gjson.GetBytes(data, "error").String()
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// Register creates a password account and keeps its token.
func (c *Client) Register(ctx context.Context, email, password, name string) (auth.AuthResponse, error) {
	var out auth.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", auth.RegisterRequest{Email: email, Password: password, Name: name}, &out)
	if err != nil {
		return auth.AuthResponse{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// Login signs in with a password and keeps the token.
func (c *Client) Login(ctx context.Context, email, password string) (auth.AuthResponse, error) {
	var out auth.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", auth.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return auth.AuthResponse{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (auth.UserResponse, error) {
	var out auth.UserResponse
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out)
	return out, err
}

// Logout tells the server and forgets the token.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.SetToken("")
	return err
}

// List returns the user's bookmarks, newest first.
func (c *Client) List(ctx context.Context) ([]models.Bookmark, error) {
	var out []models.Bookmark
	if err := c.do(ctx, http.MethodGet, "/api/bookmarks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Insert adds a bookmark.
func (c *Client) Insert(ctx context.Context, title, url string) (models.Bookmark, error) {
	var out models.Bookmark
	err := c.do(ctx, http.MethodPost, "/api/bookmarks", map[string]string{"title": title, "url": url}, &out)
	return out, err
}

// Delete removes a bookmark.
func (c *Client) Delete(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/bookmarks/%d", id), nil, nil)
}

// Import uploads bookmarks in Pinboard format.
func (c *Client) Import(ctx context.Context, bookmarks []importexport.PinboardBookmark) (importexport.ImportResult, error) {
	var out importexport.ImportResult
	err := c.do(ctx, http.MethodPost, "/api/bookmarks/import", importexport.ImportRequest{Bookmarks: bookmarks}, &out)
	return out, err
}

// Export downloads every bookmark in Pinboard format.
func (c *Client) Export(ctx context.Context) ([]importexport.ExportBookmark, error) {
	var out []importexport.ExportBookmark
	if err := c.do(ctx, http.MethodGet, "/api/bookmarks/export", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
