package bookmarks

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/smartmark/pkg/smartmark/auth"
	"github.com/mikepea/smartmark/pkg/smartmark/feed"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
	"github.com/mikepea/smartmark/pkg/smartmark/store"
)

// SSE event names besides the change kinds.
const (
	EventReady = feed.StreamReady
	EventPing  = feed.StreamPing
)

// Handler handles bookmark requests
type Handler struct {
	store     *store.Store
	heartbeat time.Duration
	log       logger.Logger
}

// NewHandler creates a new bookmarks handler. heartbeat is the interval of
// keep-alive pings on the event stream.
func NewHandler(s *store.Store, heartbeat time.Duration, log logger.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &Handler{store: s, heartbeat: heartbeat, log: log}
}

// CreateBookmarkRequest represents the request to create a bookmark
type CreateBookmarkRequest struct {
	Title string `json:"title" binding:"required"`
	URL   string `json:"url" binding:"required,url"`
}

// List returns the caller's bookmarks, newest first.
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	bookmarks, err := h.store.List(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("failed to list bookmarks", logger.Uint("user_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookmarks"})
		return
	}

	c.JSON(http.StatusOK, bookmarks)
}

// Create stores a bookmark. The new row is also published on the change feed.
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateBookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	title := strings.TrimSpace(req.Title)
	url := strings.TrimSpace(req.URL)
	if title == "" || url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and URL are required"})
		return
	}

	created, err := h.store.Insert(c.Request.Context(), models.Bookmark{
		UserID: userID,
		Title:  title,
		URL:    url,
	})
	if err != nil {
		h.log.Error("failed to create bookmark", logger.Uint("user_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add bookmark"})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// Delete removes one of the caller's bookmarks.
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bookmark ID"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), userID, uint(id)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Bookmark not found"})
			return
		}
		h.log.Error("failed to delete bookmark", logger.Uint("user_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not delete"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

// Events streams the caller's bookmark changes as server-sent events.
// The event name is the change kind and the data is the feed event JSON.
func (h *Handler) Events(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	ctx := c.Request.Context()

	sub, err := h.store.Subscribe(ctx, userID)
	if err != nil {
		h.log.Error("failed to open change feed", logger.Uint("user_id", userID), logger.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Change feed unavailable"})
		return
	}
	defer sub.Close()

	log := h.log.With(logger.String("subscription", sub.ID), logger.Uint("user_id", userID))
	log.Debug("event stream opened")
	defer log.Debug("event stream closed")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(EventReady, gin.H{"subscription": sub.ID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Kind), ev)
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent(EventPing, gin.H{"time": time.Now().UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		}
	}
}

// RegisterRoutes registers bookmark routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/bookmarks", h.List)
	rg.POST("/bookmarks", h.Create)
	rg.DELETE("/bookmarks/:id", h.Delete)
	rg.GET("/bookmarks/events", h.Events)
}
