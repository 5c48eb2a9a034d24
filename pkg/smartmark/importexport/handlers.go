package importexport

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/smartmark/pkg/smartmark/auth"
	"github.com/mikepea/smartmark/pkg/smartmark/bookmarklist"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
	"github.com/mikepea/smartmark/pkg/smartmark/store"
)

// Handler handles import/export requests
type Handler struct {
	store *store.Store
}

// NewHandler creates a new import/export handler
func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

// PinboardBookmark represents a bookmark in Pinboard JSON format
type PinboardBookmark struct {
	Href        string `json:"href"`
	Description string `json:"description"`
	Extended    string `json:"extended"`
	Tags        string `json:"tags"`
	Time        string `json:"time"`
	Shared      string `json:"shared"`
	ToRead      string `json:"toread"`
	Meta        string `json:"meta,omitempty"`
	Hash        string `json:"hash,omitempty"`
}

// ImportRequest represents an import request
type ImportRequest struct {
	Bookmarks []PinboardBookmark `json:"bookmarks" binding:"required"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// ExportBookmark represents a bookmark for export
type ExportBookmark struct {
	Href        string `json:"href"`
	Description string `json:"description"`
	Extended    string `json:"extended"`
	Tags        string `json:"tags"`
	Time        string `json:"time"`
	Shared      string `json:"shared"`
	ToRead      string `json:"toread"`
}

// ToExport converts a stored bookmark. Fields the bookmark model does not
// carry are written with Pinboard's defaults.
func ToExport(b models.Bookmark) ExportBookmark {
	return ExportBookmark{
		Href:        b.URL,
		Description: b.Title,
		Time:        b.CreatedAt.UTC().Format(time.RFC3339),
		Shared:      "no",
		ToRead:      "no",
	}
}

// parseTime accepts RFC3339 with or without fractional seconds. An empty
// value yields the zero time, which the store replaces with now.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.New("invalid time format")
	}
	return t, nil
}

func validHref(href string) bool {
	u, err := url.Parse(href)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Import imports bookmarks from Pinboard JSON format. URLs already in the
// library, or repeated within the batch, are counted as duplicates.
func (h *Handler) Import(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	ctx := c.Request.Context()

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := h.store.List(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookmarks"})
		return
	}
	seen := make(map[string]struct{}, len(existing)+len(req.Bookmarks))
	for _, b := range existing {
		seen[bookmarklist.NormalizeURL(b.URL)] = struct{}{}
	}

	result := ImportResult{
		Errors: []string{},
	}

	for i, bookmark := range req.Bookmarks {
		href := strings.TrimSpace(bookmark.Href)
		if !validHref(href) {
			result.Errors = append(result.Errors, "bookmark "+strconv.Itoa(i)+": invalid href")
			result.Skipped++
			continue
		}

		key := bookmarklist.NormalizeURL(href)
		if _, dup := seen[key]; dup {
			result.Duplicates++
			continue
		}

		createdAt, err := parseTime(bookmark.Time)
		if err != nil {
			result.Errors = append(result.Errors, "bookmark "+strconv.Itoa(i)+": "+err.Error())
			result.Skipped++
			continue
		}

		title := strings.TrimSpace(bookmark.Description)
		if title == "" {
			title = href
		}

		_, err = h.store.Insert(ctx, models.Bookmark{
			UserID:    userID,
			Title:     title,
			URL:       href,
			CreatedAt: createdAt,
		})
		if err != nil {
			result.Errors = append(result.Errors, "bookmark "+strconv.Itoa(i)+": "+err.Error())
			result.Skipped++
			continue
		}

		seen[key] = struct{}{}
		result.Imported++
	}

	c.JSON(http.StatusOK, result)
}

// Export exports the user's bookmarks to Pinboard JSON format, newest first
func (h *Handler) Export(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	list, err := h.store.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookmarks"})
		return
	}

	bookmarks := make([]ExportBookmark, len(list))
	for i, b := range list {
		bookmarks[i] = ToExport(b)
	}

	// Set content disposition for download
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=smartmark-export.json")
	}

	c.JSON(http.StatusOK, bookmarks)
}

// ExportSingle exports a single bookmark to Pinboard JSON format
func (h *Handler) ExportSingle(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bookmark ID"})
		return
	}

	b, err := h.store.Get(c.Request.Context(), userID, uint(id))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bookmark not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookmark"})
		return
	}

	c.JSON(http.StatusOK, ToExport(b))
}

// RegisterRoutes registers import/export routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/bookmarks/import", h.Import)
	rg.GET("/bookmarks/export", h.Export)
	rg.GET("/bookmarks/export/:id", h.ExportSingle)
}
