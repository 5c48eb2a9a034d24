// Package apikeys issues long-lived keys for scripts that read and write a
// user's bookmarks without an interactive login.
package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/smartmark/pkg/smartmark/auth"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

const (
	// KeyPrefix marks a bearer token as an API key rather than a JWT.
	KeyPrefix = "smk_"
	// secretBytes is the random part of a key, hex encoded after the prefix.
	secretBytes = 32
	// displayLength is how much of a key is kept in clear for listing.
	displayLength = len(KeyPrefix) + 8
	// MaxKeysPerUser caps how many live keys one user may hold.
	MaxKeysPerUser = 10
)

var ErrInvalidAPIKey = errors.New("invalid API key")

// Handler handles API key requests
type Handler struct {
	db  *gorm.DB
	log logger.Logger
}

// NewHandler creates a new API keys handler
func NewHandler(db *gorm.DB, log logger.Logger) *Handler {
	return &Handler{db: db, log: log}
}

// APIKeyResponse is a key as listed; the secret is never returned again.
type APIKeyResponse struct {
	ID          uint       `json:"id"`
	KeyPrefix   string     `json:"key_prefix"`
	Description string     `json:"description"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

type CreateAPIKeyRequest struct {
	Description string `json:"description"`
}

// CreateAPIKeyResponse carries the full key. It is shown only once.
type CreateAPIKeyResponse struct {
	ID          uint      `json:"id"`
	Key         string    `json:"key"`
	KeyPrefix   string    `json:"key_prefix"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func newKey() (string, error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return KeyPrefix + hex.EncodeToString(secret), nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// IsAPIKey reports whether a bearer token has the API key shape.
func IsAPIKey(token string) bool {
	return strings.HasPrefix(token, KeyPrefix) && len(token) == len(KeyPrefix)+2*secretBytes
}

func toResponse(k models.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:          k.ID,
		KeyPrefix:   k.KeyPrefix,
		Description: k.Description,
		LastUsedAt:  k.LastUsedAt,
		CreatedAt:   k.CreatedAt,
	}
}

// Create issues a key for the signed-in user. The body is optional.
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	db := h.db.WithContext(c.Request.Context())

	var req CreateAPIKeyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var count int64
	if err := db.Model(&models.APIKey{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count API keys"})
		return
	}
	if count >= MaxKeysPerUser {
		c.JSON(http.StatusConflict, gin.H{"error": "API key limit reached"})
		return
	}

	key, err := newKey()
	if err != nil {
		h.log.Error("failed to generate api key", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate API key"})
		return
	}

	apiKey := models.APIKey{
		UserID:      userID,
		KeyHash:     hashKey(key),
		KeyPrefix:   key[:displayLength],
		Description: strings.TrimSpace(req.Description),
	}
	if err := db.Create(&apiKey).Error; err != nil {
		h.log.Error("failed to store api key", logger.Uint("user_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API key"})
		return
	}

	h.log.Info("api key created", logger.Uint("user_id", userID), logger.String("key_prefix", apiKey.KeyPrefix))
	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		ID:          apiKey.ID,
		Key:         key,
		KeyPrefix:   apiKey.KeyPrefix,
		Description: apiKey.Description,
		CreatedAt:   apiKey.CreatedAt,
	})
}

// List returns the signed-in user's keys, newest first.
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var keys []models.APIKey
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch API keys"})
		return
	}

	out := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		out[i] = toResponse(k)
	}
	c.JSON(http.StatusOK, out)
}

// Delete revokes one of the signed-in user's keys.
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	keyID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid API key ID"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", keyID, userID).
		Delete(&models.APIKey{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete API key"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return
	}

	h.log.Info("api key revoked", logger.Uint("user_id", userID), logger.Uint("key_id", uint(keyID)))
	c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
}

// Lookup resolves a key to its row.
func Lookup(ctx context.Context, db *gorm.DB, key string) (*models.APIKey, error) {
	if !IsAPIKey(key) {
		return nil, ErrInvalidAPIKey
	}

	var apiKey models.APIKey
	err := db.WithContext(ctx).Where("key_hash = ?", hashKey(key)).First(&apiKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}
	return &apiKey, nil
}

// Touch records that a key was just used.
func Touch(ctx context.Context, db *gorm.DB, apiKeyID uint) error {
	return db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", apiKeyID).
		Update("last_used_at", time.Now()).Error
}

// CombinedAuthMiddleware accepts either a session JWT or an API key as the
// bearer token. API keys are told apart by their prefix.
func CombinedAuthMiddleware(db *gorm.DB, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		if !IsAPIKey(token) {
			claims, err := auth.ValidateToken(token)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "Token has expired"
				}
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
				return
			}
			auth.SetUser(c, claims.UserID, claims.Email)
			c.Next()
			return
		}

		ctx := c.Request.Context()
		apiKey, err := Lookup(ctx, db, token)
		if err != nil {
			if !errors.Is(err, ErrInvalidAPIKey) {
				log.Error("api key lookup failed", logger.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		var user models.User
		if err := db.WithContext(ctx).First(&user, apiKey.UserID).Error; err != nil || !user.Active {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}

		if err := Touch(ctx, db, apiKey.ID); err != nil {
			log.Warn("failed to record api key use", logger.Uint("key_id", apiKey.ID), logger.Error(err))
		}

		auth.SetUser(c, user.ID, user.Email)
		c.Next()
	}
}

// RegisterRoutes registers API key routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/api-keys", h.Create)
	rg.GET("/api-keys", h.List)
	rg.DELETE("/api-keys/:id", h.Delete)
}
