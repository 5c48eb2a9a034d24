package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/mikepea/smartmark/pkg/smartmark/auth"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

// ErrorPath is where failed sign-ins are sent when the caller gave a return URL.
const ErrorPath = "/auth/auth-code-error"

// Handler handles OIDC-related requests
type Handler struct {
	db        *gorm.DB
	baseURL   string
	log       logger.Logger
	providers map[uint]*providerConfig
	mu        sync.RWMutex
}

type providerConfig struct {
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// StateData stores OIDC state for validation
type StateData struct {
	ProviderID uint   `json:"provider_id"`
	ReturnURL  string `json:"return_url"`
	Nonce      string `json:"nonce"`
}

// NewHandler creates a new OIDC handler and initializes every enabled provider.
func NewHandler(db *gorm.DB, baseURL string, log logger.Logger) *Handler {
	h := &Handler{
		db:        db,
		baseURL:   strings.TrimRight(baseURL, "/"),
		log:       log,
		providers: make(map[uint]*providerConfig),
	}
	h.loadProviders()
	return h
}

func (h *Handler) loadProviders() {
	var providers []models.OIDCProvider
	h.db.Where("enabled = ?", true).Find(&providers)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range providers {
		if err := h.initProvider(p); err != nil {
			h.log.Warn("failed to initialize sign-in provider",
				logger.String("slug", p.Slug),
				logger.String("issuer", p.Issuer),
				logger.Error(err))
			continue
		}
		h.log.Info("sign-in provider ready", logger.String("slug", p.Slug))
	}
}

// initProvider runs discovery against the issuer. Caller holds h.mu.
func (h *Handler) initProvider(p models.OIDCProvider) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, p.Issuer)
	if err != nil {
		return err
	}

	scopes := strings.Fields(p.Scopes)
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	h.providers[p.ID] = &providerConfig{
		config: oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  h.baseURL + "/api/oidc/callback",
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: p.ClientID}),
	}
	return nil
}

// ProviderResponse represents an OIDC provider in API responses
type ProviderResponse struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Enabled bool   `json:"enabled"`
}

// ListProviders returns all enabled OIDC providers (public endpoint)
func (h *Handler) ListProviders(c *gin.Context) {
	var providers []models.OIDCProvider
	h.db.Where("enabled = ?", true).Order("name").Find(&providers)

	responses := make([]ProviderResponse, len(providers))
	for i, p := range providers {
		responses[i] = ProviderResponse{
			ID:      p.ID,
			Name:    p.Name,
			Slug:    p.Slug,
			Enabled: p.Enabled,
		}
	}

	c.JSON(http.StatusOK, responses)
}

// AuthURLRequest represents a request for an auth URL
type AuthURLRequest struct {
	ReturnURL string `json:"return_url"`
}

// GetAuthURL starts a sign-in with the provider named by :slug.
func (h *Handler) GetAuthURL(c *gin.Context) {
	slug := c.Param("slug")

	var provider models.OIDCProvider
	if err := h.db.Where("slug = ? AND enabled = ?", slug, true).First(&provider).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Provider not found"})
		return
	}

	h.mu.RLock()
	pc, ok := h.providers[provider.ID]
	h.mu.RUnlock()

	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Provider not configured"})
		return
	}

	var req AuthURLRequest
	_ = c.ShouldBindJSON(&req)

	returnURL, ok := h.safeReturnURL(req.ReturnURL)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Return URL must stay on this site"})
		return
	}

	nonce := uuid.NewString()
	stateJSON, _ := json.Marshal(StateData{
		ProviderID: provider.ID,
		ReturnURL:  returnURL,
		Nonce:      nonce,
	})
	state := base64.URLEncoding.EncodeToString(stateJSON)

	c.JSON(http.StatusOK, gin.H{"auth_url": pc.config.AuthCodeURL(state, oidc.Nonce(nonce))})
}

// safeReturnURL resolves a relative return path against the base URL and
// rejects absolute URLs pointing elsewhere. Empty stays empty.
func (h *Handler) safeReturnURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return h.baseURL + raw, true
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	base, err := url.Parse(h.baseURL)
	if err != nil || u.Scheme != base.Scheme || u.Host != base.Host {
		return "", false
	}
	return u.String(), true
}

// Callback completes a sign-in: exchanges the code, verifies the ID token,
// links or creates the user and hands back a JWT.
func (h *Handler) Callback(c *gin.Context) {
	stateJSON, err := base64.URLEncoding.DecodeString(c.Query("state"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state"})
		return
	}

	var state StateData
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state"})
		return
	}

	h.mu.RLock()
	pc, ok := h.providers[state.ProviderID]
	h.mu.RUnlock()

	if !ok {
		h.fail(c, state, http.StatusBadRequest, "Unknown provider")
		return
	}

	code := c.Query("code")
	if code == "" {
		errorDesc := c.Query("error_description")
		if errorDesc == "" {
			errorDesc = c.Query("error")
		}
		h.fail(c, state, http.StatusBadRequest, "Authentication failed: "+errorDesc)
		return
	}

	ctx := c.Request.Context()
	oauth2Token, err := pc.config.Exchange(ctx, code)
	if err != nil {
		h.log.Warn("oidc code exchange failed", logger.Error(err))
		h.fail(c, state, http.StatusInternalServerError, "Failed to exchange token")
		return
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		h.fail(c, state, http.StatusInternalServerError, "No ID token in response")
		return
	}

	idToken, err := pc.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		h.log.Warn("oidc id token rejected", logger.Error(err))
		h.fail(c, state, http.StatusInternalServerError, "Failed to verify ID token")
		return
	}

	if idToken.Nonce != state.Nonce {
		h.fail(c, state, http.StatusBadRequest, "Invalid nonce")
		return
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		h.fail(c, state, http.StatusInternalServerError, "Failed to parse claims")
		return
	}

	if claims.Email == "" {
		h.fail(c, state, http.StatusBadRequest, "Email not provided by identity provider")
		return
	}

	var provider models.OIDCProvider
	h.db.First(&provider, state.ProviderID)

	user, err := h.findOrCreateUser(idToken.Subject, claims, &provider)
	if err != nil {
		h.log.Warn("oidc user provisioning failed",
			logger.String("provider", provider.Slug),
			logger.Error(err))
		h.fail(c, state, http.StatusForbidden, "Failed to process user")
		return
	}

	if !user.Active {
		h.fail(c, state, http.StatusForbidden, "User account is deactivated")
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.fail(c, state, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	if state.ReturnURL != "" {
		c.Redirect(http.StatusFound, withQuery(state.ReturnURL, "token", token))
		return
	}

	c.JSON(http.StatusOK, auth.AuthResponse{
		Token: token,
		User:  auth.NewUserResponse(*user),
	})
}

// fail answers a broken callback: browsers that gave a return URL are
// redirected to the error page, API callers get JSON.
func (h *Handler) fail(c *gin.Context, state StateData, status int, msg string) {
	if state.ReturnURL != "" {
		c.Redirect(http.StatusFound, withQuery(h.baseURL+ErrorPath, "error", msg))
		return
	}
	c.JSON(status, gin.H{"error": msg})
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// AuthCodeError is the landing page for failed browser sign-ins.
func (h *Handler) AuthCodeError(c *gin.Context) {
	resp := gin.H{"error": "There was an issue signing you in."}
	if detail := c.Query("error"); detail != "" {
		resp["detail"] = detail
	}
	c.JSON(http.StatusUnauthorized, resp)
}

// Claims are the ID token claims used for provisioning.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

var errUnverifiedEmail = errors.New("email not verified by provider")

// findOrCreateUser finds an existing user or creates a new one
func (h *Handler) findOrCreateUser(subject string, claims Claims, provider *models.OIDCProvider) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(claims.Email))

	var identity models.OIDCIdentity
	err := h.db.Where("provider_id = ? AND subject = ?", provider.ID, subject).First(&identity).Error
	if err == nil {
		var user models.User
		if err := h.db.First(&user, identity.UserID).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}

	var user models.User
	err = h.db.Where("email = ?", email).First(&user).Error
	if err == nil {
		// Linking to an existing account by email needs the provider's word
		if !claims.EmailVerified {
			return nil, errUnverifiedEmail
		}
		if err := h.db.Create(&models.OIDCIdentity{
			UserID:     user.ID,
			ProviderID: provider.ID,
			Subject:    subject,
			Email:      email,
		}).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}

	if !provider.AutoProvision {
		return nil, err
	}

	name := claims.Name
	if name == "" {
		if claims.GivenName != "" || claims.FamilyName != "" {
			name = strings.TrimSpace(claims.GivenName + " " + claims.FamilyName)
		} else {
			name = strings.Split(email, "@")[0]
		}
	}

	user = models.User{
		Email:     email,
		Name:      name,
		AvatarURL: claims.Picture,
		Active:    true,
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&models.OIDCIdentity{
			UserID:     user.ID,
			ProviderID: provider.ID,
			Subject:    subject,
			Email:      email,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// RegisterRoutes registers public OIDC routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/providers", h.ListProviders)
	rg.POST("/providers/:slug/auth", h.GetAuthURL)
	rg.GET("/callback", h.Callback)
}
