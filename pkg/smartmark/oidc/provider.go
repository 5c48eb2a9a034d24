package oidc

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mikepea/smartmark/pkg/smartmark/config"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

// EnsureProvider creates or refreshes the provider row described by cfg,
// keyed by slug. It is a no-op when cfg is not enabled.
func EnsureProvider(db *gorm.DB, cfg config.OIDCConfig) (*models.OIDCProvider, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.Slug == "" || cfg.Issuer == "" {
		return nil, fmt.Errorf("oidc provider needs a slug and an issuer")
	}

	name := cfg.Name
	if name == "" {
		name = cfg.Slug
	}

	var provider models.OIDCProvider
	err := db.Where("slug = ?", cfg.Slug).First(&provider).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		provider = models.OIDCProvider{
			Name:          name,
			Slug:          cfg.Slug,
			Issuer:        cfg.Issuer,
			ClientID:      cfg.ClientID,
			ClientSecret:  cfg.ClientSecret,
			Scopes:        cfg.Scopes,
			Enabled:       true,
			AutoProvision: true,
		}
		if err := db.Create(&provider).Error; err != nil {
			return nil, fmt.Errorf("failed to create oidc provider: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load oidc provider: %w", err)
	default:
		updates := map[string]interface{}{
			"name":          name,
			"issuer":        cfg.Issuer,
			"client_id":     cfg.ClientID,
			"client_secret": cfg.ClientSecret,
			"scopes":        cfg.Scopes,
			"enabled":       true,
		}
		if err := db.Model(&provider).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update oidc provider: %w", err)
		}
		db.First(&provider, provider.ID)
	}

	return &provider, nil
}
