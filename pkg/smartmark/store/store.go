package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mikepea/smartmark/pkg/smartmark/feed"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/models"
)

// ErrNotFound is returned when a bookmark does not exist for its owner.
var ErrNotFound = errors.New("bookmark not found")

// Store persists bookmarks and publishes every change on the feed.
type Store struct {
	db     *gorm.DB
	broker feed.Broker
	log    logger.Logger
}

// New creates a store over db, publishing changes on broker.
func New(db *gorm.DB, broker feed.Broker, log logger.Logger) *Store {
	return &Store{db: db, broker: broker, log: log}
}

// List returns the owner's bookmarks, newest first.
func (s *Store) List(ctx context.Context, userID uint) ([]models.Bookmark, error) {
	var bookmarks []models.Bookmark
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&bookmarks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	return bookmarks, nil
}

// Get returns one of the owner's bookmarks.
func (s *Store) Get(ctx context.Context, userID, id uint) (models.Bookmark, error) {
	var bookmark models.Bookmark
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&bookmark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Bookmark{}, ErrNotFound
	}
	if err != nil {
		return models.Bookmark{}, fmt.Errorf("failed to load bookmark: %w", err)
	}
	return bookmark, nil
}

// Insert stores b and publishes an insert event. The ID is always assigned
// here; a zero CreatedAt becomes the current time.
func (s *Store) Insert(ctx context.Context, b models.Bookmark) (models.Bookmark, error) {
	b.ID = 0
	if err := s.db.WithContext(ctx).Create(&b).Error; err != nil {
		return models.Bookmark{}, fmt.Errorf("failed to insert bookmark: %w", err)
	}

	row := b
	s.publish(ctx, b.UserID, feed.Event{Kind: feed.KindInsert, New: &row})
	return b, nil
}

// Delete removes one of the owner's bookmarks and publishes a delete event
// carrying the removed row.
func (s *Store) Delete(ctx context.Context, userID, id uint) error {
	var old models.Bookmark
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&old).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return tx.Delete(&old).Error
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}

	s.publish(ctx, userID, feed.Event{Kind: feed.KindDelete, Old: &old})
	return nil
}

// Subscribe opens a change feed restricted to userID's bookmarks.
func (s *Store) Subscribe(ctx context.Context, userID uint) (*feed.Subscription, error) {
	sub, err := s.broker.Subscribe(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to bookmark changes: %w", err)
	}
	return sub, nil
}

// The row is already committed, so a failed publish is logged, not returned.
func (s *Store) publish(ctx context.Context, userID uint, ev feed.Event) {
	if err := s.broker.Publish(context.WithoutCancel(ctx), userID, ev); err != nil {
		s.log.Error("failed to publish bookmark change",
			logger.Uint("user_id", userID),
			logger.String("kind", string(ev.Kind)),
			logger.Error(err))
	}
}
