// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Subscription relation, which carries the (user, media item) uniqueness
// invariant the routing layer depends on.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-media-notify/internal/domain"
)

// ErrDuplicate indicates that a subscription already exists for the given
// (user, media item) pair.
var ErrDuplicate = errors.New("duplicate")

// CreateSubscription inserts a subscription row and returns ErrDuplicate on
// unique violation. The uniqueness of (user_id, media_item_id) is enforced
// by the DB index, so concurrent duplicate requests resolve to exactly one
// row regardless of interleaving.
func CreateSubscription(ctx context.Context, db *gorm.DB, userID, mediaItemID, source string) (*domain.Subscription, error) {
	sub := &domain.Subscription{
		ID:          uuid.NewString(),
		UserID:      userID,
		MediaItemID: mediaItemID,
		Source:      source,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(sub).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return sub, nil
}

// GetSubscription fetches the subscription for a (user, item) pair, or
// ErrNotFound when absent.
func GetSubscription(ctx context.Context, db *gorm.DB, userID, mediaItemID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND media_item_id = ?", userID, mediaItemID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// RemoveSubscription deletes the subscription for a (user, item) pair.
// Returns ErrNotFound if no row was affected.
func RemoveSubscription(ctx context.Context, db *gorm.DB, userID, mediaItemID string) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND media_item_id = ?", userID, mediaItemID).
		Delete(&domain.Subscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SubscriptionsForItem returns the user IDs subscribed to a media item.
func SubscriptionsForItem(ctx context.Context, db *gorm.DB, mediaItemID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("media_item_id = ?", mediaItemID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListSubscriptions returns all subscription rows joined with their media
// item's backend reference. Used to rebuild the in-memory index at startup.
func ListSubscriptions(ctx context.Context, db *gorm.DB) ([]domain.Subscription, error) {
	var out []domain.Subscription
	err := db.WithContext(ctx).
		Preload("MediaItem").
		Find(&out).Error
	return out, err
}

// isUniqueViolation detects unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
