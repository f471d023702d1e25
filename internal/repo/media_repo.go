// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the MediaItem
// model.
//
// Error semantics follow the package convention: missing rows surface as
// ErrNotFound (gorm.ErrRecordNotFound); other DB errors are propagated raw.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-media-notify/internal/domain"
)

// CreateMediaItem inserts a new MediaItem row. The caller supplies the
// backend reference, metadata, and initial state; the ID is a generated
// UUID and CreatedAt is set to UTC.
func CreateMediaItem(ctx context.Context, db *gorm.DB, item *domain.MediaItem) (*domain.MediaItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.State == "" {
		item.State = domain.StateRequested
	}
	item.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// GetMediaItemByRef fetches a media item by its stable backend reference
// ("tmdb:603", "tvdb:81189"). Returns ErrNotFound when unknown.
func GetMediaItemByRef(ctx context.Context, db *gorm.DB, backendRef string) (*domain.MediaItem, error) {
	var item domain.MediaItem
	if err := db.WithContext(ctx).First(&item, "backend_ref = ?", backendRef).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateMediaItemState sets the lifecycle state of an item. No transition
// legality check happens here: the router applies backend-reported states
// as-is. Returns ErrNotFound if the item does not exist.
func UpdateMediaItemState(ctx context.Context, db *gorm.DB, id, state string) error {
	res := db.WithContext(ctx).
		Model(&domain.MediaItem{}).
		Where("id = ?", id).
		Update("state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMediaItem removes an item; subscriptions cascade via the FK
// constraint. Returns ErrNotFound if no row was affected.
func DeleteMediaItem(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.MediaItem{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountMediaItems returns the total number of tracked items for pagination.
func CountMediaItems(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.MediaItem{}).Count(&total).Error
	return total, err
}

// ListMediaItemsPage returns a paginated slice of items ordered by creation
// time descending. Use CountMediaItems for pagination metadata.
func ListMediaItemsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.MediaItem, error) {
	var out []domain.MediaItem
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
