// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the EventReceipt
// model, the durable companion to the in-memory dedup filter: receipts
// survive restarts so a replayed webhook inside the TTL window stays
// suppressed even after the process bounces.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-media-notify/internal/domain"
)

// CreateReceipt inserts a receipt for a processed fingerprint and returns
// ErrDuplicate on unique violation. A conflicting row whose TTL has already
// lapsed is not a duplicate: it is refreshed in place so the fingerprint can
// be delivered again after the window.
func CreateReceipt(ctx context.Context, db *gorm.DB, fingerprint, backend, eventType string, ttl time.Duration) (*domain.EventReceipt, error) {
	now := time.Now().UTC()
	rec := &domain.EventReceipt{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		Backend:     backend,
		EventType:   eventType,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		// The guard on expires_at keeps the refresh atomic: a live row is
		// left untouched and reported as a duplicate.
		res := db.WithContext(ctx).Model(&domain.EventReceipt{}).
			Where("fingerprint = ? AND expires_at <= ?", fingerprint, now).
			Updates(map[string]any{
				"backend":    backend,
				"event_type": eventType,
				"created_at": now,
				"expires_at": now.Add(ttl),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrDuplicate
		}
	}
	return rec, nil
}

// DeleteReceipt removes the receipt for a fingerprint, if any. Used to give
// a fingerprint back when processing failed after the receipt was written.
func DeleteReceipt(ctx context.Context, db *gorm.DB, fingerprint string) error {
	return db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Delete(&domain.EventReceipt{}).Error
}

// ListLiveReceipts returns all non-expired receipts. Used to warm the
// in-memory dedup filter at startup.
func ListLiveReceipts(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.EventReceipt, error) {
	var out []domain.EventReceipt
	err := db.WithContext(ctx).
		Where("expires_at > ?", now).
		Find(&out).Error
	return out, err
}

// PruneReceipts deletes expired receipts and reports how many rows went away.
func PruneReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.EventReceipt{})
	return res.RowsAffected, res.Error
}
