// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model
// and the per-user event-type overrides.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-media-notify/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetUser fetches a user by chat identity. If the record does not exist,
// it returns ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser inserts the user or, when the row already exists, refreshes its
// display name and preference flags. The write is a single atomic statement
// (INSERT ... ON CONFLICT DO UPDATE).
func UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "auto_subscribe", "dm_instead", "updated_at"}),
		}).
		Create(u).Error
}

// DeleteUser soft-deletes a user (explicit opt-out) and removes their
// subscriptions. Returns ErrNotFound if no row was affected.
func DeleteUser(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&domain.Subscription{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.User{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListAutoSubscribers returns the IDs of all users with the auto-subscribe
// preference enabled. Used by the subscription index to fan events out to
// users who want everything.
func ListAutoSubscribers(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("auto_subscribe = ?", true).
		Pluck("id", &ids).Error
	return ids, err
}

// ListUsersByIDs returns the users matching ids in one query. Missing ids
// are silently absent from the result.
func ListUsersByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.User
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// SetDMInstead flips the dm_instead preference for a user. Used by the
// dispatcher's self-healing path when DM delivery fails permanently.
// Returns ErrNotFound if the user does not exist.
func SetDMInstead(ctx context.Context, db *gorm.DB, id string, dm bool) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("dm_instead", dm)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpsertOverride records (or updates) a per-event-type notification override
// for a user. The (user_id, event_type) pair is unique; eventType is the
// normalized name ("Grabbed", "Download"), not a backend's raw spelling.
func UpsertOverride(ctx context.Context, db *gorm.DB, userID, eventType string, enabled bool) error {
	o := &domain.EventOverride{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		Enabled:   enabled,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
		}).
		Create(o).Error
}

// DisabledOverrides returns the set of user IDs that disabled the given
// event type. Routing subtracts these from the recipient set.
func DisabledOverrides(ctx context.Context, db *gorm.DB, eventType string) (map[string]struct{}, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.EventOverride{}).
		Where("event_type = ? AND enabled = ?", eventType, false).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
