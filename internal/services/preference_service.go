// Package services – PreferenceService
//
// This file implements the PreferenceService, the source of truth for user
// records and their delivery preferences. It creates users on first
// interaction, applies preference and per-event override changes, and keeps
// the subscription index's auto-subscribe projection in step with the store.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-media-notify/internal/domain"
	"github.com/tbourn/go-media-notify/internal/notify"
	"github.com/tbourn/go-media-notify/internal/repo"
)

// PreferenceService manages user records and notification preferences.
type PreferenceService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Index is updated in step with preference writes so routing sees the
	// change without a rebuild.
	Index *notify.SubscriptionIndex
}

// NewPreferenceService constructs a PreferenceService.
func NewPreferenceService(db *gorm.DB, ix *notify.SubscriptionIndex) *PreferenceService {
	return &PreferenceService{DB: db, Index: ix}
}

// EnsureUser returns the user record for id, creating it with defaults on
// first interaction. A non-empty displayName refreshes the stored one.
func (s *PreferenceService) EnsureUser(ctx context.Context, id, displayName string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}

	u, err := repo.GetUser(ctx, s.DB, id)
	if err == nil {
		if displayName != "" && displayName != u.DisplayName {
			u.DisplayName = displayName
			if err := repo.UpsertUser(ctx, s.DB, u); err != nil {
				return nil, err
			}
		}
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	u = &domain.User{
		ID:            id,
		DisplayName:   displayName,
		AutoSubscribe: false,
		DMInstead:     false,
	}
	if err := repo.UpsertUser(ctx, s.DB, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPreferences updates the delivery preference flags for an existing user
// and mirrors the auto-subscribe change into the index.
func (s *PreferenceService) SetPreferences(ctx context.Context, id string, autoSubscribe, dmInstead bool) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.AutoSubscribe = autoSubscribe
	u.DMInstead = dmInstead
	if err := repo.UpsertUser(ctx, s.DB, u); err != nil {
		return nil, err
	}
	s.Index.SetAuto(id, autoSubscribe)
	return u, nil
}

// SetOverride records a per-event-type notification override for the user.
// The event type is canonicalized onto the normalized set routing subtracts
// against, so "MovieAdded" and "SeriesAdd" both land on the same "Added"
// override. Unrecognized names return ErrUnknownEventType.
func (s *PreferenceService) SetOverride(ctx context.Context, id, eventType string, enabled bool) error {
	canonical, ok := notify.CanonicalEventType(strings.TrimSpace(eventType))
	if !ok {
		return ErrUnknownEventType
	}
	if _, err := repo.GetUser(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return repo.UpsertOverride(ctx, s.DB, id, string(canonical), enabled)
}

// OptOut removes the user and all their subscriptions (explicit opt-out),
// then drops them from the index.
func (s *PreferenceService) OptOut(ctx context.Context, id string) error {
	if err := repo.DeleteUser(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.Index.DropUser(id)
	return nil
}

// Unsubscribe removes the user's subscription for the item identified by
// backendRef and updates the index.
func (s *PreferenceService) Unsubscribe(ctx context.Context, userID, backendRef string) error {
	item, err := repo.GetMediaItemByRef(ctx, s.DB, backendRef)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrItemNotFound
		}
		return err
	}
	if err := repo.RemoveSubscription(ctx, s.DB, userID, item.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotSubscribed
		}
		return err
	}
	s.Index.Remove(userID, backendRef)
	return nil
}
