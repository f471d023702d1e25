// Package services – RequestService
//
// This file implements the interactive search-and-request workflow: a user
// searches a media backend for candidates, picks one, and the service adds
// it to the backend and records the request plus the requester's
// subscription in a single transaction.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-media-notify/internal/arr"
	"github.com/tbourn/go-media-notify/internal/domain"
	"github.com/tbourn/go-media-notify/internal/notify"
	"github.com/tbourn/go-media-notify/internal/repo"
)

// SourceRequest marks subscriptions created by the request workflow, as
// opposed to auto-subscribe fan-out.
const SourceRequest = "request"

// RequestService drives the search / select workflow against the configured
// media backends.
type RequestService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Radarr handles movie lookups and adds; nil when not configured.
	Radarr arr.Backend
	// Sonarr handles series lookups and adds; nil when not configured.
	Sonarr arr.Backend
	// Index receives the new subscription after a successful select.
	Index *notify.SubscriptionIndex
}

// NewRequestService constructs a RequestService.
func NewRequestService(db *gorm.DB, radarr, sonarr arr.Backend, ix *notify.SubscriptionIndex) *RequestService {
	return &RequestService{DB: db, Radarr: radarr, Sonarr: sonarr, Index: ix}
}

// backendFor resolves the backend client for a media type.
func (s *RequestService) backendFor(kind string) (arr.Backend, error) {
	switch kind {
	case domain.MediaMovie:
		if s.Radarr == nil {
			return nil, ErrBackendDisabled
		}
		return s.Radarr, nil
	case domain.MediaSeries:
		if s.Sonarr == nil {
			return nil, ErrBackendDisabled
		}
		return s.Sonarr, nil
	default:
		return nil, ErrUnknownMediaType
	}
}

// Search queries the backend for kind ("movie" or "series") with the given
// term and returns the candidate list. An empty result set is a valid
// outcome, not an error.
func (s *RequestService) Search(ctx context.Context, kind, query string) ([]arr.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	backend, err := s.backendFor(kind)
	if err != nil {
		return nil, err
	}
	return backend.Lookup(ctx, query)
}

// Select confirms a candidate for a user: the item is added to the backend
// and a MediaItem row in state "requested" plus a Subscription row for the
// requester are persisted, all-or-nothing. If the backend add fails the
// transaction rolls back and no rows remain.
//
// Re-selecting an item the user already requested is not an error: the
// existing subscription is returned unchanged. Selecting an item another
// user already requested only adds the subscription; the backend is not
// asked to add the item twice.
func (s *RequestService) Select(ctx context.Context, userID string, cand arr.Candidate) (*domain.Subscription, error) {
	backend, err := s.backendFor(cand.Type)
	if err != nil {
		return nil, err
	}
	if _, err := repo.GetUser(ctx, s.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	var sub *domain.Subscription
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := repo.GetMediaItemByRef(ctx, tx, cand.Ref)
		switch {
		case err == nil:
			// Already tracked; only the subscription may be missing.
		case errors.Is(err, repo.ErrNotFound):
			// New item: add to the backend first so a backend failure
			// rolls back before any row is written.
			remoteID, err := backend.Add(ctx, cand)
			if err != nil {
				return err
			}
			item, err = repo.CreateMediaItem(ctx, tx, &domain.MediaItem{
				BackendRef: cand.Ref,
				Backend:    cand.Backend,
				RemoteID:   remoteID,
				Title:      cand.Title,
				Year:       cand.Year,
				Type:       cand.Type,
				State:      domain.StateRequested,
			})
			if err != nil {
				return err
			}
		default:
			return err
		}

		sub, err = repo.CreateSubscription(ctx, tx, userID, item.ID, SourceRequest)
		if errors.Is(err, repo.ErrDuplicate) {
			sub, err = repo.GetSubscription(ctx, tx, userID, item.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Index.Add(userID, cand.Ref)
	log.Info().
		Str("user_id", userID).
		Str("backend_ref", cand.Ref).
		Str("title", cand.Title).
		Msg("media request recorded")
	return sub, nil
}
