// Package services defines the business logic for preferences and the media
// request workflow. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked
// by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrUserNotFound indicates that the referenced user does not exist
	// (or opted out).
	ErrUserNotFound = errors.New("user not found")

	// ErrItemNotFound indicates that the referenced media item is not
	// tracked.
	ErrItemNotFound = errors.New("media item not found")

	// ErrNotSubscribed is returned when an unsubscribe targets a (user,
	// item) pair with no subscription.
	ErrNotSubscribed = errors.New("not subscribed")

	// ErrUnknownMediaType is returned when a search names a media type
	// other than "movie" or "series".
	ErrUnknownMediaType = errors.New("unknown media type")

	// ErrBackendDisabled is returned when the workflow needs a backend
	// (Radarr/Sonarr) that is not configured.
	ErrBackendDisabled = errors.New("media backend not configured")

	// ErrEmptyQuery is returned when a search query is blank.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrUnknownEventType is returned when an override names an event type
	// outside the normalized set.
	ErrUnknownEventType = errors.New("unknown event type")
)
