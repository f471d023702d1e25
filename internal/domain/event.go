// Package domain defines the core types shared across the application.
// This file holds the normalized webhook event and the delivery intent,
// the two transient value types flowing through the notification pipeline.
package domain

import "time"

// EventType is the normalized kind of a backend webhook event. Unknown
// backend event types map to EventUnhandled so new backend versions degrade
// gracefully instead of breaking ingestion.
type EventType string

// Normalized event types. The raw backend names ("Grabbed", "Download",
// "SeriesAdd", …) collapse onto this set; anything else is EventUnhandled.
const (
	EventTest        EventType = "Test"
	EventGrabbed     EventType = "Grabbed"
	EventDownloaded  EventType = "Download"
	EventAdded       EventType = "Added"
	EventDeleted     EventType = "Deleted"
	EventHealthIssue EventType = "HealthIssue"
	EventRenamed     EventType = "Rename"
	EventUnhandled   EventType = "Unhandled"
)

// Event is a backend webhook payload normalized to the internal
// representation. It is ephemeral: retained only long enough to satisfy
// the dedup window, never persisted as-is.
type Event struct {
	// Backend is the declared source kind ("radarr" or "sonarr").
	Backend string
	// Type is the normalized event type.
	Type EventType
	// RawType preserves the backend's original eventType string, used for
	// per-event-type overrides and logging.
	RawType string
	// MediaRef is the stable external media identifier ("tmdb:603",
	// "tvdb:81189") used to correlate the event with a MediaItem.
	MediaRef string
	// MediaTitle is the display title carried by the payload, when present.
	MediaTitle string
	// RemoteEventID is the backend-provided event id, when present; folded
	// into the fingerprint so distinct deliveries of distinct events never
	// collide.
	RemoteEventID string
	// Timestamp is the event time reported by the backend, or the receive
	// time when absent.
	Timestamp time.Time
	// Fingerprint is the stable dedup hash of (backend, type, media ref,
	// remote event id).
	Fingerprint string
}

// DeliveryIntent is one resolved (recipient, channel, content) unit awaiting
// dispatch. Intents are produced by the router, consumed by the dispatcher,
// and never persisted beyond the in-flight retry window.
type DeliveryIntent struct {
	// UserID is the recipient's chat identity.
	UserID string
	// ChannelID is the target channel when DM is false.
	ChannelID string
	// DM selects direct-message delivery over channel delivery.
	DM bool
	// Content is the rendered message body.
	Content string
	// Fingerprint ties the intent back to the originating event for logs.
	Fingerprint string
	// Attempt counts delivery tries so far; managed by the dispatcher.
	Attempt int
}
