// Package domain defines the persistence models for users, media items, and
// subscriptions. These types are mapped with GORM and form the core data layer
// of the media-notification application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Media item lifecycle states, driven exclusively by inbound webhook events.
const (
	StateRequested   = "requested"
	StateDownloading = "downloading"
	StateAvailable   = "available"
	StateFailed      = "failed"
)

// Media types recognized by the request workflow.
const (
	MediaMovie  = "movie"
	MediaSeries = "series"
)

// User represents a chat identity known to the bot. Users are created on
// first interaction and carry the delivery preferences consulted by the
// notification router.
//
// Fields:
//   - ID: stable external chat identifier (e.g. a Discord user snowflake).
//   - DisplayName: last known display name, refreshed on interaction.
//   - AutoSubscribe: when true the user is notified about every item, not
//     just the ones they explicitly requested.
//   - DMInstead: when true notifications are sent as direct messages rather
//     than to the shared notification channel.
//   - DeletedAt: soft deletion marker, set on explicit opt-out.
type User struct {
	ID            string         `json:"id"             gorm:"type:varchar(64);primaryKey"`
	DisplayName   string         `json:"display_name"   gorm:"type:varchar(255);not null;default:''"`
	// No column defaults on the flags: GORM omits zero-valued fields that
	// carry a default tag on INSERT, which would silently turn a stored
	// false into the column default.
	AutoSubscribe bool           `json:"auto_subscribe" gorm:"not null"`
	DMInstead     bool           `json:"dm_instead"     gorm:"not null"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"              gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// MediaItem represents a movie or series tracked by the backend. A row is
// created when a request succeeds against Radarr/Sonarr; its State is mutated
// only by the notification router while processing webhook events.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - BackendRef: stable external identifier ("tmdb:603", "tvdb:81189");
//     unique, used to correlate webhook events with the item.
//   - Backend: which backend owns the item ("radarr" or "sonarr").
//   - RemoteID: the backend's own numeric id, assigned by the add call.
//   - Title / Year: display metadata captured at request time.
//   - Type: "movie" or "series" (enforced by DB constraint).
//   - State: lifecycle state (requested|downloading|available|failed).
type MediaItem struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	BackendRef string         `json:"backend_ref" gorm:"type:varchar(64);not null;uniqueIndex:ux_media_backend_ref"`
	Backend    string         `json:"backend"     gorm:"type:varchar(16);not null"`
	RemoteID   int64          `json:"remote_id"   gorm:"not null;default:0"`
	Title      string         `json:"title"       gorm:"type:varchar(255);not null"`
	Year       int            `json:"year"        gorm:"not null;default:0"`
	Type       string         `json:"type"        gorm:"type:varchar(16);not null;check:type IN ('movie','series')"`
	State      string         `json:"state"       gorm:"type:varchar(16);not null;default:'requested'"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for MediaItem.
func (MediaItem) TableName() string { return "media_items" }

// Subscription links a user to a media item they should be notified about.
// At most one row may exist per (user, item) pair (enforced by unique index).
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID / MediaItemID: the related pair, jointly unique.
//   - Source: how the subscription came to be ("request" or "auto").
//   - MediaItem: FK association, cascade-deleted with the item.
type Subscription struct {
	ID          string    `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"       gorm:"type:varchar(64);not null;index;uniqueIndex:ux_sub_user_item"`
	MediaItemID string    `json:"media_item_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_sub_user_item"`
	Source      string    `json:"source"        gorm:"type:varchar(16);not null;default:'request'"`
	CreatedAt   time.Time `json:"created_at"`

	// MediaItem is the subscribed item. Subscriptions are cascade-deleted
	// if the underlying item is removed.
	MediaItem MediaItem `json:"-" gorm:"foreignKey:MediaItemID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// EventOverride records a per-user, per-event-type notification opt-out.
// A disabled override excludes the user from routing for that event type
// even when they are subscribed to the item.
type EventOverride struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_override_user_event,priority:1"`
	EventType string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_override_user_event,priority:2"`
	Enabled   bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (EventOverride) TableName() string { return "event_overrides" }

// EventReceipt is the durable side of the dedup window: one row per processed
// webhook fingerprint, expiring after the configured TTL. On startup the
// in-memory dedup filter is seeded from the non-expired rows so a restart
// inside the window does not re-deliver.
type EventReceipt struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Fingerprint string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_fingerprint"`
	Backend     string    `gorm:"type:TEXT NOT NULL"`
	EventType   string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (EventReceipt) TableName() string { return "event_receipts" }
