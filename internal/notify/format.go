// Package notify – message rendering.
//
// This file turns a routed event into the human-readable notification body
// carried by a DeliveryIntent. Rendering is deliberately plain text so the
// same content works for direct messages and channel posts.
package notify

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-media-notify/internal/domain"
)

// titleCaser capitalizes the media type word ("movie" -> "Movie") for
// message leads.
var titleCaser = cases.Title(language.English)

// RenderMessage builds the notification text for an event applied to a
// media item. Unknown event types get a generic activity line so an
// Unhandled event that still reaches delivery remains presentable.
func RenderMessage(ev *domain.Event, item *domain.MediaItem) string {
	kind := titleCaser.String(item.Type)
	name := item.Title
	if item.Year > 0 {
		name = fmt.Sprintf("%s (%d)", item.Title, item.Year)
	}

	switch ev.Type {
	case domain.EventGrabbed:
		return fmt.Sprintf("%s %s has been grabbed and is downloading.", kind, name)
	case domain.EventDownloaded:
		return fmt.Sprintf("%s %s is now available.", kind, name)
	case domain.EventAdded:
		return fmt.Sprintf("%s %s was added and is being monitored.", kind, name)
	case domain.EventDeleted:
		return fmt.Sprintf("%s %s was removed from the library.", kind, name)
	case domain.EventHealthIssue:
		return fmt.Sprintf("%s %s ran into a problem (%s). It may need attention.", kind, name, ev.RawType)
	case domain.EventRenamed:
		return fmt.Sprintf("%s %s was renamed on disk.", kind, name)
	case domain.EventTest:
		return fmt.Sprintf("Test notification from %s for %s %s.", ev.Backend, kind, name)
	default:
		return fmt.Sprintf("%s %s: %s.", kind, name, ev.RawType)
	}
}
