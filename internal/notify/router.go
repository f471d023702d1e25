// Package notify – notification router.
//
// Given an accepted event, the router looks up the media item, applies the
// event's lifecycle effect, resolves the recipient set from the subscription
// index and per-user preferences, and emits one delivery intent per
// recipient. An event for an unknown item is Unroutable: logged and dropped
// without surfacing an error to the backend.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-media-notify/internal/domain"
	"github.com/tbourn/go-media-notify/internal/repo"
)

// RouteResult classifies the routing outcome of one accepted event.
type RouteResult int

const (
	// Routed means the event matched a known item; zero or more intents
	// were produced depending on the subscriber set.
	Routed RouteResult = iota
	// Unroutable means no media item matched the event's reference.
	Unroutable
)

// stateTransitions maps normalized event types to the lifecycle state they
// drive the media item into. Absent entries cause no transition. Legality
// is deliberately not enforced: backends are the authority on real-world
// state, and a stale local state machine must not drop a true update.
var stateTransitions = map[domain.EventType]string{
	domain.EventAdded:       domain.StateRequested,
	domain.EventGrabbed:     domain.StateDownloading,
	domain.EventDownloaded:  domain.StateAvailable,
	domain.EventHealthIssue: domain.StateFailed,
}

// Router resolves accepted events into delivery intents. It exclusively
// owns MediaItem lifecycle mutations.
type Router struct {
	// DB is the GORM handle used for item lookups and state writes.
	DB *gorm.DB
	// Index is the shared subscription projection.
	Index *SubscriptionIndex
	// DefaultChannel receives notifications for users without dm_instead.
	DefaultChannel string
}

// NewRouter constructs a Router over the given store and index.
func NewRouter(db *gorm.DB, ix *SubscriptionIndex, defaultChannel string) *Router {
	return &Router{DB: db, Index: ix, DefaultChannel: defaultChannel}
}

// Route processes one accepted event and returns the delivery intents for
// its recipients.
//
// Semantics:
//   - Unknown media reference: returns (nil, Unroutable, nil) — accepted,
//     logged, no delivery, no error surfaced to the backend.
//   - Lifecycle: the event's mapped transition is applied as-is (see
//     stateTransitions); Unhandled/Test events cause no transition.
//   - Deletion events remove the item (subscriptions cascade) and clear its
//     subscriber set from the index after intents are produced.
//   - Recipients: index subscribers minus users who disabled this event
//     type via an override; dm_instead selects the DM target, everyone else
//     goes to the configured notification channel.
func (r *Router) Route(ctx context.Context, ev *domain.Event) ([]domain.DeliveryIntent, RouteResult, error) {
	tr := otel.Tracer("notify/Router")
	ctx, span := tr.Start(ctx, "Route",
		trace.WithAttributes(
			attribute.String("event.backend", ev.Backend),
			attribute.String("event.type", string(ev.Type)),
			attribute.String("event.media_ref", ev.MediaRef),
		),
	)
	defer span.End()

	item, err := repo.GetMediaItemByRef(ctx, r.DB, ev.MediaRef)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Info().
				Str("backend", ev.Backend).
				Str("media_ref", ev.MediaRef).
				Str("event_type", ev.RawType).
				Msg("unroutable event: unknown media item")
			return nil, Unroutable, nil
		}
		return nil, Routed, err
	}

	// Apply the lifecycle effect before fan-out so message rendering sees
	// the post-event state.
	if next, ok := stateTransitions[ev.Type]; ok && next != item.State {
		if err := repo.UpdateMediaItemState(ctx, r.DB, item.ID, next); err != nil {
			return nil, Routed, err
		}
		log.Debug().
			Str("media_ref", ev.MediaRef).
			Str("from", item.State).
			Str("to", next).
			Msg("media item state transition")
		item.State = next
	}

	intents, err := r.fanOut(ctx, ev, item)
	if err != nil {
		return nil, Routed, err
	}

	if ev.Type == domain.EventDeleted {
		if err := repo.DeleteMediaItem(ctx, r.DB, item.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, Routed, err
		}
		r.Index.RemoveRef(ev.MediaRef)
	}

	span.SetAttributes(attribute.Int("route.intents", len(intents)))
	return intents, Routed, nil
}

// fanOut builds one intent per eligible recipient.
func (r *Router) fanOut(ctx context.Context, ev *domain.Event, item *domain.MediaItem) ([]domain.DeliveryIntent, error) {
	subscribers := r.Index.Subscribers(ev.MediaRef)
	if len(subscribers) == 0 {
		return nil, nil
	}

	// Overrides are keyed on the normalized type, so one mute covers every
	// raw backend spelling that collapses onto it.
	disabled, err := repo.DisabledOverrides(ctx, r.DB, string(ev.Type))
	if err != nil {
		return nil, err
	}

	eligible := subscribers[:0]
	for _, id := range subscribers {
		if _, off := disabled[id]; !off {
			eligible = append(eligible, id)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	users, err := repo.ListUsersByIDs(ctx, r.DB, eligible)
	if err != nil {
		return nil, err
	}

	content := RenderMessage(ev, item)
	intents := make([]domain.DeliveryIntent, 0, len(users))
	for _, u := range users {
		intents = append(intents, domain.DeliveryIntent{
			UserID:      u.ID,
			ChannelID:   r.DefaultChannel,
			DM:          u.DMInstead,
			Content:     content,
			Fingerprint: ev.Fingerprint,
		})
	}
	return intents, nil
}
