// Package notify – ingestion pipeline.
//
// The pipeline is the single entry point the webhook handler calls: it runs
// an inbound payload through Normalize → dedup check → durable receipt →
// Route → Enqueue. Each event's processing is independent of every other
// event's except for the shared dedup filter and subscription index, both
// of which serialize their own access.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-media-notify/internal/repo"
)

// Outcome is the pipeline's disposition for one inbound payload. All three
// values acknowledge the event to the backend with 200; only normalization
// failures surface as errors (and 400s).
type Outcome int

const (
	// OutcomeAccepted means the event was routed; deliveries were enqueued
	// for however many recipients resolved (possibly zero).
	OutcomeAccepted Outcome = iota
	// OutcomeDuplicate means the fingerprint was seen within the TTL
	// window; nothing was delivered.
	OutcomeDuplicate
	// OutcomeUnroutable means no media item matched the event; logged,
	// nothing delivered.
	OutcomeUnroutable
)

// String returns the lowercase wire name used in webhook responses.
func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUnroutable:
		return "unroutable"
	default:
		return "accepted"
	}
}

// Pipeline wires the ingestion stages together. Construct with NewPipeline.
type Pipeline struct {
	DB         *gorm.DB
	Filter     *DedupFilter
	Router     *Router
	Dispatcher *Dispatcher
	// ReceiptTTL matches the filter's window; receipts persist the dedup
	// decision across restarts.
	ReceiptTTL time.Duration
}

// NewPipeline constructs a Pipeline over the shared components.
func NewPipeline(db *gorm.DB, f *DedupFilter, r *Router, d *Dispatcher, receiptTTL time.Duration) *Pipeline {
	return &Pipeline{DB: db, Filter: f, Router: r, Dispatcher: d, ReceiptTTL: receiptTTL}
}

// WarmFilter seeds the dedup filter from non-expired receipts so a restart
// inside the TTL window does not re-deliver replayed events.
func (p *Pipeline) WarmFilter(ctx context.Context) error {
	receipts, err := repo.ListLiveReceipts(ctx, p.DB, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, r := range receipts {
		p.Filter.Seed(r.Fingerprint, r.CreatedAt)
	}
	if n, err := repo.PruneReceipts(ctx, p.DB, time.Now().UTC()); err == nil && n > 0 {
		log.Debug().Int64("pruned", n).Msg("expired event receipts removed")
	}
	log.Info().Int("fingerprints", len(receipts)).Msg("dedup filter warmed from receipts")
	return nil
}

// RunReceiptPruner deletes expired receipts on a fixed interval until ctx is
// cancelled. Without it expired rows linger for the process lifetime and the
// table grows without bound. Intervals <= 0 are coerced to one hour.
func (p *Pipeline) RunReceiptPruner(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := repo.PruneReceipts(ctx, p.DB, time.Now().UTC())
			if err != nil {
				log.Error().Err(err).Msg("receipt prune failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("pruned", n).Msg("expired event receipts removed")
			}
		}
	}
}

// Ingest runs one payload through the pipeline.
//
// Errors: only normalization failures (ErrMalformedPayload,
// ErrUnknownBackend) and storage failures; duplicates and unroutable events
// are outcomes, not errors.
func (p *Pipeline) Ingest(ctx context.Context, backend string, payload []byte) (Outcome, error) {
	tr := otel.Tracer("notify/Pipeline")
	ctx, span := tr.Start(ctx, "Ingest",
		trace.WithAttributes(attribute.String("event.backend", backend)),
	)
	defer span.End()

	ev, err := Normalize(backend, payload)
	if err != nil {
		ObserveMalformed(backend)
		return OutcomeAccepted, err
	}
	span.SetAttributes(
		attribute.String("event.type", string(ev.Type)),
		attribute.String("event.media_ref", ev.MediaRef),
	)

	if p.Filter.Check(ev.Fingerprint) == Duplicate {
		eventsTotal.WithLabelValues(backend, resultDuplicate).Inc()
		log.Debug().
			Str("backend", backend).
			Str("fingerprint", ev.Fingerprint).
			Msg("duplicate event suppressed")
		return OutcomeDuplicate, nil
	}

	// The receipt is the durable twin of the in-memory insert. A unique
	// violation here means another in-flight submission won the race (or a
	// previous process already handled the fingerprint): treat as duplicate.
	if _, err := repo.CreateReceipt(ctx, p.DB, ev.Fingerprint, ev.Backend, ev.RawType, p.ReceiptTTL); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			eventsTotal.WithLabelValues(backend, resultDuplicate).Inc()
			return OutcomeDuplicate, nil
		}
		return OutcomeAccepted, err
	}

	intents, res, err := p.Router.Route(ctx, ev)
	if err != nil {
		// Routing failed after the fingerprint was committed. Give it back,
		// both in memory and in the receipt table, so the backend's retry of
		// the same payload is processed instead of suppressed as a duplicate.
		p.Filter.Forget(ev.Fingerprint)
		if derr := repo.DeleteReceipt(ctx, p.DB, ev.Fingerprint); derr != nil {
			log.Error().Err(derr).
				Str("fingerprint", ev.Fingerprint).
				Msg("failed to release receipt after routing error")
		}
		return OutcomeAccepted, err
	}
	if res == Unroutable {
		eventsTotal.WithLabelValues(backend, resultUnroutable).Inc()
		return OutcomeUnroutable, nil
	}

	eventsTotal.WithLabelValues(backend, resultAccepted).Inc()
	for _, it := range intents {
		p.Dispatcher.Enqueue(it)
	}
	log.Info().
		Str("backend", backend).
		Str("event_type", ev.RawType).
		Str("media_ref", ev.MediaRef).
		Int("recipients", len(intents)).
		Msg("event routed")
	return OutcomeAccepted, nil
}
