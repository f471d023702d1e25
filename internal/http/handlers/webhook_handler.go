// Webhook HTTP handlers.
//
// This file exposes the ingestion endpoint media backends deliver events to:
//   - POST /webhook/{backend}  (Radarr/Sonarr webhook payload)
//
// Handlers in this file are transport-thin: they read the raw payload,
// delegate to the ingestion pipeline, and translate the pipeline outcome
// into HTTP results. Accepted, duplicate, and unroutable events all return
// 200 so backends do not retry events we have consciously handled; only
// malformed payloads and unknown backend kinds are a client error.
//
// It also holds the shared Handlers struct and the narrow service interfaces
// the HTTP layer depends on, so handlers can be tested with small fakes.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-media-notify/internal/arr"
	"github.com/tbourn/go-media-notify/internal/domain"
	"github.com/tbourn/go-media-notify/internal/notify"
)

// maxWebhookBody caps the accepted webhook payload size. Radarr/Sonarr
// payloads are small; anything near this limit is not a media event.
const maxWebhookBody = 1 << 20 // 1 MiB

// Ingestor consumes a raw webhook payload for a backend kind and reports
// the pipeline outcome.
type Ingestor interface {
	Ingest(ctx context.Context, backend string, payload []byte) (notify.Outcome, error)
}

// Requester drives the search-and-request workflow.
type Requester interface {
	Search(ctx context.Context, kind, query string) ([]arr.Candidate, error)
	Select(ctx context.Context, userID string, cand arr.Candidate) (*domain.Subscription, error)
}

// Preferences manages user records, delivery preferences, and per-event
// overrides.
type Preferences interface {
	EnsureUser(ctx context.Context, id, displayName string) (*domain.User, error)
	SetPreferences(ctx context.Context, id string, autoSubscribe, dmInstead bool) (*domain.User, error)
	SetOverride(ctx context.Context, id, eventType string, enabled bool) error
	OptOut(ctx context.Context, id string) error
	Unsubscribe(ctx context.Context, userID, backendRef string) error
}

// Handlers bundles the HTTP handlers and their service dependencies.
type Handlers struct {
	ingest  Ingestor
	reqSvc  Requester
	prefSvc Preferences
	catalog Catalog
}

// New constructs and returns a Handlers instance bound to the given services.
func New(ingest Ingestor, reqSvc Requester, prefSvc Preferences, catalog Catalog) *Handlers {
	return &Handlers{ingest: ingest, reqSvc: reqSvc, prefSvc: prefSvc, catalog: catalog}
}

// userID extracts the caller's user id from Gin context (set by upstream
// middleware). If absent, it falls back to the "X-User-ID" header (tests use
// it), and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// WebhookResponse is the JSON body returned for ingested webhook events.
type WebhookResponse struct {
	// Outcome is one of "accepted", "duplicate", "unroutable".
	Outcome string `json:"outcome"`
}

// ReceiveWebhook ingests a media backend webhook payload.
//
// The backend kind comes from the path ("radarr" or "sonarr"). The handler
// returns:
//   - 200 with the outcome for accepted, duplicate, and unroutable events
//   - 400 for malformed payloads or an unknown backend kind
//   - 500 only for storage/internal failures
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	backend := strings.ToLower(c.Param("backend"))

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable payload")
		return
	}

	outcome, err := h.ingest.Ingest(c.Request.Context(), backend, payload)
	if err != nil {
		switch {
		case errors.Is(err, notify.ErrUnknownBackend):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown backend kind")
		case errors.Is(err, notify.ErrMalformedPayload):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed payload")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, WebhookResponse{Outcome: outcome.String()})
}
