// Package notify implements the event ingestion and notification-routing
// engine: webhook payload normalization, fingerprint dedup, subscription
// indexing, routing, and asynchronous delivery dispatch.
//
// This file implements the webhook event normalizer. It decodes the
// per-backend JSON payloads (Radarr and Sonarr publish different shapes)
// into the uniform domain.Event representation. Unknown event types are
// normalized into EventUnhandled rather than rejected, so new backend event
// types degrade gracefully instead of breaking ingestion.
package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-media-notify/internal/domain"
)

// Backend kinds accepted on the webhook path.
const (
	BackendRadarr = "radarr"
	BackendSonarr = "sonarr"
)

// Normalization errors. Handlers map these to 400 responses so a
// misconfigured backend surfaces to the operator instead of being retried.
var (
	// ErrMalformedPayload is returned when required fields (event type,
	// media reference) are absent or of the wrong shape.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnknownBackend is returned when the declared source kind is not
	// one of the supported backends.
	ErrUnknownBackend = errors.New("unknown backend kind")
)

// radarrPayload mirrors the subset of the Radarr webhook body we consume.
// Grab events carry the movie under "movie"; some failure shapes only
// populate "remoteMovie".
type radarrPayload struct {
	EventType string `json:"eventType"`
	Movie     *struct {
		ID     int64  `json:"id"`
		Title  string `json:"title"`
		Year   int    `json:"year"`
		TmdbID int64  `json:"tmdbId"`
	} `json:"movie"`
	RemoteMovie *struct {
		Title  string `json:"title"`
		Year   int    `json:"year"`
		TmdbID int64  `json:"tmdbId"`
	} `json:"remoteMovie"`
	DownloadID string `json:"downloadId"`
}

// sonarrPayload mirrors the subset of the Sonarr webhook body we consume.
type sonarrPayload struct {
	EventType string `json:"eventType"`
	Series    *struct {
		ID     int64  `json:"id"`
		Title  string `json:"title"`
		Year   int    `json:"year"`
		TvdbID int64  `json:"tvdbId"`
	} `json:"series"`
	DownloadID string `json:"downloadId"`
}

// Normalize parses a raw webhook payload for the declared backend kind and
// returns the normalized event. It has no side effects beyond parsing.
//
// Errors:
//   - ErrUnknownBackend when backend is not "radarr" or "sonarr".
//   - ErrMalformedPayload when the body is not JSON, the event type is
//     missing, or no media reference can be extracted.
func Normalize(backend string, payload []byte) (*domain.Event, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendRadarr:
		return normalizeRadarr(payload)
	case BackendSonarr:
		return normalizeSonarr(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func normalizeRadarr(payload []byte) (*domain.Event, error) {
	var p radarrPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(p.EventType) == "" {
		return nil, fmt.Errorf("%w: missing eventType", ErrMalformedPayload)
	}

	var (
		tmdbID int64
		title  string
	)
	switch {
	case p.Movie != nil && p.Movie.TmdbID != 0:
		tmdbID, title = p.Movie.TmdbID, p.Movie.Title
	case p.RemoteMovie != nil && p.RemoteMovie.TmdbID != 0:
		tmdbID, title = p.RemoteMovie.TmdbID, p.RemoteMovie.Title
	default:
		return nil, fmt.Errorf("%w: missing movie reference", ErrMalformedPayload)
	}

	ev := &domain.Event{
		Backend:       BackendRadarr,
		Type:          mapEventType(p.EventType),
		RawType:       p.EventType,
		MediaRef:      fmt.Sprintf("tmdb:%d", tmdbID),
		MediaTitle:    title,
		RemoteEventID: p.DownloadID,
		Timestamp:     time.Now().UTC(),
	}
	ev.Fingerprint = Fingerprint(ev)
	return ev, nil
}

func normalizeSonarr(payload []byte) (*domain.Event, error) {
	var p sonarrPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(p.EventType) == "" {
		return nil, fmt.Errorf("%w: missing eventType", ErrMalformedPayload)
	}
	if p.Series == nil || p.Series.TvdbID == 0 {
		return nil, fmt.Errorf("%w: missing series reference", ErrMalformedPayload)
	}

	ev := &domain.Event{
		Backend:       BackendSonarr,
		Type:          mapEventType(p.EventType),
		RawType:       p.EventType,
		MediaRef:      fmt.Sprintf("tvdb:%d", p.Series.TvdbID),
		MediaTitle:    p.Series.Title,
		RemoteEventID: p.DownloadID,
		Timestamp:     time.Now().UTC(),
	}
	ev.Fingerprint = Fingerprint(ev)
	return ev, nil
}

// mapEventType collapses the backend's raw eventType strings onto the
// normalized set. Radarr and Sonarr use different names for the same
// semantic event (MovieAdded vs SeriesAdd), so both map to EventAdded.
func mapEventType(raw string) domain.EventType {
	switch raw {
	case "Test":
		return domain.EventTest
	case "Grabbed", "Grab":
		return domain.EventGrabbed
	case "Download", "DownloadFolderImported":
		return domain.EventDownloaded
	case "MovieAdded", "SeriesAdd":
		return domain.EventAdded
	case "MovieDelete", "SeriesDelete":
		return domain.EventDeleted
	case "HealthIssue", "DownloadFailed", "ImportFailure", "ManualInteractionRequired":
		return domain.EventHealthIssue
	case "Rename":
		return domain.EventRenamed
	default:
		return domain.EventUnhandled
	}
}

// CanonicalEventType resolves a user-supplied event type name onto the
// normalized set. Both the normalized names ("Grabbed", "Download", "Added")
// and the backends' raw spellings ("Grab", "MovieAdded", "SeriesAdd") are
// accepted, so an override matches whichever form the user typed. Names that
// fit neither report false.
func CanonicalEventType(name string) (domain.EventType, bool) {
	switch t := domain.EventType(name); t {
	case domain.EventTest, domain.EventGrabbed, domain.EventDownloaded,
		domain.EventAdded, domain.EventDeleted, domain.EventHealthIssue,
		domain.EventRenamed:
		return t, true
	}
	if t := mapEventType(name); t != domain.EventUnhandled {
		return t, true
	}
	return "", false
}

// Fingerprint computes the stable dedup hash for an event: sha256 over the
// backend kind, normalized type, media reference, and the backend-provided
// event id when present.
func Fingerprint(ev *domain.Event) string {
	h := sha256.New()
	h.Write([]byte(ev.Backend))
	h.Write([]byte{0})
	h.Write([]byte(ev.Type))
	h.Write([]byte{0})
	h.Write([]byte(ev.MediaRef))
	h.Write([]byte{0})
	h.Write([]byte(ev.RemoteEventID))
	return hex.EncodeToString(h.Sum(nil))
}
