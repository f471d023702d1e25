// Package arr implements HTTP clients for the media-management backends
// (Radarr for movies, Sonarr for series) behind a common Backend interface.
// Outbound calls run through a circuit breaker so a flapping backend fails
// fast instead of piling up blocked requests.
package arr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// ErrBackendUnavailable is returned when the backend cannot serve the call:
// connection failures, 5xx responses, or an open circuit breaker. The
// request workflow surfaces it to the user as a service-unavailable message.
var ErrBackendUnavailable = errors.New("media backend unavailable")

// Candidate is one search result from a backend lookup, carrying everything
// the request workflow needs to present a choice and issue the add call.
type Candidate struct {
	// Backend is the owning backend kind ("radarr" or "sonarr").
	Backend string `json:"backend"`
	// Ref is the stable external reference ("tmdb:603", "tvdb:81189").
	Ref string `json:"ref"`
	// Title / Year / Overview are display metadata from the lookup.
	Title    string `json:"title"`
	Year     int    `json:"year"`
	Overview string `json:"overview,omitempty"`
	// Type is "movie" or "series".
	Type string `json:"type"`
}

// Backend is the media-backend boundary consumed by the request workflow.
// Implementations must be safe for concurrent use and honor the provided
// context.
type Backend interface {
	// Lookup searches the backend's catalog. An empty result is a valid
	// no-results outcome, not an error.
	Lookup(ctx context.Context, query string) ([]Candidate, error)

	// Add registers the candidate with the backend (monitored, with an
	// immediate search) and returns the backend's numeric id for it.
	Add(ctx context.Context, c Candidate) (int64, error)

	// Ping verifies the backend is reachable and the api key is accepted.
	Ping(ctx context.Context) error
}

// maxLookupResults caps how many candidates a lookup returns to the
// workflow layer.
const maxLookupResults = 25

// newBreaker builds the circuit breaker shared by both client types.
// Settings follow the usual profile for third-party REST APIs: trip at a
// 60% failure rate once 5 calls were seen, probe again after 60s.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
}

// classifyStatus converts an HTTP status into the package error taxonomy.
// 5xx means the backend is unhealthy; everything else non-2xx is a plain
// request error (bad api key, bad payload) that should not trip retries.
func classifyStatus(op string, status int) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status >= 500:
		return fmt.Errorf("%s: status %d: %w", op, status, ErrBackendUnavailable)
	default:
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
}

// wrapBreakerErr maps gobreaker sentinel errors onto ErrBackendUnavailable
// so callers see one taxonomy regardless of where the call failed.
func wrapBreakerErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: circuit open: %w", op, ErrBackendUnavailable)
	}
	return err
}

// ping hits the v3 status endpoint shared by both backends.
func ping(ctx context.Context, client *http.Client, baseURL, apiKey, op string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v3/system/status", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", apiKey)

	resp, err := httpDo(client, req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return classifyStatus(op, resp.StatusCode)
}

// httpDo executes a request and maps transport errors to the taxonomy.
func httpDo(client *http.Client, req *http.Request, op string) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, ErrBackendUnavailable)
	}
	return resp, nil
}
