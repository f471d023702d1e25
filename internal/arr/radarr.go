// Package arr – Radarr v3 client.
//
// Endpoints used: GET /api/v3/movie/lookup for search and POST /api/v3/movie
// for adds, authenticated with the X-Api-Key header. Add calls request an
// immediate search for the movie so downloads start without operator action.
package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// RadarrClient implements Backend for movies.
type RadarrClient struct {
	baseURL        string
	apiKey         string
	rootFolder     string
	qualityProfile int
	http           *http.Client
	breaker        *gobreaker.CircuitBreaker
}

// NewRadarrClient constructs a client for the Radarr instance at baseURL.
func NewRadarrClient(baseURL, apiKey, rootFolder string, qualityProfile int) *RadarrClient {
	return &RadarrClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		rootFolder:     rootFolder,
		qualityProfile: qualityProfile,
		http:           &http.Client{Timeout: 10 * time.Second},
		breaker:        newBreaker("radarr"),
	}
}

// radarrMovie mirrors the lookup/add response fields we consume.
type radarrMovie struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Year     int    `json:"year"`
	TmdbID   int64  `json:"tmdbId"`
	Overview string `json:"overview"`
}

// Lookup searches Radarr's catalog by term.
func (c *RadarrClient) Lookup(ctx context.Context, query string) ([]Candidate, error) {
	const op = "radarr lookup"

	out, err := c.breaker.Execute(func() (any, error) {
		u := fmt.Sprintf("%s/api/v3/movie/lookup?term=%s", c.baseURL, url.QueryEscape(query))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Api-Key", c.apiKey)

		resp, err := httpDo(c.http, req, op)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if err := classifyStatus(op, resp.StatusCode); err != nil {
			return nil, err
		}

		var movies []radarrMovie
		if err := json.NewDecoder(resp.Body).Decode(&movies); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		return movies, nil
	})
	if err != nil {
		return nil, wrapBreakerErr(op, err)
	}

	movies := out.([]radarrMovie)
	candidates := make([]Candidate, 0, len(movies))
	for _, m := range movies {
		if m.TmdbID == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Backend:  "radarr",
			Ref:      fmt.Sprintf("tmdb:%d", m.TmdbID),
			Title:    m.Title,
			Year:     m.Year,
			Overview: m.Overview,
			Type:     "movie",
		})
		if len(candidates) == maxLookupResults {
			break
		}
	}
	return candidates, nil
}

// Add registers the movie with Radarr (monitored, immediate search) and
// returns Radarr's id for it.
func (c *RadarrClient) Add(ctx context.Context, cand Candidate) (int64, error) {
	const op = "radarr add"

	tmdbID, err := parseRef(cand.Ref, "tmdb")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	payload := map[string]any{
		"tmdbId":           tmdbID,
		"title":            cand.Title,
		"year":             cand.Year,
		"qualityProfileId": c.qualityProfile,
		"rootFolderPath":   c.rootFolder,
		"monitored":        true,
		"addOptions":       map[string]any{"searchForMovie": true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	out, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/movie", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := httpDo(c.http, req, op)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if err := classifyStatus(op, resp.StatusCode); err != nil {
			return nil, err
		}

		var added radarrMovie
		if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		return added.ID, nil
	})
	if err != nil {
		return 0, wrapBreakerErr(op, err)
	}
	return out.(int64), nil
}

// Ping checks reachability via the system status endpoint.
func (c *RadarrClient) Ping(ctx context.Context) error {
	return ping(ctx, c.http, c.baseURL, c.apiKey, "radarr ping")
}

// parseRef extracts the numeric id from a "<scheme>:<id>" reference.
func parseRef(ref, scheme string) (int64, error) {
	prefix := scheme + ":"
	if !strings.HasPrefix(ref, prefix) {
		return 0, fmt.Errorf("reference %q is not %s-scoped", ref, scheme)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(ref, prefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("reference %q has no valid id", ref)
	}
	return id, nil
}
