// Package arr – Sonarr v3 client.
//
// Sonarr's add endpoint requires the full series body, so Add re-runs the
// lookup by tvdb id first and posts the enriched object, matching how the
// v3 API expects series registration to work.
package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// SonarrClient implements Backend for series.
type SonarrClient struct {
	baseURL        string
	apiKey         string
	rootFolder     string
	qualityProfile int
	http           *http.Client
	breaker        *gobreaker.CircuitBreaker
}

// NewSonarrClient constructs a client for the Sonarr instance at baseURL.
func NewSonarrClient(baseURL, apiKey, rootFolder string, qualityProfile int) *SonarrClient {
	return &SonarrClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		rootFolder:     rootFolder,
		qualityProfile: qualityProfile,
		http:           &http.Client{Timeout: 10 * time.Second},
		breaker:        newBreaker("sonarr"),
	}
}

// sonarrSeries mirrors the lookup/add response fields we consume. The raw
// map is retained because the add call must echo the full lookup object.
type sonarrSeries struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Year     int    `json:"year"`
	TvdbID   int64  `json:"tvdbId"`
	Overview string `json:"overview"`

	raw map[string]any
}

// Lookup searches Sonarr's catalog by term.
func (c *SonarrClient) Lookup(ctx context.Context, query string) ([]Candidate, error) {
	series, err := c.lookup(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(series))
	for _, s := range series {
		if s.TvdbID == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Backend:  "sonarr",
			Ref:      fmt.Sprintf("tvdb:%d", s.TvdbID),
			Title:    s.Title,
			Year:     s.Year,
			Overview: s.Overview,
			Type:     "series",
		})
		if len(candidates) == maxLookupResults {
			break
		}
	}
	return candidates, nil
}

// Add registers the series with Sonarr (monitored, search for missing
// episodes) and returns Sonarr's id for it.
func (c *SonarrClient) Add(ctx context.Context, cand Candidate) (int64, error) {
	const op = "sonarr add"

	tvdbID, err := parseRef(cand.Ref, "tvdb")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	// Sonarr needs the full series object; refetch it scoped to the tvdb id.
	series, err := c.lookup(ctx, fmt.Sprintf("tvdb:%d", tvdbID))
	if err != nil {
		return 0, err
	}
	if len(series) == 0 {
		return 0, fmt.Errorf("%s: series tvdb:%d not found during add", op, tvdbID)
	}

	payload := series[0].raw
	payload["qualityProfileId"] = c.qualityProfile
	payload["rootFolderPath"] = c.rootFolder
	payload["monitored"] = true
	payload["addOptions"] = map[string]any{"searchForMissingEpisodes": true}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	out, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/series", bytes.NewReader(body))
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

		var added sonarrSeries
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
func (c *SonarrClient) Ping(ctx context.Context) error {
	return ping(ctx, c.http, c.baseURL, c.apiKey, "sonarr ping")
}

// lookup runs GET /api/v3/series/lookup through the breaker, keeping both
// the typed fields and the raw objects for add calls.
func (c *SonarrClient) lookup(ctx context.Context, term string) ([]sonarrSeries, error) {
	const op = "sonarr lookup"

	out, err := c.breaker.Execute(func() (any, error) {
		u := fmt.Sprintf("%s/api/v3/series/lookup?term=%s", c.baseURL, url.QueryEscape(term))
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

		var raws []map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}

		series := make([]sonarrSeries, 0, len(raws))
		for _, raw := range raws {
			b, err := json.Marshal(raw)
			if err != nil {
				continue
			}
			var s sonarrSeries
			if err := json.Unmarshal(b, &s); err != nil {
				continue
			}
			s.raw = raw
			series = append(series, s)
		}
		return series, nil
	})
	if err != nil {
		return nil, wrapBreakerErr(op, err)
	}
	return out.([]sonarrSeries), nil
}
