// Request workflow HTTP handlers.
//
// This file exposes the interactive search-and-request endpoints:
//   - GET  /search    (look up movie/series candidates on a backend)
//   - POST /requests  (confirm a candidate: backend add + subscription)
//
// Handlers are transport-thin: they validate input, delegate to the request
// service, and translate service errors into HTTP results.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-media-notify/internal/arr"
	"github.com/tbourn/go-media-notify/internal/services"
)

// SearchResponse is the JSON body for GET /search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Type    string          `json:"type"`
	Results []arr.Candidate `json:"results"`
}

// Search looks up candidates on the backend matching the media type.
//
// Query parameters:
//   - q:    the search term (required)
//   - type: "movie" or "series" (default "movie")
//
// Responses:
//   - 200 with the candidate list (possibly empty)
//   - 400 for a missing term or unknown media type
//   - 503 when the backend is down or not configured
func (h *Handlers) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	kind := strings.TrimSpace(c.DefaultQuery("type", "movie"))

	results, err := h.reqSvc.Search(c.Request.Context(), kind, query)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyQuery):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query is empty")
		case errors.Is(err, services.ErrUnknownMediaType):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "type must be movie or series")
		case errors.Is(err, services.ErrBackendDisabled):
			fail(c, http.StatusServiceUnavailable, ErrCodeBackendDisabled, "backend is not configured")
		case errors.Is(err, arr.ErrBackendUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeBackendUnavailable, "backend is unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	if results == nil {
		results = []arr.Candidate{}
	}
	ok(c, http.StatusOK, SearchResponse{Query: query, Type: kind, Results: results})
}

// CreateRequestRequest is the JSON payload for POST /requests. The candidate
// fields echo a result previously returned by /search.
type CreateRequestRequest struct {
	Backend  string `json:"backend"  binding:"required"`
	Ref      string `json:"ref"      binding:"required"`
	Title    string `json:"title"    binding:"required"`
	Year     int    `json:"year"`
	Type     string `json:"type"     binding:"required,oneof=movie series"`
	Overview string `json:"overview"`
}

// CreateRequestResponse is the JSON body returned after a confirmed request.
type CreateRequestResponse struct {
	SubscriptionID string `json:"subscription_id"`
	MediaItemID    string `json:"media_item_id"`
	BackendRef     string `json:"backend_ref"`
}

// CreateRequest confirms a search candidate for the calling user.
//
// The item is added to the backend and the request plus the caller's
// subscription are stored atomically: a backend failure leaves no rows
// behind. Repeating a request is idempotent and returns the existing
// subscription.
//
// Responses:
//   - 201 with the subscription on success (200 semantics for repeats kept
//     at 201 for a uniform client contract)
//   - 400 for an invalid payload
//   - 404 when the caller has no user record yet
//   - 503 when the backend add fails
func (h *Handlers) CreateRequest(c *gin.Context) {
	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request payload")
		return
	}

	cand := arr.Candidate{
		Backend:  strings.ToLower(req.Backend),
		Ref:      req.Ref,
		Title:    req.Title,
		Year:     req.Year,
		Type:     req.Type,
		Overview: req.Overview,
	}

	sub, err := h.reqSvc.Select(c.Request.Context(), userID(c), cand)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		case errors.Is(err, services.ErrUnknownMediaType):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "type must be movie or series")
		case errors.Is(err, services.ErrBackendDisabled):
			fail(c, http.StatusServiceUnavailable, ErrCodeBackendDisabled, "backend is not configured")
		case errors.Is(err, arr.ErrBackendUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeBackendUnavailable, "backend add failed")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusCreated, CreateRequestResponse{
		SubscriptionID: sub.ID,
		MediaItemID:    sub.MediaItemID,
		BackendRef:     cand.Ref,
	})
}
