// Media catalog HTTP handlers.
//
// This file exposes the read-only listing of tracked media items:
//   - GET /media  (paginated, newest first)
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-media-notify/internal/domain"
	"github.com/tbourn/go-media-notify/internal/utils"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// Catalog is the read-only view of the tracked media store.
type Catalog interface {
	ListPage(ctx context.Context, page, pageSize int) ([]domain.MediaItem, int64, error)
}

// MediaItemResponse is the JSON shape of one tracked media item.
type MediaItemResponse struct {
	ID         string `json:"id"`
	BackendRef string `json:"backend_ref"`
	Backend    string `json:"backend"`
	Title      string `json:"title"`
	Year       int    `json:"year,omitempty"`
	Type       string `json:"type"`
	State      string `json:"state"`
}

// ListMediaResponse contains a page of media items and pagination metadata.
type ListMediaResponse struct {
	Items      []MediaItemResponse `json:"items"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	Total      int64               `json:"total"`
	TotalPages int                 `json:"total_pages"`
}

// clampPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// ListMedia returns a page of tracked media items, newest first.
func (h *Handlers) ListMedia(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.catalog.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	out := make([]MediaItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, MediaItemResponse{
			ID:         it.ID,
			BackendRef: it.BackendRef,
			Backend:    it.Backend,
			Title:      it.Title,
			Year:       it.Year,
			Type:       it.Type,
			State:      it.State,
		})
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMediaResponse{
		Items:      out,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	})
}
