package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-media-notify/internal/domain"
	"github.com/tbourn/go-media-notify/internal/repo"
)

// CatalogService is the read-only view over tracked media items.
type CatalogService struct {
	DB *gorm.DB
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{DB: db}
}

// ListPage returns one page of media items ordered newest first, plus the
// total row count for pagination metadata.
func (s *CatalogService) ListPage(ctx context.Context, page, pageSize int) ([]domain.MediaItem, int64, error) {
	total, err := repo.CountMediaItems(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListMediaItemsPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
