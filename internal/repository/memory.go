package repository

import (
	"context"
	"sync"
	"time"

	"pagemirror/internal/models"
)

type memoryEntry struct {
	page      *models.Page
	expiresAt time.Time
}

type MemoryPageCache struct {
	pages sync.Map
	ttl   time.Duration
}

func NewMemoryPageCache(ttl time.Duration) *MemoryPageCache {
	return &MemoryPageCache{
		ttl: ttl,
	}
}

func (r *MemoryPageCache) GetPage(ctx context.Context, slug string) (*models.Page, error) {
	val, ok := r.pages.Load(slug)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if r.ttl > 0 && time.Now().After(entry.expiresAt) {
		r.pages.Delete(slug)
		return nil, nil
	}
	return entry.page, nil
}

func (r *MemoryPageCache) SetPage(ctx context.Context, page *models.Page) error {
	r.pages.Store(page.Slug, &memoryEntry{
		page:      page,
		expiresAt: time.Now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryPageCache) InvalidatePage(ctx context.Context, slug string) error {
	r.pages.Delete(slug)
	return nil
}
