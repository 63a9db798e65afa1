package repository

import (
	"context"
	"sync/atomic"
	"time"

	"pagemirror/internal/domain"
	"pagemirror/internal/models"

	"github.com/rs/zerolog"
)

// FailoverPageCache serves from the primary (redis) cache and falls back to
// the in-memory one when the primary is down, retrying the primary after a
// minute.
type FailoverPageCache struct {
	primary   domain.PageCache
	fallback  domain.PageCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverPageCache(primary, fallback domain.PageCache, logger *zerolog.Logger) *FailoverPageCache {
	return &FailoverPageCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverPageCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary page cache failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverPageCache) shouldProbe() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverPageCache) GetPage(ctx context.Context, slug string) (*models.Page, error) {
	if !r.isDown.Load() {
		page, err := r.primary.GetPage(ctx, slug)
		if err == nil {
			return page, nil
		}
		r.markDown(err)
	}

	if r.isDown.Load() && r.shouldProbe() {
		page, err := r.primary.GetPage(ctx, slug)
		if err == nil {
			r.isDown.Store(false)
			return page, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetPage(ctx, slug)
}

func (r *FailoverPageCache) SetPage(ctx context.Context, page *models.Page) error {
	if !r.isDown.Load() {
		err := r.primary.SetPage(ctx, page)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetPage(ctx, page)
}

func (r *FailoverPageCache) InvalidatePage(ctx context.Context, slug string) error {
	if !r.isDown.Load() {
		err := r.primary.InvalidatePage(ctx, slug)
		if err == nil {
			// keep the fallback coherent too
			return r.fallback.InvalidatePage(ctx, slug)
		}
		r.markDown(err)
	}

	return r.fallback.InvalidatePage(ctx, slug)
}
