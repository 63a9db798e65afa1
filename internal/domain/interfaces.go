package domain

import (
	"context"
	"time"

	"pagemirror/internal/models"
)

// JobStore is the durable sync-job queue. Claiming must be atomic with
// respect to concurrent claimants, including ones in other processes.
type JobStore interface {
	CreateSyncJob(ctx context.Context, job *models.SyncJob) error
	GetSyncJob(ctx context.Context, id int64) (*models.SyncJob, error)
	LatestSyncJobByDedupeKey(ctx context.Context, key string) (*models.SyncJob, error)
	ClaimNextSyncJob(ctx context.Context, workerID string) (*models.SyncJob, error)
	MarkSyncJobSucceeded(ctx context.Context, id int64) error
	MarkSyncJobRetry(ctx context.Context, id int64, errMsg string, nextRunAt time.Time) error
	MarkSyncJobFailed(ctx context.Context, id int64, errMsg string) error
	ResetSyncJob(ctx context.Context, id int64) (*models.SyncJob, error)
	ListRecentSyncJobs(ctx context.Context, limit int) ([]models.SyncJob, error)
}

// PageStore is the local content repository.
type PageStore interface {
	UpsertPageByExternalID(ctx context.Context, content models.PageContent) (*models.Page, error)
	GetPageByExternalID(ctx context.Context, externalID string) (*models.Page, error)
	GetPageBySlug(ctx context.Context, slug string) (*models.Page, error)
	ListPublishedPages(ctx context.Context) ([]models.Page, error)
}

// SourceClient reads from the external workspace-documents API.
type SourceClient interface {
	FetchPage(ctx context.Context, pageID string) (*models.PageContent, error)
	ListPublishedPageIDs(ctx context.Context) ([]string, error)
}

// PageCache fronts the page store for public reads. Get returns (nil, nil)
// on a miss.
type PageCache interface {
	GetPage(ctx context.Context, slug string) (*models.Page, error)
	SetPage(ctx context.Context, page *models.Page) error
	InvalidatePage(ctx context.Context, slug string) error
}
