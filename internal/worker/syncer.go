package worker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"pagemirror/internal/database"
	"pagemirror/internal/domain"
	"pagemirror/internal/events"
	"pagemirror/internal/metrics"
	"pagemirror/internal/models"
	"pagemirror/internal/source"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadLetterKey = "pagemirror:sync:deadletter"

// Syncer drives the page-sync job queue: it enqueues work with dedupe,
// claims one job at a time and mirrors the page from the source into the
// local store. Execution failures never escape as errors; they land on the
// job record.
type Syncer struct {
	store       domain.JobStore
	pages       domain.PageStore
	source      domain.SourceClient
	cache       domain.PageCache
	redis       *redis.Client
	bus         *events.EventBus
	retryPolicy RetryPolicy
	maxAttempts int
	log         zerolog.Logger
}

// EnqueueSummary aggregates a bulk enqueue. Failed counts per-item problems
// that were absorbed instead of aborting the batch.
type EnqueueSummary struct {
	Created int `json:"created"`
	Reused  int `json:"reused"`
	Failed  int `json:"failed"`
}

// NewSyncer builds a syncer with sane defaults. cache, redisClient and bus may
// be nil; dead-lettering, cache invalidation and events are then skipped.
func NewSyncer(
	store domain.JobStore,
	pages domain.PageStore,
	src domain.SourceClient,
	cache domain.PageCache,
	redisClient *redis.Client,
	bus *events.EventBus,
	retry RetryPolicy,
	maxAttempts int,
	logger *zerolog.Logger,
) *Syncer {
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if maxAttempts < 1 {
		maxAttempts = 5
	}

	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "syncer").Logger()
	}

	return &Syncer{
		store:       store,
		pages:       pages,
		source:      src,
		cache:       cache,
		redis:       redisClient,
		bus:         bus,
		retryPolicy: retry,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Enqueue creates a pending sync job for a page, or returns the already
// active job for the same page unchanged.
func (s *Syncer) Enqueue(ctx context.Context, pageID, trigger, payload string) (*models.SyncJob, error) {
	job, _, err := s.enqueue(ctx, pageID, trigger, payload)
	return job, err
}

func (s *Syncer) enqueue(ctx context.Context, pageID, trigger, payload string) (*models.SyncJob, bool, error) {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return nil, false, &models.ValidationError{Field: "page_id", Reason: "must not be empty"}
	}
	if trigger == "" {
		trigger = models.TriggerManual
	}

	key := models.DedupeKeyForPage(pageID)

	existing, err := s.store.LatestSyncJobByDedupeKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && existing.Active() {
		return existing, false, nil
	}

	now := time.Now()
	job := &models.SyncJob{
		PageID:      pageID,
		TriggerType: trigger,
		Status:      models.JobStatusPending,
		Attempt:     0,
		MaxAttempts: s.maxAttempts,
		NextRunAt:   &now,
		Payload:     payload,
		DedupeKey:   key,
	}

	if err := s.store.CreateSyncJob(ctx, job); err != nil {
		// a concurrent enqueue for the same page won the unique active-dedupe
		// index; absorb into that job
		if database.IsConstraintError(err) {
			winner, lookupErr := s.store.LatestSyncJobByDedupeKey(ctx, key)
			if lookupErr == nil && winner != nil && winner.Active() {
				return winner, false, nil
			}
		}
		return nil, false, err
	}

	metrics.IncEnqueued(trigger)
	_ = s.bus.PublishJSON(events.EventPageSyncEnqueued, events.PageEventPayload{
		JobID: job.ID, PageID: pageID, Trigger: trigger,
	})
	s.log.Info().Int64("job_id", job.ID).Str("page_id", pageID).Str("trigger", trigger).Msg("sync job enqueued")
	return job, true, nil
}

// EnqueuePublished sweeps the source's published catalog and enqueues every
// page. Individual bad ids are counted, not fatal.
func (s *Syncer) EnqueuePublished(ctx context.Context) (EnqueueSummary, error) {
	var summary EnqueueSummary

	ids, err := s.source.ListPublishedPageIDs(ctx)
	if err != nil {
		return summary, err
	}

	for _, id := range ids {
		_, created, err := s.enqueue(ctx, id, models.TriggerManual, "")
		if err != nil {
			summary.Failed++
			s.log.Warn().Err(err).Str("page_id", id).Msg("bulk enqueue item failed")
			continue
		}
		if created {
			summary.Created++
		} else {
			summary.Reused++
		}
	}

	s.log.Info().Int("created", summary.Created).Int("reused", summary.Reused).
		Int("failed", summary.Failed).Msg("published sweep enqueued")
	return summary, nil
}

// ProcessNext claims the next eligible job and runs the sync to completion.
// Returns (nil, nil) when the queue is empty. The returned job carries the
// final state of this attempt; sync failures are recorded on it rather than
// returned.
func (s *Syncer) ProcessNext(ctx context.Context, workerID string) (*models.SyncJob, error) {
	if workerID == "" {
		workerID = uuid.NewString()
	}

	job, err := s.store.ClaimNextSyncJob(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	start := time.Now()
	page, syncErr := s.syncPage(ctx, job)
	metrics.ObserveSyncDuration(time.Since(start).Seconds())

	if syncErr != nil {
		s.recordFailure(ctx, job, syncErr)
	} else if err := s.store.MarkSyncJobSucceeded(ctx, job.ID); err != nil {
		s.log.Error().Err(err).Int64("job_id", job.ID).Msg("mark succeeded")
	} else {
		metrics.IncCompleted("succeeded")
		_ = s.bus.PublishJSON(events.EventPageSynced, events.PageEventPayload{
			JobID: job.ID, PageID: job.PageID, Slug: page.Slug,
			Trigger: job.TriggerType, Attempt: job.Attempt,
		})
		s.log.Info().Int64("job_id", job.ID).Str("page_id", job.PageID).
			Int("attempt", job.Attempt).Msg("page synced")
	}

	return s.store.GetSyncJob(ctx, job.ID)
}

// syncPage performs the actual mirror: fetch, then upsert. The upsert only
// runs after a successful fetch.
func (s *Syncer) syncPage(ctx context.Context, job *models.SyncJob) (*models.Page, error) {
	content, err := s.source.FetchPage(ctx, job.PageID)
	if err != nil {
		return nil, err
	}

	page, err := s.pages.UpsertPageByExternalID(ctx, *content)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidatePage(ctx, page.Slug); err != nil {
			s.log.Warn().Err(err).Str("slug", page.Slug).Msg("cache invalidation failed")
		}
	}

	return page, nil
}

func (s *Syncer) recordFailure(ctx context.Context, job *models.SyncJob, cause error) {
	transient := source.IsTransient(cause)

	if !transient || job.Attempt >= job.MaxAttempts {
		if err := s.store.MarkSyncJobFailed(ctx, job.ID, cause.Error()); err != nil {
			s.log.Error().Err(err).Int64("job_id", job.ID).Msg("mark failed")
			return
		}
		metrics.IncCompleted("failed")
		s.pushDeadLetter(ctx, job, cause)
		_ = s.bus.PublishJSON(events.EventPageSyncFailed, events.PageEventPayload{
			JobID: job.ID, PageID: job.PageID, Trigger: job.TriggerType,
			Attempt: job.Attempt, Error: cause.Error(),
		})
		s.log.Error().Err(cause).Int64("job_id", job.ID).Str("page_id", job.PageID).
			Int("attempt", job.Attempt).Bool("transient", transient).Msg("sync job failed permanently")
		return
	}

	nextRunAt := time.Now().Add(s.retryPolicy.NextDelay(job.Attempt))
	if err := s.store.MarkSyncJobRetry(ctx, job.ID, cause.Error(), nextRunAt); err != nil {
		s.log.Error().Err(err).Int64("job_id", job.ID).Msg("mark retry")
		return
	}
	metrics.IncCompleted("retried")
	s.log.Warn().Err(cause).Int64("job_id", job.ID).Str("page_id", job.PageID).
		Int("attempt", job.Attempt).Time("next_run_at", nextRunAt).Msg("sync attempt failed, scheduled retry")
}

// Retry reopens a job for immediate processing. Works on failed jobs and on
// jobs stuck in processing after a worker crash; the attempt counter is kept.
// Retrying a terminal job whose page already has a newer active job absorbs
// into that job instead of reopening the old one.
func (s *Syncer) Retry(ctx context.Context, jobID int64) (*models.SyncJob, error) {
	if jobID <= 0 {
		return nil, &models.ValidationError{Field: "job_id", Reason: "must be positive"}
	}

	job, err := s.store.ResetSyncJob(ctx, jobID)
	if err == nil {
		return job, nil
	}

	// reopening would violate the unique active-dedupe index; another job
	// for the same page is already queued, hand the caller that one
	if database.IsConstraintError(err) {
		old, lookupErr := s.store.GetSyncJob(ctx, jobID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		active, lookupErr := s.store.LatestSyncJobByDedupeKey(ctx, old.DedupeKey)
		if lookupErr == nil && active != nil && active.Active() {
			return active, nil
		}
	}

	return nil, err
}

// Job looks up a single job by id.
func (s *Syncer) Job(ctx context.Context, jobID int64) (*models.SyncJob, error) {
	if jobID <= 0 {
		return nil, &models.ValidationError{Field: "job_id", Reason: "must be positive"}
	}
	return s.store.GetSyncJob(ctx, jobID)
}

// ListRecent exposes the job history, newest first.
func (s *Syncer) ListRecent(ctx context.Context, limit int) ([]models.SyncJob, error) {
	return s.store.ListRecentSyncJobs(ctx, limit)
}

func (s *Syncer) pushDeadLetter(ctx context.Context, job *models.SyncJob, cause error) {
	if s.redis == nil {
		return
	}

	entry := struct {
		EventID  string          `json:"event_id"`
		Job      *models.SyncJob `json:"job"`
		Error    string          `json:"error"`
		FailedAt time.Time       `json:"failed_at"`
	}{
		EventID:  uuid.NewString(),
		Job:      job,
		Error:    cause.Error(),
		FailedAt: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		s.log.Error().Err(err).Int64("job_id", job.ID).Msg("encode deadletter")
		return
	}
	if err := s.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		s.log.Error().Err(err).Int64("job_id", job.ID).Msg("deadletter push")
	}
}
