package worker

import (
	"context"
	"time"
)

// Run polls the queue until ctx is done. Between polls it sleeps
// pollInterval; every sweepInterval it re-enqueues the full published
// catalog. Safe to run from multiple processes at once, the store's claim
// semantics keep them from stepping on each other.
func (s *Syncer) Run(ctx context.Context, workerID string, pollInterval, sweepInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	s.log.Info().Str("worker_id", workerID).Msg("sync worker started")
	defer s.log.Info().Str("worker_id", workerID).Msg("sync worker stopped")

	var sweep <-chan time.Time
	if sweepInterval > 0 {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep:
			if _, err := s.EnqueuePublished(ctx); err != nil {
				s.log.Error().Err(err).Msg("published sweep failed")
			}
			continue
		default:
		}

		job, err := s.ProcessNext(ctx, workerID)
		if err != nil {
			s.log.Error().Err(err).Msg("process next")
		}
		if job != nil {
			// keep draining while there is work
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
}
