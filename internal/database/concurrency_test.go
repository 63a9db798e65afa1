package database

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"pagemirror/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentClaims drives N parallel claimants over M pending jobs and
// checks that exactly M distinct jobs are handed out, none twice, and the
// surplus claimants get nothing.
func TestConcurrentClaims(t *testing.T) {
	logger := zerolog.New(io.Discard)
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	const numJobs = 4
	const numWorkers = 10

	for i := 0; i < numJobs; i++ {
		require.NoError(t, db.CreateSyncJob(ctx, newPendingJob(fmt.Sprintf("page-%d", i))))
	}

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	claims := make(chan *models.SyncJob, numWorkers)

	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			defer wg.Done()
			job, err := db.ClaimNextSyncJob(ctx, fmt.Sprintf("worker-%d", worker))
			assert.NoError(t, err)
			claims <- job
		}(i)
	}

	wg.Wait()
	close(claims)

	seen := make(map[int64]bool)
	var claimed, empty int
	for job := range claims {
		if job == nil {
			empty++
			continue
		}
		claimed++
		assert.False(t, seen[job.ID], "job %d claimed twice", job.ID)
		seen[job.ID] = true
		assert.Equal(t, models.JobStatusProcessing, job.Status)
		assert.Equal(t, 1, job.Attempt)
	}

	assert.Equal(t, numJobs, claimed)
	assert.Equal(t, numWorkers-numJobs, empty)
}
