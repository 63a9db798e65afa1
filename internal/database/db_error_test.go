package database

import (
	"context"
	"io"
	"testing"
	"time"

	"pagemirror/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	assert.NoError(t, err)
	db.Close() // Close the DB to trigger errors

	ctx := context.Background()

	t.Run("CreateSyncJob_Error", func(t *testing.T) {
		err := db.CreateSyncJob(ctx, &models.SyncJob{})
		assert.Error(t, err)
	})

	t.Run("ClaimNextSyncJob_Error", func(t *testing.T) {
		_, err := db.ClaimNextSyncJob(ctx, "w1")
		assert.Error(t, err)
	})

	t.Run("LatestSyncJobByDedupeKey_Error", func(t *testing.T) {
		_, err := db.LatestSyncJobByDedupeKey(ctx, "page:x")
		assert.Error(t, err)
	})

	t.Run("MarkSyncJobRetry_Error", func(t *testing.T) {
		err := db.MarkSyncJobRetry(ctx, 1, "boom", time.Now())
		assert.Error(t, err)
	})

	t.Run("ResetSyncJob_Error", func(t *testing.T) {
		_, err := db.ResetSyncJob(ctx, 1)
		assert.Error(t, err)
	})

	t.Run("ListRecentSyncJobs_Error", func(t *testing.T) {
		_, err := db.ListRecentSyncJobs(ctx, 10)
		assert.Error(t, err)
	})

	t.Run("UpsertPage_Error", func(t *testing.T) {
		_, err := db.UpsertPageByExternalID(ctx, models.PageContent{ExternalID: "x"})
		assert.Error(t, err)
	})

	t.Run("ListPublishedPages_Error", func(t *testing.T) {
		_, err := db.ListPublishedPages(ctx)
		assert.Error(t, err)
	})
}

func TestIsConstraintError(t *testing.T) {
	assert.False(t, IsConstraintError(nil))
	assert.False(t, IsConstraintError(context.Canceled))
}
