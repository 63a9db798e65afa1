package database

import (
	"context"
	"testing"
	"time"

	"pagemirror/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertPageByExternalID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	content := models.PageContent{
		ExternalID:  "ext-1",
		Title:       "Welcome",
		Slug:        "welcome",
		Blocks:      `[{"type":"paragraph"}]`,
		PublishedAt: time.Now().Add(-time.Hour),
	}

	page, err := db.UpsertPageByExternalID(ctx, content)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", page.ExternalID)
	assert.Equal(t, "Welcome", page.Title)
	assert.Equal(t, models.PageStatusPublished, page.Status)
	require.NotNil(t, page.PublishedAt)

	// same external id updates in place
	content.Title = "Welcome v2"
	content.Slug = "welcome-v2"
	updated, err := db.UpsertPageByExternalID(ctx, content)
	require.NoError(t, err)
	assert.Equal(t, page.ID, updated.ID)
	assert.Equal(t, "Welcome v2", updated.Title)
	assert.Equal(t, "welcome-v2", updated.Slug)
}

func TestGetPageBySlug(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	_, err := db.GetPageBySlug(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrPageNotFound)

	_, err = db.UpsertPageByExternalID(ctx, models.PageContent{
		ExternalID: "ext-1",
		Title:      "About",
		Slug:       "about",
	})
	require.NoError(t, err)

	page, err := db.GetPageBySlug(ctx, "about")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", page.ExternalID)
}

func TestListPublishedPages(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	pages, err := db.ListPublishedPages(ctx)
	require.NoError(t, err)
	assert.Empty(t, pages)

	for _, p := range []struct{ id, title, slug string }{
		{"e1", "Zebra", "zebra"},
		{"e2", "Alpha", "alpha"},
	} {
		_, err := db.UpsertPageByExternalID(ctx, models.PageContent{
			ExternalID: p.id, Title: p.title, Slug: p.slug,
		})
		require.NoError(t, err)
	}

	pages, err = db.ListPublishedPages(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "Alpha", pages[0].Title) // sorted by title
}
