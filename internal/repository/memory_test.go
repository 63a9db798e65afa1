package repository

import (
	"context"
	"testing"
	"time"

	"pagemirror/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPageCache(t *testing.T) {
	cache := NewMemoryPageCache(time.Minute)
	ctx := context.Background()

	page, err := cache.GetPage(ctx, "welcome")
	require.NoError(t, err)
	assert.Nil(t, page)

	require.NoError(t, cache.SetPage(ctx, &models.Page{Slug: "welcome", Title: "Welcome"}))

	page, err = cache.GetPage(ctx, "welcome")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "Welcome", page.Title)

	require.NoError(t, cache.InvalidatePage(ctx, "welcome"))
	page, err = cache.GetPage(ctx, "welcome")
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestMemoryPageCacheExpiry(t *testing.T) {
	cache := NewMemoryPageCache(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.SetPage(ctx, &models.Page{Slug: "welcome"}))

	time.Sleep(20 * time.Millisecond)

	page, err := cache.GetPage(ctx, "welcome")
	require.NoError(t, err)
	assert.Nil(t, page)
}
