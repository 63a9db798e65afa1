package repository

import (
	"context"
	"testing"
	"time"

	"pagemirror/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) (*RedisPageCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisPageCache(client, time.Minute), mr
}

func TestRedisPageCache(t *testing.T) {
	cache, mr := setupRedisCache(t)
	ctx := context.Background()

	// miss
	page, err := cache.GetPage(ctx, "welcome")
	require.NoError(t, err)
	assert.Nil(t, page)

	stored := &models.Page{ID: 1, ExternalID: "p1", Title: "Welcome", Slug: "welcome"}
	require.NoError(t, cache.SetPage(ctx, stored))

	page, err = cache.GetPage(ctx, "welcome")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "Welcome", page.Title)

	// TTL is set
	assert.Greater(t, mr.TTL("page:welcome"), time.Duration(0))

	require.NoError(t, cache.InvalidatePage(ctx, "welcome"))
	page, err = cache.GetPage(ctx, "welcome")
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestRedisPageCacheServerDown(t *testing.T) {
	cache, mr := setupRedisCache(t)
	ctx := context.Background()

	mr.Close()

	_, err := cache.GetPage(ctx, "welcome")
	assert.Error(t, err)
	assert.Error(t, cache.SetPage(ctx, &models.Page{Slug: "welcome"}))
}

func TestRedisPageCacheNilClient(t *testing.T) {
	cache := NewRedisPageCache(nil, time.Minute)
	ctx := context.Background()

	_, err := cache.GetPage(ctx, "x")
	assert.Error(t, err)
	assert.Error(t, cache.SetPage(ctx, &models.Page{Slug: "x"}))
	assert.Error(t, cache.InvalidatePage(ctx, "x"))
}

func TestPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	assert.NoError(t, Ping(context.Background(), client))

	mr.Close()
	assert.Error(t, Ping(context.Background(), client))
}
