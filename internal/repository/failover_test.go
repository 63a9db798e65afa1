package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"pagemirror/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailoverPageCache(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	primary := NewRedisPageCache(client, time.Minute)
	fallback := NewMemoryPageCache(time.Minute)
	cache := NewFailoverPageCache(primary, fallback, &logger)

	page := &models.Page{Slug: "welcome", Title: "Welcome"}

	t.Run("PrimaryHealthy", func(t *testing.T) {
		require.NoError(t, cache.SetPage(ctx, page))
		got, err := cache.GetPage(ctx, "welcome")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Welcome", got.Title)
	})

	t.Run("FallsBackWhenPrimaryDies", func(t *testing.T) {
		mr.Close()

		// write goes to fallback without surfacing the redis error
		require.NoError(t, cache.SetPage(ctx, page))

		got, err := cache.GetPage(ctx, "welcome")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Welcome", got.Title)
	})

	t.Run("InvalidateOnFallback", func(t *testing.T) {
		require.NoError(t, cache.InvalidatePage(ctx, "welcome"))
		got, err := cache.GetPage(ctx, "welcome")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
