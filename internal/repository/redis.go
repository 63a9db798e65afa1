package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pagemirror/internal/config"
	"pagemirror/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisPageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisPageCache(client *redis.Client, ttl time.Duration) *RedisPageCache {
	return &RedisPageCache{
		client: client,
		ttl:    ttl,
	}
}

func pageKey(slug string) string {
	return "page:" + slug
}

func (r *RedisPageCache) GetPage(ctx context.Context, slug string) (*models.Page, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, pageKey(slug)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page from redis: %w", err)
	}

	var page models.Page
	if err := json.Unmarshal([]byte(val), &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal page: %w", err)
	}

	return &page, nil
}

func (r *RedisPageCache) SetPage(ctx context.Context, page *models.Page) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal page: %w", err)
	}

	if err := r.client.Set(ctx, pageKey(page.Slug), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set page in redis: %w", err)
	}

	return nil
}

func (r *RedisPageCache) InvalidatePage(ctx context.Context, slug string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, pageKey(slug)).Err(); err != nil {
		return fmt.Errorf("failed to delete page from redis: %w", err)
	}
	return nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
