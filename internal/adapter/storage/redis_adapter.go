package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/patrion/internal/core/domain"
)

const (
	idempotencyKeyPrefix = "patrion:idempotency:"
	sectorsKey           = "patrion:sectors"
)

type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
	sectorTTL      time.Duration
}

func NewRedisAdapter(client *redis.Client, idempotencyTTL, sectorTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{
		client:         client,
		idempotencyTTL: idempotencyTTL,
		sectorTTL:      sectorTTL,
	}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) GetSectors(ctx context.Context) ([]domain.Sector, bool, error) {
	data, err := r.client.Get(ctx, sectorsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var sectors []domain.Sector
	if err := json.Unmarshal(data, &sectors); err != nil {
		return nil, false, fmt.Errorf("decode cached sectors: %w", err)
	}
	return sectors, true, nil
}

func (r *RedisAdapter) SetSectors(ctx context.Context, sectors []domain.Sector) error {
	if r.sectorTTL <= 0 {
		return nil
	}
	data, err := json.Marshal(sectors)
	if err != nil {
		return fmt.Errorf("encode sectors: %w", err)
	}
	return r.client.Set(ctx, sectorsKey, data, r.sectorTTL).Err()
}

func (r *RedisAdapter) InvalidateSectors(ctx context.Context) error {
	return r.client.Del(ctx, sectorsKey).Err()
}
