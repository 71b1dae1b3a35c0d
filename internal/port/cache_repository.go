package port

import (
	"context"

	"github.com/rl1809/patrion/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency claims a key, returns false if it was already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// GetSectors returns the cached sector list; ok is false on a miss
	GetSectors(ctx context.Context) (sectors []domain.Sector, ok bool, err error)

	SetSectors(ctx context.Context, sectors []domain.Sector) error

	InvalidateSectors(ctx context.Context) error
}
