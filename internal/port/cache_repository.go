package port

import (
	"context"
	"time"
)

type Locker interface {
	// AcquireLock sets key to a fresh token if absent, returns ok=false if already held
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// ReleaseLock deletes key only while it still holds token
	ReleaseLock(ctx context.Context, key, token string) error
}

type IdempotencyStore interface {
	// SetIdempotency claims key for value. If the key is already claimed it returns
	// ok=false and the value it was claimed with
	SetIdempotency(ctx context.Context, key, value string) (claimed string, ok bool, err error)

	// ClearIdempotency releases a key so the request may be retried
	ClearIdempotency(ctx context.Context, key string) error
}

type CacheRepository interface {
	Locker
	IdempotencyStore
}
