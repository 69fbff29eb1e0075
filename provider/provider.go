// Package provider defines the byte store behind the HTTP transport's
// validator cache (ETag revalidation).
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set for a key. Stores are best-effort: a miss
// only costs a full response instead of a 304.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs, safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. cost may be ignored.
	// ok=false means the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Missing keys are not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
