// Package genstore issues per-key request generations. A generation is
// taken for every request a client sends; responses carrying an older
// generation than the one already written are discarded.
package genstore

import (
	"context"
	"time"
)

// GenStore hands out per-key request generations. For a given key Bump never
// returns the same value twice.
type GenStore interface {
	// Snapshot returns the last generation handed out for key.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup forgets keys not bumped within retention.
	Cleanup(retention time.Duration)
	// Close stops background work (no-op ok).
	Close(context.Context) error
}
