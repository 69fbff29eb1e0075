// Package adsync keeps a client-side view of server resources consistent with
// the server. Query results are cached per CacheKey and indexed by the tags
// they provide; mutations invalidate tags; push events patch entries in place.
//
// Components:
//   - Resource cache: entries with per-key subscribers. Entries without
//     subscribers are parked and evicted after Options.IdleTimeout.
//   - Tag index: Tag -> keys whose last successful fetch provided it.
//   - Query engine: coalesces identical in-flight requests and guards writes
//     with per-key request generations (GenStore).
//   - Mutation executor: runs a write once, then marks dependent keys stale.
//     Optimistic patches are rolled back when the write fails.
//   - Reconciler: push-connection state machine that routes server events to
//     handlers which patch the cache.
//
// Generation guard:
//
//	gen := bump(key)          // request issued
//	v, tags := fetch(key)
//	write iff gen > written   // older responses never overwrite newer ones
//
// Invalidation also bumps the generation; an entry stays stale until a
// response issued after the invalidation has been written.
package adsync
