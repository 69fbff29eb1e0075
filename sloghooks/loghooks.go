// Package sloghooks logs adsync.Hooks events to a *slog.Logger.
package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/adsync"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	EvictedEvery    uint64
	StaleWriteEvery uint64
	// Optional key redactor. Defaults to the endpoint plus a SHA-256 prefix
	// of the argument.
	Redact func(adsync.CacheKey) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	evictedCtr    atomic.Uint64
	staleWriteCtr atomic.Uint64
}

var _ adsync.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k adsync.CacheKey) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	if k.Arg == "" {
		return k.Endpoint
	}
	sum := sha256.Sum256([]byte(k.Arg))
	return k.Endpoint + "(" + hex.EncodeToString(sum[:6]) + ")"
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) StaleWriteDropped(key adsync.CacheKey, gen, written uint64) {
	if h.l == nil || !sample(h.opts.StaleWriteEvery, &h.staleWriteCtr) {
		return
	}
	h.l.Debug("adsync.stale_write_dropped",
		"key", h.redact(key),
		"gen", gen,
		"written", written)
}

func (h *Hooks) FetchFailed(key adsync.CacheKey, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("adsync.fetch_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) EntryEvicted(key adsync.CacheKey) {
	if h.l == nil || !sample(h.opts.EvictedEvery, &h.evictedCtr) {
		return
	}
	h.l.Debug("adsync.entry_evicted", "key", h.redact(key))
}

func (h *Hooks) PushEventDropped(eventType, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("adsync.push_event_dropped",
		"type", eventType,
		"reason", reason)
}

func (h *Hooks) PushStateChanged(from, to adsync.ConnState) {
	if h.l == nil {
		return
	}
	level := slog.LevelInfo
	if to == adsync.ConnReconnecting {
		level = slog.LevelWarn
	}
	h.l.Log(context.Background(), level, "adsync.push_state_changed",
		"from", from.String(),
		"to", to.String())
}
