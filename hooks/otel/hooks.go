// Package otelhooks records adsync.Hooks events as OpenTelemetry counters.
package otelhooks

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/adsync"
)

const scope = "github.com/unkn0wn-root/adsync/hooks/otel"

type Hooks struct {
	next adsync.Hooks

	staleWrites metric.Int64Counter
	fetchFails  metric.Int64Counter
	evictions   metric.Int64Counter
	pushDropped metric.Int64Counter
	pushStates  metric.Int64Counter
}

var _ adsync.Hooks = (*Hooks)(nil)

// New registers the counters on mp (the global provider when nil). Every
// event is also forwarded to next, which may be nil.
func New(mp metric.MeterProvider, next adsync.Hooks) (*Hooks, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if next == nil {
		next = adsync.NopHooks{}
	}
	meter := mp.Meter(scope)
	h := &Hooks{next: next}

	var err error
	if h.staleWrites, err = meter.Int64Counter("adsync.write.stale_dropped",
		metric.WithDescription("Responses discarded because a newer value was already written"),
	); err != nil {
		return nil, err
	}
	if h.fetchFails, err = meter.Int64Counter("adsync.fetch.failures",
		metric.WithDescription("Failed query fetches"),
	); err != nil {
		return nil, err
	}
	if h.evictions, err = meter.Int64Counter("adsync.entry.evictions",
		metric.WithDescription("Idle cache entries evicted"),
	); err != nil {
		return nil, err
	}
	if h.pushDropped, err = meter.Int64Counter("adsync.push.dropped",
		metric.WithDescription("Push events that were not applied"),
	); err != nil {
		return nil, err
	}
	if h.pushStates, err = meter.Int64Counter("adsync.push.transitions",
		metric.WithDescription("Push connection state transitions"),
	); err != nil {
		return nil, err
	}
	return h, nil
}

func endpoint(k adsync.CacheKey) metric.AddOption {
	return metric.WithAttributes(attribute.String("adsync.endpoint", k.Endpoint))
}

func (h *Hooks) StaleWriteDropped(key adsync.CacheKey, gen, written uint64) {
	h.staleWrites.Add(context.Background(), 1, endpoint(key))
	h.next.StaleWriteDropped(key, gen, written)
}

func (h *Hooks) FetchFailed(key adsync.CacheKey, err error) {
	h.fetchFails.Add(context.Background(), 1, endpoint(key))
	h.next.FetchFailed(key, err)
}

func (h *Hooks) EntryEvicted(key adsync.CacheKey) {
	h.evictions.Add(context.Background(), 1, endpoint(key))
	h.next.EntryEvicted(key)
}

func (h *Hooks) PushEventDropped(eventType, reason string) {
	h.pushDropped.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("adsync.event.type", eventType),
		attribute.String("adsync.drop.reason", reason),
	))
	h.next.PushEventDropped(eventType, reason)
}

func (h *Hooks) PushStateChanged(from, to adsync.ConnState) {
	h.pushStates.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("adsync.push.from", from.String()),
		attribute.String("adsync.push.to", to.String()),
	))
	h.next.PushStateChanged(from, to)
}
