package adsync

// Hooks receives high-signal events from the client.
// Implementations MUST be cheap and non-blocking: several are called while
// the client lock is held.
type Hooks interface {
	// A response arrived for a request older than the value already written.
	StaleWriteDropped(key CacheKey, gen, written uint64)

	// A fetch failed. The entry keeps its previous value, if any.
	FetchFailed(key CacheKey, err error)

	// An idle entry outlived the idle timeout (or the idle store overflowed).
	EntryEvicted(key CacheKey)

	// A push message was not applied.
	// reason ∈ {"malformed", "unknown_type", "handler_error"}
	PushEventDropped(eventType, reason string)

	// The push connection changed state.
	PushStateChanged(from, to ConnState)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) StaleWriteDropped(CacheKey, uint64, uint64) {}
func (NopHooks) FetchFailed(CacheKey, error)                {}
func (NopHooks) EntryEvicted(CacheKey)                      {}
func (NopHooks) PushEventDropped(string, string)            {}
func (NopHooks) PushStateChanged(ConnState, ConnState)      {}
