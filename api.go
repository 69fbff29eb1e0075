package adsync

import (
	"time"

	gen "github.com/unkn0wn-root/adsync/genstore"
)

// Options configure a Client. Only Transport is required; others have
// sensible defaults.
type Options struct {
	// Required
	Transport Transport

	Logger         Logger        // nil => NopLogger
	Hooks          Hooks         // nil => NopHooks
	GenStore       gen.GenStore  // nil => LocalGenStore owned (and closed) by the client
	IdleTimeout    time.Duration // grace period before an unsubscribed entry is evicted; 0 => 60s
	MaxIdleEntries int           // bound on parked entries; 0 => 10k
	GenSweep       time.Duration // LocalGenStore cleanup interval; 0 => 1h
	GenRetention   time.Duration // LocalGenStore retention; 0 => 24h. Must exceed the slowest request.
}

// New builds a Client. The Client is safe for concurrent use and must be
// closed to release its background work.
func New(opts Options) (*Client, error) {
	return newClient(opts)
}
