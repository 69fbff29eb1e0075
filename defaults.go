package adsync

import "time"

const (
	defaultIdleTimeout    = 60 * time.Second
	defaultMaxIdleEntries = 10_000
	defaultGenSweep       = time.Hour
	defaultGenRetention   = 24 * time.Hour
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
