package adsync

import "github.com/unkn0wn-root/adsync/internal/util"

// CacheKey identifies one query result: an endpoint plus an argument
// fingerprint. It is comparable and used directly as a map key.
type CacheKey struct {
	Endpoint string
	Arg      string
}

// Key builds a CacheKey from positional arguments. A single argument is kept
// verbatim so keys stay readable in logs (e.g. getOrder(42)).
func Key(endpoint string, args ...string) CacheKey {
	return CacheKey{Endpoint: endpoint, Arg: util.Fingerprint(args...)}
}

// ParamsKey builds a CacheKey from named parameters.
func ParamsKey(endpoint string, params map[string]string) CacheKey {
	return CacheKey{Endpoint: endpoint, Arg: util.ParamsFingerprint(params)}
}

func (k CacheKey) String() string {
	if k.Arg == "" {
		return k.Endpoint
	}
	return k.Endpoint + "(" + k.Arg + ")"
}
