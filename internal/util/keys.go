package util

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint returns a stable argument fingerprint for a cache key.
// No parts => "", a single part is used verbatim, more parts are hashed in
// order (positional arguments are not reordered).
func Fingerprint(parts ...string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return shortHash(strings.Join(parts, "\x00"))
}

// ParamsFingerprint fingerprints named parameters independent of map order.
func ParamsFingerprint(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	return shortHash(strings.Join(pairs, "&"))
}

// shortHash is the first 16 hex chars of the SHA-256 of s.
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)[:16]
}
