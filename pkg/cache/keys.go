package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Namespace prefixes every key written by this service.
const Namespace = "blabz"

// Key derives a cache key from the logical operation and its parameters.
// Parts are lower-cased and ':' inside a part is replaced so the separator
// stays unambiguous for prefix invalidation.
func Key(op string, params ...string) string {
	parts := make([]string, 0, len(params)+2)
	parts = append(parts, Namespace, normalizePart(op))
	for _, p := range params {
		parts = append(parts, normalizePart(p))
	}
	return strings.Join(parts, ":")
}

// Prefix is Key plus a trailing separator, so "acct:al" never swallows "acct:alice".
func Prefix(op string, params ...string) string {
	return Key(op, params...) + ":"
}

// AccountPrefix scopes every key derived from a handle.
func AccountPrefix(handle string) string {
	return Prefix("acct", strings.TrimPrefix(handle, "@"))
}

// AccountKey builds a key inside the handle's scope.
func AccountKey(handle, op string, params ...string) string {
	return AccountPrefix(handle) + strings.TrimPrefix(Key(op, params...), Namespace+":")
}

// BodyHash fingerprints a request body so write endpoints with otherwise
// identical parameters get distinct keys.
func BodyHash(body []byte) string {
	if len(body) == 0 {
		return "nobody"
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:8])
}

func normalizePart(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	return strings.ReplaceAll(p, ":", "_")
}
