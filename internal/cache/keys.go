package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key prefixes spec.md 4.L fixes for the three key spaces.
const (
	prefixCache   = "cache:"
	prefixSession = "session:"
	prefixLock    = "lock:"
)

// normalizeQuery applies NFKC normalization, lowercasing and trimming
// before hashing, so that case/whitespace/compatibility-form variance
// never produces distinct cache keys for what is semantically the same
// query.
func normalizeQuery(query string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFKC.String(query)))
}

// hashQuery is the MD5 hex digest of the normalized query, the cache key
// suffix spec.md 4.L specifies.
func hashQuery(query string) string {
	sum := md5.Sum([]byte(normalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

func exactCacheKey(query string) string {
	return fmt.Sprintf("%sexact:%s", prefixCache, hashQuery(query))
}

func semanticCacheKey(query string) string {
	return fmt.Sprintf("%ssemantic:%s", prefixCache, hashQuery(query))
}

// sessionKey scopes the history key to (userID, sessionID), matching
// spec.md 4.L's literal session:{user}:{session}:messages format.
// session_id alone is caller-supplied and carries no server-side
// uniqueness guarantee, so userID must be part of the key or two
// different users reusing the same session_id would share one history.
func sessionKey(userID, sessionID string) string {
	return fmt.Sprintf("%s%s:%s:messages", prefixSession, userID, sessionID)
}

func lockKey(name string) string {
	return fmt.Sprintf("%s%s", prefixLock, name)
}
