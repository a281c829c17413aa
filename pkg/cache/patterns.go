package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashText creates a short SHA-256 hash of text, used to build cache keys
// for content whose identity is its bytes (a description document, a
// rendered prompt) rather than a name.
func HashText(text string) string {
	h := sha256.New()
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// CacheKeyForText generates a cache key for raw text under a prefix.
func CacheKeyForText(prefix, text string) string {
	return prefix + ":" + HashText(text)
}
