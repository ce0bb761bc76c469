package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores opaque values with a per-entry TTL. A zero TTL means the
// implementation's default.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a fixed-length cache key from a namespace and its parts
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "signalwatch:v1:" + namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// New builds the cache for the given settings: memory only when dir is
// empty, memory in front of disk otherwise
func New(dir string, ttl time.Duration) Cache {
	if strings.TrimSpace(dir) == "" {
		return NewMemoryCache(ttl, 10*time.Minute)
	}
	return NewLayeredCache(ttl, dir, ttl)
}
