package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores raw document pages
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
}

// DocumentKey generates a cache key from a document URL
func DocumentKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "patentscan:v1:" + hex.EncodeToString(hash[:])
}
