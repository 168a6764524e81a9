package cache

import (
	"context"
	"strings"
	"time"
)

// Predefined cache key prefixes for different entity types
const (
	PrefixEnrollment = "enrollment:v1"
	PrefixLeftover   = "leftover:v1"
)

// DefaultExpiration is the default expiration time for cache entries
const DefaultExpiration = 5 * time.Minute

// DefaultCleanupInterval is how often expired items are removed from the cache
const DefaultCleanupInterval = 10 * time.Minute

// Cache defines the interface for cache operations
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)
	Get(ctx context.Context, key string) (interface{}, bool)
	Delete(ctx context.Context, key string)
	DeleteByPrefix(ctx context.Context, prefix string)
	Flush(ctx context.Context)
}

// GenerateKey builds a cache key from a prefix and parts, scoping keys
// per concern so invalidation by prefix stays cheap
func GenerateKey(prefix string, parts ...string) string {
	b := strings.Builder{}
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteString(":")
		b.WriteString(p)
	}
	return b.String()
}
