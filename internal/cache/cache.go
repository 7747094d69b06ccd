// Package cache stores geocoder responses so repeated queries for the same
// intersection do not hit the service again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lnkbike/crashes/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a cache key for namespace from the given parts. Parts are
// case-folded and whitespace-collapsed so "27th  & Vine" and "27TH & VINE"
// share an entry.
func Key(namespace string, parts ...string) string {
	folded := make([]string, len(parts))
	for i, p := range parts {
		folded[i] = strings.ToLower(strings.Join(strings.Fields(p), " "))
	}
	hash := sha256.Sum256([]byte(strings.Join(folded, "\x00")))
	return "crashes:" + namespace + ":v1:" + hex.EncodeToString(hash[:])
}

// FromConfig builds the configured cache: memory in front of disk. Expired
// disk entries are pruned first. It returns nil when caching is disabled.
func FromConfig(cfg model.CacheConfig, log logrus.FieldLogger) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.TTL, 10*time.Minute)
	}

	disk := NewDiskCache(cfg.Dir, cfg.TTL)
	if removed, err := disk.Prune(); err != nil {
		log.WithField("dir", cfg.Dir).Warnf("Cache prune failed: %v", err)
	} else if removed > 0 {
		log.WithFields(logrus.Fields{"dir": cfg.Dir, "removed": removed}).Debug("Pruned expired cache entries")
	}
	return NewLayered(NewMemoryCache(time.Hour, 10*time.Minute), disk, time.Hour)
}
