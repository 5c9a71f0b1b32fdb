package workerruntime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/redis/go-redis/v9"
)

var ErrModuleNotFound = errors.New("module not found")

// ModuleCache is the synchronous module import hook backed by Redis
// (spec §4.6 step 5, §6 "Module cache read (sync)"). S3 (the object
// store collaborator named in §6) is consulted as a fallback on a cache
// miss by objectStore, which may be nil in environments without one
// configured.
type ModuleCache struct {
	redis       *redisclient.Client
	ttl         time.Duration
	objectStore ObjectStore
}

// ObjectStore is the fallback collaborator for module content not
// present in the Redis cache; backed by the AWS S3 SDK in production.
type ObjectStore interface {
	GetObject(ctx context.Context, path string) ([]byte, error)
}

type moduleEntry struct {
	Content string `json:"content"`
	Hash    string `json:"hash"`
}

// moduleCacheTTL matches §3's Module Cache entry lifetime.
const moduleCacheTTL = 24 * time.Hour

// moduleIndexKey is the §3 `bifrost:module:index` set: every path with a
// live cache entry, enabling an index scan without a Redis KEYS sweep.
const moduleIndexKey = "bifrost:module:index"

func NewModuleCache(redis *redisclient.Client, objectStore ObjectStore) *ModuleCache {
	return &ModuleCache{redis: redis, ttl: moduleCacheTTL, objectStore: objectStore}
}

func moduleKey(path string) string {
	return "bifrost:module:" + path
}

// Resolve returns the module's source and content hash, consulting the
// object store on a cache miss and populating the cache for next time.
func (m *ModuleCache) Resolve(ctx context.Context, path string) (content string, hash string, err error) {
	var entry moduleEntry
	if err := m.redis.GetJSON(ctx, moduleKey(path), &entry); err == nil {
		return entry.Content, entry.Hash, nil
	} else if !errors.Is(err, redis.Nil) {
		return "", "", err
	}

	if m.objectStore == nil {
		return "", "", ErrModuleNotFound
	}
	data, err := m.objectStore.GetObject(ctx, path)
	if err != nil {
		return "", "", ErrModuleNotFound
	}

	sum := sha256.Sum256(data)
	entry = moduleEntry{Content: string(data), Hash: hex.EncodeToString(sum[:])}
	if payload, err := json.Marshal(entry); err == nil {
		_ = m.redis.Set(ctx, moduleKey(path), payload, m.ttl).Err()
		_ = m.redis.SAdd(ctx, moduleIndexKey, path).Err()
	}
	return entry.Content, entry.Hash, nil
}

// Invalidate drops a cached module, used when a package-installation
// notice (§4.4) reports a path has changed.
func (m *ModuleCache) Invalidate(ctx context.Context, path string) error {
	if err := m.redis.Del(ctx, moduleKey(path)).Err(); err != nil {
		return err
	}
	return m.redis.SRem(ctx, moduleIndexKey, path).Err()
}
