// Package identity resolves author ids to display names for feed and
// thread hydration.
package identity

import (
	"context"
	"sync"
	"time"

	"github.com/inkify/engine/internal/cache"
	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/metrics"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/store"
	"go.uber.org/zap"
)

// ChunkSize is the maximum number of ids per store "in" query
const ChunkSize = 30

const redisKeyPrefix = "identity:name:"

type cacheEntry struct {
	name      string
	expiresAt time.Time
}

// Resolver batches display-name lookups against the user collection with a
// two-level cache (in-process map, then Redis). Missing or blank usernames
// resolve to the anonymous fallback so one deleted account never fails a
// whole page.
type Resolver struct {
	store store.DocumentStore
	redis *cache.RedisClient
	ttl   time.Duration

	mu    sync.RWMutex
	local map[string]cacheEntry
}

// NewResolver creates a resolver. redis may be nil; the resolver then runs
// on the in-process cache alone.
func NewResolver(st store.DocumentStore, redis *cache.RedisClient, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Resolver{
		store: st,
		redis: redis,
		ttl:   ttl,
		local: make(map[string]cacheEntry),
	}
}

// Resolve maps each id to a display name. Every requested id is present in
// the result; unknown authors map to the anonymous fallback.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	// Dedupe while preserving nothing about order; the result is a map
	pending := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		pending = append(pending, id)
	}

	pending = r.fromLocal(pending, result)
	pending = r.fromRedis(ctx, pending, result)

	if n := len(pending); n > 0 {
		metrics.Get().CacheMissesTotal.WithLabelValues("resolver").Add(float64(n))
	}

	for _, chunk := range Chunk(pending, ChunkSize) {
		var users []models.User
		q := store.Query{
			Filters: []store.Filter{{Field: "id", Op: store.OpIn, Value: chunk}},
		}
		if err := r.store.Query(ctx, store.Users, q, &users); err != nil {
			return nil, err
		}

		found := make(map[string]string, len(users))
		for _, u := range users {
			found[u.ID] = u.DisplayName()
		}
		for _, id := range chunk {
			name, ok := found[id]
			if !ok {
				name = models.AnonymousName
			}
			result[id] = name
			r.remember(ctx, id, name)
		}
	}

	return result, nil
}

// ResolveOne is a convenience wrapper for a single id
func (r *Resolver) ResolveOne(ctx context.Context, id string) (string, error) {
	names, err := r.Resolve(ctx, []string{id})
	if err != nil {
		return "", err
	}
	if name, ok := names[id]; ok {
		return name, nil
	}
	return models.AnonymousName, nil
}

// Invalidate evicts an id from both cache levels, used when a profile
// changes its display name
func (r *Resolver) Invalidate(ctx context.Context, id string) {
	r.mu.Lock()
	delete(r.local, id)
	r.mu.Unlock()

	if r.redis != nil {
		if err := r.redis.Del(ctx, redisKeyPrefix+id); err != nil {
			logger.Log.Warn("resolver cache eviction failed",
				zap.String("user_id", id), zap.Error(err))
		}
	}
}

// fromLocal fills result from the in-process cache, returning the ids
// still unresolved
func (r *Resolver) fromLocal(ids []string, result map[string]string) []string {
	now := time.Now()
	missing := ids[:0]

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if entry, ok := r.local[id]; ok && now.Before(entry.expiresAt) {
			result[id] = entry.name
			metrics.Get().CacheHitsTotal.WithLabelValues("resolver").Inc()
			continue
		}
		missing = append(missing, id)
	}
	return missing
}

// fromRedis fills result from Redis, returning the ids still unresolved.
// Redis failures degrade to store lookups rather than failing the call.
func (r *Resolver) fromRedis(ctx context.Context, ids []string, result map[string]string) []string {
	if r.redis == nil || len(ids) == 0 {
		return ids
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKeyPrefix + id
	}

	values, err := r.redis.MGet(ctx, keys...)
	if err != nil {
		logger.Log.Warn("resolver redis lookup failed", zap.Error(err))
		return ids
	}

	missing := ids[:0]
	for i, v := range values {
		name, ok := v.(string)
		if !ok || name == "" {
			missing = append(missing, ids[i])
			continue
		}
		result[ids[i]] = name
		metrics.Get().CacheHitsTotal.WithLabelValues("resolver").Inc()
		r.mu.Lock()
		r.local[ids[i]] = cacheEntry{name: name, expiresAt: time.Now().Add(r.ttl)}
		r.mu.Unlock()
	}
	return missing
}

func (r *Resolver) remember(ctx context.Context, id, name string) {
	r.mu.Lock()
	r.local[id] = cacheEntry{name: name, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	if r.redis != nil {
		if err := r.redis.SetEx(ctx, redisKeyPrefix+id, name, r.ttl); err != nil {
			logger.Log.Warn("resolver redis write failed", zap.Error(err))
		}
	}
}

// Chunk splits ids into slices of at most size elements
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
