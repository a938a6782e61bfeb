package agentconfig

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	configCacheTTL     = 60 * time.Second
	configCacheTimeout = 300 * time.Millisecond
	configLoadTimeout  = 5 * time.Second
	configCachePrefix  = "agentconfig:"
)

// CachedStore is a read-through Redis cache in front of a Store. Concurrent
// misses for one tenant share a single load. Cache failures only log; the
// backing store stays authoritative.
type CachedStore struct {
	store  Store
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCachedStore wraps store. A nil client disables caching but keeps load
// coalescing.
func NewCachedStore(store Store, client *redis.Client) *CachedStore {
	return &CachedStore{store: store, client: client, ttl: configCacheTTL, generations: map[string]uint64{}}
}

// generation counts the writes seen for tenantID.
func (s *CachedStore) generation(tenantID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[tenantID]
}

func (s *CachedStore) bump(tenantID string) {
	s.mu.Lock()
	s.generations[tenantID]++
	s.mu.Unlock()
	s.group.Forget(tenantID)
}

func (s *CachedStore) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= configCacheTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, configCacheTimeout)
}

// Get serves from the cache or joins the tenant's in-flight load. The load
// runs detached from any single caller, so a cancelled caller returns alone.
func (s *CachedStore) Get(ctx context.Context, tenantID string) (*Config, error) {
	if cached, ok := s.lookup(ctx, tenantID); ok {
		return cached, nil
	}

	loads := s.group.DoChan(tenantID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), configLoadTimeout)
		defer cancel()

		started := s.generation(tenantID)
		cfg, err := s.store.Get(loadCtx, tenantID)
		if err != nil {
			return nil, err
		}
		// a write during the load makes cfg older than the store
		if s.generation(tenantID) == started {
			s.remember(loadCtx, cfg)
		}
		return cfg, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-loads:
		if result.Err != nil {
			return nil, result.Err
		}
		cfg := *result.Val.(*Config)
		return &cfg, nil
	}
}

// Put saves through and drops the cached entry.
func (s *CachedStore) Put(ctx context.Context, cfg *Config) error {
	if err := s.store.Put(ctx, cfg); err != nil {
		return err
	}
	s.bump(cfg.TenantID)
	s.invalidate(ctx, cfg.TenantID)
	return nil
}

func (s *CachedStore) lookup(ctx context.Context, tenantID string) (*Config, bool) {
	if s.client == nil || tenantID == "" {
		return nil, false
	}
	ctx, cancel := s.cacheContext(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, configCachePrefix+tenantID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("agentconfig: cache read failed")
		}
		return nil, false
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("agentconfig: cache entry corrupt")
		return nil, false
	}
	return &cfg, true
}

func (s *CachedStore) remember(ctx context.Context, cfg *Config) {
	if s.client == nil {
		return
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("agentconfig: marshal cache payload failed")
		return
	}
	ctx, cancel := s.cacheContext(ctx)
	defer cancel()
	if err := s.client.Set(ctx, configCachePrefix+cfg.TenantID, payload, s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("tenant_id", cfg.TenantID).Msg("agentconfig: cache write failed")
	}
}

func (s *CachedStore) invalidate(ctx context.Context, tenantID string) {
	if s.client == nil {
		return
	}
	ctx, cancel := s.cacheContext(ctx)
	defer cancel()
	if err := s.client.Del(ctx, configCachePrefix+tenantID).Err(); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("agentconfig: cache invalidate failed")
	}
}
