// Package session archives finished executor sessions in Redis with a local
// read cache, giving callers history context across runs without keeping
// every record in memory.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/metrics"
)

const keyPrefix = "praxis:session:"

// Store persists session records in Redis and caches them locally.
type Store struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration

	mu          sync.RWMutex
	localCache  map[string]*Record
	cacheAccess map[string]time.Time
	maxCached   int
}

// NewStore connects to Redis and returns a session store.
func NewStore(addr string, ttl time.Duration, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &Store{
		client:      client,
		logger:      logger,
		ttl:         ttl,
		localCache:  make(map[string]*Record),
		cacheAccess: make(map[string]time.Time),
		maxCached:   1000,
	}, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error { return s.client.Close() }

// Archive writes a terminal session record. Records are immutable; archiving
// the same ID twice overwrites with identical content in practice.
func (s *Store) Archive(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("cannot archive record without id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", rec.ID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+rec.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", rec.ID, err)
	}

	s.mu.Lock()
	s.localCache[rec.ID] = rec
	s.cacheAccess[rec.ID] = time.Now()
	s.evictLocked()
	metrics.SessionCacheSize.Set(float64(len(s.localCache)))
	s.mu.Unlock()

	metrics.ArchivedSessions.Inc()
	s.logger.Info("Archived session",
		zap.String("session_id", rec.ID),
		zap.String("status", rec.Status),
		zap.Int("iterations", rec.Iterations),
		zap.Int("tokens_used", rec.TokensUsed),
	)
	return nil
}

// Get retrieves a session record by ID, consulting the local cache first.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	if rec, ok := s.localCache[id]; ok {
		s.mu.RUnlock()
		s.mu.Lock()
		s.cacheAccess[id] = time.Now()
		s.mu.Unlock()
		return rec, nil
	}
	s.mu.RUnlock()

	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	s.mu.Lock()
	s.localCache[id] = &rec
	s.cacheAccess[id] = time.Now()
	s.evictLocked()
	metrics.SessionCacheSize.Set(float64(len(s.localCache)))
	s.mu.Unlock()

	return &rec, nil
}

// evictLocked trims the local cache to maxCached entries by least recent
// access. Caller holds s.mu.
func (s *Store) evictLocked() {
	for len(s.localCache) > s.maxCached {
		oldestID := ""
		var oldest time.Time
		for id, at := range s.cacheAccess {
			if oldestID == "" || at.Before(oldest) {
				oldestID = id
				oldest = at
			}
		}
		delete(s.localCache, oldestID)
		delete(s.cacheAccess, oldestID)
	}
}
