package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/teampulse/insight/internal/models"
	"github.com/teampulse/insight/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cache kinds.
const (
	KindAdvisory = "advisory"
	KindReport   = "report"
)

// CacheKey identifies one cached result. Generation ties the entry to the
// state of the work-item store it was computed from.
type CacheKey struct {
	ActorID    uint
	Kind       string
	Query      string
	Generation uint64
}

// NormalizeQuery lower-cases and trims free text. Different phrasings stay
// different keys.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%d:%d:%s", k.Kind, k.ActorID, k.Generation, k.Query)
}

// Hash returns the SHA-256 hex digest of the key, used where keys must be bounded.
func (k CacheKey) Hash() string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(k.String())))
}

// CacheStore holds derived payloads with a TTL. Get treats expired entries
// as a miss; Put overwrites. Writes are last-write-wins.
type CacheStore interface {
	Get(ctx context.Context, key CacheKey) ([]byte, bool, error)
	Put(ctx context.Context, key CacheKey, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key CacheKey) error
}

// Sweeper is implemented by stores that need expired entries removed eagerly.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCacheStore is a process-local CacheStore.
type MemoryCacheStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCacheStore(now func() time.Time) *MemoryCacheStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryCacheStore{entries: make(map[string]memoryEntry), now: now}
}

func (m *MemoryCacheStore) Get(_ context.Context, key CacheKey) ([]byte, bool, error) {
	k := key.String()
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[k]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, k)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCacheStore) Put(_ context.Context, key CacheKey, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)

	m.mu.Lock()
	m.entries[key.String()] = memoryEntry{value: buf, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCacheStore) Delete(_ context.Context, key CacheKey) error {
	m.mu.Lock()
	delete(m.entries, key.String())
	m.mu.Unlock()
	return nil
}

func (m *MemoryCacheStore) Sweep(_ context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored entries, expired ones included.
func (m *MemoryCacheStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// DBCacheStore keeps entries in the insight_cache table.
type DBCacheStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBCacheStore(db *gorm.DB) *DBCacheStore {
	return &DBCacheStore{db: db, now: time.Now}
}

func (s *DBCacheStore) Get(ctx context.Context, key CacheKey) ([]byte, bool, error) {
	var entry models.InsightCacheEntry
	err := s.db.WithContext(ctx).Where("cache_key = ?", key.Hash()).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read insight cache: %w", err)
	}
	if !s.now().Before(entry.ExpiresAt) {
		if err := s.db.WithContext(ctx).Delete(&entry).Error; err != nil {
			logger.Warn().Err(err).Str("key", key.String()).Msg("[Cache] Failed to evict expired entry")
		}
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

func (s *DBCacheStore) Put(ctx context.Context, key CacheKey, value []byte, ttl time.Duration) error {
	entry := models.InsightCacheEntry{
		CacheKey:        key.Hash(),
		ActorID:         key.ActorID,
		QueryKind:       key.Kind,
		NormalizedQuery: key.Query,
		Payload:         value,
		ExpiresAt:       s.now().Add(ttl),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("write insight cache: %w", err)
	}
	return nil
}

func (s *DBCacheStore) Delete(ctx context.Context, key CacheKey) error {
	return s.db.WithContext(ctx).Where("cache_key = ?", key.Hash()).Delete(&models.InsightCacheEntry{}).Error
}

func (s *DBCacheStore) Sweep(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.InsightCacheEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep insight cache: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// RedisCacheStore shares entries between instances. Expiry is enforced by Redis.
type RedisCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCacheStore(client redis.UniversalClient, prefix string) *RedisCacheStore {
	if prefix == "" {
		prefix = "insight:cache:"
	}
	return &RedisCacheStore{client: client, prefix: prefix}
}

func (s *RedisCacheStore) redisKey(key CacheKey) string {
	return s.prefix + key.Hash()
}

func (s *RedisCacheStore) Get(ctx context.Context, key CacheKey) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (s *RedisCacheStore) Put(ctx context.Context, key CacheKey, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.redisKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisCacheStore) Delete(ctx context.Context, key CacheKey) error {
	return s.client.Del(ctx, s.redisKey(key)).Err()
}

// instrumentedCache records hit and miss counters around another store.
type instrumentedCache struct {
	next CacheStore
}

// WithMetrics wraps store with Prometheus lookup and write counters.
func WithMetrics(store CacheStore) CacheStore {
	return &instrumentedCache{next: store}
}

func (c *instrumentedCache) Get(ctx context.Context, key CacheKey) ([]byte, bool, error) {
	val, ok, err := c.next.Get(ctx, key)
	switch {
	case err != nil:
		cacheLookups.WithLabelValues(key.Kind, "error").Inc()
	case ok:
		cacheLookups.WithLabelValues(key.Kind, "hit").Inc()
	default:
		cacheLookups.WithLabelValues(key.Kind, "miss").Inc()
	}
	return val, ok, err
}

func (c *instrumentedCache) Put(ctx context.Context, key CacheKey, value []byte, ttl time.Duration) error {
	err := c.next.Put(ctx, key, value, ttl)
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheWrites.WithLabelValues(key.Kind, result).Inc()
	return err
}

func (c *instrumentedCache) Delete(ctx context.Context, key CacheKey) error {
	return c.next.Delete(ctx, key)
}

func (c *instrumentedCache) Sweep(ctx context.Context) (int, error) {
	if s, ok := c.next.(Sweeper); ok {
		return s.Sweep(ctx)
	}
	return 0, nil
}

const generationGlobal = "global"

func projectGeneration(id uint) string { return fmt.Sprintf("project:%d", id) }

// GenerationCounter stores named commit counters. Instances sharing a cache
// backend must share their counters too, otherwise a commit on one instance
// leaves stale entries visible to the others.
type GenerationCounter interface {
	Incr(ctx context.Context, names ...string) error
	Get(ctx context.Context, name string) (uint64, error)
}

// Generations counts committed status transitions, globally and per
// project. Keys embed the current generation so results computed before a
// commit stop matching after it.
type Generations struct {
	counter GenerationCounter
}

// NewGenerations keeps counters in process memory.
func NewGenerations() *Generations {
	return NewGenerationsWith(NewMemoryGenerationCounter())
}

func NewGenerationsWith(counter GenerationCounter) *Generations {
	return &Generations{counter: counter}
}

// Bump records a commit touching projectID.
func (g *Generations) Bump(ctx context.Context, projectID uint) error {
	if err := g.counter.Incr(ctx, generationGlobal, projectGeneration(projectID)); err != nil {
		return fmt.Errorf("bump generation: %w", err)
	}
	return nil
}

func (g *Generations) Global(ctx context.Context) (uint64, error) {
	return g.counter.Get(ctx, generationGlobal)
}

func (g *Generations) Project(ctx context.Context, id uint) (uint64, error) {
	return g.counter.Get(ctx, projectGeneration(id))
}

// MemoryGenerationCounter is process-local. Only valid with a process-local cache.
type MemoryGenerationCounter struct {
	mu     sync.RWMutex
	counts map[string]uint64
}

func NewMemoryGenerationCounter() *MemoryGenerationCounter {
	return &MemoryGenerationCounter{counts: make(map[string]uint64)}
}

func (c *MemoryGenerationCounter) Incr(_ context.Context, names ...string) error {
	c.mu.Lock()
	for _, name := range names {
		c.counts[name]++
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryGenerationCounter) Get(_ context.Context, name string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[name], nil
}

// RedisGenerationCounter keeps counters in Redis next to RedisCacheStore.
type RedisGenerationCounter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisGenerationCounter(client redis.UniversalClient, prefix string) *RedisGenerationCounter {
	if prefix == "" {
		prefix = "insight:gen:"
	}
	return &RedisGenerationCounter{client: client, prefix: prefix}
}

func (c *RedisGenerationCounter) Incr(ctx context.Context, names ...string) error {
	pipe := c.client.TxPipeline()
	for _, name := range names {
		pipe.Incr(ctx, c.prefix+name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	return nil
}

func (c *RedisGenerationCounter) Get(ctx context.Context, name string) (uint64, error) {
	val, err := c.client.Get(ctx, c.prefix+name).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// DBGenerationCounter keeps counters in the cache_generations table.
type DBGenerationCounter struct {
	db *gorm.DB
}

func NewDBGenerationCounter(db *gorm.DB) *DBGenerationCounter {
	return &DBGenerationCounter{db: db}
}

func (c *DBGenerationCounter) Incr(ctx context.Context, names ...string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.CacheGeneration{Name: name}).Error; err != nil {
				return fmt.Errorf("create generation %s: %w", name, err)
			}
			err := tx.Model(&models.CacheGeneration{}).Where("name = ?", name).Updates(map[string]interface{}{
				"value":      gorm.Expr("value + ?", 1),
				"updated_at": time.Now(),
			}).Error
			if err != nil {
				return fmt.Errorf("incr generation %s: %w", name, err)
			}
		}
		return nil
	})
}

func (c *DBGenerationCounter) Get(ctx context.Context, name string) (uint64, error) {
	var row models.CacheGeneration
	err := c.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read generation %s: %w", name, err)
	}
	return row.Value, nil
}
