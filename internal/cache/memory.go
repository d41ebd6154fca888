package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCache is an in-process Cache used by unit tests. Expiry is honored
// lazily on read; the unique-user estimate is exact rather than approximate,
// which is fine for tests.
type MemoryCache struct {
	mu       sync.Mutex
	values   map[string]memEntry
	counters map[string]int64
	users    map[string]map[string]bool
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		values:   map[string]memEntry{},
		counters: map[string]int64{},
		users:    map[string]map[string]bool{},
	}
}

func (c *MemoryCache) Ping(context.Context) error { return nil }
func (c *MemoryCache) Close() error               { return nil }

func (c *MemoryCache) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[JobStatusKey(jobID)] = memEntry{value: status, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.values[JobStatusKey(jobID)]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

func (c *MemoryCache) AddUniqueUser(_ context.Context, issueID uuid.UUID, day time.Time, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := UniqueUsersKey(issueID, day)
	if c.users[key] == nil {
		c.users[key] = map[string]bool{}
	}
	c.users[key][userID] = true

	total := int64(len(c.users[key]))
	total += int64(len(c.users[UniqueUsersKey(issueID, day.AddDate(0, 0, -1))]))
	return total, nil
}

var _ Cache = (*MemoryCache)(nil)
