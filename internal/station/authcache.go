package station

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/ports"
)

type cacheEntry struct {
	status    domain.AuthorizationStatus
	expiresAt time.Time
}

// AuthCache is the bounded FIFO authorization cache. Entries carry a TTL and
// are purged lazily on lookup. An optional shared backend lets workers on
// different processes see each other's remote verdicts.
type AuthCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string
	max     int

	shared ports.Cache
	log    *zap.Logger

	now func() time.Time
}

// NewAuthCache builds a cache holding at most max entries. shared may be nil.
func NewAuthCache(max int, shared ports.Cache, log *zap.Logger) *AuthCache {
	if max <= 0 {
		max = 256
	}
	return &AuthCache{
		entries: make(map[string]cacheEntry),
		max:     max,
		shared:  shared,
		log:     log,
		now:     time.Now,
	}
}

// Put stores a verdict for ttl. The oldest entry is evicted when full.
func (c *AuthCache) Put(ctx context.Context, tag string, status domain.AuthorizationStatus, ttl time.Duration) {
	c.mu.Lock()
	if _, ok := c.entries[tag]; !ok {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, tag)
	}
	c.entries[tag] = cacheEntry{status: status, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	if c.shared != nil {
		if err := c.shared.Set(ctx, "auth:"+tag, string(status), ttl); err != nil {
			c.log.Warn("shared auth cache write failed", zap.String("tag", tag), zap.Error(err))
		}
	}
}

// Lookup returns the cached verdict. Expired entries are evicted and report
// expired true.
func (c *AuthCache) Lookup(ctx context.Context, tag string) (status domain.AuthorizationStatus, ok, expired bool) {
	c.mu.Lock()
	e, found := c.entries[tag]
	if found {
		if c.now().After(e.expiresAt) {
			delete(c.entries, tag)
			c.removeFromOrderLocked(tag)
			c.mu.Unlock()
			return "", false, true
		}
		c.mu.Unlock()
		return e.status, true, false
	}
	c.mu.Unlock()

	if c.shared != nil {
		raw, err := c.shared.Get(ctx, "auth:"+tag)
		if err == nil && raw != "" {
			return domain.AuthorizationStatus(raw), true, false
		}
	}
	return "", false, false
}

// Clear drops every entry.
func (c *AuthCache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.order = nil
	c.mu.Unlock()
}

// Len reports the number of live entries, expired ones included until their
// next lookup.
func (c *AuthCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *AuthCache) removeFromOrderLocked(tag string) {
	for i, t := range c.order {
		if t == tag {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
