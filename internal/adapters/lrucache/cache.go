// Package lrucache is the in-process domain.Cache used when no Redis address
// is configured.
package lrucache

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"crowdcount/internal/adapters/observability"
)

// Cache keeps JSON-encoded values so Get has the same copy semantics as the
// Redis adapter. The expirable LRU applies one TTL to every entry; the
// per-call ttl is honoured by storing the deadline alongside the value.
type Cache struct {
	l   *lru.LRU[string, entry]
	now func() time.Time
}

type entry struct {
	b   []byte
	exp time.Time
}

func New(size int, maxTTL time.Duration) *Cache {
	if size <= 0 {
		size = 4096
	}
	return &Cache{l: lru.NewLRU[string, entry](size, nil, maxTTL), now: time.Now}
}

func (c *Cache) Get(_ context.Context, key string, dst any) (bool, error) {
	e, ok := c.l.Get(key)
	if ok && !e.exp.IsZero() && c.now().After(e.exp) {
		c.l.Remove(key)
		ok = false
	}
	if !ok {
		observability.ObserveCache("lru", "miss")
		return false, nil
	}
	if err := json.Unmarshal(e.b, dst); err != nil {
		return false, err
	}
	observability.ObserveCache("lru", "hit")
	return true, nil
}

func (c *Cache) Set(_ context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e := entry{b: b}
	if ttlSec > 0 {
		e.exp = c.now().Add(time.Duration(ttlSec) * time.Second)
	}
	c.l.Add(key, e)
	observability.ObserveCache("lru", "set")
	return nil
}

func (c *Cache) Del(_ context.Context, key string) error {
	c.l.Remove(key)
	observability.ObserveCache("lru", "del")
	return nil
}

func (c *Cache) Len() int { return c.l.Len() }
