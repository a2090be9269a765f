package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// expiryHeader prefixes every stored object with its expiry in unix nanos,
// big-endian; zero means none. The bucket TTL bounds retention, the header
// makes per-key expiry exact.
const expiryHeader = 8

// ObjectCache is a cache backed by a JetStream object store bucket, shared by
// every process attached to the same NATS cluster. Objects are chunked, so
// values are not bound by the server's max payload.
type ObjectCache struct {
	obs jetstream.ObjectStore
	now func() time.Time
}

// NewObjectCache creates or updates the bucket and returns a cache over it.
func NewObjectCache(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*ObjectCache, error) {
	obs, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "face gallery cache",
		TTL:         ttl,
		Storage:     jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create object bucket %s: %w", bucket, err)
	}
	return &ObjectCache{obs: obs, now: time.Now}, nil
}

func (c *ObjectCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.obs.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("object get %s: %w", key, err)
	}
	if len(data) < expiryHeader {
		return nil, false, fmt.Errorf("object %s: short entry", key)
	}

	if exp := int64(binary.BigEndian.Uint64(data)); exp != 0 && c.now().UnixNano() >= exp {
		return nil, false, nil
	}
	return data[expiryHeader:], true, nil
}

func (c *ObjectCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, expiryHeader, expiryHeader+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(data, uint64(c.now().Add(ttl).UnixNano()))
	}
	data = append(data, value...)
	if _, err := c.obs.PutBytes(ctx, key, data); err != nil {
		return fmt.Errorf("object put %s: %w", key, err)
	}
	return nil
}

func (c *ObjectCache) Delete(ctx context.Context, key string) error {
	if err := c.obs.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("object delete %s: %w", key, err)
	}
	return nil
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache. Expired entries are dropped on
// access and on every write.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	now := c.now()
	c.mu.Lock()
	for k, cur := range c.items {
		if !cur.expiresAt.IsZero() && !now.Before(cur.expiresAt) {
			delete(c.items, k)
		}
	}
	c.items[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
