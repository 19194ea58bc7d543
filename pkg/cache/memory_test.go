package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jadapache/raices-vivas/core"
)

func newSession(id string) *core.Session {
	now := time.Now()
	return &core.Session{ID: id, UserID: "user-" + id, TokenHash: "hash-" + id, ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now}
}

// Requirement: a stored session is returned until its cache TTL elapses.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		advance time.Duration
		key     string
		wantErr error
	}{
		{name: "hit within ttl", advance: time.Minute, key: "hash-a"},
		{name: "miss after ttl", advance: 6 * time.Minute, key: "hash-a", wantErr: core.ErrCacheNotFound},
		{name: "miss unknown key", key: "hash-z", wantErr: core.ErrCacheNotFound},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			c := NewInMemoryCache(core.CacheConfig{TTL: 5 * time.Minute, MaxSize: 10})
			clock := base
			c.now = func() time.Time { return clock }
			_ = c.Set(ctx, "hash-a", newSession("a"))
			clock = clock.Add(test.advance)

			// Act
			got, err := c.Get(ctx, test.key)

			// Assert
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("Get() error = %v, want %v", err, test.wantErr)
			}
			if test.wantErr == nil && got.ID != "a" {
				t.Errorf("Get() = %+v, want session a", got)
			}
		})
	}
}

// Requirement: an expired read removes the record and counts an eviction.
func TestInMemoryCache_ExpiredReadEvicts(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(core.CacheConfig{TTL: time.Second})
	clock := time.Now()
	c.now = func() time.Time { return clock }
	_ = c.Set(ctx, "k", newSession("k"))

	clock = clock.Add(2 * time.Second)
	_, _ = c.Get(ctx, "k")

	stats := c.Stats()
	if stats.Size != 0 || stats.Evictions != 1 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v, want size 0, 1 eviction, 1 miss", stats)
	}
}

func TestInMemoryCache_MaxSize(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(core.CacheConfig{TTL: time.Minute, MaxSize: 3})

	for i := 0; i < 5; i++ {
		_ = c.Set(ctx, fmt.Sprintf("k%d", i), newSession(fmt.Sprint(i)))
	}
	// replacing an existing key must not evict
	_ = c.Set(ctx, "k4", newSession("4b"))

	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if got := c.Stats().Evictions; got != 2 {
		t.Errorf("Evictions = %d, want 2", got)
	}
}

func TestInMemoryCache_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(core.CacheConfig{})
	_ = c.Set(ctx, "a", newSession("a"))
	_ = c.Set(ctx, "b", newSession("b"))

	_ = c.Delete(ctx, "a")
	_ = c.Delete(ctx, "missing")
	if _, err := c.Get(ctx, "a"); !errors.Is(err, core.ErrCacheNotFound) {
		t.Errorf("Get(deleted) error = %v", err)
	}
	if got := c.Stats().Deletes; got != 1 {
		t.Errorf("Deletes = %d, want 1", got)
	}

	_ = c.Clear(ctx)
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
}

func TestInMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(core.CacheConfig{TTL: time.Minute, MaxSize: 50})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, key, newSession(key))
				_, _ = c.Get(ctx, key)
				if j%10 == 0 {
					_ = c.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()
}
