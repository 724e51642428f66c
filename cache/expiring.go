// Package cache provides a typed key/value cache with a fixed time-to-live.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Expiring caches values for a fixed TTL. Expired entries are hidden from Get
// and removed by Cleanup. There is no background janitor: callers that want
// periodic sweeps run Cleanup themselves.
type Expiring[T any] struct {
	ttl time.Duration
	c   *gocache.Cache
}

func NewExpiring[T any](ttl time.Duration) *Expiring[T] {
	return &Expiring[T]{ttl: ttl, c: gocache.New(ttl, 0)}
}

func (e *Expiring[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := e.c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

func (e *Expiring[T]) Set(key string, value T) {
	e.c.Set(key, value, e.ttl)
}

func (e *Expiring[T]) Delete(key string) {
	e.c.Delete(key)
}

// Cleanup removes every expired entry.
func (e *Expiring[T]) Cleanup() {
	e.c.DeleteExpired()
}

// Clear drops all entries.
func (e *Expiring[T]) Clear() {
	e.c.Flush()
}

// Len counts stored entries, including expired ones not yet cleaned up.
func (e *Expiring[T]) Len() int {
	return e.c.ItemCount()
}
