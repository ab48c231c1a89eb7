package app

import (
	"context"
	"sync"
)

// Cache is a read-cache that supports optimistic mutation.
type Cache[T any] interface {
	// Swap atomically replaces the cached value with apply(current) and returns the
	// previous value. Nothing is applied when the cache was never loaded.
	Swap(apply func(T) T) (previous T, loaded bool)
	// Restore puts back a value previously returned by Swap.
	Restore(previous T)
	// Invalidate marks the cached value stale so the next reader refetches it.
	Invalidate()
}

// Cell is a snapshot-then-replace cache slot. Readers never observe a half-applied
// update because every change replaces the whole value under the lock.
type Cell[T any] struct {
	mu     sync.RWMutex
	value  T
	loaded bool
	stale  bool
}

var _ Cache[[]int] = (*Cell[[]int])(nil)

// Get returns the cached value, whether it was ever loaded, and whether it is still fresh.
func (c *Cell[T]) Get() (value T, loaded, fresh bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.loaded, c.loaded && !c.stale
}

// Set stores a freshly fetched value.
func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.loaded = true
	c.stale = false
}

// Reset forgets the cached value entirely.
func (c *Cell[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.loaded = false
	c.stale = false
}

func (c *Cell[T]) Swap(apply func(T) T) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.value
	if !c.loaded {
		return previous, false
	}
	c.value = apply(previous)
	return previous, true
}

func (c *Cell[T]) Restore(previous T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = previous
}

func (c *Cell[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
}

// Optimistic runs op as a transaction against cache: snapshot, tentative apply, await,
// then commit or revert. apply must return a new value rather than mutating its input.
// The cache is invalidated once op settles, whatever the outcome, so the remote copy
// stays the eventual source of truth.
func Optimistic[T any](ctx context.Context, cache Cache[T], apply func(T) T, op func(context.Context) error) error {
	previous, applied := cache.Swap(apply)
	err := op(ctx)
	if err != nil && applied {
		cache.Restore(previous)
	}
	cache.Invalidate()
	return err
}
