// Package cache keeps a read-only in-memory view of the locker bank for the
// public availability endpoint, so browsing does not hit the database.
package cache

import (
	"context"
	"log"
	"sync"

	"github.com/Rat-cell/lockerhub/internal/metrics"
	"github.com/Rat-cell/lockerhub/internal/repository"
)

type LockerLister interface {
	List(ctx context.Context) ([]*repository.Locker, error)
}

type LockerCache struct {
	mu    sync.RWMutex
	cache map[string]*repository.Locker
	repo  LockerLister
}

func NewLockerCache(repo LockerLister) *LockerCache {
	return &LockerCache{
		cache: make(map[string]*repository.Locker),
		repo:  repo,
	}
}

func (c *LockerCache) LoadInitialData(ctx context.Context) error {
	log.Println("Loading initial data into locker cache...")
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	log.Printf("Successfully loaded %d lockers into cache.", c.Len())
	return nil
}

// Refresh replaces the cached view with the current store contents. The
// sweep runner calls it after every cycle; reads in flight see either the
// old or the new view, never a mix.
func (c *LockerCache) Refresh(ctx context.Context) error {
	lockers, err := c.repo.List(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[string]*repository.Locker, len(lockers))
	for _, locker := range lockers {
		lockerCopy := *locker
		fresh[locker.ID] = &lockerCopy
	}

	c.mu.Lock()
	c.cache = fresh
	c.mu.Unlock()
	metrics.CachedLockers.Set(float64(len(fresh)))
	return nil
}

func (c *LockerCache) Get(lockerID string) (*repository.Locker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	locker, found := c.cache[lockerID]
	if !found {
		return nil, false
	}
	lockerCopy := *locker
	return &lockerCopy, true
}

// Set overlays a single locker after an interactive transition, keeping the
// view current between sweep refreshes.
func (c *LockerCache) Set(locker *repository.Locker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lockerCopy := *locker
	c.cache[locker.ID] = &lockerCopy
}

// FreeCountBySize reports how many free lockers of each size the bank has.
func (c *LockerCache) FreeCountBySize() map[repository.LockerSize]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[repository.LockerSize]int)
	for _, locker := range c.cache {
		if locker.Status == repository.LockerFree {
			counts[locker.Size]++
		}
	}
	return counts
}

// All returns a copy of every cached locker.
func (c *LockerCache) All() []*repository.Locker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*repository.Locker, 0, len(c.cache))
	for _, locker := range c.cache {
		lockerCopy := *locker
		out = append(out, &lockerCopy)
	}
	return out
}

func (c *LockerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
