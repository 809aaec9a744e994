package credentials

import (
	"context"
	"sync"
)

// Cache is the session's view of its current pair. Reads take a read lock
// only, so they never wait for a renewal in progress. Writes go to memory
// first and are then persisted to the Store.
type Cache struct {
	mu   sync.RWMutex
	pair Pair

	// serializes persistence so the store ends with the last write
	writeMu sync.Mutex
	store   Store
}

func NewCache(store Store) *Cache {
	return &Cache{store: store}
}

// Restore loads the stored pair into memory. It returns
// common.ErrNotLoggedIn when nothing is stored.
func (c *Cache) Restore(ctx context.Context) (Pair, error) {
	p, err := c.store.Load(ctx)
	if err != nil {
		return Pair{}, err
	}

	c.mu.Lock()
	c.pair = p
	c.mu.Unlock()

	return p, nil
}

func (c *Cache) Get() Pair {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pair
}

func (c *Cache) AccessToken() string {
	return c.Get().AccessToken
}

func (c *Cache) RefreshToken() string {
	return c.Get().RefreshToken
}

func (c *Cache) Set(ctx context.Context, p Pair) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.pair = p
	c.mu.Unlock()

	return c.store.Save(ctx, p)
}

func (c *Cache) Clear(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.pair = Pair{}
	c.mu.Unlock()

	return c.store.Clear(ctx)
}
