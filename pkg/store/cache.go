// pkg/store/cache.go

package store

import (
	"fmt"
	"io"
	"sync"
	"time"
)

type memItem struct {
	atime time.Time
	page  *Page
}

// cached keeps whole objects in memory so hot keys skip the backend.
// Concurrent fetches of the same key are collapsed into one.
type cached struct {
	ObjectStore
	sync.Mutex
	capacity int64
	used     int64
	pages    map[string]memItem
	fetcher  Controller
}

// NewCached returns a store that caches whole objects in memory, up
// to capacity bytes. A zero capacity disables caching but still
// deduplicates concurrent fetches.
func NewCached(o ObjectStore, capacity int64) ObjectStore {
	return &cached{
		ObjectStore: o,
		capacity:    capacity,
		pages:       make(map[string]memItem),
	}
}

func (c *cached) String() string {
	return fmt.Sprintf("%s(cached)", c.ObjectStore)
}

func (c *cached) load(key string) (*Page, bool) {
	c.Lock()
	defer c.Unlock()
	if item, ok := c.pages[key]; ok {
		item.page.Acquire()
		c.pages[key] = memItem{time.Now(), item.page}
		return item.page, true
	}
	return nil, false
}

func (c *cached) cache(key string, p *Page) {
	if c.capacity == 0 {
		return
	}
	c.Lock()
	defer c.Unlock()
	if _, ok := c.pages[key]; ok {
		return
	}
	size := int64(cap(p.Data))
	p.Acquire()
	c.pages[key] = memItem{time.Now(), p}
	c.used += size
	if c.used > c.capacity {
		c.cleanup()
	}
}

func (c *cached) delete(key string, p *Page) {
	size := int64(cap(p.Data))
	c.used -= size
	p.Release()
	delete(c.pages, key)
}

func (c *cached) remove(key string) {
	c.Lock()
	defer c.Unlock()
	if item, ok := c.pages[key]; ok {
		c.delete(key, item.page)
		logger.Debugf("remove %s from cache", key)
	}
}

func (c *cached) stats() (int64, int64) {
	c.Lock()
	defer c.Unlock()
	return int64(len(c.pages)), c.used
}

// locked
func (c *cached) cleanup() {
	var cnt int
	var lastKey string
	var lastValue memItem
	var now = time.Now()
	// for each two random keys, then compare the access time, evict the older one
	for k, v := range c.pages {
		if cnt == 0 || lastValue.atime.After(v.atime) {
			lastKey = k
			lastValue = v
		}
		cnt++
		if cnt > 1 {
			logger.Debugf("remove %s from cache, age: %d", lastKey, now.Sub(lastValue.atime))
			c.delete(lastKey, lastValue.page)
			cnt = 0
			if c.used < c.capacity {
				break
			}
		}
	}
}

func (c *cached) Get(key string, off, limit int64) (io.ReadCloser, error) {
	if p, ok := c.load(key); ok {
		r := NewPageReader(p, off, limit)
		p.Release()
		return r, nil
	}
	p, err := c.fetcher.Execute(key, func() (*Page, error) {
		in, err := c.ObjectStore.Get(key, 0, -1)
		if err != nil {
			return NewPage(nil), err
		}
		defer in.Close()
		raw, err := io.ReadAll(in)
		if err != nil {
			return NewPage(nil), err
		}
		if len(raw) == 0 {
			return NewPage(nil), nil
		}
		np := NewOffPage(len(raw))
		copy(np.Data, raw)
		return np, nil
	})
	if err != nil {
		p.Release()
		return nil, err
	}
	c.cache(key, p)
	r := NewPageReader(p, off, limit)
	p.Release()
	return r, nil
}

func (c *cached) Put(key string, in io.Reader) error {
	err := c.ObjectStore.Put(key, in)
	c.remove(key)
	return err
}

func (c *cached) Delete(key string) error {
	err := c.ObjectStore.Delete(key)
	c.remove(key)
	return err
}

var _ ObjectStore = (*cached)(nil)
