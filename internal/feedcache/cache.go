// Package feedcache holds the pages fetched for each (kind, filters)
// feed of one view. The cache lives and dies with the view that
// created it; nothing outside that view's controller and dispatcher
// writes to it, so per-viewer flags can never leak across sessions.
package feedcache

import (
	"sync"

	"github.com/sdgstory/sdgfeed/internal/feed"
)

// Key addresses one feed within the cache.
type Key struct {
	Kind    feed.Kind
	Filters string
}

// NewKey builds the cache key for a (kind, filters) feed.
func NewKey(kind feed.Kind, filters feed.Filters) Key {
	return Key{Kind: kind, Filters: filters.Canonical()}
}

// entry keeps one feed's pages in arrival order plus the id set used
// to de-duplicate across page boundaries.
type entry struct {
	pages []*feed.Page
	seen  map[string]struct{}
	order []string
	items map[string]*feed.Item
}

// Cache is the page store for one view. Safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	feeds map[Key]*entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{feeds: make(map[Key]*entry)}
}

// Append merges a fetched page into the feed at key. Items whose id
// was already merged are dropped: first occurrence wins, so a backend
// that overlaps adjacent pages cannot duplicate the flattened list.
// Returns how many items were actually added.
func (c *Cache) Append(key Key, page *feed.Page) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.feeds[key]
	if e == nil {
		e = &entry{
			seen:  make(map[string]struct{}),
			items: make(map[string]*feed.Item),
		}
		c.feeds[key] = e
	}

	added := 0
	kept := make([]feed.Item, 0, len(page.Items))
	for _, item := range page.Items {
		if _, dup := e.seen[item.ID]; dup {
			continue
		}
		e.seen[item.ID] = struct{}{}
		e.order = append(e.order, item.ID)
		kept = append(kept, item)
		added++
	}

	stored := &feed.Page{Items: kept, Pagination: page.Pagination}
	e.pages = append(e.pages, stored)
	for i := range stored.Items {
		e.items[stored.Items[i].ID] = &stored.Items[i]
	}

	return added
}

// Items flattens the feed at key in arrival order.
func (c *Cache) Items(key Key) []feed.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.feeds[key]
	if e == nil {
		return nil
	}

	items := make([]feed.Item, 0, len(e.order))
	for _, id := range e.order {
		items = append(items, *e.items[id])
	}
	return items
}

// Len returns how many unique items the feed at key holds.
func (c *Cache) Len(key Key) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.feeds[key]
	if e == nil {
		return 0
	}
	return len(e.order)
}

// Pages returns how many pages have been merged into the feed at key.
func (c *Cache) Pages(key Key) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.feeds[key]
	if e == nil {
		return 0
	}
	return len(e.pages)
}

// Update applies fn to the cached item with the given id in the feed
// at key. Reports whether the item was present.
func (c *Cache) Update(key Key, itemID string, fn func(*feed.Item)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.feeds[key]
	if e == nil {
		return false
	}
	item, ok := e.items[itemID]
	if !ok {
		return false
	}
	fn(item)
	return true
}

// UpdateEverywhere applies fn to the item wherever it is cached. An
// item can appear under several keys at once (its kind feed plus a
// bookmark tab, say); a flag flip must reach all of them. Returns the
// number of feeds touched.
func (c *Cache) UpdateEverywhere(itemID string, fn func(*feed.Item)) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	touched := 0
	for _, e := range c.feeds {
		if item, ok := e.items[itemID]; ok {
			fn(item)
			touched++
		}
	}
	return touched
}

// UpdateWhere applies fn to the item wherever it is cached and
// returns the keys of the feeds in which fn reported a change. Feeds
// where fn returned false are not listed, so a caller undoing the
// update can target exactly the copies that changed.
func (c *Cache) UpdateWhere(itemID string, fn func(*feed.Item) bool) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []Key
	for key, e := range c.feeds {
		if item, ok := e.items[itemID]; ok {
			if fn(item) {
				changed = append(changed, key)
			}
		}
	}
	return changed
}

// Remove deletes the item from the feed at key, preserving the order
// of everything around it. Reports whether the item was present.
func (c *Cache) Remove(key Key, itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.feeds[key]
	if e == nil {
		return false
	}
	if _, ok := e.items[itemID]; !ok {
		return false
	}

	delete(e.items, itemID)
	delete(e.seen, itemID)
	order := e.order[:0]
	for _, id := range e.order {
		if id != itemID {
			order = append(order, id)
		}
	}
	e.order = order
	for _, page := range e.pages {
		kept := page.Items[:0]
		for _, item := range page.Items {
			if item.ID != itemID {
				kept = append(kept, item)
			}
		}
		page.Items = kept
	}
	// Page slices were compacted in place; item pointers must be
	// rebuilt since append may have shifted elements.
	for _, page := range e.pages {
		for i := range page.Items {
			e.items[page.Items[i].ID] = &page.Items[i]
		}
	}
	return true
}

// Invalidate drops the feed at key entirely. The next read starts
// from an empty feed, forcing a refetch.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.feeds, key)
}

// Clear drops every feed. Called when the owning view unmounts.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeds = make(map[Key]*entry)
}
