// Package scroller drives infinite-feed pagination: it decides when
// the next page may be requested and merges results into the feed
// cache. It is the Go rendition of the viewport-sentinel loop the web
// pages used, with Advance standing in for the sentinel becoming
// visible.
package scroller

import (
	"context"
	"errors"
	"sync"

	"github.com/sdgstory/sdgfeed/internal/feed"
	"github.com/sdgstory/sdgfeed/internal/feedcache"
)

// ErrClosed is returned when the controller's view has been torn down.
var ErrClosed = errors.New("feed controller closed")

// PageFetcher is the slice of the paginator the controller needs.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (*feed.Page, error)
}

// Controller pulls pages of one feed into the cache, one at a time.
// Advance never runs two fetches concurrently and never issues the
// next request before the previous page is merged, so pages cannot
// arrive out of order.
type Controller struct {
	fetcher PageFetcher
	cache   *feedcache.Cache
	key     feedcache.Key

	mu       sync.Mutex
	cursor   string
	hasMore  bool
	fetching bool
	closed   bool
	cancel   context.CancelFunc
}

// New creates a controller feeding the cache entry at key.
func New(fetcher PageFetcher, cache *feedcache.Cache, key feedcache.Key) *Controller {
	return &Controller{
		fetcher: fetcher,
		cache:   cache,
		key:     key,
		hasMore: true,
	}
}

// Advance fetches and merges the next page. It reports whether a page
// was merged: false with a nil error means the trigger was a no-op,
// either because the feed is exhausted or because a fetch is already
// in flight. A fetch error leaves previously merged pages intact and
// the cursor unchanged, so the caller can simply call Advance again.
func (c *Controller) Advance(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.fetching || !c.hasMore {
		c.mu.Unlock()
		return false, nil
	}
	c.fetching = true
	cursor := c.cursor
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	page, err := c.fetcher.FetchPage(fetchCtx, cursor)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetching = false
	c.cancel = nil

	// The view may have been torn down while the fetch was in
	// flight. Its result must not reach the cache.
	if c.closed {
		return false, ErrClosed
	}
	if err != nil {
		return false, err
	}

	c.cache.Append(c.key, page)
	c.cursor = page.Pagination.NextCursor
	c.hasMore = page.HasMore()
	return true, nil
}

// Items returns the merged feed in arrival order.
func (c *Controller) Items() []feed.Item {
	return c.cache.Items(c.key)
}

// HasMore reports whether another page can still be requested.
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore && !c.closed
}

// Fetching reports whether a page request is in flight.
func (c *Controller) Fetching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetching
}

// Key returns the cache key this controller owns.
func (c *Controller) Key() feedcache.Key {
	return c.key
}

// Reset drops the feed's cached pages and rewinds the cursor so the
// next Advance refetches from the top. Used for explicit refetch and
// mutation-triggered invalidation.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.cache.Invalidate(c.key)
	c.cursor = ""
	c.hasMore = true
}

// Close tears the controller down: any in-flight fetch is canceled
// and late completions are ignored. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.cache.Invalidate(c.key)
}
