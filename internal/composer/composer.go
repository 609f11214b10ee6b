// Package composer wires paginators, the feed cache and the mutation
// dispatcher into the surface one page renders. Each tab owns an
// independent cursor and cache key: switching tabs never shares
// pagination state, and previously fetched pages survive until the
// composer itself is closed or a mutation invalidates them.
package composer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/sdgstory/sdgfeed/internal/feed"
	"github.com/sdgstory/sdgfeed/internal/feedcache"
	"github.com/sdgstory/sdgfeed/internal/mutate"
	"github.com/sdgstory/sdgfeed/internal/scroller"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("composer closed")

// Client is the slice of the transport the composer needs.
type Client interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
	Patch(ctx context.Context, path string, body any) ([]byte, error)
	Post(ctx context.Context, path string, body any) ([]byte, error)
	Delete(ctx context.Context, path string) ([]byte, error)
}

// Tab binds a name to the (kind, filters) feed it shows.
type Tab struct {
	Name    string
	Kind    feed.Kind
	Filters feed.Filters
}

// State is one tab's position in the idle -> loading -> success|error
// machine. A successful tab goes back to loading only on explicit
// refetch or mutation-triggered invalidation.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	}
	return "unknown"
}

type tabState struct {
	tab        Tab
	key        feedcache.Key
	controller *scroller.Controller
	state      State
	lastErr    error
}

// Option configures the Composer.
type Option func(*Composer)

// WithPageSize sets the page size requested for every tab.
func WithPageSize(limit int) Option {
	return func(c *Composer) {
		if limit > 0 {
			c.pageSize = limit
		}
	}
}

// Composer owns the feed state for one view.
type Composer struct {
	client   Client
	cache    *feedcache.Cache
	mutator  *mutate.Dispatcher
	pageSize int

	mu     sync.Mutex
	order  []string
	tabs   map[string]*tabState
	active string
	closed bool
}

// New creates a composer for the given tabs. The first tab starts
// active.
func New(client Client, tabs []Tab, opts ...Option) (*Composer, error) {
	if len(tabs) == 0 {
		return nil, errors.New("at least one tab is required")
	}

	cache := feedcache.New()
	c := &Composer{
		client:   client,
		cache:    cache,
		mutator:  mutate.NewDispatcher(client, cache),
		pageSize: feed.DefaultPageSize,
		tabs:     make(map[string]*tabState),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, tab := range tabs {
		if !tab.Kind.Valid() {
			return nil, fmt.Errorf("tab %q has unknown feed kind %q", tab.Name, tab.Kind)
		}
		if _, dup := c.tabs[tab.Name]; dup {
			return nil, fmt.Errorf("duplicate tab name %q", tab.Name)
		}
		key := feedcache.NewKey(tab.Kind, tab.Filters)
		paginator := feed.NewPaginator(client, tab.Kind, tab.Filters, feed.WithPageSize(c.pageSize))
		c.tabs[tab.Name] = &tabState{
			tab:        tab,
			key:        key,
			controller: scroller.New(paginator, cache, key),
			state:      StateIdle,
		}
		c.order = append(c.order, tab.Name)
	}
	c.active = c.order[0]

	return c, nil
}

// Tabs returns the tab names in declaration order.
func (c *Composer) Tabs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// ActiveTab returns the currently selected tab name.
func (c *Composer) ActiveTab() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SelectTab switches the active tab. The previous tab's pages stay
// cached; coming back does not refetch.
func (c *Composer) SelectTab(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.tabs[name]; !ok {
		return fmt.Errorf("unknown tab %q", name)
	}
	c.active = name
	return nil
}

// Advance fetches the next page of the active tab. It reports whether
// a page was merged; false with nil error means the tab is exhausted
// or a fetch is already running.
func (c *Composer) Advance(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	ts := c.tabs[c.active]
	ts.state = StateLoading
	c.mu.Unlock()

	merged, err := ts.controller.Advance(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if err != nil {
		ts.state = StateError
		ts.lastErr = err
		return false, err
	}
	ts.state = StateSuccess
	ts.lastErr = nil
	return merged, nil
}

// Items returns the active tab's merged feed in arrival order.
func (c *Composer) Items() []feed.Item {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	ts := c.tabs[c.active]
	c.mu.Unlock()
	return ts.controller.Items()
}

// HasMore reports whether the active tab can fetch further pages.
func (c *Composer) HasMore() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	ts := c.tabs[c.active]
	c.mu.Unlock()
	return ts.controller.HasMore()
}

// State returns the named tab's state and last error.
func (c *Composer) State(name string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.tabs[name]
	if !ok {
		return StateIdle, fmt.Errorf("unknown tab %q", name)
	}
	return ts.state, ts.lastErr
}

// Refetch discards the active tab's pages and fetches the first page
// again. This is the manual retry path.
func (c *Composer) Refetch(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ts := c.tabs[c.active]
	ts.controller.Reset()
	ts.state = StateLoading
	c.mu.Unlock()

	_, err := c.Advance(ctx)
	return err
}

// Dispatch performs a mutation on an item of the active tab and
// reconciles local state. After a pessimistic action the tab's cursor
// is rewound so its next read refetches.
func (c *Composer) Dispatch(ctx context.Context, itemID string, action mutate.Action, payload any) (*mutate.Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	ts := c.tabs[c.active]
	c.mu.Unlock()

	result, err := c.mutator.Dispatch(ctx, ts.key, itemID, action, payload)
	if err != nil {
		return nil, err
	}

	if mutate.Pessimistic(action) {
		c.mu.Lock()
		if !c.closed {
			ts.controller.Reset()
			ts.state = StateLoading
		}
		c.mu.Unlock()
	}
	return result, nil
}

// Close tears the view down: controllers are closed, in-flight
// fetches canceled and the cache cleared so late completions cannot
// write anywhere. Idempotent.
func (c *Composer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, ts := range c.tabs {
		ts.controller.Close()
	}
	c.cache.Clear()
}

// BookmarkKinds are the feeds the bookmarks screen aggregates.
var BookmarkKinds = []feed.Kind{feed.KindPost, feed.KindVideo, feed.KindReport, feed.KindArticle}

// AggregateBookmarks fetches the first bookmark page of each kind
// concurrently and merges them newest-first. Distinct kinds are
// independent feeds, so the requests may be in flight at once.
func AggregateBookmarks(ctx context.Context, client Client, kinds []feed.Kind, limit int) ([]feed.Item, error) {
	if len(kinds) == 0 {
		kinds = BookmarkKinds
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		items    []feed.Item
		firstErr error
	)

	for _, kind := range kinds {
		paginator := feed.NewPaginator(client, kind, feed.Filters{Tab: "bookmarks"}, feed.WithPageSize(limit))
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := paginator.FetchPage(ctx, "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			items = append(items, page.Items...)
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
