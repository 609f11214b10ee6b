// Package feed defines the unified feed item model and the cursor
// paginator every feed surface shares.
//
// This package enables sdgfeed to:
//   - Represent posts, videos, reports, jobs, articles and events as one
//     discriminated item type
//   - Fetch pages of a feed with opaque cursors
//   - Express the tab/category filters a feed is keyed by
package feed

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which backend resource a feed item came from.
type Kind string

const (
	KindPost    Kind = "post"
	KindVideo   Kind = "video"
	KindReport  Kind = "report"
	KindJob     Kind = "job"
	KindArticle Kind = "article"
	KindEvent   Kind = "event"
)

// Resource returns the backend collection path segment for the kind.
func (k Kind) Resource() string {
	return string(k) + "s"
}

// Valid reports whether k is one of the known feed kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPost, KindVideo, KindReport, KindJob, KindArticle, KindEvent:
		return true
	}
	return false
}

// Filters narrows a feed to a tab, category or author. The zero value
// is the unfiltered feed.
type Filters struct {
	Category string
	Tab      string
	AuthorID string
}

// Values renders the filters as query parameters.
func (f Filters) Values() url.Values {
	values := url.Values{}
	if f.Category != "" {
		values.Set("category", f.Category)
	}
	if f.Tab != "" {
		values.Set("tab", f.Tab)
	}
	if f.AuthorID != "" {
		values.Set("authorId", f.AuthorID)
	}
	return values
}

// Canonical returns a stable string form used in cache keys. Fields
// are sorted so two equal filter sets always produce the same key.
func (f Filters) Canonical() string {
	values := f.Values()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+values.Get(k))
	}
	return strings.Join(parts, "&")
}

// Engagement holds the public counters on a feed item.
type Engagement struct {
	Likes     int64 `json:"likes"`
	Comments  int64 `json:"comments"`
	Reposts   int64 `json:"reposts"`
	Bookmarks int64 `json:"bookmarks"`
}

// Viewer holds the per-viewer flags. They are only meaningful for the
// session that fetched them and die with the cache that holds them.
type Viewer struct {
	Liked           bool `json:"isLiked"`
	Bookmarked      bool `json:"isBookmarked"`
	FollowingAuthor bool `json:"isFollowingAuthor"`
}

// Item represents one entry of any feed.
type Item struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	AuthorID   string     `json:"authorId"`
	AuthorName string     `json:"authorName"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	MediaURL   string     `json:"mediaUrl,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Engagement Engagement `json:"engagement"`
	Viewer     Viewer     `json:"viewer"`
}

// Pagination is the envelope returned alongside every page. NextCursor
// is opaque: it goes back to the backend unmodified or not at all.
type Pagination struct {
	Limit      int    `json:"limit"`
	Cursor     string `json:"cursor"`
	NextCursor string `json:"nextCursor"`
	HasMore    bool   `json:"hasMore"`
}

// Page is one fetched slice of a feed in server order.
type Page struct {
	Items      []Item
	Pagination Pagination
}

// HasMore reports whether another page can be requested. An absent
// nextCursor terminates pagination even if the backend forgot to
// clear hasMore.
func (p *Page) HasMore() bool {
	return p.Pagination.HasMore && p.Pagination.NextCursor != ""
}

// queryLimit formats a page size for the wire.
func queryLimit(limit int) string {
	return strconv.Itoa(limit)
}
