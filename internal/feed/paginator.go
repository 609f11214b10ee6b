package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 10

// Getter is the slice of the transport the paginator needs.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// Paginator fetches consecutive pages of one feed. It holds no state
// between calls: the caller owns the cursor, the paginator only knows
// which feed it addresses. Retry is the transport's policy, never the
// paginator's.
type Paginator struct {
	client  Getter
	kind    Kind
	filters Filters
	limit   int
}

// PaginatorOption configures the Paginator.
type PaginatorOption func(*Paginator)

// WithPageSize sets the page size requested from the backend.
func WithPageSize(limit int) PaginatorOption {
	return func(p *Paginator) {
		if limit > 0 {
			p.limit = limit
		}
	}
}

// NewPaginator creates a paginator for one (kind, filters) feed.
func NewPaginator(client Getter, kind Kind, filters Filters, opts ...PaginatorOption) *Paginator {
	p := &Paginator{
		client:  client,
		kind:    kind,
		filters: filters,
		limit:   DefaultPageSize,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Kind returns the feed kind this paginator addresses.
func (p *Paginator) Kind() Kind { return p.kind }

// Filters returns the filters this paginator addresses.
func (p *Paginator) Filters() Filters { return p.filters }

// pageEnvelope is the JSON shape feed endpoints return.
type pageEnvelope struct {
	Success    bool       `json:"success"`
	Data       []Item     `json:"data"`
	Pagination Pagination `json:"pagination"`
	Message    string     `json:"message"`
}

// FetchPage retrieves one page. An empty cursor requests the first
// page; otherwise cursor must be a nextCursor from a previous page,
// passed through unmodified.
func (p *Paginator) FetchPage(ctx context.Context, cursor string) (*Page, error) {
	query := p.filters.Values()
	query.Set("limit", queryLimit(p.limit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	body, err := p.client.Get(ctx, "/"+p.kind.Resource(), query)
	if err != nil {
		return nil, err
	}

	var envelope pageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse %s feed response: %w", p.kind, err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("%s feed request rejected: %s", p.kind, envelope.Message)
	}

	items := envelope.Data
	for i := range items {
		if items[i].Kind == "" {
			items[i].Kind = p.kind
		}
	}

	return &Page{Items: items, Pagination: envelope.Pagination}, nil
}
