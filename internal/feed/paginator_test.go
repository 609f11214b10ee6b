// Package feed tests document the expected behavior of the cursor
// paginator.
//
// Test requirements (this file serves as documentation):
// - First page is requested without a cursor
// - nextCursor is passed back to the backend unmodified
// - Items come back in server order
// - hasMore=false or an absent nextCursor terminates pagination
// - HTTP failures surface as typed errors with the status attached
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/sdgstory/sdgfeed/internal/api"
	"github.com/sdgstory/sdgfeed/pkg/session"
)

// staticSessions hands the transport a fixed session and fails any
// refresh, which keeps auth out of the paginator tests.
type staticSessions struct{}

func (staticSessions) Session(ctx context.Context) (*session.Session, error) {
	return &session.Session{AccessToken: "test-access-token"}, nil
}

func (staticSessions) Refresh(ctx context.Context, stale string) (*session.Session, error) {
	return nil, session.ErrRefreshRejected
}

func newTestClient(serverURL string) *api.Client {
	return api.NewClient(serverURL, staticSessions{})
}

func pageResponse(ids []string, nextCursor string, hasMore bool) map[string]any {
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{"id": id, "title": "Item " + id})
	}
	return map[string]any{
		"success": true,
		"data":    items,
		"pagination": map[string]any{
			"limit":      len(ids),
			"nextCursor": nextCursor,
			"hasMore":    hasMore,
		},
	}
}

func TestPaginator_FirstPageHasNoCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posts" {
			t.Errorf("expected /posts, got %q", r.URL.Path)
		}
		if r.URL.Query().Has("cursor") {
			t.Errorf("first page must not send a cursor, got %q", r.URL.Query().Get("cursor"))
		}
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("expected limit=2, got %q", r.URL.Query().Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pageResponse([]string{"a", "b"}, "b", true))
	}))
	defer server.Close()

	p := NewPaginator(newTestClient(server.URL), KindPost, Filters{}, WithPageSize(2))

	page, err := p.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.Items[0].ID != "a" || page.Items[1].ID != "b" {
		t.Errorf("items must keep server order, got %q then %q", page.Items[0].ID, page.Items[1].ID)
	}
	if !page.HasMore() {
		t.Error("expected more pages")
	}
}

func TestPaginator_CursorPassedThroughUnmodified(t *testing.T) {
	const opaque = "eyJvZmZzZXQiOiAib3BhcXVlIn0="

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cursor"); got != opaque {
			t.Errorf("cursor must round-trip unmodified, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pageResponse([]string{"c"}, "", false))
	}))
	defer server.Close()

	p := NewPaginator(newTestClient(server.URL), KindPost, Filters{})

	page, err := p.FetchPage(context.Background(), opaque)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.HasMore() {
		t.Error("hasMore=false must terminate pagination")
	}
}

func TestPaginator_AbsentNextCursorTerminates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Backend bug: hasMore true but no cursor to continue with.
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pageResponse([]string{"a"}, "", true))
	}))
	defer server.Close()

	p := NewPaginator(newTestClient(server.URL), KindPost, Filters{})

	page, err := p.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.HasMore() {
		t.Error("an absent nextCursor must terminate pagination")
	}
}

func TestPaginator_FiltersBecomeQueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("category"); got != "climate" {
			t.Errorf("expected category=climate, got %q", got)
		}
		if got := r.URL.Query().Get("tab"); got != "bookmarks" {
			t.Errorf("expected tab=bookmarks, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pageResponse(nil, "", false))
	}))
	defer server.Close()

	p := NewPaginator(newTestClient(server.URL), KindVideo, Filters{Category: "climate", Tab: "bookmarks"})

	if _, err := p.FetchPage(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPaginator_HTTPFailureCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"feed temporarily unavailable"}`))
	}))
	defer server.Close()

	p := NewPaginator(newTestClient(server.URL), KindReport, Filters{})

	_, err := p.FetchPage(context.Background(), "")
	if err == nil {
		t.Fatal("expected an error")
	}

	apiErr, ok := api.AsError(err)
	if !ok {
		t.Fatalf("expected a typed api error, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", apiErr.Status)
	}
}

func TestPaginator_DoesNotRetryItself(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	p := NewPaginator(newTestClient(server.URL), KindPost, Filters{})

	if _, err := p.FetchPage(context.Background(), ""); err == nil {
		t.Fatal("expected an error")
	}
	// A non-2xx answer is a decision, not a transport failure; retry
	// is the caller's policy.
	if calls != 1 {
		t.Errorf("expected exactly 1 request, got %d", calls)
	}
}

func TestPaginator_ItemsInheritFeedKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pageResponse([]string{"v1"}, "", false))
	}))
	defer server.Close()

	p := NewPaginator(newTestClient(server.URL), KindVideo, Filters{})

	page, err := p.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Items[0].Kind != KindVideo {
		t.Errorf("items without an explicit kind inherit the feed's, got %q", page.Items[0].Kind)
	}
}

func TestFilters_CanonicalIsStable(t *testing.T) {
	a := Filters{Category: "climate", Tab: "top"}
	b := Filters{Tab: "top", Category: "climate"}

	if a.Canonical() != b.Canonical() {
		t.Errorf("equal filters must share a canonical form: %q vs %q", a.Canonical(), b.Canonical())
	}
	if a.Canonical() == (Filters{}).Canonical() {
		t.Error("distinct filters must not collide")
	}
}

func TestFilters_Values(t *testing.T) {
	values := Filters{AuthorID: "u42"}.Values()
	want := url.Values{"authorId": []string{"u42"}}
	if values.Encode() != want.Encode() {
		t.Errorf("expected %q, got %q", want.Encode(), values.Encode())
	}
}
