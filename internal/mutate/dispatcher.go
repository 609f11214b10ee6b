// Package mutate performs side-effecting actions on feed items and
// reconciles the cache afterwards. Two strategies exist: optimistic
// flag flips for like/bookmark (reverted if the backend says no) and
// pessimistic invalidation for actions whose effect reaches beyond
// one cached item, like follow or a job application.
package mutate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sdgstory/sdgfeed/internal/feed"
	"github.com/sdgstory/sdgfeed/internal/feedcache"
)

// ErrMutationPending is returned when an action for the same item is
// still in flight. Rapid double-taps must not stack mutations.
var ErrMutationPending = errors.New("a mutation for this item is already pending")

// Action names a backend mutation endpoint.
type Action string

const (
	ActionLike       Action = "like"
	ActionUnlike     Action = "unlike"
	ActionBookmark   Action = "bookmark"
	ActionUnbookmark Action = "unbookmark"
	ActionFollow     Action = "follow"
	ActionUnfollow   Action = "unfollow"
	ActionComment    Action = "comment"
	ActionDelete     Action = "delete"
	ActionApplyToJob Action = "apply"
	ActionBookSlot   Action = "book-slot"
)

// Caller is the slice of the transport the dispatcher needs.
type Caller interface {
	Patch(ctx context.Context, path string, body any) ([]byte, error)
	Post(ctx context.Context, path string, body any) ([]byte, error)
	Delete(ctx context.Context, path string) ([]byte, error)
}

// Result carries whatever the backend returned for a successful
// mutation.
type Result struct {
	Message string
	Data    json.RawMessage
}

// Dispatcher routes actions to the backend and keeps the cache
// consistent with the outcome.
type Dispatcher struct {
	client Caller
	cache  *feedcache.Cache

	mu      sync.Mutex
	pending map[string]Action
}

// NewDispatcher creates a dispatcher writing through to cache.
func NewDispatcher(client Caller, cache *feedcache.Cache) *Dispatcher {
	return &Dispatcher{
		client:  client,
		cache:   cache,
		pending: make(map[string]Action),
	}
}

// mutationEnvelope is the JSON shape mutation endpoints return.
type mutationEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Dispatch performs action on the item and reconciles the feed at
// key. payload may be nil for actions without a body.
func (d *Dispatcher) Dispatch(ctx context.Context, key feedcache.Key, itemID string, action Action, payload any) (*Result, error) {
	if itemID == "" {
		return nil, errors.New("item id is required")
	}
	if err := d.begin(itemID, action); err != nil {
		return nil, err
	}
	defer d.end(itemID)

	switch action {
	case ActionLike, ActionUnlike, ActionBookmark, ActionUnbookmark:
		return d.optimistic(ctx, key, itemID, action)
	case ActionDelete:
		return d.delete(ctx, key, itemID)
	case ActionComment:
		return d.comment(ctx, key, itemID, payload)
	case ActionFollow, ActionUnfollow, ActionApplyToJob, ActionBookSlot:
		return d.pessimistic(ctx, key, itemID, action, payload)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// optimistic flips the per-viewer flag immediately, calls the backend
// and reverts the flip on failure. The flip reaches every feed the
// item is cached under so a like on the home tab shows up on the
// bookmarks tab too. An item that is not cached at all (one-shot CLI
// use) skips the flip and just performs the call.
//
// Only the feeds the flip actually changed are reverted: a like on an
// already-liked copy is a no-op, and undoing it anyway would walk
// that copy backwards past its pre-dispatch state.
func (d *Dispatcher) optimistic(ctx context.Context, key feedcache.Key, itemID string, action Action) (*Result, error) {
	flipped := d.cache.UpdateWhere(itemID, flagFlip(action))

	result, err := d.call(ctx, key, itemID, action, nil)
	if err != nil {
		undo := flagFlip(inverse(action))
		for _, flippedKey := range flipped {
			d.cache.Update(flippedKey, itemID, func(item *feed.Item) { undo(item) })
		}
		return nil, err
	}
	return result, nil
}

// pessimistic calls the backend first and, on success, drops the
// feed's cached pages so the next read refetches fresh state.
func (d *Dispatcher) pessimistic(ctx context.Context, key feedcache.Key, itemID string, action Action, payload any) (*Result, error) {
	result, err := d.call(ctx, key, itemID, action, payload)
	if err != nil {
		return nil, err
	}
	d.cache.Invalidate(key)
	return result, nil
}

// comment creates the comment and bumps the cached counter on
// success. Unlike the flag flips this creates a resource, so it goes
// through POST rather than PATCH. The item list itself is untouched.
func (d *Dispatcher) comment(ctx context.Context, key feedcache.Key, itemID string, payload any) (*Result, error) {
	if payload == nil {
		return nil, errors.New("comment payload is required")
	}
	path := fmt.Sprintf("/%s/%s/%s", key.Kind.Resource(), itemID, ActionComment)
	body, err := d.client.Post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	result, err := parseResult(body)
	if err != nil {
		return nil, err
	}
	d.cache.UpdateEverywhere(itemID, func(item *feed.Item) {
		item.Engagement.Comments++
	})
	return result, nil
}

// delete removes the item server-side, then from the owning feed. The
// surrounding list order is preserved.
func (d *Dispatcher) delete(ctx context.Context, key feedcache.Key, itemID string) (*Result, error) {
	path := fmt.Sprintf("/%s/%s", key.Kind.Resource(), itemID)
	body, err := d.client.Delete(ctx, path)
	if err != nil {
		return nil, err
	}
	result, err := parseResult(body)
	if err != nil {
		return nil, err
	}
	d.cache.Remove(key, itemID)
	return result, nil
}

func (d *Dispatcher) call(ctx context.Context, key feedcache.Key, itemID string, action Action, payload any) (*Result, error) {
	path := fmt.Sprintf("/%s/%s/%s", key.Kind.Resource(), itemID, action)
	body, err := d.client.Patch(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	return parseResult(body)
}

func parseResult(body []byte) (*Result, error) {
	var envelope mutationEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse mutation response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("mutation rejected: %s", envelope.Message)
	}
	return &Result{Message: envelope.Message, Data: envelope.Data}, nil
}

func (d *Dispatcher) begin(itemID string, action Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.pending[itemID]; busy {
		return ErrMutationPending
	}
	d.pending[itemID] = action
	return nil
}

func (d *Dispatcher) end(itemID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, itemID)
}

// Pending reports whether a mutation for the item is in flight.
func (d *Dispatcher) Pending(itemID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, busy := d.pending[itemID]
	return busy
}

// Pessimistic reports whether the action reconciles by invalidating
// the owning feed rather than patching cached items. Callers that own
// a pagination cursor must rewind it after such an action succeeds.
func Pessimistic(action Action) bool {
	switch action {
	case ActionFollow, ActionUnfollow, ActionApplyToJob, ActionBookSlot:
		return true
	}
	return false
}

// flagFlip returns the cache update for an optimistic action. The
// closure reports whether it changed the item; a flip that was
// already in the target state is a no-op and must not be undone.
func flagFlip(action Action) func(*feed.Item) bool {
	switch action {
	case ActionLike:
		return func(item *feed.Item) bool {
			if item.Viewer.Liked {
				return false
			}
			item.Viewer.Liked = true
			item.Engagement.Likes++
			return true
		}
	case ActionUnlike:
		return func(item *feed.Item) bool {
			if !item.Viewer.Liked {
				return false
			}
			item.Viewer.Liked = false
			item.Engagement.Likes--
			return true
		}
	case ActionBookmark:
		return func(item *feed.Item) bool {
			if item.Viewer.Bookmarked {
				return false
			}
			item.Viewer.Bookmarked = true
			item.Engagement.Bookmarks++
			return true
		}
	case ActionUnbookmark:
		return func(item *feed.Item) bool {
			if !item.Viewer.Bookmarked {
				return false
			}
			item.Viewer.Bookmarked = false
			item.Engagement.Bookmarks--
			return true
		}
	}
	return func(*feed.Item) bool { return false }
}

// inverse maps an optimistic action to the one that undoes it.
func inverse(action Action) Action {
	switch action {
	case ActionLike:
		return ActionUnlike
	case ActionUnlike:
		return ActionLike
	case ActionBookmark:
		return ActionUnbookmark
	case ActionUnbookmark:
		return ActionBookmark
	}
	return action
}
