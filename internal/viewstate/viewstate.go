// Package viewstate carries the per-view UI state that used to hide
// in URLs and browser storage: the active tab and scroll anchor,
// modeled as explicit objects with an optional persistence adapter.
package viewstate

import (
	"errors"
	"time"
)

// ErrStateNotFound is returned when no state is stored under a key,
// or the stored state's TTL has lapsed.
var ErrStateNotFound = errors.New("view state not found")

// State is what a view needs to restore itself: which tab was active
// and which item anchored the scroll position.
type State struct {
	View         string    `json:"view"`
	ActiveTab    string    `json:"activeTab"`
	ScrollAnchor string    `json:"scrollAnchor"`
	SavedAt      time.Time `json:"savedAt"`
}

// Adapter persists view state under string keys. Implementations
// decide durability; the view only sees Save/Load/Delete.
type Adapter interface {
	Save(key string, state *State) error
	Load(key string) (*State, error)
	Delete(key string) error
}
