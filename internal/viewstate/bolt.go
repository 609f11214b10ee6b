package viewstate

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("viewstate")

// BoltAdapter persists view state in a bbolt file with a TTL. Entries
// older than the TTL are treated as absent and cleaned up on read.
type BoltAdapter struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

var _ Adapter = (*BoltAdapter)(nil)

// OpenBolt opens (or creates) the state database at path. A ttl of
// zero keeps entries forever.
func OpenBolt(path string, ttl time.Duration) (*BoltAdapter, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(stateBucket)
		return createErr
	})
	if err != nil {
		return nil, fmt.Errorf("creating state bucket: %w", err)
	}

	return &BoltAdapter{db: db, ttl: ttl, now: time.Now}, nil
}

// Close closes the underlying database.
func (a *BoltAdapter) Close() error {
	return a.db.Close()
}

// Save stores state under key, stamping SavedAt when unset.
func (a *BoltAdapter) Save(key string, state *State) error {
	if state.SavedAt.IsZero() {
		state.SavedAt = a.now()
	}
	return a.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return tx.Bucket(stateBucket).Put([]byte(key), data)
	})
}

// Load returns the state stored under key, or ErrStateNotFound when
// nothing is stored or the entry expired.
func (a *BoltAdapter) Load(key string) (*State, error) {
	var state State
	err := a.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(stateBucket).Get([]byte(key))
		if data == nil {
			return ErrStateNotFound
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}

	if a.ttl > 0 && a.now().Sub(state.SavedAt) > a.ttl {
		_ = a.Delete(key)
		return nil, ErrStateNotFound
	}
	return &state, nil
}

// Delete removes the state stored under key.
func (a *BoltAdapter) Delete(key string) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Delete([]byte(key))
	})
}
