// Package session manages The SDG Story API sessions: the short-lived
// access token, longer-lived refresh token and session id that
// authorize requests to the backend.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrSessionNotFound = errors.New("session not found")

// Session holds the credential triple issued at login and rotated by
// the refresh endpoint. Field names match the backend response.
type Session struct {
	AccessToken  string `json:"jwtToken"`     // #nosec G117 - JSON field for session token, not an exposed secret
	RefreshToken string `json:"refreshToken"` // #nosec G117 - JSON field for session token, not an exposed secret
	SessionID    string `json:"sessionId"`
	UserID       string `json:"userId"`
}

// AccessExpiry reads the expiry claim from the access token without
// verifying the signature. The client only needs the timestamp to
// decide when to refresh; verification is the server's job.
func (s *Session) AccessExpiry() (time.Time, error) {
	parser := jwt.NewParser()
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(s.AccessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("access token has no expiry claim")
	}
	return claims.ExpiresAt.Time, nil
}

// Expired reports whether the access token expires within leeway.
// Tokens that cannot be parsed are treated as expired so the caller
// falls back to a refresh.
func (s *Session) Expired(leeway time.Duration) bool {
	exp, err := s.AccessExpiry()
	if err != nil {
		return true
	}
	return time.Now().Add(leeway).After(exp)
}

// Storage persists sessions as JSON files under a directory.
type Storage struct {
	dir string
}

// NewStorage creates session storage rooted at dir.
func NewStorage(dir string) *Storage {
	return &Storage{dir: dir}
}

// Save writes the session for the named profile.
func (s *Storage) Save(profile string, sess *Session) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	cleanProfile := filepath.Base(profile)
	return os.WriteFile(filepath.Join(s.dir, cleanProfile+"_session.json"), data, 0600)
}

// Load reads the session for the named profile. Returns
// ErrSessionNotFound when no session has been saved.
func (s *Storage) Load(profile string) (*Session, error) {
	cleanProfile := filepath.Base(profile)
	data, err := os.ReadFile(filepath.Join(s.dir, cleanProfile+"_session.json")) // #nosec G304 -- profile is sanitized
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &sess, nil
}

// Delete removes the stored session for the named profile. Deleting a
// profile that was never saved is not an error.
func (s *Storage) Delete(profile string) error {
	cleanProfile := filepath.Base(profile)
	err := os.Remove(filepath.Join(s.dir, cleanProfile+"_session.json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
