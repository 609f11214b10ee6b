package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrRefreshRejected is returned when the backend refuses the refresh
// token, typically because the session was revoked or the refresh
// token itself expired. The caller must log in again.
var ErrRefreshRejected = errors.New("refresh token rejected")

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Flow performs the login, refresh and logout calls against the
// backend auth endpoints.
type Flow struct {
	baseURL    string
	httpClient HTTPClient
}

// FlowOption configures the Flow.
type FlowOption func(*Flow)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client HTTPClient) FlowOption {
	return func(f *Flow) { f.httpClient = client }
}

// NewFlow creates an auth flow against the given API base URL.
func NewFlow(baseURL string, opts ...FlowOption) *Flow {
	f := &Flow{baseURL: strings.TrimRight(baseURL, "/"), httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// authEnvelope is the JSON shape the auth endpoints return. Login and
// refresh both carry the rotated credential triple in data.
type authEnvelope struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Error   string  `json:"error"`
	Data    Session `json:"data"`
}

// Login exchanges email/password credentials for a new session.
func (f *Flow) Login(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	payload := map[string]string{"email": email, "password": password}
	env, status, err := f.post(ctx, "/login", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !env.Success {
		return nil, fmt.Errorf("login failed: %s", errorMessage(env, status))
	}
	return &env.Data, nil
}

// Refresh rotates the session: the backend invalidates the old token
// pair and issues a new one bound to the same session id.
func (f *Flow) Refresh(ctx context.Context, refreshToken, sessionID string) (*Session, error) {
	payload := map[string]string{
		"refresh_token": refreshToken,
		"sessionId":     sessionID,
	}
	env, status, err := f.post(ctx, "/refresh-token", payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, ErrRefreshRejected
	}
	if status != http.StatusOK || !env.Success {
		return nil, fmt.Errorf("token refresh failed: %s", errorMessage(env, status))
	}
	return &env.Data, nil
}

// Logout invalidates the session server-side. A 401 here means the
// session was already dead, which is the state the caller wanted.
func (f *Flow) Logout(ctx context.Context, sess *Session) error {
	payload := map[string]string{"sessionId": sess.SessionID}
	env, status, err := f.post(ctx, "/logout", payload)
	if err != nil {
		return err
	}
	if status == http.StatusOK || status == http.StatusUnauthorized {
		return nil
	}
	return fmt.Errorf("logout failed: %s", errorMessage(env, status))
}

func (f *Flow) post(ctx context.Context, path string, payload any) (*authEnvelope, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("auth request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	var env authEnvelope
	// Auth endpoints can sit behind a proxy that answers outages with
	// HTML; a parse failure is reported through the status code only.
	_ = json.Unmarshal(data, &env)

	return &env, resp.StatusCode, nil
}

func errorMessage(env *authEnvelope, status int) string {
	if env.Error != "" {
		return env.Error
	}
	if env.Message != "" {
		return env.Message
	}
	return fmt.Sprintf("status %d", status)
}
