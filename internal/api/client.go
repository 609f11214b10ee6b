// Package api implements the HTTP transport shared by every paginator
// and mutation dispatcher: one client that attaches the session's
// bearer token, refreshes it on a 401 and retries the original
// request exactly once. Centralizing that cycle here is what keeps
// individual feeds from growing their own half-wired retry logic.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sdgstory/sdgfeed/pkg/session"
)

// DefaultTimeout bounds a single request attempt.
const DefaultTimeout = 15 * time.Second

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SessionSource supplies the current session and rotates it when the
// backend rejects the access token. session.Manager implements it.
type SessionSource interface {
	Session(ctx context.Context) (*session.Session, error)
	Refresh(ctx context.Context, staleAccessToken string) (*session.Session, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout overrides the per-attempt request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client is the authenticated transport to The SDG Story backend.
type Client struct {
	baseURL    string
	sessions   SessionSource
	httpClient HTTPClient
	timeout    time.Duration
}

// NewClient creates a transport rooted at baseURL.
func NewClient(baseURL string, sessions SessionSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessions:   sessions,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get performs an authenticated GET. Being idempotent, it is retried
// once on a transport failure or timeout before giving up.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Patch performs an authenticated PATCH carrying a JSON body. Every
// mutation gets an Idempotency-Key so the single refresh-driven retry
// cannot apply the action twice.
func (c *Client) Patch(ctx context.Context, path string, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPatch, path, nil, body)
}

// Post performs an authenticated POST carrying a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// Delete performs an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	idempotencyKey := ""
	if method != http.MethodGet {
		idempotencyKey = uuid.NewString()
	}

	sess, err := c.sessions.Session(ctx)
	if err != nil {
		return nil, c.authFailure(err)
	}

	data, status, err := c.attempt(ctx, method, path, query, payload, idempotencyKey, sess.AccessToken)
	if err != nil {
		// Only idempotent GETs are safe to resend blindly.
		if method != http.MethodGet || ctx.Err() != nil {
			return nil, err
		}
		data, status, err = c.attempt(ctx, method, path, query, payload, idempotencyKey, sess.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	if status == http.StatusUnauthorized {
		rotated, refreshErr := c.sessions.Refresh(ctx, sess.AccessToken)
		if refreshErr != nil {
			return nil, c.authFailure(refreshErr)
		}
		data, status, err = c.attempt(ctx, method, path, query, payload, idempotencyKey, rotated.AccessToken)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			apiErr := decodeError(status, data)
			apiErr.RedirectToLogin = true
			return nil, apiErr
		}
	}

	if status < 200 || status > 299 {
		return nil, decodeError(status, data)
	}

	return data, nil
}

// attempt sends one request and reads the full body. A non-2xx status
// is not an error at this level; the caller decides what it means.
func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, payload []byte, idempotencyKey, accessToken string) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, requestURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	return data, resp.StatusCode, nil
}

// authFailure maps session errors onto the uniform Error shape. A
// missing or rejected session means the viewer has to log in again.
func (c *Client) authFailure(err error) error {
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrRefreshRejected) {
		return &Error{Status: http.StatusUnauthorized, Message: err.Error(), RedirectToLogin: true}
	}
	return err
}

// errorBody is the JSON error shape the backend uses for non-2xx
// responses.
type errorBody struct {
	Error           string `json:"error"`
	Message         string `json:"message"`
	RedirectToLogin bool   `json:"redirectToLogin"`
}

// decodeError converts a non-2xx response into a typed Error. Upstream
// outages answer with HTML error pages; those are detected by the
// parse failing and collapsed into a generic message instead of being
// propagated raw.
func decodeError(status int, data []byte) *Error {
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && (body.Error != "" || body.Message != "") {
		message := body.Error
		if message == "" {
			message = body.Message
		}
		return &Error{Status: status, Message: message, RedirectToLogin: body.RedirectToLogin}
	}
	return &Error{Status: status, Message: "upstream returned an unreadable error response"}
}
