package session

// Test requirements (this file serves as documentation):
// - Login exchanges credentials for the session triple and surfaces
//   the backend's error message on rejection
// - Refresh returns the rotated triple; a 401 or 403 maps to
//   ErrRefreshRejected so callers know to log in again
// - An HTML error page from a proxy does not break error reporting
// - Logout treats an already-dead session (401) as success

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func authServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func writeAuthSuccess(w http.ResponseWriter, sess Session) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    sess,
	})
}

func TestLogin(t *testing.T) {
	server := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var creds map[string]string
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Fatalf("failed to decode credentials: %v", err)
		}
		if creds["email"] != "ada@example.org" || creds["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "invalid credentials"})
			return
		}
		writeAuthSuccess(w, Session{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			SessionID:    "sess-1",
			UserID:       "user-1",
		})
	})

	flow := NewFlow(server.URL)
	sess, err := flow.Login(context.Background(), "ada@example.org", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.AccessToken != "access-1" || sess.SessionID != "sess-1" {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestLoginRejected(t *testing.T) {
	server := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "invalid credentials"})
	})

	flow := NewFlow(server.URL)
	_, err := flow.Login(context.Background(), "ada@example.org", "wrong")
	if err == nil {
		t.Fatal("expected login to fail")
	}
	if want := "invalid credentials"; !strings.Contains(err.Error(), want) {
		t.Errorf("expected error to carry %q, got %q", want, err)
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	flow := NewFlow("http://unused.invalid")
	if _, err := flow.Login(context.Background(), "", "pw"); err == nil {
		t.Error("expected an error for missing email")
	}
	if _, err := flow.Login(context.Background(), "a@b.c", ""); err == nil {
		t.Error("expected an error for missing password")
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	server := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/refresh-token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		if payload["refresh_token"] != "refresh-1" || payload["sessionId"] != "sess-1" {
			t.Errorf("unexpected payload: %v", payload)
		}
		writeAuthSuccess(w, Session{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			SessionID:    "sess-1",
		})
	})

	flow := NewFlow(server.URL)
	rotated, err := flow.Refresh(context.Background(), "refresh-1", "sess-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.AccessToken != "access-2" || rotated.RefreshToken != "refresh-2" {
		t.Errorf("expected the rotated pair, got %+v", rotated)
	}
	if rotated.SessionID != "sess-1" {
		t.Errorf("expected the session id to be preserved, got %q", rotated.SessionID)
	}
}

func TestRefreshRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := authServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		flow := NewFlow(server.URL)
		_, err := flow.Refresh(context.Background(), "dead", "sess-1")
		if !errors.Is(err, ErrRefreshRejected) {
			t.Errorf("status %d: expected ErrRefreshRejected, got %v", status, err)
		}
	}
}

func TestRefreshBehindBrokenProxy(t *testing.T) {
	server := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><body>502 Bad Gateway</body></html>"))
	})

	flow := NewFlow(server.URL)
	_, err := flow.Refresh(context.Background(), "refresh-1", "sess-1")
	if err == nil {
		t.Fatal("expected refresh to fail")
	}
	if errors.Is(err, ErrRefreshRejected) {
		t.Error("a proxy outage must not count as a rejected token")
	}
	if want := "status 502"; !strings.Contains(err.Error(), want) {
		t.Errorf("expected error to carry %q, got %q", want, err)
	}
}

func TestLogout(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusUnauthorized} {
		server := authServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/logout" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.WriteHeader(status)
		})

		flow := NewFlow(server.URL)
		err := flow.Logout(context.Background(), &Session{SessionID: "sess-1"})
		if err != nil {
			t.Errorf("status %d: expected logout to succeed, got %v", status, err)
		}
	}
}

func TestLogoutFailure(t *testing.T) {
	server := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "session store down"})
	})

	flow := NewFlow(server.URL)
	err := flow.Logout(context.Background(), &Session{SessionID: "sess-1"})
	if err == nil {
		t.Fatal("expected logout to fail")
	}
	if want := "session store down"; !strings.Contains(err.Error(), want) {
		t.Errorf("expected error to carry %q, got %q", want, err)
	}
}
