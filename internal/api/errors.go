package api

import (
	"errors"
	"fmt"
)

// Error is the typed failure every request surfaces: the HTTP status,
// the backend's message when it sent a JSON body, and whether the UI
// should send the viewer back to login.
type Error struct {
	Status          int
	Message         string
	RedirectToLogin bool
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (status %d)", e.Status)
}

// AsError unwraps err into an *Error when the chain contains one.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsUnauthorized reports whether err is a 401 that survived the
// refresh-and-retry cycle.
func IsUnauthorized(err error) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Status == 401
}
