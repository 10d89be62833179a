package backend

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Error is a non-2xx reply. Reason is the backend's "detail" message, or the
// HTTP status text when the body carries none.
type Error struct {
	Status int
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}

// IsUnauthorized reports whether the backend rejected the identity token.
func IsUnauthorized(err error) bool {
	s := StatusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}

func decodeError(resp *http.Response) error {
	reason := http.StatusText(resp.StatusCode)
	if reason == "" {
		reason = "request failed"
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && len(payload.Detail) > 0 {
		var detail string
		// validation failures carry a list instead of a string
		if json.Unmarshal(payload.Detail, &detail) == nil && strings.TrimSpace(detail) != "" {
			reason = detail
		}
	}
	return &Error{Status: resp.StatusCode, Reason: reason}
}
