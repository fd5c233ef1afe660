package httpx

import (
	"errors"
	"net/http"
)

// Errors understood by RespondError. Wrap them with context; the wrapped
// message becomes the problem detail.
var (
	ErrInvalidParams  = errors.New("invalid parameters")
	ErrUpstream       = errors.New("upstream unavailable")
	ErrUnauthorized   = errors.New("admin token required")
	ErrWritesDisabled = errors.New("writes are disabled")
	ErrNotReady       = errors.New("dependencies not ready")
)

var problemTitles = []struct {
	err    error
	status int
	title  string
}{
	{ErrInvalidParams, http.StatusBadRequest, "Invalid Parameters"},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrWritesDisabled, http.StatusForbidden, "Forbidden"},
	{ErrUpstream, http.StatusBadGateway, "Stats Unavailable"},
	{ErrNotReady, http.StatusServiceUnavailable, "Not Ready"},
}

// RespondError maps err onto an RFC7807 response. Unknown errors become an
// opaque 500.
func RespondError(w http.ResponseWriter, err error) {
	for _, p := range problemTitles {
		if errors.Is(err, p.err) {
			Problem(w, p.status, p.title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
