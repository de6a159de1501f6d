package coparent

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingAccessToken indicates no session is available to authorize a call.
	ErrMissingAccessToken = errors.New("missing access token, please sign in again")
	// ErrSessionExpired indicates the stored access token expired before the call was issued.
	ErrSessionExpired = errors.New("session expired, please sign in again")
	// ErrPromoteRejected indicates the API answered a promotion without success.
	ErrPromoteRejected = errors.New("failed to promote co-parent to primary")
	// ErrRemoveRejected indicates the API answered a removal without success.
	ErrRemoveRejected = errors.New("failed to remove co-parent")
)

// APIError describes a non-2xx response from the co-parent API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("co-parent api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return e.Message
}

// IsUnauthorized reports whether err is an API rejection of the bearer token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
