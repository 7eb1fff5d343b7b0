package archive

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports a non-2xx response from the archive.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d %s for url: %s", e.StatusCode, e.class(), e.URL)
}

// NotFound reports whether the status means the item does not exist.
func (e *StatusError) NotFound() bool {
	return e != nil && (e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone)
}

func (e *StatusError) class() string {
	switch {
	case e.StatusCode >= 500:
		return "Server Error"
	case e.StatusCode >= 400:
		return "Client Error"
	default:
		return "Unexpected Status"
	}
}

// TransportError reports a request that never produced an HTTP response:
// DNS, connect, TLS, timeout or cancellation.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return "request failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// AsStatusError unwraps err to a *StatusError when it carries one.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
