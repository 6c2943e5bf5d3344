package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed API call.
type Kind int

const (
	// KindUnclassified covers transport failures and statuses without special handling.
	KindUnclassified Kind = iota
	// KindClientError is a 400 response.
	KindClientError
	// KindAuthExpired is a 401 response; recoverable once through a token refresh.
	KindAuthExpired
	// KindForbidden is a 403 response.
	KindForbidden
	// KindServerError is any 5xx response.
	KindServerError
)

func (k Kind) String() string {
	switch k {
	case KindClientError:
		return "client_error"
	case KindAuthExpired:
		return "auth_expired"
	case KindForbidden:
		return "forbidden"
	case KindServerError:
		return "server_error"
	default:
		return "unclassified"
	}
}

// Sentinel errors matching each Kind with errors.Is.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrServerError  = errors.New("server error")
	ErrUnclassified = errors.New("request failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindClientError:
		return ErrBadRequest
	case KindAuthExpired:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	case KindServerError:
		return ErrServerError
	default:
		return ErrUnclassified
	}
}

// classify maps an HTTP status code to its Kind.
func classify(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindClientError
	case status == http.StatusUnauthorized:
		return KindAuthExpired
	case status == http.StatusForbidden:
		return KindForbidden
	case status >= http.StatusInternalServerError:
		return KindServerError
	default:
		return KindUnclassified
	}
}

// HTTPError is returned for every call that did not end in a 2xx response.
// Request is the original descriptor, so the call can be inspected or replayed.
type HTTPError struct {
	Kind Kind
	// StatusCode is zero when no response was received.
	StatusCode int
	Request    *Request
	// Response is nil when no response was received.
	Response *Response
	// Cause is the transport error, or the refresh error for an unrecovered 401.
	Cause error

	// authorization is the Authorization header the failed attempt was sent with.
	authorization string
}

func (e *HTTPError) Error() string {
	target := ""
	if e.Request != nil {
		target = e.Request.Method + " " + e.Request.Path
	}
	switch {
	case e.StatusCode == 0 && e.Cause != nil:
		return fmt.Sprintf("%s: %v", target, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: status %d: %v", target, e.StatusCode, e.Cause)
	default:
		return fmt.Sprintf("%s: status %d", target, e.StatusCode)
	}
}

// Unwrap exposes the kind sentinel and the cause to errors.Is and errors.As.
func (e *HTTPError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
