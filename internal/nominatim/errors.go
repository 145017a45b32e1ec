package nominatim

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies why a request to the Nominatim API failed.
type ErrorKind int

const (
	// KindInvalidInput means the query was rejected before any network activity.
	KindInvalidInput ErrorKind = iota + 1
	// KindNetwork means the transport failed (DNS, timeout, connection reset, cancelled context).
	KindNetwork
	// KindService means the API answered with a non-2xx status, or reported that nothing matched.
	KindService
	// KindDeserialization means a 2xx body did not have the expected JSON shape.
	KindDeserialization
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNetwork:
		return "network"
	case KindService:
		return "service"
	case KindDeserialization:
		return "deserialization"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by errors.Is against an *APIError of the corresponding kind.
var (
	ErrInvalidInput    = errors.New("nominatim: invalid input")
	ErrNetwork         = errors.New("nominatim: network failure")
	ErrService         = errors.New("nominatim: service error")
	ErrDeserialization = errors.New("nominatim: unexpected response shape")

	// ErrNotFound is wrapped by a KindService error when the API answered successfully
	// but had no place for the query.
	ErrNotFound = errors.New("nominatim: no matching place")
)

// APIError is the only error type returned by Client methods.
type APIError struct {
	Kind       ErrorKind
	StatusCode int    // HTTP status, set for KindService and KindDeserialization
	Body       string // raw response body, set for KindService
	Message    string
	Err        error // underlying cause, may be nil
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindService:
		if errors.Is(e.Err, ErrNotFound) {
			return fmt.Sprintf("%v: %s", ErrNotFound, e.Message)
		}
		return fmt.Sprintf("nominatim API returned status %d: %s", e.StatusCode, e.Body)
	default:
		if e.Err != nil {
			return fmt.Sprintf("nominatim %s error: %s: %v", e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("nominatim %s error: %s", e.Kind, e.Message)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrService:
		return e.Kind == KindService
	case ErrDeserialization:
		return e.Kind == KindDeserialization
	}
	return false
}

// IsRetryable reports whether repeating the same request later might succeed.
// Only transport failures, 5xx and 429 responses qualify.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Kind {
	case KindNetwork:
		return true
	case KindService:
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

func invalidInput(format string, args ...any) *APIError {
	return &APIError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func networkError(msg string, err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: msg, Err: err}
}

func deserializationError(status int, err error) *APIError {
	return &APIError{Kind: KindDeserialization, StatusCode: status, Message: "failed to decode response", Err: err}
}
