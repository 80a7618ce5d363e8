package provider

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCursor = errors.New("invalid provider cursor")
	ErrMissingCode   = errors.New("employee code is missing")
	ErrMissingTime   = errors.New("punch timestamp is missing or unparsable")
	ErrDuplicateCode = errors.New("employee code appears more than once in roster")
)

// TransportError is a retryable failure: timeouts, connection errors,
// 5xx responses and rate limiting.
type TransportError struct {
	StatusCode int
	Op         string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: transport error [%d]: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means the provider rejected the credentials. It aborts the run.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider rejected credentials [%d]: %s", e.StatusCode, e.Message)
}

// RequestError is a non-retryable 4xx (other than 429) or an API-level
// rejection of the request.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("provider rejected request [%d]: %s", e.StatusCode, e.Message)
}

// MalformedRecordError describes a single unusable provider record. It is
// folded into the run error list and never aborts a batch.
type MalformedRecordError struct {
	Kind   string
	Code   string
	Reason error
}

func (e *MalformedRecordError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("malformed %s record: %v", e.Kind, e.Reason)
	}
	return fmt.Sprintf("malformed %s record %s: %v", e.Kind, e.Code, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return e.Reason }

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsFatal reports whether err must abort the run without retrying.
func IsFatal(err error) bool {
	var authErr *AuthError
	var reqErr *RequestError
	return errors.As(err, &authErr) || errors.As(err, &reqErr)
}
