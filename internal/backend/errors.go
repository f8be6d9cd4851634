package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed completion call.
type ErrorKind int

const (
	// KindConfiguration: missing key, base URL or model. Never retried.
	KindConfiguration ErrorKind = iota + 1
	// KindTransport: the API answered with a non-2xx status.
	KindTransport
	// KindNetwork: connection, DNS, timeout or abort before a full answer.
	KindNetwork
	// KindDecode: the response body could not be understood.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// APIError is the only error type Client returns.
type APIError struct {
	Kind    ErrorKind
	Status  int // HTTP status, KindTransport only
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Aborted reports whether the call ended because its context was cancelled.
func (e *APIError) Aborted() bool {
	return errors.Is(e.Err, context.Canceled)
}

func configError(msg string) *APIError {
	return &APIError{Kind: KindConfiguration, Message: msg}
}

func networkError(msg string, err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: msg, Err: err}
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
