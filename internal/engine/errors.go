package engine

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates the inference path cannot be used at all,
// typically a missing credential. It is never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("inference configuration: %s", e.Reason)
}

// TransportError indicates a network-level failure reaching the inference
// endpoint (connection refused, DNS, timeout). Retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("inference transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError indicates the endpoint was reached but responded with a
// non-success status or an envelope the client could not decode. Retryable.
type ProtocolError struct {
	StatusCode int
	Detail     string
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference protocol: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("inference protocol: %s", e.Detail)
}

// retryable reports whether another attempt against the endpoint could
// plausibly succeed. Configuration problems cannot heal between attempts.
func retryable(err error) bool {
	var cfgErr *ConfigurationError
	return !errors.As(err, &cfgErr)
}
