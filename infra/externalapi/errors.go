package externalapi

import (
	"errors"
	"fmt"
)

// GatewayError is returned for any failed exchange with the gateway.
// Payload holds the upstream body, which must not be sent back to callers.
type GatewayError struct {
	Op         string
	StatusCode int
	Payload    []byte
	Retryable  bool
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.StatusCode >= 300:
		return fmt.Sprintf("%s failed with status code %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	default:
		return e.Op + " failed"
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a gateway failure worth retrying.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Retryable
}
