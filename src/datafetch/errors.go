package datafetch

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Error Taxonomy
// -----------------------------------------------------------------------------

// Remote lookups fail in three ways the aggregation engine distinguishes
// from programmer errors: the resource does not exist, the provider throttled
// us, or the provider is unreachable. All of them are converted to fallback
// results at the task boundary, never propagated.
var (
	ErrNotFound    = errors.New("datafetch: resource not found")
	ErrRateLimited = errors.New("datafetch: rate limited")
	ErrUnavailable = errors.New("datafetch: provider unavailable")
)

// -----------------------------------------------------------------------------

// RPCError is a structured provider rejection.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// -----------------------------------------------------------------------------

// Unwrap classifies provider error codes into the taxonomy. The provider uses
// -32602 for unresolvable resources and -32600 for request throttling.
func (e *RPCError) Unwrap() error {
	switch e.Code {
	case -32602:
		return ErrNotFound
	case -32600:
		return ErrRateLimited
	}
	return ErrUnavailable
}
