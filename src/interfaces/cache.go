package interfaces

import (
	"context"
	"time"

	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// ICacheGateway defines the side-effect cache consumed by the aggregation
// engine and invalidated by live subscription callbacks.
// -----------------------------------------------------------------------------

type ICacheGateway interface {

	// -----------------------------------------------------------------------------

	// Get returns the cached bundle for a token together with its age.
	// ok is false when nothing is cached.
	Get(ctx context.Context, mint string) (resp *models.MAggregationResponse, age time.Duration, ok bool)

	// -----------------------------------------------------------------------------

	// Set stores a bundle with the given TTL.
	Set(ctx context.Context, mint string, resp *models.MAggregationResponse, ttl time.Duration) error

	// -----------------------------------------------------------------------------

	// Invalidate drops the cached bundle for a token, if any.
	Invalidate(ctx context.Context, mint string) error
}
