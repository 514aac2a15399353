package interfaces

import (
	"context"

	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// IEventPublisher publishes computed bundles to the event bus for other
// consumers. Best-effort: failures are counted and logged, never surfaced.
// -----------------------------------------------------------------------------

type IEventPublisher interface {

	// -----------------------------------------------------------------------------

	// PublishMetrics emits one aggregation bundle keyed by mint.
	PublishMetrics(ctx context.Context, resp *models.MAggregationResponse) error

	// -----------------------------------------------------------------------------

	// Close flushes pending deliveries.
	Close() error
}
