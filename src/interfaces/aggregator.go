package interfaces

import (
	"context"

	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// IAggregator computes the four-metric bundle for a token. Compute degrades
// instead of failing: it always returns a response.
// -----------------------------------------------------------------------------

type IAggregator interface {
	Compute(ctx context.Context, mint string) *models.MAggregationResponse
}

// -----------------------------------------------------------------------------
// ITokenTracker opens live upstream subscriptions for a token.
// -----------------------------------------------------------------------------

type ITokenTracker interface {

	// TrackToken subscribes to the token's top holder accounts and log
	// stream. maxAccounts bounds the number of monitored accounts.
	TrackToken(ctx context.Context, mint string, maxAccounts int) error

	// -----------------------------------------------------------------------------

	// UntrackToken tears down every subscription held for the token.
	UntrackToken(mint string)

	// -----------------------------------------------------------------------------

	// TrackedTokens lists tokens with at least one live subscription.
	TrackedTokens() []string
}
