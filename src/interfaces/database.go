package interfaces

import "token-observer/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// UpsertToken registers token identity metadata.
	UpsertToken(meta models.MTokenMetadata) error

	// -----------------------------------------------------------------------------

	// SaveMetrics stores one computed aggregation bundle. Best-effort: a
	// failure is reported but must never block the response path.
	SaveMetrics(resp *models.MAggregationResponse) error

	// -----------------------------------------------------------------------------

	// LoadLatestMetrics retrieves the most recent stored bundle for a token,
	// or nil when none exists.
	LoadLatestMetrics(mint string) (*models.MAggregationResponse, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes data older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
