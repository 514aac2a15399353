package interfaces

import (
	"context"

	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// IDataFetcher defines the remote data-fetch collaborators the aggregation
// engine calls out to. Every method is one independent remote lookup; errors
// follow the datafetch taxonomy (not-found, rate-limited, unavailable).
// -----------------------------------------------------------------------------

type IDataFetcher interface {

	// -----------------------------------------------------------------------------

	// GetTokenMetadata combines identity, supply and price in one lookup.
	GetTokenMetadata(ctx context.Context, mint string) (models.MTokenMetadata, error)

	// -----------------------------------------------------------------------------

	// GetTokenSupply returns the decimal-adjusted total supply.
	GetTokenSupply(ctx context.Context, mint string) (models.MTokenSupply, error)

	// -----------------------------------------------------------------------------

	// GetTokenLargestAccounts returns the largest holder accounts ranked by
	// balance. The provider caps the list (20 accounts).
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]models.MTokenHolder, error)

	// -----------------------------------------------------------------------------

	// GetSignaturesForAddress returns recent transaction signatures.
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]models.MSignatureInfo, error)

	// -----------------------------------------------------------------------------

	// GetTransaction returns the balance movements of one transaction.
	GetTransaction(ctx context.Context, signature string) (models.MTransactionDetail, error)
}
