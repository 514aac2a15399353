package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for HTTP requests with retry logic.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Post sends a JSON payload and returns the response body as bytes.
	Post(ctx context.Context, url string, payload []byte) ([]byte, error)

	// -----------------------------------------------------------------------------

	// Get performs a GET request to the specified URL with parameters.
	Get(ctx context.Context, url string, params map[string]string) ([]byte, error)
}
