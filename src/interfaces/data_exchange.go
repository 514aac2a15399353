package interfaces

import "token-observer/src/models"

// -----------------------------------------------------------------------------
// IDataExchanger defines the interface for sharing data with downstream
// listeners (WebSocket fan-out + snapshot state).
// -----------------------------------------------------------------------------

type IDataExchanger interface {

	// -----------------------------------------------------------------------------

	// Broadcast pushes one update event to every connected client.
	Broadcast(event *models.MUpdateEvent)

	// -----------------------------------------------------------------------------

	// UpdateSnapshot replaces the latest known bundle for a token in the
	// state served to newly connected clients.
	UpdateSnapshot(mint string, resp *models.MAggregationResponse)

	// -----------------------------------------------------------------------------

	// Start the server
	Start() error

	// -----------------------------------------------------------------------------

	// Stop the server gracefully
	Stop() error
}
