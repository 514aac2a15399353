package models

import "time"

// -----------------------------------------------------------------------------
// Downstream Client Protocol
// -----------------------------------------------------------------------------

// MTrackCommand is the single control message a client sends after connecting.
// MaxAccounts bounds how many top holder accounts are monitored live for the
// token; the accepted range is 1 < n <= 15.
type MTrackCommand struct {
	Command     string `json:"command"`
	Mint        string `json:"mint"`
	MaxAccounts int    `json:"max_accounts"`
}

// -----------------------------------------------------------------------------

// Update event types pushed to clients.
const (
	EventAccountUpdate     = "account_update"
	EventTransactionUpdate = "transaction_update"
	EventMetricsUpdate     = "metrics_update"
)

// MUpdateEvent is one derived update fanned out to every connected client.
type MUpdateEvent struct {
	Type      string      `json:"type"`
	Mint      string      `json:"mint"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MSnapshotMessage is the initial full state sent to a client on connect and
// again after a successful track command.
type MSnapshotMessage struct {
	Type      string                           `json:"type"` // "INITIAL"
	Tokens    map[string]*MAggregationResponse `json:"tokens"`
	Timestamp time.Time                        `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MTrackConfirmation acknowledges an accepted track command.
type MTrackConfirmation struct {
	Type        string `json:"type"` // "TRACKING"
	Mint        string `json:"mint"`
	MaxAccounts int    `json:"max_accounts"`
}

// -----------------------------------------------------------------------------

// MErrorMessage is the structured rejection sent before closing a client that
// issued an invalid command.
type MErrorMessage struct {
	Type    string `json:"type"` // "ERROR"
	Code    string `json:"code"`
	Message string `json:"message"`
}
