package models

import (
	"encoding/json"
	"time"
)

// -----------------------------------------------------------------------------
// Subscription Kinds
// -----------------------------------------------------------------------------

// MSubscriptionKind enumerates the upstream streams we know how to open.
// Each kind knows its own unsubscribe counterpart, so the pairing is fixed
// at compile time instead of being derived from method-name strings.
type MSubscriptionKind int

const (
	KindAccount MSubscriptionKind = iota
	KindLogs
)

// -----------------------------------------------------------------------------

func (k MSubscriptionKind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindLogs:
		return "logs"
	}
	return "unknown"
}

// -----------------------------------------------------------------------------

// SubscribeMethod returns the provider RPC method that opens this stream.
func (k MSubscriptionKind) SubscribeMethod() string {
	switch k {
	case KindAccount:
		return "accountSubscribe"
	case KindLogs:
		return "logsSubscribe"
	}
	return ""
}

// -----------------------------------------------------------------------------

// UnsubscribeMethod returns the provider RPC method that closes this stream.
func (k MSubscriptionKind) UnsubscribeMethod() string {
	switch k {
	case KindAccount:
		return "accountUnsubscribe"
	case KindLogs:
		return "logsUnsubscribe"
	}
	return ""
}

// -----------------------------------------------------------------------------
// Subscription States
// -----------------------------------------------------------------------------

type MSubscriptionState int

const (
	StateRequested MSubscriptionState = iota
	StateConfirmed
	StateFailed
	StateUnsubscribed
)

// -----------------------------------------------------------------------------

func (s MSubscriptionState) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	case StateUnsubscribed:
		return "unsubscribed"
	}
	return "unknown"
}

// -----------------------------------------------------------------------------
// Subscription Record
// -----------------------------------------------------------------------------

// MSubscription identifies one logical stream from the upstream provider.
// RequestID is assigned locally and never reused; SubscriptionID is assigned
// by the provider on confirmation and cleared again when the link drops.
// Params are kept verbatim so the request can be replayed after a reconnect.
type MSubscription struct {
	RequestID      uint64             `json:"request_id"`
	SubscriptionID uint64             `json:"subscription_id"`
	Kind           MSubscriptionKind  `json:"kind"`
	Params         json.RawMessage    `json:"params"`
	Mint           string             `json:"mint"`    // the token this stream serves
	Account        string             `json:"account"` // set for account streams only
	State          MSubscriptionState `json:"state"`
	CreatedAt      time.Time          `json:"created_at"`
}
