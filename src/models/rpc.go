package models

import "encoding/json"

// -----------------------------------------------------------------------------
// Upstream JSON-RPC 2.0 Frames
// -----------------------------------------------------------------------------

type MRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// -----------------------------------------------------------------------------

func NewRPCRequest(id uint64, method string, params json.RawMessage) MRPCRequest {
	return MRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// -----------------------------------------------------------------------------

type MRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// -----------------------------------------------------------------------------

// MRPCNotifyParams is the params envelope of a subscription notification.
type MRPCNotifyParams struct {
	Subscription uint64          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// -----------------------------------------------------------------------------

// MRPCFrame is the union of everything the provider sends back on the socket:
// confirmations and errors carry an ID, notifications carry Method + Params.
type MRPCFrame struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *uint64           `json:"id,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *MRPCError        `json:"error,omitempty"`
	Method  string            `json:"method,omitempty"`
	Params  *MRPCNotifyParams `json:"params,omitempty"`
}

// -----------------------------------------------------------------------------

// IsNotification reports whether the frame is a subscription notification.
func (f *MRPCFrame) IsNotification() bool {
	return f.ID == nil && f.Params != nil
}

// -----------------------------------------------------------------------------

// IsConfirmation reports whether the frame answers one of our requests with a
// provider-assigned subscription id.
func (f *MRPCFrame) IsConfirmation() bool {
	return f.ID != nil && f.Error == nil && len(f.Result) > 0
}

// -----------------------------------------------------------------------------

// IsError reports whether the frame rejects one of our requests.
func (f *MRPCFrame) IsError() bool {
	return f.ID != nil && f.Error != nil
}
