package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *TokenServer) handleWebsockets() {
	for {
		select {
		case <-s.stopped:
			s.stateMutex.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			s.stateMutex.Unlock()
			return

		case client := <-s.register:
			s.stateMutex.Lock()
			s.clients[client] = struct{}{}
			s.stateMutex.Unlock()
			// Send initial state on connect
			client.send <- s.snapshotMessage()

		case client := <-s.unregister:
			s.stateMutex.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.stateMutex.Unlock()

		case event := <-s.broadcast:
			s.stateMutex.Lock()
			for client := range s.clients {
				select {
				case client.send <- event:
					// Delivered
				default:
					// Client too slow, disconnect to prevent Hub blocking
					delete(s.clients, client)
					close(client.send)
					s.Logger.Info("Dropped slow client %s", client.id)
				}
			}
			s.stateMutex.Unlock()
		}
	}
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast queues one update event for every connected client.
func (s *TokenServer) Broadcast(event *models.MUpdateEvent) {
	select {
	case s.broadcast <- event:
	case <-s.stopped:
	}
}

// -----------------------------------------------------------------------------

// UpdateSnapshot replaces the latest known bundle for a token in the state
// served to newly connected clients.
func (s *TokenServer) UpdateSnapshot(mint string, resp *models.MAggregationResponse) {
	s.stateMutex.Lock()
	s.snapshot[mint] = resp
	s.stateMutex.Unlock()
}

// -----------------------------------------------------------------------------

func (s *TokenServer) snapshotMessage() *models.MSnapshotMessage {
	s.stateMutex.RLock()
	tokens := make(map[string]*models.MAggregationResponse, len(s.snapshot))
	for mint, resp := range s.snapshot {
		tokens[mint] = resp
	}
	s.stateMutex.RUnlock()

	return &models.MSnapshotMessage{
		Type:      "INITIAL",
		Tokens:    tokens,
		Timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *TokenServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan interface{}, 256),
	}

	s.register <- client

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage processes the track command a client sends after
// connecting. An invalid command gets a structured error before the close so
// the client knows why it was rejected.
func (s *TokenServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MTrackCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.rejectClient(client, "PARSE_ERROR", "malformed command")
		return
	}

	if cmd.Command != "track" {
		s.rejectClient(client, "UNKNOWN_COMMAND", fmt.Sprintf("unknown command %q", cmd.Command))
		return
	}

	if cmd.MaxAccounts == 0 {
		cmd.MaxAccounts = s.Config.Tracking.MaxAccountsDefault
	}
	if err := validateTrackCommand(&cmd); err != nil {
		s.rejectClient(client, "INVALID_COMMAND", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Tracker.TrackToken(ctx, cmd.Mint, cmd.MaxAccounts); err != nil {
		s.rejectClient(client, "TRACK_FAILED", err.Error())
		return
	}

	// Snapshot first so the client sees current state before live updates,
	// then the confirmation.
	client.trySend(s.snapshotMessage())
	client.trySend(models.MTrackConfirmation{Type: "TRACKING", Mint: cmd.Mint, MaxAccounts: cmd.MaxAccounts})
}

// -----------------------------------------------------------------------------

// rejectClient queues the structured error and closes the connection once
// the write pump had a chance to flush it. Only the write pump touches the
// socket, so the error never races a ping frame.
func (s *TokenServer) rejectClient(client *Client, code string, message string) {
	s.Logger.Info("Rejecting client %s: %s", client.id, message)
	client.trySend(models.MErrorMessage{Type: "ERROR", Code: code, Message: message})
	time.AfterFunc(writeWait, func() { client.conn.Close() })
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

// validateTrackCommand enforces the accepted command shape. The account bound
// is strict: 1 is useless and above 15 exceeds what the provider's largest
// accounts call can back.
func validateTrackCommand(cmd *models.MTrackCommand) error {
	if cmd.Mint == "" {
		return fmt.Errorf("mint is required")
	}
	if cmd.MaxAccounts <= 1 || cmd.MaxAccounts > 15 {
		return fmt.Errorf("max_accounts must be greater than 1 and at most 15, got %d", cmd.MaxAccounts)
	}
	return nil
}
