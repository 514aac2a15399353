package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"token-observer/src/correlator"
	"token-observer/src/logger"
	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// Link States
// -----------------------------------------------------------------------------

type LinkState int32

const (
	StateDisconnected LinkState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateStopped
)

func (s LinkState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// -----------------------------------------------------------------------------
// Link
// -----------------------------------------------------------------------------

// Link maintains one persistent websocket connection to the upstream
// provider. It owns the receive loop, classifies incoming frames through the
// correlator, and transparently reconnects with subscription replay when the
// connection drops.
type Link struct {
	Config     *models.MConfig
	Correlator *correlator.RequestCorrelator
	Logger     *logger.Logger

	url    string
	dialer *websocket.Dialer

	connMu sync.Mutex // guards conn, gen and all writes to the socket
	conn   *websocket.Conn
	gen    uint64 // bumped on every successful dial

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// -----------------------------------------------------------------------------

func NewLink(cfg *models.MConfig, corr *correlator.RequestCorrelator, log *logger.Logger) *Link {
	url := cfg.Upstream.WebsocketURL
	if cfg.Upstream.APIKey != "" {
		url = fmt.Sprintf("%s?api-key=%s", url, cfg.Upstream.APIKey)
	}
	return &Link{
		Config:     cfg,
		Correlator: corr,
		Logger:     log,
		url:        url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(cfg.Network.RequestTimeout) * time.Second,
		},
		done: make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// Start dials the provider and launches the receive loop. It returns once the
// first connection attempt has succeeded or failed; the loop keeps the link
// alive afterwards.
func (l *Link) Start(ctx context.Context) error {
	l.ctx, l.cancel = context.WithCancel(ctx)

	l.state.Store(int32(StateConnecting))
	if err := l.dial(l.currentGen()); err != nil {
		l.state.Store(int32(StateDisconnected))
		return fmt.Errorf("initial upstream dial: %w", err)
	}
	l.state.Store(int32(StateConnected))
	l.Logger.Info("Upstream link established")

	go l.receiveLoop()
	return nil
}

// -----------------------------------------------------------------------------

// Stop tears the link down and waits for the receive loop to exit.
func (l *Link) Stop() {
	l.state.Store(int32(StateStopped))
	if l.cancel != nil {
		l.cancel()
	}

	l.connMu.Lock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.connMu.Unlock()

	select {
	case <-l.done:
	case <-time.After(5 * time.Second):
		l.Logger.Warning("Receive loop did not exit in time")
	}
}

// -----------------------------------------------------------------------------

func (l *Link) State() LinkState {
	return LinkState(l.state.Load())
}

// -----------------------------------------------------------------------------

// Send writes one JSON-RPC request on the socket. When the write fails and
// the link is not stopped it redials once and retries the write before giving
// up; the receive loop picks up the fresh connection through the generation
// counter.
func (l *Link) Send(req models.MRPCRequest) error {
	seen := l.currentGen()
	err := l.writeRequest(req)
	if err == nil {
		return nil
	}
	if l.State() == StateStopped || l.ctx == nil {
		return err
	}

	l.Logger.Warning("Write of request %d failed, redialing once: %v", req.ID, err)
	if dialErr := l.dial(seen); dialErr != nil {
		return fmt.Errorf("send retry dial: %w", dialErr)
	}
	l.state.Store(int32(StateConnected))
	return l.writeRequest(req)
}

// -----------------------------------------------------------------------------

func (l *Link) writeRequest(req models.MRPCRequest) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return fmt.Errorf("upstream link is %s", l.State())
	}

	deadline := time.Now().Add(time.Duration(l.Config.Upstream.WriteTimeoutSecs) * time.Second)
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return l.conn.WriteJSON(req)
}

// -----------------------------------------------------------------------------

func (l *Link) currentGen() uint64 {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.gen
}

// -----------------------------------------------------------------------------

// dial establishes a new connection. seen is the generation the caller last
// observed; when a concurrent dial already installed a newer connection the
// fresh handshake is discarded so the in-flight one is never torn down.
func (l *Link) dial(seen uint64) error {
	conn, _, err := l.dialer.DialContext(l.ctx, l.url, nil)
	if err != nil {
		return err
	}

	l.connMu.Lock()
	if l.gen != seen {
		l.connMu.Unlock()
		conn.Close()
		return nil
	}
	if l.conn != nil {
		l.conn.Close()
	}
	l.conn = conn
	l.gen++
	l.connMu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------

// receiveLoop reads frames until the link is stopped. Any read error triggers
// a reconnect; the loop never exits on a provider hiccup.
func (l *Link) receiveLoop() {
	defer close(l.done)

	readTimeout := time.Duration(l.Config.Upstream.ReadTimeoutSecs) * time.Second

	for {
		if l.State() == StateStopped {
			return
		}

		l.connMu.Lock()
		conn := l.conn
		seen := l.gen
		l.connMu.Unlock()
		if conn == nil {
			if !l.reconnect(seen) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if l.State() == StateStopped {
				return
			}
			l.Logger.Warning("Upstream read failed: %v", err)
			if !l.reconnect(seen) {
				return
			}
			continue
		}

		l.handleFrame(raw)
	}
}

// -----------------------------------------------------------------------------

// handleFrame classifies one raw frame. Malformed frames are logged and
// skipped so one bad message never takes the loop down.
func (l *Link) handleFrame(raw []byte) {
	var frame models.MRPCFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		l.Logger.Warning("Malformed upstream frame: %v", err)
		return
	}

	switch {
	case frame.IsNotification():
		l.Correlator.Dispatch(frame.Params.Subscription, frame.Params.Result)

	case frame.IsError():
		l.Correlator.Fail(*frame.ID, frame.Error)

	case frame.IsConfirmation():
		var subID uint64
		if err := json.Unmarshal(frame.Result, &subID); err != nil {
			// Unsubscribe confirmations carry a boolean result; nothing to
			// correlate for those.
			var ok bool
			if json.Unmarshal(frame.Result, &ok) != nil {
				l.Logger.Warning("Unparseable confirmation result for request %d", *frame.ID)
			}
			return
		}
		l.Correlator.Confirm(*frame.ID, subID)

	default:
		l.Logger.Debug("Dropping unclassifiable upstream frame")
	}
}

// -----------------------------------------------------------------------------

// reconnect redials until it succeeds or the link is stopped, then replays
// every previously confirmed subscription in original request order. Returns
// false only when the link was stopped. seen is the connection generation the
// caller was reading; a newer one means Send already brought the link back.
func (l *Link) reconnect(seen uint64) bool {
	l.connMu.Lock()
	if l.conn != nil && l.gen != seen {
		l.connMu.Unlock()
		l.state.Store(int32(StateConnected))
		return true
	}
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.connMu.Unlock()

	l.state.Store(int32(StateReconnecting))

	wait := time.Duration(l.Config.Upstream.ReconnectWaitSecs) * time.Second

	for attempt := 1; ; attempt++ {
		select {
		case <-l.ctx.Done():
			l.state.Store(int32(StateStopped))
			return false
		case <-time.After(wait):
		}

		if err := l.dial(seen); err != nil {
			l.Logger.Warning("Reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		l.state.Store(int32(StateConnected))
		l.Logger.Info("Upstream link re-established after %d attempt(s)", attempt)
		l.replaySubscriptions()
		return true
	}
}

// -----------------------------------------------------------------------------

// replaySubscriptions re-issues every subscription that was confirmed before
// the drop. Each replay reuses the original request id and verbatim params;
// a failed replay is recorded and skipped so the rest still go through.
func (l *Link) replaySubscriptions() {
	demoted := l.Correlator.DemoteConfirmed()
	if len(demoted) == 0 {
		return
	}

	l.Logger.Info("Replaying %d subscription(s)", len(demoted))
	for _, sub := range demoted {
		req := models.NewRPCRequest(sub.RequestID, sub.Kind.SubscribeMethod(), sub.Params)
		if err := l.Send(req); err != nil {
			l.Logger.Warning("Replay of request %d failed: %v", sub.RequestID, err)
			l.Correlator.Fail(sub.RequestID, nil)
		}
	}
}
