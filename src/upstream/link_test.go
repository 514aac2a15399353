package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-observer/src/correlator"
	"token-observer/src/logger"
	"token-observer/src/models"
)

// fakeProvider is a scripted upstream: it confirms every subscribe request
// with sequential subscription ids and lets tests push raw frames back.
type fakeProvider struct {
	*httptest.Server

	mu        sync.Mutex
	conns     []*websocket.Conn
	nextSubID uint64
	dials     int
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	upgrader := websocket.Upgrader{}
	p := &fakeProvider{nextSubID: 100}

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, conn)
		p.dials++
		p.mu.Unlock()

		for {
			var req models.MRPCRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if strings.HasSuffix(req.Method, "Subscribe") {
				p.mu.Lock()
				subID := p.nextSubID
				p.nextSubID++
				p.mu.Unlock()
				conn.WriteMessage(websocket.TextMessage,
					[]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%d}`, req.ID, subID)))
			}
		}
	}))

	t.Cleanup(p.Close)
	return p
}

func (p *fakeProvider) push(frame string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) > 0 {
		p.conns[len(p.conns)-1].WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

func (p *fakeProvider) dropCurrent() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) > 0 {
		p.conns[len(p.conns)-1].Close()
	}
}

func (p *fakeProvider) dialCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

func newTestLink(t *testing.T, p *fakeProvider) (*Link, *correlator.RequestCorrelator) {
	t.Helper()
	cfg := &models.MConfig{}
	cfg.Upstream.WebsocketURL = "ws" + strings.TrimPrefix(p.URL, "http")
	cfg.Upstream.ReadTimeoutSecs = 5
	cfg.Upstream.WriteTimeoutSecs = 2
	cfg.Upstream.ReconnectWaitSecs = 0
	cfg.Network.RequestTimeout = 5

	log := logger.NewLogger("error", "link-test")
	corr := correlator.NewRequestCorrelator(log)
	return NewLink(cfg, corr, log), corr
}

func subscribeParams(t *testing.T, account string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal([]interface{}{account, map[string]string{"commitment": "finalized"}})
	require.NoError(t, err)
	return raw
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLinkConfirmsAndRoutes(t *testing.T) {
	p := newFakeProvider(t)
	link, corr := newTestLink(t, p)

	require.NoError(t, link.Start(context.Background()))
	defer link.Stop()
	assert.Equal(t, StateConnected, link.State())

	got := make(chan models.MSubscription, 1)
	corr.SetHandler(func(sub models.MSubscription, payload []byte) {
		got <- sub
	})

	reqID := corr.NextRequestID()
	params := subscribeParams(t, "account1")
	corr.Register(reqID, models.KindAccount, "mint1", "account1", params)
	require.NoError(t, link.Send(models.NewRPCRequest(reqID, models.KindAccount.SubscribeMethod(), params)))

	waitFor(t, "confirmation", func() bool {
		_, confirmed := corr.Stats()
		return confirmed == 1
	})

	sub, ok := corr.Get(reqID)
	require.True(t, ok)
	p.push(fmt.Sprintf(`{"jsonrpc":"2.0","method":"accountNotification","params":{"subscription":%d,"result":{"lamports":5}}}`, sub.SubscriptionID))

	select {
	case routed := <-got:
		assert.Equal(t, "mint1", routed.Mint)
	case <-time.After(3 * time.Second):
		t.Fatal("notification never routed")
	}
}

func TestLinkSkipsMalformedFrames(t *testing.T) {
	p := newFakeProvider(t)
	link, corr := newTestLink(t, p)

	require.NoError(t, link.Start(context.Background()))
	defer link.Stop()

	p.push(`{not json`)
	p.push(`{"jsonrpc":"2.0"}`)

	reqID := corr.NextRequestID()
	params := subscribeParams(t, "account2")
	corr.Register(reqID, models.KindAccount, "mint2", "account2", params)
	require.NoError(t, link.Send(models.NewRPCRequest(reqID, models.KindAccount.SubscribeMethod(), params)))

	waitFor(t, "confirmation after malformed frames", func() bool {
		_, confirmed := corr.Stats()
		return confirmed == 1
	})
}

func TestLinkRoutesErrorFrames(t *testing.T) {
	p := newFakeProvider(t)
	link, corr := newTestLink(t, p)

	require.NoError(t, link.Start(context.Background()))
	defer link.Stop()

	reqID := corr.NextRequestID()
	corr.Register(reqID, models.KindAccount, "mint3", "bogus", subscribeParams(t, "bogus"))

	p.push(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32602,"message":"invalid account"}}`, reqID))

	waitFor(t, "failure recorded", func() bool {
		sub, ok := corr.Get(reqID)
		return ok && sub.State == models.StateFailed
	})
}

func TestLinkReconnectReplaysSubscriptions(t *testing.T) {
	p := newFakeProvider(t)
	link, corr := newTestLink(t, p)

	require.NoError(t, link.Start(context.Background()))
	defer link.Stop()

	reqID := corr.NextRequestID()
	params := subscribeParams(t, "account4")
	corr.Register(reqID, models.KindAccount, "mint4", "account4", params)
	require.NoError(t, link.Send(models.NewRPCRequest(reqID, models.KindAccount.SubscribeMethod(), params)))

	waitFor(t, "initial confirmation", func() bool {
		_, confirmed := corr.Stats()
		return confirmed == 1
	})
	before, _ := corr.Get(reqID)

	p.dropCurrent()

	waitFor(t, "redial", func() bool { return p.dialCount() >= 2 })
	waitFor(t, "replayed confirmation", func() bool {
		sub, ok := corr.Get(reqID)
		return ok && sub.State == models.StateConfirmed && sub.SubscriptionID != before.SubscriptionID
	})

	after, _ := corr.Get(reqID)
	assert.Equal(t, models.StateConfirmed, after.State)
	assert.Equal(t, StateConnected, link.State())

	// A notification on the remapped id still lands on the original mint.
	got := make(chan models.MSubscription, 1)
	corr.SetHandler(func(sub models.MSubscription, payload []byte) {
		got <- sub
	})
	p.push(fmt.Sprintf(`{"jsonrpc":"2.0","method":"accountNotification","params":{"subscription":%d,"result":{"lamports":9}}}`, after.SubscriptionID))

	select {
	case routed := <-got:
		assert.Equal(t, "mint4", routed.Mint)
		assert.Equal(t, after.SubscriptionID, routed.SubscriptionID)
	case <-time.After(3 * time.Second):
		t.Fatal("notification on remapped subscription never routed")
	}
}

func TestLinkSendRecoversAfterConnectionLoss(t *testing.T) {
	p := newFakeProvider(t)
	link, corr := newTestLink(t, p)

	require.NoError(t, link.Start(context.Background()))
	defer link.Stop()

	// Kill the socket under the link's feet; the next send has to bring the
	// connection back itself instead of bouncing the request.
	link.connMu.Lock()
	link.conn.Close()
	link.connMu.Unlock()

	reqID := corr.NextRequestID()
	params := subscribeParams(t, "account5")
	corr.Register(reqID, models.KindAccount, "mint5", "account5", params)
	require.NoError(t, link.Send(models.NewRPCRequest(reqID, models.KindAccount.SubscribeMethod(), params)))

	assert.GreaterOrEqual(t, p.dialCount(), 2)

	waitFor(t, "confirmation after redial", func() bool {
		_, confirmed := corr.Stats()
		return confirmed == 1
	})
	waitFor(t, "link connected", func() bool { return link.State() == StateConnected })
}
