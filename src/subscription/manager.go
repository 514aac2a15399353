package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"token-observer/src/correlator"
	"token-observer/src/interfaces"
	"token-observer/src/logger"
	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// Sender
// -----------------------------------------------------------------------------

// Sender is the write half of the upstream link the manager needs.
type Sender interface {
	Send(req models.MRPCRequest) error
}

// -----------------------------------------------------------------------------
// Manager
// -----------------------------------------------------------------------------

// Manager owns the lifecycle of upstream subscriptions per tracked token.
// It keys every stream by mint, opens account and log streams through the
// correlator, and converts routed notifications into downstream update
// events with cache invalidation.
type Manager struct {
	Link       Sender
	Correlator *correlator.RequestCorrelator
	Fetcher    interfaces.IDataFetcher
	Cache      interfaces.ICacheGateway
	Exchanger  interfaces.IDataExchanger
	Logger     *logger.Logger

	mu sync.Mutex
	// request ids of every stream opened for a mint, confirmed or not
	entities map[string]map[uint64]struct{}
}

// -----------------------------------------------------------------------------

func NewManager(link Sender, corr *correlator.RequestCorrelator, fetcher interfaces.IDataFetcher,
	cache interfaces.ICacheGateway, exchanger interfaces.IDataExchanger, log *logger.Logger) *Manager {

	m := &Manager{
		Link:       link,
		Correlator: corr,
		Fetcher:    fetcher,
		Cache:      cache,
		Exchanger:  exchanger,
		Logger:     log,
		entities:   make(map[string]map[uint64]struct{}),
	}
	corr.SetHandler(m.HandleNotification)
	return m
}

// -----------------------------------------------------------------------------

// SubscribeAccount opens an account-change stream for one holder account of
// a token. The request is registered before the send so a fast confirmation
// always finds its record; a failed send rolls the registration back.
func (m *Manager) SubscribeAccount(mint string, account string) (uint64, error) {
	params, err := json.Marshal([]interface{}{
		account,
		map[string]string{"encoding": "jsonParsed", "commitment": "finalized"},
	})
	if err != nil {
		return 0, err
	}
	return m.subscribe(models.KindAccount, mint, account, params)
}

// -----------------------------------------------------------------------------

// SubscribeLogs opens the transaction-log stream mentioning a token mint.
func (m *Manager) SubscribeLogs(mint string) (uint64, error) {
	params, err := json.Marshal([]interface{}{
		map[string]interface{}{"mentions": []string{mint}},
		map[string]string{"commitment": "finalized"},
	})
	if err != nil {
		return 0, err
	}
	return m.subscribe(models.KindLogs, mint, "", params)
}

// -----------------------------------------------------------------------------

func (m *Manager) subscribe(kind models.MSubscriptionKind, mint string, account string, params json.RawMessage) (uint64, error) {
	reqID := m.Correlator.NextRequestID()
	m.Correlator.Register(reqID, kind, mint, account, params)

	if err := m.Link.Send(models.NewRPCRequest(reqID, kind.SubscribeMethod(), params)); err != nil {
		m.Correlator.Remove(reqID)
		return 0, fmt.Errorf("subscribe %s for %s: %w", kind, mint, err)
	}

	m.mu.Lock()
	if m.entities[mint] == nil {
		m.entities[mint] = make(map[uint64]struct{})
	}
	m.entities[mint][reqID] = struct{}{}
	m.mu.Unlock()

	return reqID, nil
}

// -----------------------------------------------------------------------------

// TrackToken resolves the token's top holders and opens one account stream
// per holder plus the log stream for the mint itself. Individual subscribe
// failures are logged and skipped; the call fails only when the holder
// lookup itself fails or nothing could be opened.
func (m *Manager) TrackToken(ctx context.Context, mint string, maxAccounts int) error {
	holders, err := m.Fetcher.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		return fmt.Errorf("resolve holders for %s: %w", mint, err)
	}
	if len(holders) > maxAccounts {
		holders = holders[:maxAccounts]
	}

	opened := 0
	for _, holder := range holders {
		if _, err := m.SubscribeAccount(mint, holder.Address); err != nil {
			m.Logger.Warning("Account stream for %s holder %s: %v", mint, holder.Address, err)
			continue
		}
		opened++
	}

	if _, err := m.SubscribeLogs(mint); err != nil {
		m.Logger.Warning("Log stream for %s: %v", mint, err)
	} else {
		opened++
	}

	if opened == 0 {
		return fmt.Errorf("no streams opened for %s", mint)
	}

	m.Logger.Info("Tracking %s with %d stream(s)", mint, opened)
	return nil
}

// -----------------------------------------------------------------------------

// UntrackToken closes every stream held for a token. Confirmed streams get a
// proper unsubscribe call; requested or failed ones are only dropped locally
// since the provider never acknowledged them.
func (m *Manager) UntrackToken(mint string) {
	m.mu.Lock()
	reqIDs := m.entities[mint]
	delete(m.entities, mint)
	m.mu.Unlock()

	for reqID := range reqIDs {
		sub, ok := m.Correlator.Remove(reqID)
		if !ok {
			continue
		}
		if sub.State != models.StateConfirmed {
			continue
		}

		params, err := json.Marshal([]uint64{sub.SubscriptionID})
		if err != nil {
			continue
		}
		unsubID := m.Correlator.NextRequestID()
		if err := m.Link.Send(models.NewRPCRequest(unsubID, sub.Kind.UnsubscribeMethod(), params)); err != nil {
			m.Logger.Warning("Unsubscribe %d for %s: %v", sub.SubscriptionID, mint, err)
		}
	}

	m.Logger.Info("Stopped tracking %s", mint)
}

// -----------------------------------------------------------------------------

// TrackedTokens lists every mint with at least one open stream.
func (m *Manager) TrackedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens := make([]string, 0, len(m.entities))
	for mint := range m.entities {
		tokens = append(tokens, mint)
	}
	return tokens
}

// -----------------------------------------------------------------------------

// HandleNotification is the single sink for every routed upstream
// notification. Live activity invalidates the token's cached bundle so the
// next aggregation recomputes, then fans the raw event out to clients.
func (m *Manager) HandleNotification(sub models.MSubscription, payload []byte) {
	eventType := models.EventAccountUpdate
	if sub.Kind == models.KindLogs {
		eventType = models.EventTransactionUpdate
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Cache.Invalidate(ctx, sub.Mint); err != nil {
		m.Logger.Warning("Cache invalidation for %s: %v", sub.Mint, err)
	}

	m.Exchanger.Broadcast(&models.MUpdateEvent{
		Type:      eventType,
		Mint:      sub.Mint,
		Payload:   json.RawMessage(payload),
		Timestamp: time.Now(),
	})
}

// -----------------------------------------------------------------------------

// Stop tears down every tracked token.
func (m *Manager) Stop() {
	m.mu.Lock()
	mints := make([]string, 0, len(m.entities))
	for mint := range m.entities {
		mints = append(mints, mint)
	}
	m.mu.Unlock()

	for _, mint := range mints {
		m.UntrackToken(mint)
	}
}
