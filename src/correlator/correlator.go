package correlator

import (
	"sort"
	"sync"
	"time"

	"token-observer/src/logger"
	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// RequestCorrelator
// -----------------------------------------------------------------------------

// NotificationHandler receives every routed upstream notification together
// with the subscription record it belongs to.
type NotificationHandler func(sub models.MSubscription, payload []byte)

// RequestCorrelator matches provider responses back to the requests that
// caused them, and routes notifications by provider-assigned subscription id.
// All bookkeeping lives behind one mutex; the receive loop is the only
// high-frequency caller.
type RequestCorrelator struct {
	Logger *logger.Logger

	mu      sync.Mutex
	nextID  uint64
	byReqID map[uint64]*models.MSubscription
	bySubID map[uint64]*models.MSubscription
	handler NotificationHandler
}

// -----------------------------------------------------------------------------

func NewRequestCorrelator(log *logger.Logger) *RequestCorrelator {
	return &RequestCorrelator{
		Logger:  log,
		byReqID: make(map[uint64]*models.MSubscription),
		bySubID: make(map[uint64]*models.MSubscription),
	}
}

// -----------------------------------------------------------------------------

// SetHandler installs the single notification sink. Must be called before the
// upstream link starts dispatching.
func (c *RequestCorrelator) SetHandler(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// -----------------------------------------------------------------------------

// NextRequestID reserves a fresh monotonic request id.
func (c *RequestCorrelator) NextRequestID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return c.nextID
}

// -----------------------------------------------------------------------------

// Register records an in-flight subscribe request under its request id.
func (c *RequestCorrelator) Register(reqID uint64, kind models.MSubscriptionKind, mint string, account string, params []byte) models.MSubscription {
	sub := models.MSubscription{
		RequestID: reqID,
		Kind:      kind,
		Params:    params,
		Mint:      mint,
		Account:   account,
		State:     models.StateRequested,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byReqID[reqID] = &sub
	return sub
}

// -----------------------------------------------------------------------------

// Confirm records the provider-assigned subscription id for a pending request
// and makes the record routable by that id.
func (c *RequestCorrelator) Confirm(reqID uint64, subID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.byReqID[reqID]
	if !ok {
		c.Logger.Debug("Confirmation for unknown request id %d", reqID)
		return false
	}
	if sub.State != models.StateRequested {
		c.Logger.Debug("Confirmation for request id %d in state %s", reqID, sub.State)
		return false
	}

	sub.SubscriptionID = subID
	sub.State = models.StateConfirmed
	c.bySubID[subID] = sub
	return true
}

// -----------------------------------------------------------------------------

// Fail marks a pending request as rejected and drops it from routing.
func (c *RequestCorrelator) Fail(reqID uint64, rpcErr *models.MRPCError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.byReqID[reqID]
	if !ok {
		c.Logger.Debug("Error frame for unknown request id %d", reqID)
		return
	}

	if sub.SubscriptionID != 0 {
		delete(c.bySubID, sub.SubscriptionID)
		sub.SubscriptionID = 0
	}
	sub.State = models.StateFailed

	if rpcErr != nil {
		c.Logger.Warning("Subscribe request %d failed: %d %s", reqID, rpcErr.Code, rpcErr.Message)
	} else {
		c.Logger.Warning("Subscribe request %d failed", reqID)
	}
}

// -----------------------------------------------------------------------------

// Dispatch routes a notification payload to the installed handler. Unknown
// subscription ids are dropped; the provider keeps sending for a short window
// after an unsubscribe.
func (c *RequestCorrelator) Dispatch(subID uint64, payload []byte) {
	c.mu.Lock()
	sub, ok := c.bySubID[subID]
	handler := c.handler
	var record models.MSubscription
	if ok {
		record = *sub
	}
	c.mu.Unlock()

	if !ok {
		c.Logger.Debug("Notification for unknown subscription id %d", subID)
		return
	}
	if handler == nil {
		c.Logger.Debug("Notification for subscription id %d with no handler", subID)
		return
	}

	handler(record, payload)
}

// -----------------------------------------------------------------------------

// Get returns a copy of the record registered under a request id.
func (c *RequestCorrelator) Get(reqID uint64) (models.MSubscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.byReqID[reqID]
	if !ok {
		return models.MSubscription{}, false
	}
	return *sub, true
}

// -----------------------------------------------------------------------------

// Remove deletes the record registered under a request id and returns it.
func (c *RequestCorrelator) Remove(reqID uint64) (models.MSubscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.byReqID[reqID]
	if !ok {
		return models.MSubscription{}, false
	}

	delete(c.byReqID, reqID)
	if sub.SubscriptionID != 0 {
		delete(c.bySubID, sub.SubscriptionID)
	}
	return *sub, true
}

// -----------------------------------------------------------------------------

// DemoteConfirmed resets every confirmed subscription back to requested state
// and clears its provider id. Returns the demoted records ordered by request
// id so a reconnect can replay the subscribe calls in original order.
func (c *RequestCorrelator) DemoteConfirmed() []models.MSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	demoted := make([]models.MSubscription, 0, len(c.bySubID))
	for subID, sub := range c.bySubID {
		delete(c.bySubID, subID)
		sub.SubscriptionID = 0
		sub.State = models.StateRequested
		demoted = append(demoted, *sub)
	}

	sort.Slice(demoted, func(i, j int) bool {
		return demoted[i].RequestID < demoted[j].RequestID
	})
	return demoted
}

// -----------------------------------------------------------------------------

// Stats returns the number of pending and confirmed records.
func (c *RequestCorrelator) Stats() (pending int, confirmed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	confirmed = len(c.bySubID)
	pending = len(c.byReqID) - confirmed
	for _, sub := range c.byReqID {
		if sub.State == models.StateFailed {
			pending--
		}
	}
	return pending, confirmed
}
