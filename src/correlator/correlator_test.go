package correlator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-observer/src/logger"
	"token-observer/src/models"
)

func newTestCorrelator() *RequestCorrelator {
	return NewRequestCorrelator(logger.NewLogger("error", "correlator-test"))
}

func TestRequestIDsMonotonic(t *testing.T) {
	c := newTestCorrelator()

	first := c.NextRequestID()
	second := c.NextRequestID()
	third := c.NextRequestID()

	assert.Less(t, first, second)
	assert.Less(t, second, third)
}

func TestConfirmMakesSubscriptionRoutable(t *testing.T) {
	c := newTestCorrelator()

	reqID := c.NextRequestID()
	c.Register(reqID, models.KindAccount, "mintA", "accountA", nil)

	require.True(t, c.Confirm(reqID, 99))

	got := make(chan models.MSubscription, 1)
	c.SetHandler(func(sub models.MSubscription, payload []byte) {
		got <- sub
	})

	c.Dispatch(99, []byte(`{"lamports":1}`))

	select {
	case sub := <-got:
		assert.Equal(t, "mintA", sub.Mint)
		assert.Equal(t, models.KindAccount, sub.Kind)
		assert.Equal(t, models.StateConfirmed, sub.State)
		assert.Equal(t, uint64(99), sub.SubscriptionID)
	default:
		t.Fatal("notification was not dispatched")
	}
}

func TestDispatchUnknownSubscriptionIsDropped(t *testing.T) {
	c := newTestCorrelator()

	called := false
	c.SetHandler(func(sub models.MSubscription, payload []byte) {
		called = true
	})

	c.Dispatch(12345, []byte(`{}`))
	assert.False(t, called)
}

func TestConfirmUnknownRequest(t *testing.T) {
	c := newTestCorrelator()
	assert.False(t, c.Confirm(42, 7))
}

func TestFailDropsFromRouting(t *testing.T) {
	c := newTestCorrelator()

	reqID := c.NextRequestID()
	c.Register(reqID, models.KindLogs, "mintB", "", nil)
	require.True(t, c.Confirm(reqID, 7))

	c.Fail(reqID, &models.MRPCError{Code: -32602, Message: "not found"})

	called := false
	c.SetHandler(func(sub models.MSubscription, payload []byte) {
		called = true
	})
	c.Dispatch(7, []byte(`{}`))
	assert.False(t, called)

	sub, ok := c.Get(reqID)
	require.True(t, ok)
	assert.Equal(t, models.StateFailed, sub.State)
}

func TestRemoveClearsBothIndexes(t *testing.T) {
	c := newTestCorrelator()

	reqID := c.NextRequestID()
	c.Register(reqID, models.KindAccount, "mintC", "accountC", nil)
	require.True(t, c.Confirm(reqID, 55))

	sub, ok := c.Remove(reqID)
	require.True(t, ok)
	assert.Equal(t, uint64(55), sub.SubscriptionID)

	_, ok = c.Get(reqID)
	assert.False(t, ok)

	called := false
	c.SetHandler(func(sub models.MSubscription, payload []byte) {
		called = true
	})
	c.Dispatch(55, []byte(`{}`))
	assert.False(t, called)
}

func TestDemoteConfirmedOrdersByRequestID(t *testing.T) {
	c := newTestCorrelator()

	// Register out of confirmation order to check the replay ordering.
	id1 := c.NextRequestID()
	id2 := c.NextRequestID()
	id3 := c.NextRequestID()
	c.Register(id1, models.KindAccount, "mint", "acc1", nil)
	c.Register(id2, models.KindAccount, "mint", "acc2", nil)
	c.Register(id3, models.KindLogs, "mint", "", nil)

	require.True(t, c.Confirm(id3, 30))
	require.True(t, c.Confirm(id1, 10))
	require.True(t, c.Confirm(id2, 20))

	demoted := c.DemoteConfirmed()
	require.Len(t, demoted, 3)
	assert.Equal(t, id1, demoted[0].RequestID)
	assert.Equal(t, id2, demoted[1].RequestID)
	assert.Equal(t, id3, demoted[2].RequestID)

	for _, sub := range demoted {
		assert.Equal(t, models.StateRequested, sub.State)
		assert.Zero(t, sub.SubscriptionID)
	}

	// Old subscription ids no longer route.
	called := false
	c.SetHandler(func(sub models.MSubscription, payload []byte) {
		called = true
	})
	c.Dispatch(10, []byte(`{}`))
	assert.False(t, called)
}

func TestStats(t *testing.T) {
	c := newTestCorrelator()

	id1 := c.NextRequestID()
	id2 := c.NextRequestID()
	id3 := c.NextRequestID()
	c.Register(id1, models.KindAccount, "mint", "acc1", nil)
	c.Register(id2, models.KindAccount, "mint", "acc2", nil)
	c.Register(id3, models.KindLogs, "mint", "", nil)

	require.True(t, c.Confirm(id1, 1))
	c.Fail(id2, nil)

	pending, confirmed := c.Stats()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, confirmed)
}
