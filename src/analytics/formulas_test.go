package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-observer/src/models"
)

func TestMarketCap(t *testing.T) {
	assert.Equal(t, 1500.0, MarketCap(1.5, 1000))
	assert.Zero(t, MarketCap(0, 1000))
	assert.Zero(t, MarketCap(1.5, 0))
	assert.Zero(t, MarketCap(-1, 1000))
}

func TestVelocityRatioZeroMarketCap(t *testing.T) {
	assert.Zero(t, VelocityRatio(50000, 0))
	assert.Zero(t, VelocityRatio(50000, -1))
	assert.Equal(t, 0.5, VelocityRatio(500, 1000))
}

func TestCategorizeVelocity(t *testing.T) {
	assert.Equal(t, "very_low", CategorizeVelocity(0))
	assert.Equal(t, "very_low", CategorizeVelocity(0.5))
	assert.Equal(t, "low", CategorizeVelocity(0.75))
	assert.Equal(t, "low", CategorizeVelocity(1.0))
	assert.Equal(t, "moderate", CategorizeVelocity(1.5))
	assert.Equal(t, "high", CategorizeVelocity(3))
	assert.Equal(t, "high", CategorizeVelocity(5.0))
	assert.Equal(t, "extremely_high", CategorizeVelocity(5.1))
}

func holdersWithBalances(balances ...float64) []models.MTokenHolder {
	out := make([]models.MTokenHolder, len(balances))
	for i, b := range balances {
		out[i] = models.MTokenHolder{Address: string(rune('a' + i)), Balance: b, Rank: i + 1}
	}
	return out
}

func TestTopShare(t *testing.T) {
	holders := holdersWithBalances(500, 300, 100, 50, 50)

	top1 := TopShare(holders, 1, 2000)
	require.NotNil(t, top1)
	assert.InDelta(t, 25.0, *top1, 1e-9)

	top5 := TopShare(holders, 5, 2000)
	require.NotNil(t, top5)
	assert.InDelta(t, 50.0, *top5, 1e-9)
}

func TestTopShareInsufficientHolders(t *testing.T) {
	holders := holdersWithBalances(500, 300)

	assert.NotNil(t, TopShare(holders, 1, 1000))
	assert.Nil(t, TopShare(holders, 5, 1000))
	assert.Nil(t, TopShare(holders, 15, 1000))
}

func TestTopShareFallsBackToObservedSum(t *testing.T) {
	holders := holdersWithBalances(600, 400)

	top1 := TopShare(holders, 1, 0)
	require.NotNil(t, top1)
	assert.InDelta(t, 60.0, *top1, 1e-9)
}

func TestGiniEqualBalances(t *testing.T) {
	assert.InDelta(t, 0, GiniCoefficient([]float64{100, 100}), 1e-9)
	assert.InDelta(t, 0, GiniCoefficient([]float64{50, 50, 50, 50, 50}), 1e-9)
}

func TestGiniExtremeInequality(t *testing.T) {
	// One holder owns nearly everything.
	g := GiniCoefficient([]float64{0.0001, 0.0001, 0.0001, 0.0001, 1_000_000})
	assert.Greater(t, g, 0.79)
	assert.LessOrEqual(t, g, 1.0)
}

func TestGiniDegenerate(t *testing.T) {
	assert.Zero(t, GiniCoefficient(nil))
	assert.Zero(t, GiniCoefficient([]float64{42}))
	assert.Zero(t, GiniCoefficient([]float64{0, 0, 0}))
}

func TestMedianBalance(t *testing.T) {
	assert.Equal(t, 300.0, MedianBalance(holdersWithBalances(100, 500, 300)))
	assert.Equal(t, 250.0, MedianBalance(holdersWithBalances(100, 400, 300, 200)))
	assert.Zero(t, MedianBalance(nil))
}

func TestCategorizeConcentration(t *testing.T) {
	pct := func(v float64) *float64 { return &v }

	assert.Equal(t, "unknown", CategorizeConcentration(nil))
	assert.Equal(t, "highly_concentrated", CategorizeConcentration(pct(85)))
	assert.Equal(t, "concentrated", CategorizeConcentration(pct(50)))
	assert.Equal(t, "moderate", CategorizeConcentration(pct(25)))
	assert.Equal(t, "distributed", CategorizeConcentration(pct(10)))
}

func TestClassifyTraderQuickExit(t *testing.T) {
	now := time.Now()
	buy := now.Add(-10 * time.Hour).Unix()
	sell := now.Add(-2 * time.Hour).Unix()

	actions := []models.MTraderAction{
		{Trader: "w1", Type: "sell", BlockTime: sell},
		{Trader: "w1", Type: "buy", BlockTime: buy},
	}
	got := ClassifyTrader(actions, now, 24*time.Hour, 7*24*time.Hour)
	assert.Equal(t, TraderQuickExit, got)
}

func TestClassifyTraderSellOutsideWindow(t *testing.T) {
	now := time.Now()
	actions := []models.MTraderAction{
		{Trader: "w1", Type: "buy", BlockTime: now.Add(-80 * time.Hour).Unix()},
		{Trader: "w1", Type: "sell", BlockTime: now.Add(-2 * time.Hour).Unix()},
	}
	got := ClassifyTrader(actions, now, 24*time.Hour, 7*24*time.Hour)
	assert.Equal(t, TraderNeutral, got)
}

func TestClassifyTraderLongHold(t *testing.T) {
	now := time.Now()
	actions := []models.MTraderAction{
		{Trader: "w2", Type: "buy", BlockTime: now.Add(-10 * 24 * time.Hour).Unix()},
	}
	got := ClassifyTrader(actions, now, 24*time.Hour, 7*24*time.Hour)
	assert.Equal(t, TraderLongHold, got)
}

func TestClassifyTraderRecentNeutral(t *testing.T) {
	now := time.Now()
	actions := []models.MTraderAction{
		{Trader: "w3", Type: "buy", BlockTime: now.Add(-time.Hour).Unix()},
	}
	got := ClassifyTrader(actions, now, 24*time.Hour, 7*24*time.Hour)
	assert.Equal(t, TraderNeutral, got)
}

func TestCategorizeChurn(t *testing.T) {
	pct := func(v float64) *float64 { return &v }

	assert.Equal(t, "insufficient_data", CategorizeChurn(nil))
	assert.Equal(t, "high_churn", CategorizeChurn(pct(75)))
	assert.Equal(t, "moderate_churn", CategorizeChurn(pct(40)))
	assert.Equal(t, "low_churn", CategorizeChurn(pct(10)))
}

func TestExtractTransactionVolume(t *testing.T) {
	tx := models.MTransactionDetail{
		PreBalances:  []int64{5_000_000_000, 1_000_000_000},
		PostBalances: []int64{3_000_000_000, 3_000_000_000},
	}
	assert.InDelta(t, 2.0, ExtractTransactionVolume(tx), 1e-9)
}

func TestExtractTransactionVolumeFailedTx(t *testing.T) {
	tx := models.MTransactionDetail{
		Failed:       true,
		PreBalances:  []int64{5_000_000_000},
		PostBalances: []int64{1_000_000_000},
	}
	assert.Zero(t, ExtractTransactionVolume(tx))
}

func TestExtractTraderActions(t *testing.T) {
	tx := models.MTransactionDetail{
		BlockTime:    1700000000,
		AccountKeys:  []string{"payer", "receiver", "feeonly"},
		PreBalances:  []int64{5_000_000_000, 1_000_000_000, 10_000_000},
		PostBalances: []int64{3_000_000_000, 3_000_000_000, 9_995_000},
	}

	actions := ExtractTraderActions(tx)
	require.Len(t, actions, 2)
	assert.Equal(t, "buy", actions[0].Type)
	assert.Equal(t, "payer", actions[0].Trader)
	assert.Equal(t, "sell", actions[1].Type)
	assert.InDelta(t, 2.0, actions[1].Amount, 1e-9)
}
