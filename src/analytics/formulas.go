package analytics

import (
	"math"
	"sort"
	"time"

	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// Valuation
// -----------------------------------------------------------------------------

// MarketCap is price times circulating supply.
func MarketCap(priceUSD float64, supply float64) float64 {
	if priceUSD <= 0 || supply <= 0 {
		return 0
	}
	return priceUSD * supply
}

// -----------------------------------------------------------------------------
// Velocity
// -----------------------------------------------------------------------------

// VelocityRatio is 24h volume divided by market cap. Zero market cap yields
// zero instead of infinity.
func VelocityRatio(volume24hUSD float64, marketCapUSD float64) float64 {
	if marketCapUSD <= 0 {
		return 0
	}
	return volume24hUSD / marketCapUSD
}

// -----------------------------------------------------------------------------

func CategorizeVelocity(ratio float64) string {
	switch {
	case ratio <= 0.5:
		return "very_low"
	case ratio <= 1.0:
		return "low"
	case ratio <= 2.0:
		return "moderate"
	case ratio <= 5.0:
		return "high"
	}
	return "extremely_high"
}

// -----------------------------------------------------------------------------
// Concentration
// -----------------------------------------------------------------------------

// TopShare returns the percentage of total supply held by the k largest
// holders, or nil when fewer than k holders are known. Insufficient data must
// not read as an even distribution.
func TopShare(holders []models.MTokenHolder, k int, totalSupply float64) *float64 {
	if len(holders) < k || k <= 0 {
		return nil
	}

	base := totalSupply
	if base <= 0 {
		for _, h := range holders {
			base += h.Balance
		}
	}
	if base <= 0 {
		return nil
	}

	sorted := sortedBalancesDesc(holders)
	sum := 0.0
	for i := 0; i < k; i++ {
		sum += sorted[i]
	}

	share := sum / base * 100
	return &share
}

// -----------------------------------------------------------------------------

// GiniCoefficient measures balance inequality over the observed holders.
// Ascending 1-based formulation: G = (2*sum(i*b_i)) / (n*sum(b)) - (n+1)/n.
func GiniCoefficient(balances []float64) float64 {
	n := len(balances)
	if n < 2 {
		return 0
	}

	asc := append([]float64(nil), balances...)
	sort.Float64s(asc)

	var total, weighted float64
	for i, b := range asc {
		total += b
		weighted += float64(i+1) * b
	}
	if total <= 0 {
		return 0
	}

	return (2*weighted)/(float64(n)*total) - float64(n+1)/float64(n)
}

// -----------------------------------------------------------------------------

func MedianBalance(holders []models.MTokenHolder) float64 {
	n := len(holders)
	if n == 0 {
		return 0
	}

	asc := make([]float64, n)
	for i, h := range holders {
		asc[i] = h.Balance
	}
	sort.Float64s(asc)

	if n%2 == 1 {
		return asc[n/2]
	}
	return (asc[n/2-1] + asc[n/2]) / 2
}

// -----------------------------------------------------------------------------

// CategorizeConcentration buckets the distribution by the top-5 share.
func CategorizeConcentration(top5 *float64) string {
	if top5 == nil {
		return "unknown"
	}
	switch {
	case *top5 >= 70:
		return "highly_concentrated"
	case *top5 >= 40:
		return "concentrated"
	case *top5 >= 20:
		return "moderate"
	}
	return "distributed"
}

// -----------------------------------------------------------------------------

func sortedBalancesDesc(holders []models.MTokenHolder) []float64 {
	out := make([]float64, len(holders))
	for i, h := range holders {
		out[i] = h.Balance
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

// -----------------------------------------------------------------------------
// Churn
// -----------------------------------------------------------------------------

// Trader classifications.
const (
	TraderQuickExit = "quick_exit"
	TraderLongHold  = "long_hold"
	TraderNeutral   = "neutral"
)

// ClassifyTrader labels one wallet from its observed actions. A sell within
// churnWindow of a prior buy is a quick exit; a wallet whose first observed
// action is older than longHold with no quick exit is a long holder.
func ClassifyTrader(actions []models.MTraderAction, now time.Time, churnWindow time.Duration, longHold time.Duration) string {
	if len(actions) == 0 {
		return TraderNeutral
	}

	sorted := append([]models.MTraderAction(nil), actions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BlockTime < sorted[j].BlockTime })

	lastBuy := int64(-1)
	for _, a := range sorted {
		switch a.Type {
		case "buy":
			lastBuy = a.BlockTime
		case "sell":
			if lastBuy >= 0 && a.BlockTime-lastBuy <= int64(churnWindow.Seconds()) {
				return TraderQuickExit
			}
		}
	}

	first := time.Unix(sorted[0].BlockTime, 0)
	if now.Sub(first) >= longHold {
		return TraderLongHold
	}
	return TraderNeutral
}

// -----------------------------------------------------------------------------

// CategorizeChurn buckets trader behavior from the quick-exit percentage.
func CategorizeChurn(ratioPercent *float64) string {
	if ratioPercent == nil {
		return "insufficient_data"
	}
	switch {
	case *ratioPercent >= 60:
		return "high_churn"
	case *ratioPercent >= 30:
		return "moderate_churn"
	}
	return "low_churn"
}

// -----------------------------------------------------------------------------
// Transaction Extraction
// -----------------------------------------------------------------------------

// Balance deltas below this many lamports are fee noise, not transfers.
const minTransferLamports = 1_000_000

// ExtractTransactionVolume estimates the value moved by one transaction from
// its gross native balance changes, in SOL.
func ExtractTransactionVolume(tx models.MTransactionDetail) float64 {
	if tx.Failed {
		return 0
	}

	var moved float64
	for i := range tx.PreBalances {
		if i >= len(tx.PostBalances) {
			break
		}
		delta := tx.PostBalances[i] - tx.PreBalances[i]
		if delta > 0 {
			moved += float64(delta)
		}
	}
	return moved / 1e9
}

// -----------------------------------------------------------------------------

// ExtractTraderActions derives buy/sell actions from the balance movements of
// one transaction. The fee payer's small negative delta is filtered by the
// transfer threshold.
func ExtractTraderActions(tx models.MTransactionDetail) []models.MTraderAction {
	if tx.Failed {
		return nil
	}

	var actions []models.MTraderAction
	for i, key := range tx.AccountKeys {
		if key == "" || i >= len(tx.PreBalances) || i >= len(tx.PostBalances) {
			continue
		}

		delta := tx.PostBalances[i] - tx.PreBalances[i]
		if math.Abs(float64(delta)) < minTransferLamports {
			continue
		}

		action := models.MTraderAction{
			Trader:    key,
			Amount:    math.Abs(float64(delta)) / 1e9,
			BlockTime: tx.BlockTime,
		}
		// Paying SOL out means acquiring the token; receiving SOL means
		// selling it.
		if delta < 0 {
			action.Type = "buy"
		} else {
			action.Type = "sell"
		}
		actions = append(actions, action)
	}
	return actions
}
