package models

import "time"

// -----------------------------------------------------------------------------
// Metric Result Envelope
// -----------------------------------------------------------------------------

// Metric kinds. Exactly four per aggregation, fixed.
const (
	MetricValuation     = "valuation"
	MetricVelocity      = "velocity"
	MetricConcentration = "concentration"
	MetricChurn         = "churn"
)

// Metric statuses.
const (
	StatusOk       = "ok"
	StatusFallback = "fallback"
	StatusTimedOut = "timed_out"
)

// -----------------------------------------------------------------------------

// MMetricResult is one computed metric. Exactly one payload field is set,
// matching Kind; fallback and timed-out results carry a zero-valued payload of
// the same kind so downstream arithmetic never dereferences a missing struct.
type MMetricResult struct {
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	ComputedAt time.Time `json:"computed_at"`
	Error      string    `json:"error,omitempty"`

	Valuation     *MValuationMetrics     `json:"valuation,omitempty"`
	Velocity      *MVelocityMetrics      `json:"velocity,omitempty"`
	Concentration *MConcentrationMetrics `json:"concentration,omitempty"`
	Churn         *MChurnMetrics         `json:"churn,omitempty"`
}

// -----------------------------------------------------------------------------

func (r MMetricResult) IsOk() bool {
	return r.Status == StatusOk
}

// -----------------------------------------------------------------------------
// Metric Payloads
// -----------------------------------------------------------------------------

type MValuationMetrics struct {
	PriceUSD          float64 `json:"current_price_usd"`
	PriceCurrency     string  `json:"price_currency"`
	TotalSupply       float64 `json:"total_supply"`
	CirculatingSupply float64 `json:"circulating_supply"`
	Decimals          int     `json:"decimals"`
	MarketCapUSD      float64 `json:"market_cap_usd"`
}

// -----------------------------------------------------------------------------

type MVelocityMetrics struct {
	Volume24hUSD      float64 `json:"volume_24h_usd"`
	TxCount24h        int     `json:"transaction_count_24h"`
	UniqueTraders24h  int     `json:"unique_traders_24h"`
	VelocityRatio     float64 `json:"velocity_ratio"`
	Category          string  `json:"velocity_category"`
	AvgTransactionUSD float64 `json:"avg_transaction_size_usd"`
	MarketCapUSD      float64 `json:"market_cap_usd"`
	WindowHours       int     `json:"calculation_window_hours"`
}

// -----------------------------------------------------------------------------

// MConcentrationMetrics reports top-holder distribution. A nil bucket means
// fewer than K holders were observed; insufficient data must not read as an
// even distribution.
type MConcentrationMetrics struct {
	TotalHolders  int      `json:"total_holders"`
	Top1          *float64 `json:"top_1"`
	Top5          *float64 `json:"top_5"`
	Top15         *float64 `json:"top_15"`
	Gini          *float64 `json:"gini_coefficient"`
	WhaleCount    int      `json:"whale_count"`
	MedianBalance float64  `json:"median_balance"`
	Category      string   `json:"distribution_category"`
	TotalSupply   float64  `json:"total_supply"`
}

// -----------------------------------------------------------------------------

// MChurnMetrics reports quick-exit vs long-hold trader behavior. RatioPercent
// is nil when the processed sample is below the minimum size.
type MChurnMetrics struct {
	QuickExitTraders     int      `json:"quick_exit_traders"`
	LongHoldTraders      int      `json:"long_hold_traders"`
	TotalTraders         int      `json:"total_analyzed_traders"`
	RatioPercent         *float64 `json:"churn_ratio_percent"`
	LongHoldPercent      *float64 `json:"long_hold_ratio_percent"`
	Category             string   `json:"behavior_category"`
	TransactionsAnalyzed int      `json:"transactions_analyzed"`
	ThresholdHours       int      `json:"analysis_threshold_hours"`
}

// -----------------------------------------------------------------------------
// Aggregation Response
// -----------------------------------------------------------------------------

// MAggregationResponse is the full four-metric bundle for one token.
type MAggregationResponse struct {
	Mint          string          `json:"mint"`
	Token         *MTokenMetadata `json:"token_info,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Valuation     MMetricResult   `json:"valuation"`
	Velocity      MMetricResult   `json:"velocity"`
	Concentration MMetricResult   `json:"concentration"`
	Churn         MMetricResult   `json:"churn"`
	SuccessRate   float64         `json:"success_rate"`
	Stale         bool            `json:"stale"`
	Error         string          `json:"error,omitempty"`
}

// -----------------------------------------------------------------------------

// Results returns the four metric results in their fixed order.
func (a *MAggregationResponse) Results() []MMetricResult {
	return []MMetricResult{a.Valuation, a.Velocity, a.Concentration, a.Churn}
}

// -----------------------------------------------------------------------------

// OkCount returns how many of the four metrics completed successfully.
func (a *MAggregationResponse) OkCount() int {
	n := 0
	for _, r := range a.Results() {
		if r.IsOk() {
			n++
		}
	}
	return n
}
