package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// Row Flattening
// -----------------------------------------------------------------------------

// metricsRow is the flat projection of an aggregation bundle written to both
// backends. Nullable columns stay NULL when a metric fell back or when the
// data was insufficient; a zero would read as a real measurement. The full
// bundle is kept verbatim in Payload so reads reconstruct it losslessly.
type metricsRow struct {
	Mint             string
	Timestamp        int64
	PriceUSD         sql.NullFloat64
	MarketCap        sql.NullFloat64
	Volume24h        sql.NullFloat64
	Velocity         sql.NullFloat64
	TxCount24h       sql.NullInt64
	UniqueTraders    sql.NullInt64
	AvgTxSize        sql.NullFloat64
	Top1             sql.NullFloat64
	Top5             sql.NullFloat64
	Top15            sql.NullFloat64
	Gini             sql.NullFloat64
	HolderCount      sql.NullInt64
	PaperhandRatio   sql.NullFloat64
	DiamondHandRatio sql.NullFloat64
	SuccessRate      float64
	Payload          string
}

// -----------------------------------------------------------------------------

func nullFloat(v float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: valid}
}

func nullFloatPtr(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(v int, valid bool) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: valid}
}

// -----------------------------------------------------------------------------

func flattenResponse(resp *models.MAggregationResponse) (*metricsRow, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle for %s: %w", resp.Mint, err)
	}

	row := &metricsRow{
		Mint:        resp.Mint,
		Timestamp:   resp.Timestamp.Unix(),
		SuccessRate: resp.SuccessRate,
		Payload:     string(raw),
	}

	if v := resp.Valuation.Valuation; v != nil && resp.Valuation.IsOk() {
		row.PriceUSD = nullFloat(v.PriceUSD, true)
		row.MarketCap = nullFloat(v.MarketCapUSD, true)
	}

	if v := resp.Velocity.Velocity; v != nil && resp.Velocity.IsOk() {
		row.Volume24h = nullFloat(v.Volume24hUSD, true)
		row.Velocity = nullFloat(v.VelocityRatio, true)
		row.TxCount24h = nullInt(v.TxCount24h, true)
		row.UniqueTraders = nullInt(v.UniqueTraders24h, true)
		row.AvgTxSize = nullFloat(v.AvgTransactionUSD, true)
	}

	if c := resp.Concentration.Concentration; c != nil && resp.Concentration.IsOk() {
		row.Top1 = nullFloatPtr(c.Top1)
		row.Top5 = nullFloatPtr(c.Top5)
		row.Top15 = nullFloatPtr(c.Top15)
		row.Gini = nullFloatPtr(c.Gini)
		row.HolderCount = nullInt(c.TotalHolders, true)
	}

	if h := resp.Churn.Churn; h != nil && resp.Churn.IsOk() {
		row.PaperhandRatio = nullFloatPtr(h.RatioPercent)
		row.DiamondHandRatio = nullFloatPtr(h.LongHoldPercent)
	}

	return row, nil
}

// -----------------------------------------------------------------------------

func unflattenResponse(payload string) (*models.MAggregationResponse, error) {
	var resp models.MAggregationResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode stored bundle: %w", err)
	}
	return &resp, nil
}
