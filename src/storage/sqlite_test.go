package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-observer/src/logger"
	"token-observer/src/models"
)

func newTestDB(t *testing.T) *AsyncSQLiteDB {
	t.Helper()

	cfg := &models.MConfig{}
	cfg.Storage.DBType = "sqlite"
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.Storage.RetentionDays = 30

	db, err := NewAsyncSQLiteDB(cfg, logger.NewLogger("error", "storage-test"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleResponse(mint string, ts time.Time) *models.MAggregationResponse {
	top1 := 25.0
	gini := 0.42
	ratio := 30.0

	return &models.MAggregationResponse{
		Mint:      mint,
		Timestamp: ts,
		Valuation: models.MMetricResult{
			Kind: models.MetricValuation, Status: models.StatusOk,
			Valuation: &models.MValuationMetrics{PriceUSD: 1.5, MarketCapUSD: 1500000},
		},
		Velocity: models.MMetricResult{
			Kind: models.MetricVelocity, Status: models.StatusOk,
			Velocity: &models.MVelocityMetrics{Volume24hUSD: 300000, VelocityRatio: 0.2, TxCount24h: 40},
		},
		Concentration: models.MMetricResult{
			Kind: models.MetricConcentration, Status: models.StatusOk,
			Concentration: &models.MConcentrationMetrics{TotalHolders: 11, Top1: &top1, Gini: &gini},
		},
		Churn: models.MMetricResult{
			Kind: models.MetricChurn, Status: models.StatusFallback,
			Churn: &models.MChurnMetrics{RatioPercent: &ratio},
		},
		SuccessRate: 0.75,
	}
}

func TestSaveAndLoadLatestMetrics(t *testing.T) {
	db := newTestDB(t)

	older := sampleResponse("mintA", time.Now().Add(-time.Hour))
	older.SuccessRate = 0.5
	newer := sampleResponse("mintA", time.Now())

	require.NoError(t, db.SaveMetrics(older))
	require.NoError(t, db.SaveMetrics(newer))

	got, err := db.LoadLatestMetrics("mintA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "mintA", got.Mint)
	assert.Equal(t, 0.75, got.SuccessRate)
	require.NotNil(t, got.Concentration.Concentration)
	require.NotNil(t, got.Concentration.Concentration.Top1)
	assert.Equal(t, 25.0, *got.Concentration.Concentration.Top1)
	assert.Nil(t, got.Concentration.Concentration.Top5)
}

func TestLoadLatestMetricsMissing(t *testing.T) {
	db := newTestDB(t)

	got, err := db.LoadLatestMetrics("never-seen")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertTokenTwice(t *testing.T) {
	db := newTestDB(t)

	meta := models.MTokenMetadata{Mint: "mintB", Name: "First", Symbol: "FST", Decimals: 9}
	require.NoError(t, db.UpsertToken(meta))

	meta.Name = "Renamed"
	require.NoError(t, db.UpsertToken(meta))

	var name string
	require.NoError(t, db.DB.QueryRow(`SELECT name FROM tokens WHERE mint = ?`, "mintB").Scan(&name))
	assert.Equal(t, "Renamed", name)

	var count int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM tokens`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCleanupOldData(t *testing.T) {
	db := newTestDB(t)

	old := sampleResponse("mintC", time.Now().AddDate(0, 0, -60))
	fresh := sampleResponse("mintC", time.Now())
	require.NoError(t, db.SaveMetrics(old))
	require.NoError(t, db.SaveMetrics(fresh))

	require.NoError(t, db.CleanupOldData())

	var count int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM token_metrics`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestFallbackMetricsStayNull(t *testing.T) {
	db := newTestDB(t)

	resp := sampleResponse("mintD", time.Now())
	require.NoError(t, db.SaveMetrics(resp))

	// Churn fell back, so its flat columns must be NULL even though the
	// payload carries the fallback values.
	var paperhand *float64
	require.NoError(t, db.DB.QueryRow(
		`SELECT paperhand_ratio FROM token_metrics WHERE mint = ?`, "mintD").Scan(&paperhand))
	assert.Nil(t, paperhand)
}
