package analytics

import (
	"context"
	"fmt"
	"time"

	"token-observer/src/datafetch"
	"token-observer/src/interfaces"
	"token-observer/src/logger"
	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Engine computes the four-metric bundle for a token. The four metric tasks
// run concurrently, each under its own deadline; a slow or failed task
// degrades to a fallback result instead of failing the bundle. Compute never
// returns an error: when too many tasks fail it serves the last cached bundle
// marked stale, or a minimal response as the last resort.
type Engine struct {
	Config    *models.MConfig
	Fetcher   interfaces.IDataFetcher
	Cache     interfaces.ICacheGateway
	DB        interfaces.IDatabase
	Publisher interfaces.IEventPublisher
	Exchanger interfaces.IDataExchanger // optional, nil disables fan-out
	Logger    *logger.Logger
}

// -----------------------------------------------------------------------------

func NewEngine(cfg *models.MConfig, fetcher interfaces.IDataFetcher, cache interfaces.ICacheGateway,
	db interfaces.IDatabase, publisher interfaces.IEventPublisher, log *logger.Logger) *Engine {

	return &Engine{
		Config:    cfg,
		Fetcher:   fetcher,
		Cache:     cache,
		DB:        db,
		Publisher: publisher,
		Logger:    log,
	}
}

// -----------------------------------------------------------------------------

// SetExchanger wires the downstream fan-out. Optional so the engine can run
// headless in tracking jobs and tests.
func (e *Engine) SetExchanger(ex interfaces.IDataExchanger) {
	e.Exchanger = ex
}

// -----------------------------------------------------------------------------

func (e *Engine) freshness() time.Duration {
	return time.Duration(e.Config.Analytics.FreshnessSeconds) * time.Second
}

func (e *Engine) cacheTTL() time.Duration {
	return time.Duration(e.Config.Cache.TTLSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// Compute returns the full bundle for a mint, serving from cache when fresh.
func (e *Engine) Compute(ctx context.Context, mint string) *models.MAggregationResponse {
	if !datafetch.ValidMintAddress(mint) {
		return e.minimalResponse(mint, fmt.Sprintf("invalid mint address: %q", mint))
	}

	if cached, age, ok := e.Cache.Get(ctx, mint); ok && age < e.freshness() {
		e.Logger.Debug("Serving %s from cache (age %s)", mint, age)
		return cached
	}

	// Metadata is shared by the valuation and velocity tasks; one snapshot
	// keeps price and supply consistent across both.
	metaCtx, cancel := context.WithTimeout(ctx, e.taskTimeout(e.Config.Analytics.ValuationTimeoutSecs))
	meta, metaErr := e.Fetcher.GetTokenMetadata(metaCtx, mint)
	cancel()
	if metaErr != nil {
		e.Logger.Warning("Metadata for %s: %v", mint, metaErr)
	}

	resp := &models.MAggregationResponse{
		Mint:      mint,
		Timestamp: time.Now(),
	}
	if metaErr == nil {
		resp.Token = &meta
	}

	valuationCh := e.runTask(ctx, e.Config.Analytics.ValuationTimeoutSecs, func(taskCtx context.Context) models.MMetricResult {
		return e.computeValuation(meta, metaErr)
	})
	velocityCh := e.runTask(ctx, e.Config.Analytics.VelocityTimeoutSecs, func(taskCtx context.Context) models.MMetricResult {
		return e.computeVelocity(taskCtx, mint, meta, metaErr)
	})
	concentrationCh := e.runTask(ctx, e.Config.Analytics.ConcentrationTimeoutSec, func(taskCtx context.Context) models.MMetricResult {
		return e.computeConcentration(taskCtx, mint, meta)
	})
	churnCh := e.runTask(ctx, e.Config.Analytics.ChurnTimeoutSecs, func(taskCtx context.Context) models.MMetricResult {
		return e.computeChurn(taskCtx, mint)
	})

	resp.Valuation = e.collect(valuationCh, e.Config.Analytics.ValuationTimeoutSecs, models.MetricValuation)
	resp.Velocity = e.collect(velocityCh, e.Config.Analytics.VelocityTimeoutSecs, models.MetricVelocity)
	resp.Concentration = e.collect(concentrationCh, e.Config.Analytics.ConcentrationTimeoutSec, models.MetricConcentration)
	resp.Churn = e.collect(churnCh, e.Config.Analytics.ChurnTimeoutSecs, models.MetricChurn)

	resp.SuccessRate = float64(resp.OkCount()) / 4

	if resp.SuccessRate >= 0.5 {
		e.persist(ctx, resp, metaErr == nil, meta)
		return resp
	}

	e.Logger.Warning("Bundle for %s degraded (success rate %.2f)", mint, resp.SuccessRate)
	if cached, age, ok := e.Cache.Get(ctx, mint); ok {
		e.Logger.Info("Serving stale cache for %s (age %s)", mint, age)
		// The cache may hand back its stored pointer; staleness is marked on
		// a copy so the entry and earlier callers keep a clean bundle.
		stale := *cached
		stale.Stale = true
		return &stale
	}

	resp.Error = "insufficient data: most metric tasks failed"
	return resp
}

// -----------------------------------------------------------------------------

func (e *Engine) taskTimeout(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// -----------------------------------------------------------------------------

// runTask starts one metric task. The channel is buffered so a result
// arriving after the deadline is discarded, never merged into a bundle that
// already shipped without it.
func (e *Engine) runTask(ctx context.Context, timeoutSecs int, task func(context.Context) models.MMetricResult) <-chan models.MMetricResult {
	out := make(chan models.MMetricResult, 1)
	taskCtx, cancel := context.WithTimeout(ctx, e.taskTimeout(timeoutSecs))

	go func() {
		defer cancel()
		out <- task(taskCtx)
	}()
	return out
}

// -----------------------------------------------------------------------------

func (e *Engine) collect(ch <-chan models.MMetricResult, timeoutSecs int, kind string) models.MMetricResult {
	select {
	case result := <-ch:
		return result
	case <-time.After(e.taskTimeout(timeoutSecs)):
		e.Logger.Warning("Metric %s timed out after %ds", kind, timeoutSecs)
		return timedOutResult(kind)
	}
}

// -----------------------------------------------------------------------------

// persist runs the gated side effects: storage, cache, event bus and
// downstream fan-out. All best-effort.
func (e *Engine) persist(ctx context.Context, resp *models.MAggregationResponse, haveMeta bool, meta models.MTokenMetadata) {
	if haveMeta {
		if err := e.DB.UpsertToken(meta); err != nil {
			e.Logger.Warning("Token upsert for %s: %v", resp.Mint, err)
		}
	}
	if err := e.DB.SaveMetrics(resp); err != nil {
		e.Logger.Warning("Metrics save for %s: %v", resp.Mint, err)
	}
	if err := e.Cache.Set(ctx, resp.Mint, resp, e.cacheTTL()); err != nil {
		e.Logger.Warning("Cache write for %s: %v", resp.Mint, err)
	}
	if err := e.Publisher.PublishMetrics(ctx, resp); err != nil {
		e.Logger.Warning("Event publish for %s: %v", resp.Mint, err)
	}

	if e.Exchanger != nil {
		e.Exchanger.UpdateSnapshot(resp.Mint, resp)
		e.Exchanger.Broadcast(&models.MUpdateEvent{
			Type:      models.EventMetricsUpdate,
			Mint:      resp.Mint,
			Payload:   resp,
			Timestamp: time.Now(),
		})
	}
}

// -----------------------------------------------------------------------------
// Metric Tasks
// -----------------------------------------------------------------------------

func (e *Engine) computeValuation(meta models.MTokenMetadata, metaErr error) models.MMetricResult {
	if metaErr != nil {
		return fallbackResult(models.MetricValuation, metaErr)
	}

	supply := meta.UISupply()
	payload := &models.MValuationMetrics{
		PriceUSD:          meta.PricePerToken,
		PriceCurrency:     meta.PriceCurrency,
		TotalSupply:       supply,
		CirculatingSupply: supply,
		Decimals:          meta.Decimals,
		MarketCapUSD:      MarketCap(meta.PricePerToken, supply),
	}

	return models.MMetricResult{
		Kind:       models.MetricValuation,
		Status:     models.StatusOk,
		ComputedAt: time.Now(),
		Valuation:  payload,
	}
}

// -----------------------------------------------------------------------------

func (e *Engine) computeVelocity(ctx context.Context, mint string, meta models.MTokenMetadata, metaErr error) models.MMetricResult {
	if metaErr != nil {
		return fallbackResult(models.MetricVelocity, metaErr)
	}

	txs, err := e.recentTransactions(ctx, mint)
	if err != nil {
		return fallbackResult(models.MetricVelocity, err)
	}

	marketCap := MarketCap(meta.PricePerToken, meta.UISupply())

	var volumeUSD float64
	traders := make(map[string]struct{})
	txCount := 0
	for _, tx := range txs {
		sol := ExtractTransactionVolume(tx)
		if sol <= 0 {
			continue
		}
		txCount++
		// Rough attribution: a tenth of the gross movement relates to the
		// tracked token.
		volumeUSD += sol * 0.1 * meta.PricePerToken
		for _, a := range ExtractTraderActions(tx) {
			traders[a.Trader] = struct{}{}
		}
	}

	ratio := VelocityRatio(volumeUSD, marketCap)
	payload := &models.MVelocityMetrics{
		Volume24hUSD:     volumeUSD,
		TxCount24h:       txCount,
		UniqueTraders24h: len(traders),
		VelocityRatio:    ratio,
		Category:         CategorizeVelocity(ratio),
		MarketCapUSD:     marketCap,
		WindowHours:      24,
	}
	if txCount > 0 {
		payload.AvgTransactionUSD = volumeUSD / float64(txCount)
	}

	return models.MMetricResult{
		Kind:       models.MetricVelocity,
		Status:     models.StatusOk,
		ComputedAt: time.Now(),
		Velocity:   payload,
	}
}

// -----------------------------------------------------------------------------

func (e *Engine) computeConcentration(ctx context.Context, mint string, meta models.MTokenMetadata) models.MMetricResult {
	holders, err := e.Fetcher.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		return fallbackResult(models.MetricConcentration, err)
	}

	supply := meta.UISupply()
	if supply <= 0 {
		// The asset lookup can come back without supply; the dedicated
		// supply call usually still has it.
		if ts, err := e.Fetcher.GetTokenSupply(ctx, mint); err == nil {
			supply = ts.UIAmount
		}
	}
	top1 := TopShare(holders, 1, supply)
	top5 := TopShare(holders, 5, supply)
	top15 := TopShare(holders, 15, supply)

	// Gini over fewer than 5 observed holders is noise, not signal.
	var gini *float64
	if len(holders) >= 5 {
		balances := make([]float64, len(holders))
		for i, h := range holders {
			balances[i] = h.Balance
		}
		g := GiniCoefficient(balances)
		gini = &g
	}

	whales := 0
	if supply > 0 {
		for _, h := range holders {
			if h.Balance/supply*100 >= 1 {
				whales++
			}
		}
	}

	payload := &models.MConcentrationMetrics{
		TotalHolders:  len(holders),
		Top1:          top1,
		Top5:          top5,
		Top15:         top15,
		Gini:          gini,
		WhaleCount:    whales,
		MedianBalance: MedianBalance(holders),
		Category:      CategorizeConcentration(top5),
		TotalSupply:   supply,
	}

	return models.MMetricResult{
		Kind:          models.MetricConcentration,
		Status:        models.StatusOk,
		ComputedAt:    time.Now(),
		Concentration: payload,
	}
}

// -----------------------------------------------------------------------------

func (e *Engine) computeChurn(ctx context.Context, mint string) models.MMetricResult {
	txs, err := e.recentTransactions(ctx, mint)
	if err != nil {
		return fallbackResult(models.MetricChurn, err)
	}

	churnWindow := time.Duration(e.Config.Analytics.ChurnWindowHours) * time.Hour
	longHold := time.Duration(e.Config.Analytics.LongHoldDays) * 24 * time.Hour
	now := time.Now()

	byTrader := make(map[string][]models.MTraderAction)
	processed := 0
	for _, tx := range txs {
		actions := ExtractTraderActions(tx)
		if len(actions) == 0 {
			continue
		}
		processed++
		for _, a := range actions {
			byTrader[a.Trader] = append(byTrader[a.Trader], a)
		}
	}

	quickExit, longHolders := 0, 0
	for _, actions := range byTrader {
		switch ClassifyTrader(actions, now, churnWindow, longHold) {
		case TraderQuickExit:
			quickExit++
		case TraderLongHold:
			longHolders++
		}
	}

	payload := &models.MChurnMetrics{
		QuickExitTraders:     quickExit,
		LongHoldTraders:      longHolders,
		TotalTraders:         len(byTrader),
		TransactionsAnalyzed: processed,
		ThresholdHours:       e.Config.Analytics.ChurnWindowHours,
	}

	// Ratios stay nil under the minimum sample; a percentage over a handful
	// of transactions would look authoritative and mean nothing.
	if processed >= e.Config.Analytics.MinSampleSize && len(byTrader) > 0 {
		ratio := float64(quickExit) / float64(len(byTrader)) * 100
		hold := float64(longHolders) / float64(len(byTrader)) * 100
		payload.RatioPercent = &ratio
		payload.LongHoldPercent = &hold
	}
	payload.Category = CategorizeChurn(payload.RatioPercent)

	return models.MMetricResult{
		Kind:       models.MetricChurn,
		Status:     models.StatusOk,
		ComputedAt: time.Now(),
		Churn:      payload,
	}
}

// -----------------------------------------------------------------------------

// recentTransactions fetches the details of the mint's signatures within the
// last 24 hours. Individual fetch failures are skipped.
func (e *Engine) recentTransactions(ctx context.Context, mint string) ([]models.MTransactionDetail, error) {
	sigs, err := e.Fetcher.GetSignaturesForAddress(ctx, mint, e.Config.Analytics.SignatureLimit)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-24 * time.Hour).Unix()
	txs := make([]models.MTransactionDetail, 0, len(sigs))
	for _, sig := range sigs {
		if sig.Failed || (sig.BlockTime > 0 && sig.BlockTime < cutoff) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		tx, err := e.Fetcher.GetTransaction(ctx, sig.Signature)
		if err != nil {
			e.Logger.Debug("Transaction %s: %v", sig.Signature, err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// -----------------------------------------------------------------------------
// Result Helpers
// -----------------------------------------------------------------------------

func fallbackResult(kind string, err error) models.MMetricResult {
	result := models.MMetricResult{
		Kind:       kind,
		Status:     models.StatusFallback,
		ComputedAt: time.Now(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	attachZeroPayload(&result, kind)
	return result
}

func timedOutResult(kind string) models.MMetricResult {
	result := models.MMetricResult{
		Kind:       kind,
		Status:     models.StatusTimedOut,
		ComputedAt: time.Now(),
		Error:      "deadline exceeded",
	}
	attachZeroPayload(&result, kind)
	return result
}

// attachZeroPayload gives degraded results a zero-valued payload of the right
// kind so consumers never dereference a missing struct.
func attachZeroPayload(r *models.MMetricResult, kind string) {
	switch kind {
	case models.MetricValuation:
		r.Valuation = &models.MValuationMetrics{}
	case models.MetricVelocity:
		r.Velocity = &models.MVelocityMetrics{Category: "unknown"}
	case models.MetricConcentration:
		r.Concentration = &models.MConcentrationMetrics{Category: "unknown"}
	case models.MetricChurn:
		r.Churn = &models.MChurnMetrics{Category: "insufficient_data"}
	}
}

// -----------------------------------------------------------------------------

func (e *Engine) minimalResponse(mint string, errMsg string) *models.MAggregationResponse {
	return &models.MAggregationResponse{
		Mint:          mint,
		Timestamp:     time.Now(),
		Valuation:     fallbackResult(models.MetricValuation, nil),
		Velocity:      fallbackResult(models.MetricVelocity, nil),
		Concentration: fallbackResult(models.MetricConcentration, nil),
		Churn:         fallbackResult(models.MetricChurn, nil),
		SuccessRate:   0,
		Error:         errMsg,
	}
}
