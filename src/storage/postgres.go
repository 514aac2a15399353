package storage

import (
	"database/sql"
	"fmt"
	"time"

	"token-observer/src/logger"
	"token-observer/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	return &PostgresDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db
	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			mint TEXT PRIMARY KEY,
			name TEXT,
			symbol TEXT,
			decimals INTEGER,
			mint_authority TEXT,
			is_mutable BOOLEAN,
			updated_at BIGINT
		);`,
		`CREATE TABLE IF NOT EXISTS token_metrics (
			id BIGSERIAL PRIMARY KEY,
			mint TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			price_usd DOUBLE PRECISION,
			market_cap DOUBLE PRECISION,
			volume_24h DOUBLE PRECISION,
			token_velocity DOUBLE PRECISION,
			transaction_count_24h INTEGER,
			unique_traders_24h INTEGER,
			avg_transaction_size DOUBLE PRECISION,
			concentration_top_1 DOUBLE PRECISION,
			concentration_top_5 DOUBLE PRECISION,
			concentration_top_15 DOUBLE PRECISION,
			gini_coefficient DOUBLE PRECISION,
			holder_count INTEGER,
			paperhand_ratio DOUBLE PRECISION,
			diamond_hand_ratio DOUBLE PRECISION,
			success_rate DOUBLE PRECISION NOT NULL,
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_token_metrics_mint_ts
			ON token_metrics (mint, timestamp DESC);`,
	}

	for _, q := range queries {
		if _, err := d.DB.Exec(q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) UpsertToken(meta models.MTokenMetadata) error {
	query := `
		INSERT INTO tokens (mint, name, symbol, decimals, mint_authority, is_mutable, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (mint) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			mint_authority = EXCLUDED.mint_authority,
			is_mutable = EXCLUDED.is_mutable,
			updated_at = EXCLUDED.updated_at;
	`
	_, err := d.DB.Exec(query, meta.Mint, meta.Name, meta.Symbol, meta.Decimals,
		meta.MintAuthority, meta.IsMutable, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert token %s: %w", meta.Mint, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveMetrics(resp *models.MAggregationResponse) error {
	row, err := flattenResponse(resp)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO token_metrics (
			mint, timestamp, price_usd, market_cap, volume_24h, token_velocity,
			transaction_count_24h, unique_traders_24h, avg_transaction_size,
			concentration_top_1, concentration_top_5, concentration_top_15,
			gini_coefficient, holder_count, paperhand_ratio, diamond_hand_ratio,
			success_rate, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18);
	`
	_, err = d.DB.Exec(query,
		row.Mint, row.Timestamp, row.PriceUSD, row.MarketCap, row.Volume24h, row.Velocity,
		row.TxCount24h, row.UniqueTraders, row.AvgTxSize,
		row.Top1, row.Top5, row.Top15,
		row.Gini, row.HolderCount, row.PaperhandRatio, row.DiamondHandRatio,
		row.SuccessRate, row.Payload)
	if err != nil {
		return fmt.Errorf("failed to save metrics for %s: %w", resp.Mint, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) LoadLatestMetrics(mint string) (*models.MAggregationResponse, error) {
	query := `SELECT payload FROM token_metrics WHERE mint = $1 ORDER BY timestamp DESC LIMIT 1;`

	var payload string
	err := d.DB.QueryRow(query, mint).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics for %s: %w", mint, err)
	}

	return unflattenResponse(payload)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CleanupOldData() error {
	cutoff := time.Now().AddDate(0, 0, -d.Config.Storage.RetentionDays).Unix()

	res, err := d.DB.Exec(`DELETE FROM token_metrics WHERE timestamp < $1;`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old metrics: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		d.Logger.Info("Cleaned up %d old metric rows", n)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
