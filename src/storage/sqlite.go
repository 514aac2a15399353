package storage

import (
	"database/sql"
	"fmt"
	"time"

	"token-observer/src/logger"
	"token-observer/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			mint TEXT PRIMARY KEY,
			name TEXT,
			symbol TEXT,
			decimals INTEGER,
			mint_authority TEXT,
			is_mutable INTEGER,
			updated_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS token_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mint TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			price_usd REAL,
			market_cap REAL,
			volume_24h REAL,
			token_velocity REAL,
			transaction_count_24h INTEGER,
			unique_traders_24h INTEGER,
			avg_transaction_size REAL,
			concentration_top_1 REAL,
			concentration_top_5 REAL,
			concentration_top_15 REAL,
			gini_coefficient REAL,
			holder_count INTEGER,
			paperhand_ratio REAL,
			diamond_hand_ratio REAL,
			success_rate REAL NOT NULL,
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

func (d *AsyncSQLiteDB) UpsertToken(meta models.MTokenMetadata) error {
	query := `
		INSERT INTO tokens (mint, name, symbol, decimals, mint_authority, is_mutable, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mint) DO UPDATE SET
			name = excluded.name,
			symbol = excluded.symbol,
			decimals = excluded.decimals,
			mint_authority = excluded.mint_authority,
			is_mutable = excluded.is_mutable,
			updated_at = excluded.updated_at;
	`
	_, err := d.DB.Exec(query, meta.Mint, meta.Name, meta.Symbol, meta.Decimals,
		meta.MintAuthority, meta.IsMutable, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert token %s: %w", meta.Mint, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveMetrics(resp *models.MAggregationResponse) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
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

func (d *AsyncSQLiteDB) LoadLatestMetrics(mint string) (*models.MAggregationResponse, error) {
	query := `SELECT payload FROM token_metrics WHERE mint = ? ORDER BY timestamp DESC LIMIT 1;`

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

func (d *AsyncSQLiteDB) CleanupOldData() error {
	cutoff := time.Now().AddDate(0, 0, -d.Config.Storage.RetentionDays).Unix()

	res, err := d.DB.Exec(`DELETE FROM token_metrics WHERE timestamp < ?;`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old metrics: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		d.Logger.Info("Cleaned up %d old metric rows", n)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
