package storage

import (
	"fmt"

	"token-observer/src/interfaces"
	"token-observer/src/logger"
	"token-observer/src/models"
)

// -----------------------------------------------------------------------------

// NewDatabase selects the storage backend from configuration.
func NewDatabase(cfg *models.MConfig, log *logger.Logger) (interfaces.IDatabase, error) {
	switch cfg.Storage.DBType {
	case "postgres":
		return NewPostgresDB(cfg, log)
	case "sqlite":
		return NewAsyncSQLiteDB(cfg, log)
	default:
		return nil, fmt.Errorf("unknown db_type: %s", cfg.Storage.DBType)
	}
}
