package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Open returns a Store for the configured driver: "sqlite3" (cgo), "sqlite"
// (pure Go) or "postgres".
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (Store, error) {
	switch driver {
	case "postgres", "pgx":
		return OpenPostgres(ctx, dsn, logger)
	case "sqlite3", "sqlite", "":
		return OpenSQLite(driver, dsn, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
