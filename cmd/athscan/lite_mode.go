package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/config"

	_ "modernc.org/sqlite"
)

// openDatabase connects to the configured durable store. DATABASE_URL selects
// Postgres (or a SQLite path when DATABASE_DRIVER=sqlite); with no URL at all
// the station falls back to lite mode: a local SQLite file under data/.
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	driver := cfg.DatabaseDriver
	dsn := cfg.DatabaseURL

	if dsn == "" {
		if err := os.MkdirAll("data", 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		driver = "sqlite"
		dsn = filepath.Join("data", "athscan.db")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}
	return db, nil
}
