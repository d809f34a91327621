package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nzoschke/dreamsaver/internal/config"
	"github.com/nzoschke/dreamsaver/internal/db"
	"github.com/nzoschke/dreamsaver/internal/logger"
)

// open loads config, initializes logging and connects to the configured database.
func open() (*config.Config, *sqlx.DB, error) {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN, cfg.AppName)

	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, database, nil
}
