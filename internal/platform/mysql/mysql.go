// Package mysql opens the optional MySQL store that mirrors fetched
// observations.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
)

const schema = `CREATE TABLE IF NOT EXISTS oasis_observations (
	id             BIGINT AUTO_INCREMENT PRIMARY KEY,
	dataset        VARCHAR(32)  NOT NULL,
	area           VARCHAR(64)  NOT NULL DEFAULT '',
	item           VARCHAR(64)  NOT NULL DEFAULT '',
	label          VARCHAR(128) NOT NULL DEFAULT '',
	market_run     VARCHAR(16)  NOT NULL DEFAULT '',
	detail         VARCHAR(32)  NOT NULL DEFAULT '',
	interval_start DATETIME     NOT NULL,
	interval_end   DATETIME     NULL,
	opr_date       DATE         NOT NULL,
	opr_hour       INT          NOT NULL DEFAULT 0,
	opr_interval   INT          NOT NULL DEFAULT 0,
	mw             DOUBLE       NOT NULL,
	created_at     TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uq_observation (dataset, area, item, label, market_run, detail, interval_start),
	KEY idx_lookup (dataset, area, opr_date)
)`

// Config parses dsn and forces the settings the sink relies on: DATETIME
// columns scan into time.Time and are interpreted as UTC.
func Config(dsn string) (*driver.Config, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg, nil
}

// Open connects to MySQL and creates the observation table.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := Config(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := driver.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate mysql: %w", err)
	}
	return nil
}
