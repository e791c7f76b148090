package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"example/resume-api/app/config"
	"example/resume-api/app/store"

	_ "github.com/lib/pq"
)

// OpenDB connects to Postgres, checks the connection and applies the schema.
func OpenDB(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	d, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	d.SetMaxOpenConns(20)
	d.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.PingContext(pingCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	if err := store.Migrate(ctx, d); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("Connected to Postgres host=%s db=%s", cfg.URL, cfg.Name)
	return d, nil
}
