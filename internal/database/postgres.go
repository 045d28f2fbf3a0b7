package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

const (
	connectTimeout    = 10 * time.Second
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 30 * time.Second
	applicationName   = "authcore"
)

// Connect opens a pool against url and pings it before returning. Pool sizing
// comes from the URL (pool_max_conns and friends).
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(url)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("host", cfg.ConnConfig.Host).Wrap(err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("host", cfg.ConnConfig.Host).Wrapf(err, "ping database")
	}

	return pool, nil
}

func poolConfig(url string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		// The parse error can echo the password back; keep it out of logs.
		return nil, oops.Code("DB_URL_INVALID").Errorf("invalid database url")
	}
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.HealthCheckPeriod = healthCheckPeriod
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return cfg, nil
}
