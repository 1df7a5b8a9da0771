package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	applicationName = "dhyan-api"
	pingTimeout     = 5 * time.Second
)

// driverSuffix matches the "+driver" part of SQLAlchemy-style URLs such as
// "postgresql+asyncpg://", which the Python services share with us.
var driverSuffix = regexp.MustCompile(`^(postgres(?:ql)?)\+\w+://`)

// Connect opens a pool for dsn and pings it once before handing it out.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// poolConfig parses dsn. Pool sizing comes from the pool_* DSN parameters;
// connections are tagged with an application name unless the DSN sets one.
func poolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(stripDriverSuffix(dsn))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	if cfg.MaxConnLifetimeJitter == 0 {
		cfg.MaxConnLifetimeJitter = cfg.MaxConnLifetime / 10
	}
	return cfg, nil
}

func stripDriverSuffix(dsn string) string {
	return driverSuffix.ReplaceAllString(strings.TrimSpace(dsn), "$1://")
}
