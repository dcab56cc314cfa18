package persistence

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/config"
)

// Postgres holds the ticket store's pgx pool. A zero Pool means the service
// runs on the in-memory store.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres connects and pings when a DSN is set; without one it returns an empty handle.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		logger.Warn("POSTGRES_DSN not provided; skipping database connection")
		return &Postgres{}, nil
	}

	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	pg := &Postgres{Pool: pool}
	if err := pg.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to postgres",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns))
	return pg, nil
}

func poolConfig(cfg config.PostgresConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}
	return poolCfg, nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) configured() bool { return p != nil && p.Pool != nil }

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if !p.configured() {
		return checkBackend(ctx, p.Name(), func(context.Context) error { return errNotConfigured })
	}
	return checkBackend(ctx, p.Name(), p.Pool.Ping)
}

// PoolHandle returns the pool, or nil when no database is configured.
func (p *Postgres) PoolHandle() *pgxpool.Pool {
	if !p.configured() {
		return nil
	}
	return p.Pool
}

func (p *Postgres) Close() {
	if p.configured() {
		p.Pool.Close()
	}
}
