package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
)

// PoolOptions tunes the connection pool. Zero values keep pgx defaults, which
// can also be set in the DSN (pool_max_conns, pool_max_conn_lifetime).
type PoolOptions struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
	// QueryLogger receives every statement at debug level when set.
	QueryLogger *slog.Logger
}

// New opens a pool and pings it before returning.
func New(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.QueryLogger != nil {
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   slogTracer(opts.QueryLogger),
			LogLevel: tracelog.LogLevelDebug,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping %s: %w", cfg.ConnConfig.Host, err)
	}
	return pool, nil
}

func slogTracer(logger *slog.Logger) tracelog.Logger {
	return tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		attrs := make([]slog.Attr, 0, len(data))
		for k, v := range data {
			attrs = append(attrs, slog.Any(k, v))
		}
		lvl := slog.LevelDebug
		switch level {
		case tracelog.LogLevelError:
			lvl = slog.LevelError
		case tracelog.LogLevelWarn:
			lvl = slog.LevelWarn
		case tracelog.LogLevelInfo:
			lvl = slog.LevelInfo
		}
		logger.LogAttrs(ctx, lvl, "pgx: "+msg, attrs...)
	})
}
