package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
)

// Connections bundles writer and reader bun instances. Anything that takes
// row locks must go through Writer.
type Connections struct {
	Writer *bun.DB
	Reader *bun.DB
	Driver string
}

// Module registers the database connections and transactor with Fx.
var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(NewTransactor),
)

// New establishes writer and reader pools backed by Bun.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Connections, error) {
	conns, err := Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := conns.Ping(ctx); err != nil {
				return err
			}
			logger.Info("database connected",
				zap.String("driver", cfg.Database.Driver),
				zap.Bool("dedicated_reader", conns.Reader != conns.Writer),
			)
			return nil
		},
		OnStop: func(context.Context) error {
			return conns.Close()
		},
	})

	return conns, nil
}

// Open builds the pools without touching the network. Used directly by the
// CLI and integration tests that manage their own lifecycle.
func Open(cfg config.Database) (*Connections, error) {
	dial, err := selectDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	writerSQL, err := openSQLDB(cfg.Driver, cfg.WriterDSN)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	applyPoolSettings(writerSQL, cfg)
	writer := bun.NewDB(writerSQL, dial)

	reader := writer
	if cfg.ReaderDSN != "" && cfg.ReaderDSN != cfg.WriterDSN {
		readerSQL, err := openSQLDB(cfg.Driver, cfg.ReaderDSN)
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("open reader: %w", err)
		}
		applyPoolSettings(readerSQL, cfg)
		reader = bun.NewDB(readerSQL, dial)
	}

	return &Connections{Writer: writer, Reader: reader, Driver: cfg.Driver}, nil
}

// Ping checks both pools.
func (c *Connections) Ping(ctx context.Context) error {
	if err := pingContext(ctx, c.Writer); err != nil {
		return fmt.Errorf("ping writer: %w", err)
	}
	if c.Reader != c.Writer {
		if err := pingContext(ctx, c.Reader); err != nil {
			return fmt.Errorf("ping reader: %w", err)
		}
	}
	return nil
}

// Close releases both pools.
func (c *Connections) Close() error {
	var closeErr error
	if err := c.Writer.Close(); err != nil {
		closeErr = fmt.Errorf("close writer: %w", err)
	}
	if c.Reader != c.Writer {
		if err := c.Reader.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close reader: %w", err))
		}
	}
	return closeErr
}

func selectDialect(driver string) (schema.Dialect, error) {
	switch driver {
	case "postgres":
		return pgdialect.New(), nil
	case "mysql":
		return mysqldialect.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func openSQLDB(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}

	switch driver {
	case "postgres":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), nil
	case "mysql":
		return sql.Open("mysql", dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

func applyPoolSettings(db *sql.DB, cfg config.Database) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
}

func pingContext(ctx context.Context, db *bun.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.DB.PingContext(pingCtx)
}
