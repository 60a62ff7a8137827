package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/database"
)

//go:embed sql
var migrations embed.FS

// Module provides the migrator to Fx.
var Module = fx.Provide(New)

// Migrator applies the embedded schema for the configured driver.
type Migrator struct {
	provider *goose.Provider
	logger   *zap.Logger
}

// New builds a goose provider over sql/<dialect> and the writer connection.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	dialect, dir, err := gooseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, conns.Writer.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}

	return &Migrator{
		provider: provider,
		logger:   logger.With(zap.String("dialect", string(dialect))),
	}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return err
	}
	m.logResults("applied", results)

	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("schema up to date", zap.Int64("version", version), zap.Int("applied", len(results)))
	return nil
}

// Down rolls back steps migrations (at least one), or everything when all
// is set.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if all {
		results, err := m.provider.DownTo(ctx, 0)
		if err != nil {
			return err
		}
		m.logResults("rolled back", results)
		return nil
	}

	if steps <= 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		result, err := m.provider.Down(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			m.logger.Info("nothing left to roll back")
			return nil
		}
		if err != nil {
			return err
		}
		m.logResults("rolled back", []*goose.MigrationResult{result})
	}
	return nil
}

func (m *Migrator) logResults(verb string, results []*goose.MigrationResult) {
	for _, r := range results {
		m.logger.Info("migration "+verb,
			zap.Int64("version", r.Source.Version),
			zap.String("file", path.Base(r.Source.Path)),
			zap.Duration("took", r.Duration),
		)
	}
}

// gooseDialect maps DB_DRIVER to a goose dialect and its embedded directory.
func gooseDialect(driver string) (goose.Dialect, string, error) {
	switch driver {
	case "postgres", "pg":
		return goose.DialectPostgres, "sql/postgres", nil
	case "mysql":
		return goose.DialectMySQL, "sql/mysql", nil
	}
	return "", "", fmt.Errorf("no migrations for database driver %q", driver)
}
