package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/scheduler/*.sql
var schedulerMigrations embed.FS

const SchedulerMigrationsDir = "migrations/scheduler"

type MigrationManager struct {
	logger *logrus.Logger
	pool   *pgxpool.Pool
	dir    string
}

func NewMigrationManager(logger *logrus.Logger, pool *pgxpool.Pool, dir string) *MigrationManager {
	return &MigrationManager{
		logger: logger.WithField("pkg", "postgres.MigrationManager").Logger,
		pool:   pool,
		dir:    dir,
	}
}

func (m *MigrationManager) Migrate() error {
	m.logger.Infof("starting database migration from %s", m.dir)
	goose.SetBaseFS(schedulerMigrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(m.pool)
	defer func() {
		_ = db.Close()
	}()
	if err := goose.Up(db, m.dir, goose.WithAllowMissing()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	m.logger.Info("database migration completed")
	return nil
}

// Connect opens a pool and migrates it.
func Connect(ctx context.Context, logger *logrus.Logger, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := NewMigrationManager(logger, pool, SchedulerMigrationsDir).Migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
