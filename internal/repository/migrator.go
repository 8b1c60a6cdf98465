package repository

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded SQL migrations in file name order.
type Migrator struct {
	db  *sqlx.DB
	log *slog.Logger
}

func NewMigrator(db *sqlx.DB, log *slog.Logger) *Migrator {
	return &Migrator{db: db, log: log}
}

// Run executes all pending migrations.
func (m *Migrator) Run(ctx context.Context) error {
	op := "Migrator.Run"
	m.log.Info("starting database migrations")

	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("%s: failed to create migrations table: %w", op, err)
	}

	files, err := migrationFiles()
	if err != nil {
		return fmt.Errorf("%s: failed to list migration files: %w", op, err)
	}
	for _, f := range files {
		if err := m.apply(ctx, f); err != nil {
			return fmt.Errorf("%s: migration %s: %w", op, f, err)
		}
	}

	m.log.Info("database migrations completed")
	return nil
}

// Applied returns the applied versions, newest first.
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	var versions []string
	err := m.db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations ORDER BY version DESC`)
	return versions, err
}

func migrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func (m *Migrator) apply(ctx context.Context, filename string) error {
	version := strings.TrimSuffix(filename, ".sql")

	var count int
	if err := m.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, version); err != nil {
		return err
	}
	if count > 0 {
		m.log.Debug("migration already applied", slog.String("version", version))
		return nil
	}

	content, err := migrationsFS.ReadFile("migrations/" + filename)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	m.log.Info("applying migration", slog.String("version", version))
	return NewTxManager(m.db).WithinTx(ctx, func(ctx context.Context) error {
		q := conn(ctx, m.db)
		if _, err := q.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
		if _, err := q.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}
