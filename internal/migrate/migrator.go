// Package migrate implements embedded SQL schema migrations shared by the
// Job Store and the Learning Store, each of which owns its own SQLite
// database file and its own set of embedded migration files.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hjonck/leadscout/pkg/observability"
)

// Migration represents a single forward schema step. Down migrations are
// intentionally not supported: both stores are append-mostly and rolling
// back a schema change on a live job or learning database is never a safe
// operation we want to make easy.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
}

// Migrator applies pending migrations to a *sql.DB in version order,
// guarded by a sync.Mutex to prevent concurrent migration runs within one
// process, rather than a cross-process advisory lock since SQLite has no
// such primitive.
type Migrator struct {
	db         *sql.DB
	tracer     observability.Tracer
	migrations []Migration
	mu         sync.Mutex
}

// New loads migration files from fsys's "migrations" directory (each named
// "000001_description.up.sql") and returns a Migrator for db. It also sets
// PRAGMA busy_timeout so concurrent readers/writers wait instead of
// failing immediately under lock contention.
func New(db *sql.DB, tracer observability.Tracer, fsys fs.FS) (*Migrator, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("migrate: setting busy_timeout: %w", err)
	}

	migrations, err := loadMigrations(fsys)
	if err != nil {
		return nil, fmt.Errorf("migrate: loading migrations: %w", err)
	}

	return &Migrator{db: db, tracer: tracer, migrations: migrations}, nil
}

// MigrateUp applies every migration newer than the current schema
// version, in order, each inside its own transaction.
func (m *Migrator) MigrateUp(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := m.tracer.StartSpan(ctx, "migrate.migrate_up")
	defer m.tracer.EndSpan(span)

	if err := m.ensureMigrationsTable(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	current, err := m.currentVersionLocked(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttribute("current_version", current)

	applied := 0
	for _, migration := range m.migrations {
		if migration.Version <= current {
			continue
		}
		if err := m.applyMigration(ctx, migration); err != nil {
			span.RecordError(err)
			return fmt.Errorf("migrate: migration %d: %w", migration.Version, err)
		}
		applied++
	}
	span.SetAttribute("migrations_applied", applied)
	return nil
}

// CurrentVersion returns the highest applied migration version, or 0 if
// the schema_migrations table does not exist yet.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentVersionLocked(ctx)
}

func (m *Migrator) currentVersionLocked(ctx context.Context) (int, error) {
	var tableCount int
	if err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'",
	).Scan(&tableCount); err != nil {
		return 0, fmt.Errorf("migrate: checking schema_migrations table: %w", err)
	}
	if tableCount == 0 {
		return 0, nil
	}

	var version int
	if err := m.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations",
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("migrate: reading current version: %w", err)
	}
	return version, nil
}

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			description TEXT
		)
	`)
	return err
}

func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("executing migration sql: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?) ON CONFLICT (version) DO NOTHING",
		migration.Version, migration.Description,
	); err != nil {
		return fmt.Errorf("recording migration version: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads every "NNNNNN_description.up.sql" file under
// fsys's migrations directory and returns them sorted by version.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		description := strings.TrimSuffix(parts[1], ".up.sql")

		contents, err := fs.ReadFile(fsys, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			UpSQL:       string(contents),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
