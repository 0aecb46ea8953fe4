package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed (already at latest version).
func (s *Store) MigrateUp(migrationsFS fs.FS) error {
	m, err := s.newMigrate(migrationsFS)
	if err != nil {
		return err
	}
	// Note: We don't close m here because it would close the underlying DB connection.
	// The migrate instance will be garbage collected when no longer needed.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown(migrationsFS fs.FS) error {
	m, err := s.newMigrate(migrationsFS)
	if err != nil {
		return err
	}
	// Note: We don't close m here because it would close the underlying DB connection.

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}

	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (s *Store) MigrateVersion(migrationsFS fs.FS) (version uint, dirty bool, err error) {
	m, err := s.newMigrate(migrationsFS)
	if err != nil {
		return 0, false, err
	}
	// Note: We don't close m here because it would close the underlying DB connection.

	version, dirty, err = m.Version()
	if err != nil && errors.Is(err, migrate.ErrNilVersion) {
		// No migrations applied yet
		return 0, false, nil
	}

	return version, dirty, err
}

// MigrateForce forces the migration version to a specific value.
// This should only be used to recover from a dirty migration state.
func (s *Store) MigrateForce(migrationsFS fs.FS, version int) error {
	m, err := s.newMigrate(migrationsFS)
	if err != nil {
		return err
	}
	// Note: We don't close m here because it would close the underlying DB connection.

	if err := m.Force(version); err != nil {
		return fmt.Errorf("force migration to version %d failed: %w", version, err)
	}

	return nil
}

// MigrateTo migrates to a specific version.
// Use this to migrate up or down to a specific version.
func (s *Store) MigrateTo(migrationsFS fs.FS, version uint) error {
	m, err := s.newMigrate(migrationsFS)
	if err != nil {
		return err
	}
	// Note: We don't close m here because it would close the underlying DB connection.

	if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}

	return nil
}

// CheckAndPromptMigrations verifies the database schema matches the embedded
// migration sources before the service starts serving. A fresh database (no
// migrations applied yet) is migrated up automatically. A database that is
// behind, ahead, or dirty returns an error naming the command to run, with
// shouldExit true so the caller can refuse to start.
func (s *Store) CheckAndPromptMigrations(migrationsFS fs.FS) (shouldExit bool, err error) {
	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		return true, fmt.Errorf("failed to determine latest migration version: %w", err)
	}

	version, dirty, err := s.MigrateVersion(migrationsFS)
	if err != nil {
		return true, fmt.Errorf("failed to read migration version: %w", err)
	}

	if dirty {
		return true, fmt.Errorf("database is dirty at migration version %d; inspect the schema, then run 'sanketd migrate force %d'", version, version)
	}

	if version == 0 {
		log.Printf("Fresh database detected, applying migrations...")
		if err := s.MigrateUp(migrationsFS); err != nil {
			return true, fmt.Errorf("failed to initialise fresh database: %w", err)
		}
		return false, nil
	}

	if version < latest {
		return true, fmt.Errorf("database schema is at version %d but version %d is available; run 'sanketd migrate up'", version, latest)
	}

	if version > latest {
		return true, fmt.Errorf("database schema version %d is newer than this binary supports (%d)", version, latest)
	}

	return false, nil
}

// newMigrate creates a new migrate instance reading sources from the given
// filesystem, normally the embedded MigrationsFS.
func (s *Store) newMigrate(migrationsFS fs.FS) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	// Create sqlite driver instance
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	// Create migrate instance
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Set up logger
	m.Log = &migrateLogger{}

	return m, nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// ensureSchemaMigrationsTable ensures the schema_migrations table exists.
// This is called automatically by golang-migrate but can be used for baselining.
func (s *Store) ensureSchemaMigrationsTable() error {
	_, err := s.DB.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER NOT NULL,
			dirty INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS version_unique ON schema_migrations (version);
	`)
	return err
}

// BaselineAtVersion creates a schema_migrations entry at the specified version
// without running any migrations. This is useful for existing databases that
// already have the schema from that version applied.
func (s *Store) BaselineAtVersion(version uint) error {
	if err := s.ensureSchemaMigrationsTable(); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	// Check if any version already exists
	var count int
	err := s.DB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check existing migrations: %w", err)
	}

	if count > 0 {
		return fmt.Errorf("database already has migrations applied, cannot baseline")
	}

	// Insert the baseline version
	_, err = s.DB.Exec("INSERT INTO schema_migrations (version, dirty) VALUES (?, 0)", version)
	if err != nil {
		return fmt.Errorf("failed to insert baseline version: %w", err)
	}

	log.Printf("Database baselined at version %d", version)
	return nil
}

// GetMigrationStatus returns a summary of the migration status including
// current version, dirty state, and whether migrations are needed.
func (s *Store) GetMigrationStatus(migrationsFS fs.FS) (map[string]interface{}, error) {
	version, dirty, err := s.MigrateVersion(migrationsFS)
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("failed to get migration version: %w", err)
	}

	status := map[string]interface{}{
		"current_version": version,
		"dirty":           dirty,
	}

	// Check if migrations table exists
	var tableExists bool
	err = s.DB.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&tableExists)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check schema_migrations table: %w", err)
	}

	status["schema_migrations_exists"] = tableExists

	return status, nil
}

// GetLatestMigrationVersion returns the latest available migration version
// by scanning the migration sources.
func GetLatestMigrationVersion(migrationsFS fs.FS) (uint, error) {
	entries, err := fs.Glob(migrationsFS, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to list migrations: %w", err)
	}

	var latest uint
	for _, name := range entries {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		if uint(v) > latest {
			latest = uint(v)
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("no migration files found")
	}
	return latest, nil
}
