package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migration is one numbered schema step. A database at user_version N has
// had steps 1..N applied.
type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations reads the embedded steps in version order; fs.Glob returns
// names sorted. File names are NNN_name.sql and must number 1..n without gaps.
func loadMigrations() ([]migration, error) {
	entries, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}

	steps := make([]migration, 0, len(entries))
	for i, file := range entries {
		num, name, ok := strings.Cut(strings.TrimSuffix(path.Base(file), ".sql"), "_")
		version, err := strconv.Atoi(num)
		if !ok || err != nil {
			return nil, fmt.Errorf("migration file %s: name must be NNN_name.sql", file)
		}
		if version != i+1 {
			return nil, fmt.Errorf("migration file %s: expected version %d", file, i+1)
		}
		m := migration{version: version, name: name}
		data, err := migrationFS.ReadFile(file)
		if err != nil {
			return nil, err
		}
		m.sql = string(data)
		steps = append(steps, m)
	}
	return steps, nil
}

var migrations = func() []migration {
	steps, err := loadMigrations()
	if err != nil {
		panic(err)
	}
	return steps
}()

// currentSchemaVersion is the user_version of a fully migrated database.
var currentSchemaVersion = len(migrations)

// migrate applies every step above the database's user_version. Each step
// and its version bump commit together.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	for _, m := range migrations[version:] {
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return err
	}
	return tx.Commit()
}
