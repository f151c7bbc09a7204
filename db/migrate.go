package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sdzerobot/sdzerobot/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// migration is one embedded schema file; version is the numeric filename prefix
type migration struct {
	version string
	name    string
}

func listMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, _, _ := strings.Cut(entry.Name(), "_")
		out = append(out, migration{version: version, name: entry.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// Migrate applies every migration not yet recorded in schema_migrations and
// returns how many were applied. 000 creates schema_migrations itself.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	_, err := migrate(db, logger)
	return err
}

func migrate(db *sql.DB, logger *zap.SugaredLogger) (int, error) {
	all, err := listMigrations()
	if err != nil {
		return 0, err
	}

	applied, err := AppliedVersions(db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range all {
		if applied[m.version] {
			continue
		}

		body, err := migrations.ReadFile(path.Join(migrationsDir, m.name))
		if err != nil {
			return count, errors.Wrapf(err, "read %s", m.name)
		}

		if logger != nil {
			logger.Infow("Applying migration", "migration", m.name, "version", m.version)
		}

		tx, err := db.Begin()
		if err != nil {
			return count, errors.Wrapf(err, "begin tx for %s", m.name)
		}
		if _, err := tx.Exec(string(body)); err != nil {
			tx.Rollback()
			return count, errors.Wrapf(err, "execute %s", m.name)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return count, errors.Wrapf(err, "record %s", m.name)
		}
		if err := tx.Commit(); err != nil {
			return count, errors.Wrapf(err, "commit %s", m.name)
		}
		count++
	}

	if logger != nil && count > 0 {
		logger.Infow("Migrations complete", "applied", count, "total", len(all))
	}
	return count, nil
}

// AppliedVersions returns the recorded migration versions. A database without
// schema_migrations has none.
func AppliedVersions(db *sql.DB) (map[string]bool, error) {
	var exists int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'",
	).Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, "check schema_migrations")
	}

	applied := map[string]bool{}
	if exists == 0 {
		return applied, nil
	}

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "list applied migrations")
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan migration version")
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
