package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// migrationFilePattern matches versioned DDL files like 0001_init.sql.
var migrationFilePattern = regexp.MustCompile(`^(\d{4})_.*\.sql$`)

// MigrationFile is one versioned DDL file found on disk.
type MigrationFile struct {
	Version int
	Path    string
}

// MigrationFiles lists the migration files of dir in ascending version
// order. Files not matching the naming scheme are ignored.
func MigrationFiles(dir string) ([]MigrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []MigrationFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := migrationFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid migration version in %s: %w", entry.Name(), err)
		}
		files = append(files, MigrationFile{
			Version: version,
			Path:    filepath.Join(dir, entry.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })

	return files, nil
}

// DeployedVersion returns the highest applied migration version, or 0
// when the migrations table does not exist yet.
func (db *DB) DeployedVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := db.GetContext(ctx, &version, "SELECT MAX(version) FROM migrations")
	if err != nil {
		// A fresh database has no migrations table at all.
		return 0, nil
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// Migrate applies every pending migration from dir, each inside its own
// transaction, and records the version in the migrations table. After a
// successful run the deployed version equals the last file's prefix.
func (db *DB) Migrate(ctx context.Context, dir string) error {
	files, err := MigrationFiles(dir)
	if err != nil {
		return err
	}

	deployed, err := db.DeployedVersion(ctx)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.Version <= deployed {
			continue
		}

		ddl, err := os.ReadFile(file.Path)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Path, err)
		}

		err = db.WithTransaction(ctx, func(tx *Transaction) error {
			if _, err := tx.ExecContext(ctx, string(ddl)); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", file.Path, err)
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO migrations (version, applied_at) VALUES ($1, NOW())",
				file.Version)
			if err != nil {
				return fmt.Errorf("failed to record migration %d: %w", file.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		db.logger.WithField("version", file.Version).Info("Applied migration")
	}

	return nil
}
