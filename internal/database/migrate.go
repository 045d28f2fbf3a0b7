package database

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const migrationLockID int64 = 7029001

//go:embed migrations/*.up.sql
var embedded embed.FS

// Migrations returns the schema shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// MigrationSource picks a directory on disk when one is given, else the
// embedded schema.
func MigrationSource(dir string) fs.FS {
	if dir == "" {
		return Migrations()
	}
	return os.DirFS(dir)
}

// Migrator is the subset of pgxpool.Pool the runner needs.
type Migrator interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ApplyMigrations runs every *.up.sql file in source in name order, once.
// Applied files are checksummed and an edited file aborts the run.
func ApplyMigrations(ctx context.Context, db Migrator, source fs.FS, logger *slog.Logger) (int, error) {
	if source == nil {
		return 0, errors.New("migration source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, fmt.Errorf("create schema_migrations table: %w", err)
	}

	if _, err := db.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = db.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	files, err := listMigrationFiles(source)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, name := range files {
		version := strings.TrimSuffix(name, ".up.sql")

		raw, err := fs.ReadFile(source, name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}

		checksum := checksumHex(raw)

		appliedChecksum, alreadyApplied, err := migrationChecksum(ctx, db, version)
		if err != nil {
			return applied, err
		}
		if alreadyApplied {
			if appliedChecksum != checksum {
				return applied, fmt.Errorf("migration %s was changed after being applied", version)
			}
			continue
		}

		tx, err := db.Begin(ctx)
		if err != nil {
			return applied, fmt.Errorf("begin migration transaction %s: %w", version, err)
		}

		if _, err := tx.Exec(ctx, string(raw)); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("apply migration %s: %w", version, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO schema_migrations (version, checksum)
			VALUES ($1, $2)
		`, version, checksum); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("record migration %s: %w", version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return applied, fmt.Errorf("commit migration %s: %w", version, err)
		}
		applied++
		logger.InfoContext(ctx, "migration applied", "version", version)
	}

	return applied, nil
}

func listMigrationFiles(source fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	return files, nil
}

func migrationChecksum(ctx context.Context, db Migrator, version string) (checksum string, exists bool, err error) {
	row := db.QueryRow(ctx, `
		SELECT checksum
		FROM schema_migrations
		WHERE version=$1
	`, version)

	if err := row.Scan(&checksum); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read migration state %s: %w", version, err)
	}

	return checksum, true, nil
}

func checksumHex(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
