package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/schemaforge/migrate/migration"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS schema_migrations (
	id         TEXT PRIMARY KEY,
	app_label  TEXT NOT NULL,
	name       TEXT NOT NULL,
	operations TEXT NOT NULL,
	deps       TEXT NOT NULL DEFAULT '[]',
	replaces   TEXT NOT NULL DEFAULT '[]',
	atomic     INTEGER NOT NULL DEFAULT 1,
	is_initial INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (app_label, name)
)`

// SQLite stores migrations in an SQLite database. It implements both the
// Source and Repository roles and is suitable for single-node deployments
// and local development.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) an SQLite-backed store. Use ":memory:" for an
// in-memory database in tests.
func NewSQLite(dsn string) (*SQLite, error) {
	// Append pragmas to the DSN so they apply to every pooled connection.
	if dsn != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Serialize writes to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) AllMigrations(ctx context.Context) ([]*migration.Migration, error) {
	ms, err := s.query(ctx,
		`SELECT app_label, name, operations, deps, replaces, atomic, is_initial
		 FROM schema_migrations ORDER BY app_label, name`)
	if err != nil {
		return nil, err
	}
	return filterReplaced(ms), nil
}

func (s *SQLite) MigrationsForApp(ctx context.Context, appLabel string) ([]*migration.Migration, error) {
	ms, err := s.query(ctx,
		`SELECT app_label, name, operations, deps, replaces, atomic, is_initial
		 FROM schema_migrations WHERE app_label = ? ORDER BY name`, appLabel)
	if err != nil {
		return nil, err
	}
	return filterReplaced(ms), nil
}

func (s *SQLite) GetMigration(ctx context.Context, appLabel, name string) (*migration.Migration, error) {
	return s.Get(ctx, appLabel, name)
}

func (s *SQLite) Save(ctx context.Context, m *migration.Migration) error {
	ops, err := migration.MarshalOperations(m.Operations)
	if err != nil {
		return fmt.Errorf("encode operations of %s: %w", m.ID(), err)
	}
	deps, err := encodeKeys(m.Dependencies)
	if err != nil {
		return fmt.Errorf("encode dependencies of %s: %w", m.ID(), err)
	}
	replaces, err := encodeKeys(m.Replaces)
	if err != nil {
		return fmt.Errorf("encode replaces of %s: %w", m.ID(), err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schema_migrations (id, app_label, name, operations, deps, replaces, atomic, is_initial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (app_label, name) DO UPDATE SET
			operations = excluded.operations,
			deps       = excluded.deps,
			replaces   = excluded.replaces,
			atomic     = excluded.atomic,
			is_initial = excluded.is_initial`,
		uuid.NewString(), m.AppLabel, m.Name, string(ops), string(deps), string(replaces),
		boolToInt(m.Atomic), boolToInt(m.Initial))
	if err != nil {
		return fmt.Errorf("upsert migration %s: %w", m.ID(), err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, appLabel, name string) (*migration.Migration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT app_label, name, operations, deps, replaces, atomic, is_initial
		 FROM schema_migrations WHERE app_label = ? AND name = ?`, appLabel, name)
	m, err := scanMigration(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s.%s: %w", appLabel, name, migration.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get migration %s.%s: %w", appLabel, name, err)
	}
	return m, nil
}

func (s *SQLite) List(ctx context.Context, appLabel string) ([]*migration.Migration, error) {
	return s.query(ctx,
		`SELECT app_label, name, operations, deps, replaces, atomic, is_initial
		 FROM schema_migrations WHERE app_label = ? ORDER BY name`, appLabel)
}

func (s *SQLite) Exists(ctx context.Context, appLabel, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_migrations WHERE app_label = ? AND name = ?`,
		appLabel, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check migration %s.%s: %w", appLabel, name, err)
	}
	return n > 0, nil
}

func (s *SQLite) Delete(ctx context.Context, appLabel, name string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM schema_migrations WHERE app_label = ? AND name = ?`, appLabel, name)
	if err != nil {
		return fmt.Errorf("delete migration %s.%s: %w", appLabel, name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete migration %s.%s: %w", appLabel, name, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s.%s: %w", appLabel, name, migration.ErrNotFound)
	}
	return nil
}

func (s *SQLite) query(ctx context.Context, q string, args ...any) ([]*migration.Migration, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	var out []*migration.Migration
	for rows.Next() {
		m, err := scanMigration(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMigration(scan func(...any) error) (*migration.Migration, error) {
	var (
		appLabel, name, ops, deps, replaces string
		atomic, initial                     int
	)
	if err := scan(&appLabel, &name, &ops, &deps, &replaces, &atomic, &initial); err != nil {
		return nil, err
	}

	operations, err := migration.UnmarshalOperations([]byte(ops))
	if err != nil {
		return nil, err
	}
	dependencies, err := decodeKeys([]byte(deps))
	if err != nil {
		return nil, err
	}
	replacesKeys, err := decodeKeys([]byte(replaces))
	if err != nil {
		return nil, err
	}

	return &migration.Migration{
		AppLabel:     appLabel,
		Name:         name,
		Operations:   operations,
		Dependencies: dependencies,
		Replaces:     replacesKeys,
		Atomic:       atomic != 0,
		Initial:      initial != 0,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
