package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schemaforge/migrate/migration"
)

// PGConfig holds PostgreSQL connection configuration.
type PGConfig struct {
	URL      string `yaml:"url" json:"url"`
	MaxConns int32  `yaml:"max_conns" json:"max_conns"`
	MinConns int32  `yaml:"min_conns" json:"min_conns"`
}

// PG stores migrations in PostgreSQL. It implements both the Source and
// Repository roles and is suitable for shared, multi-node environments.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG connects to PostgreSQL and ensures the migrations table exists.
func NewPG(ctx context.Context, cfg PGConfig) (*PG, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}

	s := &PG{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Pool returns the underlying connection pool.
func (s *PG) Pool() *pgxpool.Pool { return s.pool }

// Close closes the connection pool.
func (s *PG) Close() { s.pool.Close() }

func (s *PG) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id         UUID PRIMARY KEY,
			app_label  TEXT NOT NULL,
			name       TEXT NOT NULL,
			operations JSONB NOT NULL,
			deps       JSONB NOT NULL DEFAULT '[]',
			replaces   JSONB NOT NULL DEFAULT '[]',
			atomic     BOOLEAN NOT NULL DEFAULT TRUE,
			is_initial BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (app_label, name)
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func (s *PG) AllMigrations(ctx context.Context) ([]*migration.Migration, error) {
	ms, err := s.query(ctx,
		`SELECT app_label, name, operations, deps, replaces, atomic, is_initial
		 FROM schema_migrations ORDER BY app_label, name`)
	if err != nil {
		return nil, err
	}
	return filterReplaced(ms), nil
}

func (s *PG) MigrationsForApp(ctx context.Context, appLabel string) ([]*migration.Migration, error) {
	ms, err := s.query(ctx,
		`SELECT app_label, name, operations, deps, replaces, atomic, is_initial
		 FROM schema_migrations WHERE app_label = $1 ORDER BY name`, appLabel)
	if err != nil {
		return nil, err
	}
	return filterReplaced(ms), nil
}

func (s *PG) GetMigration(ctx context.Context, appLabel, name string) (*migration.Migration, error) {
	return s.Get(ctx, appLabel, name)
}

func (s *PG) Save(ctx context.Context, m *migration.Migration) error {
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO schema_migrations (id, app_label, name, operations, deps, replaces, atomic, is_initial)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (app_label, name) DO UPDATE SET
			operations = EXCLUDED.operations,
			deps       = EXCLUDED.deps,
			replaces   = EXCLUDED.replaces,
			atomic     = EXCLUDED.atomic,
			is_initial = EXCLUDED.is_initial`,
		uuid.New(), m.AppLabel, m.Name, ops, deps, replaces, m.Atomic, m.Initial)
	if err != nil {
		return fmt.Errorf("upsert migration %s: %w", m.ID(), err)
	}
	return nil
}

func (s *PG) Get(ctx context.Context, appLabel, name string) (*migration.Migration, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT app_label, name, operations, deps, replaces, atomic, is_initial
		 FROM schema_migrations WHERE app_label = $1 AND name = $2`, appLabel, name)
	m, err := scanPGMigration(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s.%s: %w", appLabel, name, migration.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get migration %s.%s: %w", appLabel, name, err)
	}
	return m, nil
}

func (s *PG) List(ctx context.Context, appLabel string) ([]*migration.Migration, error) {
	return s.query(ctx,
		`SELECT app_label, name, operations, deps, replaces, atomic, is_initial
		 FROM schema_migrations WHERE app_label = $1 ORDER BY name`, appLabel)
}

func (s *PG) Exists(ctx context.Context, appLabel, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE app_label = $1 AND name = $2)`,
		appLabel, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s.%s: %w", appLabel, name, err)
	}
	return exists, nil
}

func (s *PG) Delete(ctx context.Context, appLabel, name string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM schema_migrations WHERE app_label = $1 AND name = $2`, appLabel, name)
	if err != nil {
		return fmt.Errorf("delete migration %s.%s: %w", appLabel, name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s.%s: %w", appLabel, name, migration.ErrNotFound)
	}
	return nil
}

func (s *PG) query(ctx context.Context, q string, args ...any) ([]*migration.Migration, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	var out []*migration.Migration
	for rows.Next() {
		m, err := scanPGMigration(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanPGMigration(scan func(...any) error) (*migration.Migration, error) {
	var (
		appLabel, name      string
		ops, deps, replaces []byte
		atomic, initial     bool
	)
	if err := scan(&appLabel, &name, &ops, &deps, &replaces, &atomic, &initial); err != nil {
		return nil, err
	}

	operations, err := migration.UnmarshalOperations(ops)
	if err != nil {
		return nil, err
	}
	dependencies, err := decodeKeys(deps)
	if err != nil {
		return nil, err
	}
	replacesKeys, err := decodeKeys(replaces)
	if err != nil {
		return nil, err
	}

	return &migration.Migration{
		AppLabel:     appLabel,
		Name:         name,
		Operations:   operations,
		Dependencies: dependencies,
		Replaces:     replacesKeys,
		Atomic:       atomic,
		Initial:      initial,
	}, nil
}
