package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/schemaforge/migrate/schema"
)

// Source enumerates the universe of known migrations. Implementations decide
// where migrations come from (files, a database, a compiled-in registry); the
// engine only requires the returned migrations to be well formed. Sources
// that can see squash results are expected to filter out the migrations a
// loaded squash replaces.
type Source interface {
	// AllMigrations returns every known migration.
	AllMigrations(ctx context.Context) ([]*Migration, error)
	// MigrationsForApp returns the known migrations for one app.
	MigrationsForApp(ctx context.Context, appLabel string) ([]*Migration, error)
	// GetMigration returns one migration, or ErrNotFound.
	GetMigration(ctx context.Context, appLabel, name string) (*Migration, error)
}

// Repository tracks persisted migrations, keyed by (app, name).
type Repository interface {
	// Save persists a migration. Saving an existing key overwrites it.
	Save(ctx context.Context, m *Migration) error
	// Get returns a persisted migration, or ErrNotFound.
	Get(ctx context.Context, appLabel, name string) (*Migration, error)
	// List returns the persisted migrations for one app.
	List(ctx context.Context, appLabel string) ([]*Migration, error)
	// Exists reports whether a migration is persisted.
	Exists(ctx context.Context, appLabel, name string) (bool, error)
	// Delete removes a persisted migration, or returns ErrNotFound.
	Delete(ctx context.Context, appLabel, name string) error
}

// Service orchestrates a read-only Source and a mutable Repository. All
// diffing, ordering, and squashing it performs is pure; the repository is the
// only shared mutable state, and writes to it serialize through one lock.
// Source and Repository errors propagate to the caller unchanged; the
// service never retries.
type Service struct {
	source  Source
	repo    Repository
	logger  *slog.Logger
	metrics *Metrics

	mu sync.Mutex // serializes repository writes
}

// NewService creates a Service. A nil logger falls back to slog.Default().
func NewService(source Source, repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, repo: repo, logger: logger}
}

// WithMetrics attaches a metrics collector and returns the service.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// LoadAll returns every migration the source knows.
func (s *Service) LoadAll(ctx context.Context) ([]*Migration, error) {
	ms, err := s.source.AllMigrations(ctx)
	s.metrics.observeCall("load_all", err)
	return ms, err
}

// LoadForApp returns the source's migrations for one app.
func (s *Service) LoadForApp(ctx context.Context, appLabel string) ([]*Migration, error) {
	ms, err := s.source.MigrationsForApp(ctx, appLabel)
	s.metrics.observeCall("load_for_app", err)
	return ms, err
}

// SaveMigration validates and persists a migration.
func (s *Service) SaveMigration(ctx context.Context, m *Migration) error {
	if err := m.Validate(); err != nil {
		s.metrics.observeCall("save", err)
		return err
	}

	s.mu.Lock()
	err := s.repo.Save(ctx, m)
	s.mu.Unlock()

	s.metrics.observeCall("save", err)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.Saved.Inc()
	}
	s.logger.Info("saved migration", "migration", m.ID(), "operations", len(m.Operations))
	return nil
}

// MigrationExists reports whether the repository holds the migration.
func (s *Service) MigrationExists(ctx context.Context, appLabel, name string) (bool, error) {
	ok, err := s.repo.Exists(ctx, appLabel, name)
	s.metrics.observeCall("exists", err)
	return ok, err
}

// ListSaved returns the repository's migrations for one app.
func (s *Service) ListSaved(ctx context.Context, appLabel string) ([]*Migration, error) {
	ms, err := s.repo.List(ctx, appLabel)
	s.metrics.observeCall("list_saved", err)
	return ms, err
}

// DeleteMigration removes a persisted migration.
func (s *Service) DeleteMigration(ctx context.Context, appLabel, name string) error {
	s.mu.Lock()
	err := s.repo.Delete(ctx, appLabel, name)
	s.mu.Unlock()

	s.metrics.observeCall("delete", err)
	if err != nil {
		return err
	}
	s.logger.Info("deleted migration", "migration", appLabel+"."+name)
	return nil
}

// BuildGraph loads every migration from the source and returns the total
// application order, or the resolver's failure.
func (s *Service) BuildGraph(ctx context.Context) ([]*Migration, error) {
	ms, err := s.source.AllMigrations(ctx)
	if err != nil {
		s.metrics.observeCall("build_graph", err)
		return nil, err
	}

	ordered, err := Order(ms)
	s.metrics.observeCall("build_graph", err)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.GraphSize.Set(float64(len(ordered)))
	}
	s.logger.Debug("built migration graph", "migrations", len(ordered))
	return ordered, nil
}

// DetectNew returns the source migrations for an app that the repository has
// not persisted, in source order. An empty or partially-populated repository
// simply means everything (or the remainder) is new.
func (s *Service) DetectNew(ctx context.Context, appLabel string) ([]*Migration, error) {
	available, err := s.source.MigrationsForApp(ctx, appLabel)
	if err != nil {
		s.metrics.observeCall("detect_new", err)
		return nil, err
	}
	saved, err := s.repo.List(ctx, appLabel)
	if err != nil {
		s.metrics.observeCall("detect_new", err)
		return nil, err
	}

	seen := make(map[string]bool, len(saved))
	for _, m := range saved {
		seen[m.Name] = true
	}

	var fresh []*Migration
	for _, m := range available {
		if !seen[m.Name] {
			fresh = append(fresh, m)
		}
	}
	s.metrics.observeCall("detect_new", nil)
	return fresh, nil
}

// NextName returns the next sequence-numbered migration name for an app,
// e.g. "0003_add_email" after "0002_...". The sequence continues from the
// highest numeric prefix the source knows. An empty suffix becomes "auto".
func (s *Service) NextName(ctx context.Context, appLabel, suffix string) (string, error) {
	if suffix == "" {
		suffix = "auto"
	}
	existing, err := s.source.MigrationsForApp(ctx, appLabel)
	if err != nil {
		return "", err
	}

	next := 1
	for _, m := range existing {
		if n, ok := sequenceNumber(m.Name); ok && n >= next {
			next = n + 1
		}
	}
	return fmt.Sprintf("%04d_%s", next, suffix), nil
}

// MakeMigration runs autodetection between two model-state sets and wraps
// the app's changes in a named migration. Model states outside the app are
// ignored except as reference targets. Implied cross-app dependencies
// resolve to the referenced app's latest known migration. The result is not
// saved.
func (s *Service) MakeMigration(ctx context.Context, appLabel, name string, previous, current []schema.ModelState) (*Migration, error) {
	prevApp := filterApp(previous, appLabel)
	curApp := filterApp(current, appLabel)

	detected, err := Detect(prevApp, curApp)
	if err != nil {
		s.metrics.observeCall("make_migration", err)
		return nil, err
	}

	m := New(appLabel, name)
	m.Operations = detected.Operations
	if len(prevApp) == 0 {
		m.Initial = true
	}

	for _, dep := range detected.Dependencies {
		resolved := dep
		if resolved.Name == "" {
			latest, ok, err := s.latestName(ctx, dep.App)
			if err != nil {
				s.metrics.observeCall("make_migration", err)
				return nil, err
			}
			if !ok {
				// The referenced app has no migrations to depend on yet.
				continue
			}
			resolved.Name = latest
		}
		m.AddDependency(resolved.App, resolved.Name)
	}

	s.metrics.observeCall("make_migration", nil)
	s.logger.Info("detected migration", "migration", m.ID(),
		"operations", len(m.Operations), "dependencies", len(m.Dependencies))
	return m, nil
}

// SquashApp squashes every source migration of an app, in name order, into
// one replacement migration. The result is returned, not saved.
func (s *Service) SquashApp(ctx context.Context, appLabel, newName string, opts SquashOptions) (*Migration, error) {
	ms, err := s.source.MigrationsForApp(ctx, appLabel)
	if err != nil {
		s.metrics.observeCall("squash", err)
		return nil, err
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Name < ms[j].Name })

	squashed, err := Squash(ms, newName, opts)
	s.metrics.observeCall("squash", err)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.Squashed.Add(float64(len(squashed.Replaces)))
	}
	s.logger.Info("squashed migrations", "app", appLabel,
		"replaces", len(squashed.Replaces), "operations", len(squashed.Operations))
	return squashed, nil
}

func (s *Service) latestName(ctx context.Context, appLabel string) (string, bool, error) {
	ms, err := s.source.MigrationsForApp(ctx, appLabel)
	if err != nil {
		return "", false, err
	}
	if len(ms) == 0 {
		return "", false, nil
	}
	latest := ms[0].Name
	for _, m := range ms[1:] {
		if m.Name > latest {
			latest = m.Name
		}
	}
	return latest, true, nil
}

func sequenceNumber(name string) (int, bool) {
	prefix, _, _ := strings.Cut(name, "_")
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func filterApp(models []schema.ModelState, appLabel string) []schema.ModelState {
	var out []schema.ModelState
	for _, m := range models {
		if m.AppLabel == appLabel {
			out = append(out, m)
		}
	}
	return out
}
