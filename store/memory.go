package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/schemaforge/migrate/migration"
)

// Memory is an in-memory migration store. It implements both the Source and
// Repository roles, which makes it the backend of choice for tests and for
// front ends that compile their migrations in.
type Memory struct {
	mu    sync.RWMutex
	byKey map[migration.Key]*migration.Migration
	order []migration.Key
}

// NewMemory creates a Memory seeded with the given migrations, kept in
// argument order.
func NewMemory(migrations ...*migration.Migration) *Memory {
	s := &Memory{byKey: make(map[migration.Key]*migration.Migration)}
	for _, m := range migrations {
		s.put(m)
	}
	return s
}

func (s *Memory) put(m *migration.Migration) {
	key := m.Key()
	if _, exists := s.byKey[key]; !exists {
		s.order = append(s.order, key)
	}
	s.byKey[key] = m
}

// AllMigrations returns every stored migration in insertion order, with
// squash-replaced migrations filtered out.
func (s *Memory) AllMigrations(_ context.Context) ([]*migration.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*migration.Migration, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byKey[key])
	}
	return filterReplaced(out), nil
}

// MigrationsForApp returns the stored migrations for one app in insertion
// order, with squash-replaced migrations filtered out.
func (s *Memory) MigrationsForApp(_ context.Context, appLabel string) ([]*migration.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*migration.Migration
	for _, key := range s.order {
		if key.App == appLabel {
			out = append(out, s.byKey[key])
		}
	}
	return filterReplaced(out), nil
}

// GetMigration returns one migration, or migration.ErrNotFound.
func (s *Memory) GetMigration(_ context.Context, appLabel, name string) (*migration.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byKey[migration.NewKey(appLabel, name)]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", appLabel, name, migration.ErrNotFound)
	}
	return m, nil
}

// Save stores a migration, overwriting any existing entry with the same key.
func (s *Memory) Save(_ context.Context, m *migration.Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(m)
	return nil
}

// Get returns a stored migration, or migration.ErrNotFound.
func (s *Memory) Get(ctx context.Context, appLabel, name string) (*migration.Migration, error) {
	return s.GetMigration(ctx, appLabel, name)
}

// List returns the stored migrations for one app in insertion order. Unlike
// the Source view, the Repository view does not filter replaced migrations:
// what was persisted stays listed.
func (s *Memory) List(_ context.Context, appLabel string) ([]*migration.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*migration.Migration
	for _, key := range s.order {
		if key.App == appLabel {
			out = append(out, s.byKey[key])
		}
	}
	return out, nil
}

// Exists reports whether a migration is stored.
func (s *Memory) Exists(_ context.Context, appLabel, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byKey[migration.NewKey(appLabel, name)]
	return ok, nil
}

// Delete removes a stored migration, or returns migration.ErrNotFound.
func (s *Memory) Delete(_ context.Context, appLabel, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := migration.NewKey(appLabel, name)
	if _, ok := s.byKey[key]; !ok {
		return fmt.Errorf("%s: %w", key, migration.ErrNotFound)
	}
	delete(s.byKey, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
