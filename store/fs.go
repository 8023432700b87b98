package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schemaforge/migrate/migration"
)

// FS stores migrations on the local filesystem, one JSON document per
// migration at <root>/<app>/<name>.json. It implements both the Source and
// Repository roles.
type FS struct {
	root string
}

// NewFS creates an FS rooted at the given directory. The directory is
// created if it does not exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root directory: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root path.
func (s *FS) Root() string {
	return s.root
}

// resolve maps (app, name) to an absolute file path, ensuring the result
// stays within the root directory and under a real app subdirectory.
func (s *FS) resolve(appLabel, name string) (string, error) {
	if filepath.Clean(appLabel) == "." {
		return "", fmt.Errorf("invalid app label %q", appLabel)
	}
	abs := filepath.Join(s.root, filepath.Clean(appLabel), filepath.Clean(name)+".json")
	if !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("migration %s.%s escapes storage root", appLabel, name)
	}
	return abs, nil
}

func (s *FS) AllMigrations(ctx context.Context) ([]*migration.Migration, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}

	var out []*migration.Migration
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ms, err := s.readApp(ctx, entry.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, ms...)
	}
	return filterReplaced(out), nil
}

func (s *FS) MigrationsForApp(ctx context.Context, appLabel string) ([]*migration.Migration, error) {
	ms, err := s.readApp(ctx, appLabel)
	if err != nil {
		return nil, err
	}
	return filterReplaced(ms), nil
}

func (s *FS) GetMigration(_ context.Context, appLabel, name string) (*migration.Migration, error) {
	path, err := s.resolve(appLabel, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s.%s: %w", appLabel, name, migration.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read migration %s.%s: %w", appLabel, name, err)
	}
	return decodeMigration(data)
}

func (s *FS) Save(_ context.Context, m *migration.Migration) error {
	path, err := s.resolve(m.AppLabel, m.Name)
	if err != nil {
		return err
	}
	data, err := encodeMigration(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create app directory for %s: %w", m.ID(), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write migration %s: %w", m.ID(), err)
	}
	return nil
}

func (s *FS) Get(ctx context.Context, appLabel, name string) (*migration.Migration, error) {
	return s.GetMigration(ctx, appLabel, name)
}

// List returns the persisted migrations for one app in name order, without
// the Source view's replaced-migration filtering.
func (s *FS) List(ctx context.Context, appLabel string) ([]*migration.Migration, error) {
	return s.readApp(ctx, appLabel)
}

func (s *FS) Exists(_ context.Context, appLabel, name string) (bool, error) {
	path, err := s.resolve(appLabel, name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("stat migration %s.%s: %w", appLabel, name, err)
	}
	return true, nil
}

func (s *FS) Delete(_ context.Context, appLabel, name string) error {
	path, err := s.resolve(appLabel, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); os.IsNotExist(err) {
		return fmt.Errorf("%s.%s: %w", appLabel, name, migration.ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("delete migration %s.%s: %w", appLabel, name, err)
	}
	return nil
}

// readApp loads every migration document under one app directory, sorted by
// name. A missing directory means no migrations.
func (s *FS) readApp(ctx context.Context, appLabel string) ([]*migration.Migration, error) {
	dir := filepath.Join(s.root, filepath.Clean(appLabel))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read app directory %s: %w", appLabel, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(names)

	out := make([]*migration.Migration, 0, len(names))
	for _, name := range names {
		m, err := s.GetMigration(ctx, appLabel, name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
