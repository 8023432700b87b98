package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migratectl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
defaultApp: polls
store:
  backend: sqlite
  sqlite: migrations.db
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultApp != "polls" {
		t.Errorf("defaultApp = %q, want polls", cfg.DefaultApp)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.SQLite != "migrations.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
}

func TestLoadFromFilePostgres(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
store:
  backend: postgres
  postgres:
    url: postgres://localhost:5432/migrate
    max_conns: 4
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.PG.URL != "postgres://localhost:5432/migrate" || cfg.Store.PG.MaxConns != 4 {
		t.Errorf("postgres config = %+v", cfg.Store.PG)
	}
}

func TestLoadFromFileMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory ok", Config{Store: StoreConfig{Backend: BackendMemory}}, ""},
		{"fs ok", Config{Store: StoreConfig{Backend: BackendFS, Dir: "migrations"}}, ""},
		{"fs missing dir", Config{Store: StoreConfig{Backend: BackendFS}}, "store.dir"},
		{"sqlite missing path", Config{Store: StoreConfig{Backend: BackendSQLite}}, "store.sqlite"},
		{"postgres missing url", Config{Store: StoreConfig{Backend: BackendPostgres}}, "store.postgres.url"},
		{"unknown backend", Config{Store: StoreConfig{Backend: "etcd"}}, "unknown store backend"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.Store.Backend != BackendFS || cfg.Store.Dir != "migrations" {
		t.Errorf("default = %+v, want fs store under migrations", cfg.Store)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
