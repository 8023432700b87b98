package main

import (
	"context"
	"fmt"
	"os"

	"github.com/schemaforge/migrate/config"
	"github.com/schemaforge/migrate/migration"
	"github.com/schemaforge/migrate/store"
)

var version = "dev"

var commands = map[string]func([]string) error{
	"plan":    runPlan,
	"pending": runPending,
	"squash":  runSquash,
	"status":  runStatus,
	"show":    runShow,
}

func usage() {
	fmt.Fprintf(os.Stderr, `migratectl - schema migration engine CLI (version %s)

Usage:
  migratectl <command> [options]

Commands:
  plan       Print the total application order of all known migrations
  pending    List migrations for an app that are not yet persisted
  squash     Combine an app's migrations into one replacement migration
  status     Show graph roots, leaves, and migration counts
  show       Print one migration's operations

Environment:
  MIGRATECTL_CONFIG  Path to the YAML config file (default: migratectl.yaml)
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err := cmd(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// sourceRepo is the combined view every store backend provides.
type sourceRepo interface {
	migration.Source
	migration.Repository
}

func openStore(ctx context.Context) (sourceRepo, func(), error) {
	path := os.Getenv("MIGRATECTL_CONFIG")
	if path == "" {
		path = "migratectl.yaml"
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return nil, nil, err
		}
	}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		return store.NewMemory(), func() {}, nil
	case config.BackendFS:
		s, err := store.NewFS(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case config.BackendSQLite:
		s, err := store.NewSQLite(cfg.Store.SQLite)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.BackendPostgres:
		s, err := store.NewPG(ctx, cfg.Store.PG)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newService(ctx context.Context) (*migration.Service, func(), error) {
	s, closeStore, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return migration.NewService(s, s, nil), closeStore, nil
}

func runPlan(_ []string) error {
	ctx := context.Background()
	svc, done, err := newService(ctx)
	if err != nil {
		return err
	}
	defer done()

	ordered, err := svc.BuildGraph(ctx)
	if err != nil {
		return err
	}
	for i, m := range ordered {
		fmt.Printf("%3d. %s (%d operations)\n", i+1, m.ID(), len(m.Operations))
	}
	return nil
}

func runPending(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: migratectl pending <app>")
	}
	ctx := context.Background()
	svc, done, err := newService(ctx)
	if err != nil {
		return err
	}
	defer done()

	fresh, err := svc.DetectNew(ctx, args[0])
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		fmt.Println("nothing pending")
		return nil
	}
	for _, m := range fresh {
		fmt.Println(m.ID())
	}
	return nil
}

func runSquash(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: migratectl squash <app> <new-name> [--no-optimize]")
	}
	opts := migration.SquashOptions{Optimize: true}
	for _, arg := range args[2:] {
		if arg == "--no-optimize" {
			opts.Optimize = false
		}
	}

	ctx := context.Background()
	svc, done, err := newService(ctx)
	if err != nil {
		return err
	}
	defer done()

	squashed, err := svc.SquashApp(ctx, args[0], args[1], opts)
	if err != nil {
		return err
	}
	if err := svc.SaveMigration(ctx, squashed); err != nil {
		return err
	}
	fmt.Printf("squashed %d migrations into %s (%d operations)\n",
		len(squashed.Replaces), squashed.ID(), len(squashed.Operations))
	return nil
}

func runStatus(_ []string) error {
	ctx := context.Background()
	s, done, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer done()

	ms, err := s.AllMigrations(ctx)
	if err != nil {
		return err
	}
	graph, err := migration.NewGraph(ms)
	if err != nil {
		return err
	}

	fmt.Printf("migrations: %d\n", graph.Len())
	fmt.Println("roots:")
	for _, key := range graph.Roots() {
		fmt.Printf("  %s\n", key)
	}
	fmt.Println("leaves:")
	for _, key := range graph.Leaves() {
		fmt.Printf("  %s\n", key)
	}
	return nil
}

func runShow(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: migratectl show <app> <name>")
	}
	ctx := context.Background()
	s, done, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer done()

	m, err := s.GetMigration(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("%s (atomic=%v initial=%v)\n", m.ID(), m.Atomic, m.Initial)
	for _, dep := range m.Dependencies {
		fmt.Printf("  depends on %s\n", dep)
	}
	for _, key := range m.Replaces {
		fmt.Printf("  replaces %s\n", key)
	}
	for _, op := range m.Operations {
		fmt.Printf("  - %s\n", op.Describe())
	}
	return nil
}
