package migration

import (
	"errors"
	"testing"
)

func TestOrderRespectsDependencies(t *testing.T) {
	t.Parallel()

	migrations := []*Migration{
		New("polls", "0002_add_field").AddDependency("polls", "0001_initial"),
		New("polls", "0001_initial"),
		New("blog", "0001_initial").AddDependency("polls", "0002_add_field"),
	}

	ordered, err := Order(migrations)
	if err != nil {
		t.Fatalf("order: %v", err)
	}

	index := make(map[Key]int, len(ordered))
	for i, m := range ordered {
		index[m.Key()] = i
	}
	for _, m := range migrations {
		for _, dep := range m.Dependencies {
			if index[dep] >= index[m.Key()] {
				t.Errorf("%s ordered before its dependency %s", m.ID(), dep)
			}
		}
	}
}

func TestOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	// No edges at all: ties must break by (app, name), reproducibly.
	build := func() []*Migration {
		return []*Migration{
			New("zoo", "0001_initial"),
			New("auth", "0001_initial"),
			New("polls", "0001_initial"),
			New("auth", "0002_groups").AddDependency("auth", "0001_initial"),
		}
	}

	want := []string{"auth.0001_initial", "auth.0002_groups", "polls.0001_initial", "zoo.0001_initial"}
	for i := 0; i < 10; i++ {
		ordered, err := Order(build())
		if err != nil {
			t.Fatalf("order: %v", err)
		}
		for i, m := range ordered {
			if m.ID() != want[i] {
				t.Fatalf("order[%d] = %s, want %s", i, m.ID(), want[i])
			}
		}
	}
}

func TestOrderDetectsCycle(t *testing.T) {
	t.Parallel()

	migrations := []*Migration{
		New("polls", "0001_a").AddDependency("polls", "0002_b"),
		New("polls", "0002_b").AddDependency("polls", "0001_a"),
		New("polls", "0003_c").AddDependency("polls", "0002_b"),
	}

	_, err := Order(migrations)
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("error = %v, want ErrCircularDependency", err)
	}

	var cycleErr *CircularDependencyError
	if !errors.As(err, &cycleErr) {
		t.Fatal("error does not carry CircularDependencyError detail")
	}
	if len(cycleErr.Remaining) != 3 {
		t.Errorf("remaining = %v, want all three unordered nodes", cycleErr.Remaining)
	}
}

func TestOrderRejectsUnresolvedDependency(t *testing.T) {
	t.Parallel()

	migrations := []*Migration{
		New("polls", "0001_initial").AddDependency("auth", "0001_initial"),
	}

	_, err := Order(migrations)
	if !errors.Is(err, ErrUnresolvedDependency) {
		t.Fatalf("error = %v, want ErrUnresolvedDependency", err)
	}

	var depErr *UnresolvedDependencyError
	if !errors.As(err, &depErr) {
		t.Fatal("error does not carry UnresolvedDependencyError detail")
	}
	if depErr.Missing != NewKey("auth", "0001_initial") {
		t.Errorf("missing = %v, want auth.0001_initial", depErr.Missing)
	}
}

func TestNewGraphRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewGraph([]*Migration{
		New("polls", "0001_initial"),
		New("polls", "0001_initial"),
	})
	if !errors.Is(err, ErrInvalidMigration) {
		t.Errorf("error = %v, want ErrInvalidMigration", err)
	}
}

func TestNewGraphRejectsSelfDependency(t *testing.T) {
	t.Parallel()

	_, err := NewGraph([]*Migration{
		New("polls", "0001_initial").AddDependency("polls", "0001_initial"),
	})
	if !errors.Is(err, ErrInvalidMigration) {
		t.Errorf("error = %v, want ErrInvalidMigration", err)
	}
}

func TestGraphRootsAndLeaves(t *testing.T) {
	t.Parallel()

	g, err := NewGraph([]*Migration{
		New("polls", "0001_initial"),
		New("polls", "0002_add_field").AddDependency("polls", "0001_initial"),
		New("blog", "0001_initial"),
	})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}

	roots := g.Roots()
	if len(roots) != 2 || roots[0] != NewKey("blog", "0001_initial") || roots[1] != NewKey("polls", "0001_initial") {
		t.Errorf("roots = %v", roots)
	}

	leaves := g.Leaves()
	if len(leaves) != 2 || leaves[0] != NewKey("blog", "0001_initial") || leaves[1] != NewKey("polls", "0002_add_field") {
		t.Errorf("leaves = %v", leaves)
	}
}
