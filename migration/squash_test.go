package migration

import (
	"errors"
	"testing"

	"github.com/schemaforge/migrate/schema"
)

func textColumn() schema.FieldState {
	return schema.FieldState{Name: "c", Type: schema.FieldType{Kind: schema.KindText}}
}

// The four-migration lifecycle of table X: created, column added, column
// dropped, table dropped. Optimized it is a no-op; unoptimized it is the full
// concatenation.
func lifecycleMigrations() []*Migration {
	m1 := New("polls", "0001_initial").
		AddOperation(CreateTable{Table: "x", Columns: []schema.FieldState{{Name: "id", Type: schema.FieldType{Kind: schema.KindInteger}}}}).
		AddOperation(AddColumn{Table: "x", Column: textColumn()})
	m2 := New("polls", "0002_drop_c").
		AddOperation(DropColumn{Table: "x", Column: "c"})
	m3 := New("polls", "0003_drop_x").
		AddOperation(DropTable{Table: "x"})
	return []*Migration{m1, m2, m3}
}

func TestSquashOptimizeCancelsEverything(t *testing.T) {
	t.Parallel()

	squashed, err := Squash(lifecycleMigrations(), "0001_squashed_0003", SquashOptions{Optimize: true})
	if err != nil {
		t.Fatalf("squash: %v", err)
	}
	if len(squashed.Operations) != 0 {
		t.Errorf("operations = %v, want empty after full cancellation", squashed.Operations)
	}
}

func TestSquashWithoutOptimizeKeepsConcatenation(t *testing.T) {
	t.Parallel()

	squashed, err := Squash(lifecycleMigrations(), "0001_squashed_0003", SquashOptions{})
	if err != nil {
		t.Fatalf("squash: %v", err)
	}
	if len(squashed.Operations) != 4 {
		t.Fatalf("operations = %d, want 4", len(squashed.Operations))
	}

	// Order preserved exactly.
	if _, ok := squashed.Operations[0].(CreateTable); !ok {
		t.Errorf("op[0] = %T, want CreateTable", squashed.Operations[0])
	}
	if _, ok := squashed.Operations[1].(AddColumn); !ok {
		t.Errorf("op[1] = %T, want AddColumn", squashed.Operations[1])
	}
	if _, ok := squashed.Operations[2].(DropColumn); !ok {
		t.Errorf("op[2] = %T, want DropColumn", squashed.Operations[2])
	}
	if _, ok := squashed.Operations[3].(DropTable); !ok {
		t.Errorf("op[3] = %T, want DropTable", squashed.Operations[3])
	}
}

func TestSquashReplacesCompleteness(t *testing.T) {
	t.Parallel()

	inputs := lifecycleMigrations()
	squashed, err := Squash(inputs, "0001_squashed_0003", SquashOptions{Optimize: true})
	if err != nil {
		t.Fatalf("squash: %v", err)
	}

	if len(squashed.Replaces) != len(inputs) {
		t.Fatalf("replaces = %d, want %d", len(squashed.Replaces), len(inputs))
	}
	for i, m := range inputs {
		if squashed.Replaces[i] != m.Key() {
			t.Errorf("replaces[%d] = %v, want %v", i, squashed.Replaces[i], m.Key())
		}
	}
}

func TestSquashRejectsCrossApp(t *testing.T) {
	t.Parallel()

	_, err := Squash([]*Migration{
		New("polls", "0001_initial"),
		New("blog", "0001_initial"),
	}, "0001_squashed", SquashOptions{})
	if !errors.Is(err, ErrInvalidMigration) {
		t.Errorf("error = %v, want ErrInvalidMigration", err)
	}
}

func TestSquashRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := Squash(nil, "0001_squashed", SquashOptions{})
	if !errors.Is(err, ErrInvalidMigration) {
		t.Errorf("error = %v, want ErrInvalidMigration", err)
	}
}

func TestSquashKeepsExternalDependenciesOnly(t *testing.T) {
	t.Parallel()

	m1 := New("polls", "0001_initial").AddDependency("auth", "0001_initial")
	m2 := New("polls", "0002_add_field").AddDependency("polls", "0001_initial")

	squashed, err := Squash([]*Migration{m1, m2}, "0001_squashed_0002", SquashOptions{})
	if err != nil {
		t.Fatalf("squash: %v", err)
	}

	if len(squashed.Dependencies) != 1 {
		t.Fatalf("dependencies = %v, want only the external auth dep", squashed.Dependencies)
	}
	if squashed.Dependencies[0] != NewKey("auth", "0001_initial") {
		t.Errorf("dependency = %v, want auth.0001_initial", squashed.Dependencies[0])
	}
	if squashed.DependsOn(NewKey("polls", "0001_initial")) {
		t.Error("internal dependency survived the squash")
	}
}

func TestSquashCarriesInitialFlag(t *testing.T) {
	t.Parallel()

	m1 := New("polls", "0001_initial").SetInitial(true)
	m2 := New("polls", "0002_add_field").AddDependency("polls", "0001_initial")

	squashed, err := Squash([]*Migration{m1, m2}, "0001_squashed_0002", SquashOptions{})
	if err != nil {
		t.Fatalf("squash: %v", err)
	}
	if !squashed.Initial {
		t.Error("squash of an initial run should stay initial")
	}
}

func TestOptimizePassesUnrelatedOperationsThrough(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		CreateTable{Table: "a"},
		RenameColumn{Table: "b", Old: "x", New: "y"},
		AddColumn{Table: "a", Column: textColumn()},
		AlterColumn{Table: "b", Column: "y", Definition: textColumn()},
	}

	out := Optimize(ops)
	if len(out) != len(ops) {
		t.Fatalf("optimize dropped operations: %v", out)
	}
	for i := range ops {
		if out[i].Describe() != ops[i].Describe() {
			t.Errorf("op[%d] = %v, want %v (order must be preserved)", i, out[i].Describe(), ops[i].Describe())
		}
	}
}

func TestOptimizeDropsDeadOperations(t *testing.T) {
	t.Parallel()

	// t was dropped (and not created in this run): later operations on it
	// are dead and removed; the drop itself survives.
	ops := []Operation{
		DropTable{Table: "t"},
		AddColumn{Table: "t", Column: textColumn()},
		AlterColumn{Table: "t", Column: "c", Definition: textColumn()},
		AddColumn{Table: "u", Column: textColumn()},
	}

	out := Optimize(ops)
	if len(out) != 2 {
		t.Fatalf("optimize = %v, want drop t + add u.c", out)
	}
	if _, ok := out[0].(DropTable); !ok {
		t.Errorf("out[0] = %T, want DropTable", out[0])
	}
	if add, ok := out[1].(AddColumn); !ok || add.Table != "u" {
		t.Errorf("out[1] = %v, want add u.c", out[1].Describe())
	}
}

func TestOptimizeKeepsRecreateAfterDrop(t *testing.T) {
	t.Parallel()

	// Dropping a pre-existing table and creating a fresh one under the same
	// name is a real schema change, not a cancellable pair.
	ops := []Operation{
		DropTable{Table: "t"},
		CreateTable{Table: "t"},
		AddColumn{Table: "t", Column: textColumn()},
	}

	out := Optimize(ops)
	if len(out) != 3 {
		t.Fatalf("optimize = %v, want drop, create and add kept", out)
	}
	if _, ok := out[1].(CreateTable); !ok {
		t.Errorf("out[1] = %T, want CreateTable", out[1])
	}
}

func TestOptimizeDropColumnOnRecreatedTable(t *testing.T) {
	t.Parallel()

	// The first incarnation of t (create, add c, drop) cancels away. The
	// DropColumn then targets the re-created t, whose column c came from its
	// CreateTable, so it must survive rather than cancel against the erased
	// AddColumn of the old incarnation.
	ops := []Operation{
		CreateTable{Table: "t"},
		AddColumn{Table: "t", Column: textColumn()},
		DropTable{Table: "t"},
		CreateTable{Table: "t", Columns: []schema.FieldState{textColumn()}},
		DropColumn{Table: "t", Column: "c"},
	}

	out := Optimize(ops)
	if len(out) != 2 {
		t.Fatalf("optimize = %v, want the re-create and its drop column", out)
	}
	if _, ok := out[0].(CreateTable); !ok {
		t.Errorf("out[0] = %T, want CreateTable", out[0])
	}
	if drop, ok := out[1].(DropColumn); !ok || drop.Table != "t" || drop.Column != "c" {
		t.Errorf("out[1] = %v, want drop column t.c", out[1].Describe())
	}
}

func TestOptimizeCancelsAddDropColumnAcrossAlters(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		AddColumn{Table: "t", Column: textColumn()},
		AlterColumn{Table: "t", Column: "c", Definition: textColumn()},
		DropColumn{Table: "t", Column: "c"},
	}

	out := Optimize(ops)
	if len(out) != 0 {
		t.Errorf("optimize = %v, want full cancellation including the alter", out)
	}
}
