package migration

// SquashOptions controls squashing.
type SquashOptions struct {
	// Optimize runs the cancellation optimizer over the concatenated
	// operation list.
	Optimize bool
}

// Squash combines a contiguous run of same-app migrations into one
// replacement migration. Operations are concatenated in input order and,
// when requested, run through the cancellation optimizer. The result records
// every input in Replaces and keeps only the first input's dependencies that
// point outside the squashed set; internal edges are satisfied by
// construction order.
func Squash(migrations []*Migration, newName string, opts SquashOptions) (*Migration, error) {
	if len(migrations) == 0 {
		return nil, &InvalidMigrationError{Reason: "cannot squash an empty migration list"}
	}
	if newName == "" {
		return nil, &InvalidMigrationError{Reason: "squash result needs a name"}
	}

	app := migrations[0].AppLabel
	inSet := make(map[Key]bool, len(migrations))
	for _, m := range migrations {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if m.AppLabel != app {
			return nil, &InvalidMigrationError{
				Reason: "cannot squash across apps: " + app + " and " + m.AppLabel,
			}
		}
		inSet[m.Key()] = true
	}

	result := New(app, newName)
	result.Initial = migrations[0].Initial

	for _, m := range migrations {
		result.Operations = append(result.Operations, m.Operations...)
		result.Replaces = append(result.Replaces, m.Key())
	}

	for _, dep := range migrations[0].Dependencies {
		if dep.App != app || !inSet[dep] {
			result.AddDependency(dep.App, dep.Name)
		}
	}

	if opts.Optimize {
		result.Operations = Optimize(result.Operations)
	}
	return result, nil
}

// Optimize removes operation pairs with no net effect in a single forward
// pass: a table created and later dropped disappears along with everything
// between that touched it, and a column added and later dropped disappears
// with its intervening alters. Operations referencing a table already
// recorded as dropped are dead and removed, though the drop itself stays on
// record for bookkeeping. Surviving operations keep their relative order.
func Optimize(ops []Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	removed := make([]bool, 0, len(ops))

	// created and added map a table (or table, column) to the index of its
	// CreateTable/AddColumn in out; dropped holds tombstones.
	created := make(map[string]int)
	added := make(map[[2]string]int)
	dropped := make(map[string]bool)

	emit := func(op Operation) int {
		out = append(out, op)
		removed = append(removed, false)
		return len(out) - 1
	}

	for _, op := range ops {
		if _, isCreate := op.(CreateTable); !isCreate && dropped[primaryTable(op)] {
			// Dead code: the table this operation touches is gone.
			continue
		}

		switch v := op.(type) {
		case CreateTable:
			delete(dropped, v.Table)
			created[v.Table] = emit(v)
		case DropTable:
			// Either way the table is gone: column indexes recorded for it
			// belong to this incarnation and must not cancel operations
			// aimed at a later re-creation.
			forgetColumns(added, v.Table)
			if idx, ok := created[v.Table]; ok {
				// The table never existed outside this run: erase its
				// creation and everything that touched it.
				removed[idx] = true
				for i := idx + 1; i < len(out); i++ {
					if !removed[i] && touchesTable(out[i], v.Table) {
						removed[i] = true
					}
				}
				delete(created, v.Table)
				dropped[v.Table] = true
				continue
			}
			dropped[v.Table] = true
			emit(v)
		case AddColumn:
			added[[2]string{v.Table, v.Column.Name}] = emit(v)
		case DropColumn:
			key := [2]string{v.Table, v.Column}
			if idx, ok := added[key]; ok && !removed[idx] {
				removed[idx] = true
				for i := idx + 1; i < len(out); i++ {
					if alter, isAlter := out[i].(AlterColumn); isAlter && !removed[i] &&
						alter.Table == v.Table && alter.Column == v.Column {
						removed[i] = true
					}
				}
				delete(added, key)
				continue
			}
			emit(v)
		default:
			emit(op)
		}
	}

	final := make([]Operation, 0, len(out))
	for i, op := range out {
		if !removed[i] {
			final = append(final, op)
		}
	}
	return final
}

// forgetColumns drops every column index recorded for one table.
func forgetColumns(added map[[2]string]int, table string) {
	for key := range added {
		if key[0] == table {
			delete(added, key)
		}
	}
}

// primaryTable returns the table an operation acts on. For renames it is the
// pre-rename name, which is what tombstone checks care about.
func primaryTable(op Operation) string {
	switch v := op.(type) {
	case CreateTable:
		return v.Table
	case DropTable:
		return v.Table
	case AddColumn:
		return v.Table
	case DropColumn:
		return v.Table
	case AlterColumn:
		return v.Table
	case RenameTable:
		return v.Old
	case RenameColumn:
		return v.Table
	case AddConstraint:
		return v.Table
	case DropConstraint:
		return v.Table
	default:
		return ""
	}
}

func touchesTable(op Operation, table string) bool {
	if primaryTable(op) == table {
		return true
	}
	if rename, ok := op.(RenameTable); ok {
		return rename.New == table
	}
	return false
}
