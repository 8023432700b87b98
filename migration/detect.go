package migration

import (
	"fmt"
	"sort"

	"github.com/schemaforge/migrate/schema"
)

// DetectResult is the output of autodetection: the ordered operations needed
// to move the previous state set to the current one, plus the table-level
// dependencies the diff implies.
type DetectResult struct {
	Operations []Operation

	// Dependencies are implied cross-app dependencies. Name is empty when
	// the diff only knows the app: the caller (the Service) resolves it to
	// that app's latest migration.
	Dependencies []Key
}

// Detect diffs a previous model-state set against a current one and returns
// the minimal ordered operation list. Creates come first, ordered so that a
// new table never precedes a new table it references; drops come last, with
// referencing tables dropped before their targets. A field that disappears
// under one name and reappears under another is treated as a drop plus an
// add, never a rename.
func Detect(previous, current []schema.ModelState) (*DetectResult, error) {
	prev, err := indexModels(previous)
	if err != nil {
		return nil, err
	}
	cur, err := indexModels(current)
	if err != nil {
		return nil, err
	}

	var added, dropped, kept []string
	for id := range cur {
		if _, ok := prev[id]; ok {
			kept = append(kept, id)
		} else {
			added = append(added, id)
		}
	}
	for id := range prev {
		if _, ok := cur[id]; !ok {
			dropped = append(dropped, id)
		}
	}
	sort.Strings(added)
	sort.Strings(dropped)
	sort.Strings(kept)

	result := &DetectResult{}

	addedSet := make(map[string]bool, len(added))
	for _, id := range added {
		addedSet[id] = true
	}
	for _, id := range orderByReferences(added, cur) {
		model := cur[id]
		result.Operations = append(result.Operations, createTableOp(model))
		for _, ref := range model.References() {
			if ref.App == model.AppLabel {
				continue
			}
			result.addDependency(Key{App: ref.App})
		}
	}

	for _, id := range kept {
		ops, err := DiffModels(prev[id], cur[id])
		if err != nil {
			return nil, err
		}
		result.Operations = append(result.Operations, ops...)
	}

	// Drop dependents before the tables they reference: reverse of the
	// create ordering over the previous state.
	droppedOrder := orderByReferences(dropped, prev)
	for i := len(droppedOrder) - 1; i >= 0; i-- {
		result.Operations = append(result.Operations, DropTable{Table: prev[droppedOrder[i]].TableName()})
	}

	return result, nil
}

// DiffModels diffs two snapshots of the same model. Fields present only in
// new become AddColumn, only in old become DropColumn, changed in place
// become AlterColumn. Diffing snapshots with different identities is a
// caller bug.
func DiffModels(old, new schema.ModelState) ([]Operation, error) {
	if old.AppLabel != new.AppLabel || old.Name != new.Name {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("cannot diff %s against %s", old.ID(), new.ID()),
		}
	}

	table := new.TableName()
	var ops []Operation

	for _, name := range new.FieldNames() {
		if _, ok := old.Fields[name]; !ok {
			ops = append(ops, AddColumn{Table: table, Column: new.Fields[name].Clone()})
		}
	}
	for _, name := range new.FieldNames() {
		oldField, ok := old.Fields[name]
		if !ok {
			continue
		}
		if !oldField.Equal(new.Fields[name]) {
			ops = append(ops, AlterColumn{Table: table, Column: name, Definition: new.Fields[name].Clone()})
		}
	}
	for _, name := range old.FieldNames() {
		if _, ok := new.Fields[name]; !ok {
			ops = append(ops, DropColumn{Table: table, Column: name})
		}
	}

	return ops, nil
}

func (r *DetectResult) addDependency(key Key) {
	for _, existing := range r.Dependencies {
		if existing == key {
			return
		}
	}
	r.Dependencies = append(r.Dependencies, key)
}

func indexModels(models []schema.ModelState) (map[string]schema.ModelState, error) {
	index := make(map[string]schema.ModelState, len(models))
	for _, m := range models {
		if _, dup := index[m.ID()]; dup {
			return nil, &ValidationError{Reason: "duplicate model state " + m.ID()}
		}
		index[m.ID()] = m
	}
	return index, nil
}

// orderByReferences orders model IDs so that a model referencing another
// model in the batch comes after its target. IDs arrive sorted, and ties
// stay sorted, so the output is deterministic. Mutually referencing tables
// cannot be ordered; the remainder is appended in sorted order and the
// renderer is expected to defer those constraints.
func orderByReferences(ids []string, models map[string]schema.ModelState) []string {
	inBatch := make(map[string]bool, len(ids))
	for _, id := range ids {
		inBatch[id] = true
	}

	indegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	for _, id := range ids {
		indegree[id] = 0
		for _, ref := range models[id].References() {
			target := ref.App + "." + ref.Model
			if target == id || !inBatch[target] {
				continue
			}
			dependents[target] = append(dependents[target], id)
			indegree[id]++
		}
	}

	var ready []string
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	out := make([]string, 0, len(ids))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
	}

	if len(out) < len(ids) {
		for _, id := range ids {
			if indegree[id] > 0 {
				out = append(out, id)
			}
		}
	}
	return out
}

func createTableOp(model schema.ModelState) CreateTable {
	table := model.TableName()
	op := CreateTable{Table: table}

	var pkCols []string
	for _, f := range model.SortedFields() {
		op.Columns = append(op.Columns, f.Clone())
		if f.PrimaryKey() {
			pkCols = append(pkCols, f.Name)
		}
		if f.Ref != nil {
			ref := *f.Ref
			op.Constraints = append(op.Constraints, Constraint{
				Name:    "fk_" + table + "_" + f.Name,
				Kind:    ConstraintForeignKey,
				Columns: []string{f.Name},
				Ref:     &ref,
			})
		}
	}
	if len(pkCols) > 0 {
		op.Constraints = append(op.Constraints, Constraint{
			Name:    "pk_" + table,
			Kind:    ConstraintPrimaryKey,
			Columns: pkCols,
		})
	}
	return op
}
