// Package migration implements the schema migration engine: the migration
// and operation data model, autodetection of operations from model-state
// diffs, dependency-ordered resolution, squashing with an operation
// optimizer, and a service orchestrating pluggable Source and Repository
// backends.
package migration

import "fmt"

// Migration is a named, ordered, dependency-annotated batch of operations
// representing one schema evolution step. Operation order is semantically
// significant; no component except the squash optimizer removes entries, and
// nothing reorders them. A migration is immutable once handed to a
// Repository.
type Migration struct {
	AppLabel string
	Name     string

	// Operations apply in order.
	Operations []Operation

	// Dependencies name migrations that must apply first, possibly in
	// other apps.
	Dependencies []Key

	// Replaces names the migrations this one supersedes. Non-empty only
	// for squash results.
	Replaces []Key

	// Atomic marks the operations as applying as one unit.
	Atomic bool

	// Initial marks the first migration of an app.
	Initial bool
}

// New creates an empty migration. Migrations are atomic unless switched off.
func New(appLabel, name string) *Migration {
	return &Migration{AppLabel: appLabel, Name: name, Atomic: true}
}

// Key returns the migration's (app, name) identity.
func (m *Migration) Key() Key {
	return Key{App: m.AppLabel, Name: m.Name}
}

// ID returns the "app.name" form of the identity.
func (m *Migration) ID() string {
	return m.Key().String()
}

// AddOperation appends an operation, preserving order. Returns the migration
// for chaining.
func (m *Migration) AddOperation(op Operation) *Migration {
	m.Operations = append(m.Operations, op)
	return m
}

// AddDependency records that the named migration must apply before this one.
// Duplicates are ignored.
func (m *Migration) AddDependency(appLabel, name string) *Migration {
	dep := Key{App: appLabel, Name: name}
	for _, existing := range m.Dependencies {
		if existing == dep {
			return m
		}
	}
	m.Dependencies = append(m.Dependencies, dep)
	return m
}

// SetAtomic switches whether operations apply as one unit.
func (m *Migration) SetAtomic(atomic bool) *Migration {
	m.Atomic = atomic
	return m
}

// SetInitial marks the migration as the first of its app.
func (m *Migration) SetInitial(initial bool) *Migration {
	m.Initial = initial
	return m
}

// DependsOn reports whether the migration declares a dependency on key.
func (m *Migration) DependsOn(key Key) bool {
	for _, dep := range m.Dependencies {
		if dep == key {
			return true
		}
	}
	return false
}

// Validate checks the migration's own well-formedness: identity fields are
// set and no dependency names the migration itself.
func (m *Migration) Validate() error {
	if m.AppLabel == "" {
		return &InvalidMigrationError{Reason: "empty app label"}
	}
	if m.Name == "" {
		return &InvalidMigrationError{Reason: fmt.Sprintf("migration in app %q has no name", m.AppLabel)}
	}
	for _, dep := range m.Dependencies {
		if dep == m.Key() {
			return &InvalidMigrationError{Reason: m.ID() + " depends on itself"}
		}
	}
	return nil
}
