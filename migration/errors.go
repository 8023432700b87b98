package migration

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the migration engine. Typed errors below wrap these so
// callers can match with errors.Is and still recover detail with errors.As.
var (
	ErrNotFound             = errors.New("migration not found")
	ErrInvalidMigration     = errors.New("invalid migration")
	ErrCircularDependency   = errors.New("circular dependency")
	ErrUnresolvedDependency = errors.New("unresolved dependency")
	ErrValidation           = errors.New("validation failed")
)

// InvalidMigrationError reports a malformed migration or an invalid squash
// input set.
type InvalidMigrationError struct {
	Reason string
}

func (e *InvalidMigrationError) Error() string {
	return "invalid migration: " + e.Reason
}

func (e *InvalidMigrationError) Unwrap() error { return ErrInvalidMigration }

// CircularDependencyError reports that the resolver could not produce a total
// order. Remaining holds the nodes left unordered; they contain at least one
// cycle.
type CircularDependencyError struct {
	Remaining []Key
}

func (e *CircularDependencyError) Error() string {
	names := make([]string, len(e.Remaining))
	for i, k := range e.Remaining {
		names[i] = k.String()
	}
	return "circular dependency among migrations: " + strings.Join(names, ", ")
}

func (e *CircularDependencyError) Unwrap() error { return ErrCircularDependency }

// UnresolvedDependencyError reports a dependency edge naming a migration that
// is not present in the load set.
type UnresolvedDependencyError struct {
	From    Key
	Missing Key
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("migration %s depends on %s which is not in the load set", e.From, e.Missing)
}

func (e *UnresolvedDependencyError) Unwrap() error { return ErrUnresolvedDependency }

// ValidationError reports a caller contract violation, such as diffing model
// states with different identities.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
