// Package store provides Source and Repository backends for the migration
// engine: in-memory for tests and tooling, filesystem (one JSON document per
// migration), SQLite for single-node setups, and PostgreSQL for shared
// environments.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/schemaforge/migrate/migration"
)

// migrationDoc is the persisted form of a migration. Every operation field
// round-trips losslessly through the operation codec.
type migrationDoc struct {
	AppLabel     string          `json:"app_label"`
	Name         string          `json:"name"`
	Operations   json.RawMessage `json:"operations"`
	Dependencies []migration.Key `json:"dependencies,omitempty"`
	Replaces     []migration.Key `json:"replaces,omitempty"`
	Atomic       bool            `json:"atomic"`
	Initial      bool            `json:"initial,omitempty"`
}

func encodeMigration(m *migration.Migration) ([]byte, error) {
	ops, err := migration.MarshalOperations(m.Operations)
	if err != nil {
		return nil, fmt.Errorf("encode operations of %s: %w", m.ID(), err)
	}
	doc := migrationDoc{
		AppLabel:     m.AppLabel,
		Name:         m.Name,
		Operations:   ops,
		Dependencies: m.Dependencies,
		Replaces:     m.Replaces,
		Atomic:       m.Atomic,
		Initial:      m.Initial,
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decodeMigration(data []byte) (*migration.Migration, error) {
	var doc migrationDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode migration document: %w", err)
	}
	ops, err := migration.UnmarshalOperations(doc.Operations)
	if err != nil {
		return nil, fmt.Errorf("decode operations of %s.%s: %w", doc.AppLabel, doc.Name, err)
	}
	return &migration.Migration{
		AppLabel:     doc.AppLabel,
		Name:         doc.Name,
		Operations:   ops,
		Dependencies: doc.Dependencies,
		Replaces:     doc.Replaces,
		Atomic:       doc.Atomic,
		Initial:      doc.Initial,
	}, nil
}

func encodeKeys(keys []migration.Key) ([]byte, error) {
	if keys == nil {
		keys = []migration.Key{}
	}
	return json.Marshal(keys)
}

func decodeKeys(data []byte) ([]migration.Key, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var keys []migration.Key
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return keys, nil
}

// filterReplaced drops migrations superseded by a squash present in the same
// load set. When a squash result and the migrations it replaces are both
// loaded, only the squash survives.
func filterReplaced(ms []*migration.Migration) []*migration.Migration {
	replaced := make(map[migration.Key]bool)
	for _, m := range ms {
		for _, key := range m.Replaces {
			replaced[key] = true
		}
	}
	if len(replaced) == 0 {
		return ms
	}

	out := make([]*migration.Migration, 0, len(ms))
	for _, m := range ms {
		if !replaced[m.Key()] {
			out = append(out, m)
		}
	}
	return out
}
