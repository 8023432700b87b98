package schema

import (
	"maps"
	"sort"
	"strings"
)

// ModelState is an immutable snapshot of one model's declared shape at a
// logical version: its fields keyed by field name plus model-level options
// (ordering, table name overrides). Two snapshots are diff-comparable only
// when they share (AppLabel, Name).
type ModelState struct {
	AppLabel string                `json:"app_label" yaml:"app_label"`
	Name     string                `json:"name" yaml:"name"`
	Fields   map[string]FieldState `json:"fields" yaml:"fields"`
	Options  map[string]string     `json:"options,omitempty" yaml:"options,omitempty"`
}

// NewModelState builds a snapshot from a field list. Later fields with a
// duplicate name overwrite earlier ones.
func NewModelState(appLabel, name string, fields ...FieldState) ModelState {
	m := ModelState{
		AppLabel: appLabel,
		Name:     name,
		Fields:   make(map[string]FieldState, len(fields)),
	}
	for _, f := range fields {
		m.Fields[f.Name] = f
	}
	return m
}

// ID returns the "app.Model" identity used to match snapshots across versions.
func (m ModelState) ID() string {
	return m.AppLabel + "." + m.Name
}

// TableName returns the options override when present, otherwise
// "<app>_<model>" lowercased.
func (m ModelState) TableName() string {
	if t := m.Options["db_table"]; t != "" {
		return t
	}
	return strings.ToLower(m.AppLabel + "_" + m.Name)
}

// FieldNames returns the field names in lexicographic order.
func (m ModelState) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedFields returns the fields ordered by name.
func (m ModelState) SortedFields() []FieldState {
	names := m.FieldNames()
	fields := make([]FieldState, 0, len(names))
	for _, name := range names {
		fields = append(fields, m.Fields[name])
	}
	return fields
}

// References returns the distinct foreign-key targets declared by the model's
// fields, ordered by field name.
func (m ModelState) References() []Reference {
	var refs []Reference
	seen := make(map[Reference]bool)
	for _, f := range m.SortedFields() {
		if f.Ref == nil || seen[*f.Ref] {
			continue
		}
		seen[*f.Ref] = true
		refs = append(refs, *f.Ref)
	}
	return refs
}

// Clone returns a deep copy of the snapshot.
func (m ModelState) Clone() ModelState {
	out := m
	out.Fields = make(map[string]FieldState, len(m.Fields))
	for name, f := range m.Fields {
		out.Fields[name] = f.Clone()
	}
	if m.Options != nil {
		out.Options = maps.Clone(m.Options)
	}
	return out
}
