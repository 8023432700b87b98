// Package schema describes the declared shape of data models: fields, their
// dialect-agnostic types, and model-level options. Snapshots built from these
// types are the input to migration autodetection; they carry no SQL and no
// dialect knowledge.
package schema

import "maps"

// Kind is a dialect-agnostic type tag for a field.
type Kind string

// Supported field type tags. Rendering to a concrete column type is the
// renderer's job, not this package's.
const (
	KindInteger   Kind = "integer"
	KindBigInt    Kind = "bigint"
	KindVarchar   Kind = "varchar"
	KindText      Kind = "text"
	KindBoolean   Kind = "boolean"
	KindFloat     Kind = "float"
	KindDecimal   Kind = "decimal"
	KindDate      Kind = "date"
	KindTimestamp Kind = "timestamp"
	KindUUID      Kind = "uuid"
	KindJSON      Kind = "json"
	KindBlob      Kind = "blob"
)

// FieldType pairs a type tag with its dialect-agnostic parameters.
// Size is the length for varchar, precision for decimal; zero means
// the tag's default.
type FieldType struct {
	Kind Kind `json:"kind" yaml:"kind"`
	Size int  `json:"size,omitempty" yaml:"size,omitempty"`
}

// Reference names the target of a foreign-key field: a model in some app and
// the column on its table. Column defaults to the target's primary key when
// empty.
type Reference struct {
	App    string `json:"app" yaml:"app"`
	Model  string `json:"model" yaml:"model"`
	Column string `json:"column,omitempty" yaml:"column,omitempty"`
}

// FieldState is an immutable snapshot of one field's declared shape.
// Treat values as read-only once constructed; use Clone before mutating.
type FieldState struct {
	Name     string            `json:"name" yaml:"name"`
	Type     FieldType         `json:"type" yaml:"type"`
	Nullable bool              `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Params   map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Ref      *Reference        `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// Equal reports whether two field snapshots declare the same shape.
// Param order is irrelevant.
func (f FieldState) Equal(other FieldState) bool {
	if f.Name != other.Name || f.Type != other.Type || f.Nullable != other.Nullable {
		return false
	}
	if !maps.Equal(f.Params, other.Params) {
		return false
	}
	switch {
	case f.Ref == nil && other.Ref == nil:
		return true
	case f.Ref == nil || other.Ref == nil:
		return false
	default:
		return *f.Ref == *other.Ref
	}
}

// Clone returns a deep copy of the field snapshot.
func (f FieldState) Clone() FieldState {
	out := f
	if f.Params != nil {
		out.Params = maps.Clone(f.Params)
	}
	if f.Ref != nil {
		ref := *f.Ref
		out.Ref = &ref
	}
	return out
}

// PrimaryKey reports whether the field is declared as the primary key.
func (f FieldState) PrimaryKey() bool {
	return f.Params["primary_key"] == "true"
}
