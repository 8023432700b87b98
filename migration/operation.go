package migration

import (
	"encoding/json"
	"fmt"

	"github.com/schemaforge/migrate/schema"
)

// Operation is a single structural change. The set of implementations is
// closed: every variant lives in this file and consumers type-switch over all
// of them. The engine never inspects DDL text; each variant carries exactly
// the fields a renderer needs to reproduce it losslessly.
type Operation interface {
	// Describe returns a short human-readable summary, e.g.
	// "create table polls_question".
	Describe() string

	isOperation()
}

// ConstraintKind tags a table constraint.
type ConstraintKind string

const (
	ConstraintPrimaryKey ConstraintKind = "primary_key"
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintCheck      ConstraintKind = "check"
)

// Constraint is a named table constraint. Ref is set for foreign keys, Expr
// for checks.
type Constraint struct {
	Name    string            `json:"name"`
	Kind    ConstraintKind    `json:"kind"`
	Columns []string          `json:"columns,omitempty"`
	Ref     *schema.Reference `json:"ref,omitempty"`
	Expr    string            `json:"expr,omitempty"`
}

// CreateTable creates a table with its full column list and constraints.
type CreateTable struct {
	Table       string              `json:"table"`
	Columns     []schema.FieldState `json:"columns"`
	Constraints []Constraint        `json:"constraints,omitempty"`
}

// DropTable drops a table.
type DropTable struct {
	Table string `json:"table"`
}

// AddColumn adds one column to an existing table.
type AddColumn struct {
	Table  string            `json:"table"`
	Column schema.FieldState `json:"column"`
}

// DropColumn drops one column from an existing table.
type DropColumn struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// AlterColumn replaces a column's definition.
type AlterColumn struct {
	Table      string            `json:"table"`
	Column     string            `json:"column"`
	Definition schema.FieldState `json:"definition"`
}

// RenameTable renames a table.
type RenameTable struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// RenameColumn renames a column within a table.
type RenameColumn struct {
	Table string `json:"table"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// AddConstraint adds a constraint to an existing table.
type AddConstraint struct {
	Table      string     `json:"table"`
	Constraint Constraint `json:"constraint"`
}

// DropConstraint drops a named constraint from a table.
type DropConstraint struct {
	Table string `json:"table"`
	Name  string `json:"name"`
}

func (CreateTable) isOperation()    {}
func (DropTable) isOperation()      {}
func (AddColumn) isOperation()      {}
func (DropColumn) isOperation()     {}
func (AlterColumn) isOperation()    {}
func (RenameTable) isOperation()    {}
func (RenameColumn) isOperation()   {}
func (AddConstraint) isOperation()  {}
func (DropConstraint) isOperation() {}

func (o CreateTable) Describe() string  { return "create table " + o.Table }
func (o DropTable) Describe() string    { return "drop table " + o.Table }
func (o AddColumn) Describe() string    { return "add column " + o.Table + "." + o.Column.Name }
func (o DropColumn) Describe() string   { return "drop column " + o.Table + "." + o.Column }
func (o AlterColumn) Describe() string  { return "alter column " + o.Table + "." + o.Column }
func (o RenameTable) Describe() string  { return "rename table " + o.Old + " to " + o.New }
func (o RenameColumn) Describe() string {
	return "rename column " + o.Table + "." + o.Old + " to " + o.New
}
func (o AddConstraint) Describe() string  { return "add constraint " + o.Constraint.Name + " on " + o.Table }
func (o DropConstraint) Describe() string { return "drop constraint " + o.Name + " on " + o.Table }

// Operation type tags used by the JSON codec.
const (
	opCreateTable    = "create_table"
	opDropTable      = "drop_table"
	opAddColumn      = "add_column"
	opDropColumn     = "drop_column"
	opAlterColumn    = "alter_column"
	opRenameTable    = "rename_table"
	opRenameColumn   = "rename_column"
	opAddConstraint  = "add_constraint"
	opDropConstraint = "drop_constraint"
)

type opEnvelope struct {
	Type string          `json:"type"`
	Op   json.RawMessage `json:"op"`
}

func opType(op Operation) (string, error) {
	switch op.(type) {
	case CreateTable:
		return opCreateTable, nil
	case DropTable:
		return opDropTable, nil
	case AddColumn:
		return opAddColumn, nil
	case DropColumn:
		return opDropColumn, nil
	case AlterColumn:
		return opAlterColumn, nil
	case RenameTable:
		return opRenameTable, nil
	case RenameColumn:
		return opRenameColumn, nil
	case AddConstraint:
		return opAddConstraint, nil
	case DropConstraint:
		return opDropConstraint, nil
	default:
		return "", fmt.Errorf("unknown operation type %T", op)
	}
}

// MarshalOperations encodes an operation list as a JSON array of tagged
// envelopes. Repositories use it to persist operations losslessly.
func MarshalOperations(ops []Operation) ([]byte, error) {
	envelopes := make([]opEnvelope, 0, len(ops))
	for _, op := range ops {
		tag, err := opType(op)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(op)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", tag, err)
		}
		envelopes = append(envelopes, opEnvelope{Type: tag, Op: raw})
	}
	return json.Marshal(envelopes)
}

// UnmarshalOperations decodes a JSON array produced by MarshalOperations.
func UnmarshalOperations(data []byte) ([]Operation, error) {
	var envelopes []opEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("unmarshal operations: %w", err)
	}

	ops := make([]Operation, 0, len(envelopes))
	for _, env := range envelopes {
		op, err := decodeOperation(env)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func decodeOperation(env opEnvelope) (Operation, error) {
	var op Operation
	switch env.Type {
	case opCreateTable:
		op = &CreateTable{}
	case opDropTable:
		op = &DropTable{}
	case opAddColumn:
		op = &AddColumn{}
	case opDropColumn:
		op = &DropColumn{}
	case opAlterColumn:
		op = &AlterColumn{}
	case opRenameTable:
		op = &RenameTable{}
	case opRenameColumn:
		op = &RenameColumn{}
	case opAddConstraint:
		op = &AddConstraint{}
	case opDropConstraint:
		op = &DropConstraint{}
	default:
		return nil, fmt.Errorf("unknown operation tag %q", env.Type)
	}
	if err := json.Unmarshal(env.Op, op); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	return deref(op), nil
}

// deref converts the pointer used for decoding back to the value form the
// engine passes around.
func deref(op Operation) Operation {
	switch v := op.(type) {
	case *CreateTable:
		return *v
	case *DropTable:
		return *v
	case *AddColumn:
		return *v
	case *DropColumn:
		return *v
	case *AlterColumn:
		return *v
	case *RenameTable:
		return *v
	case *RenameColumn:
		return *v
	case *AddConstraint:
		return *v
	case *DropConstraint:
		return *v
	default:
		return op
	}
}
