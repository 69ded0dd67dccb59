// Package schema models table schemas for the catalog.
package schema

import (
	"errors"
	"fmt"
)

type ColumnType string

const (
	TypeInt8   ColumnType = "INT8"
	TypeInt16  ColumnType = "INT16"
	TypeInt32  ColumnType = "INT32"
	TypeInt64  ColumnType = "INT64"
	TypeFloat  ColumnType = "FLOAT"
	TypeDouble ColumnType = "DOUBLE"
	TypeString ColumnType = "STRING"
	TypeBinary ColumnType = "BINARY"
	TypeBool   ColumnType = "BOOL"
)

var validTypes = map[ColumnType]struct{}{
	TypeInt8: {}, TypeInt16: {}, TypeInt32: {}, TypeInt64: {},
	TypeFloat: {}, TypeDouble: {}, TypeString: {}, TypeBinary: {}, TypeBool: {},
}

type Column struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`
}

// Schema is an ordered column list; the first KeyColumns columns form the
// primary key.
type Schema struct {
	Columns    []Column `json:"columns"`
	KeyColumns int      `json:"keyColumns"`
}

var ErrInvalidSchema = errors.New("schema: invalid schema")

// Validate checks structural soundness. Violations are permanent errors and
// must never be retried by callers.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidSchema)
	}
	if s.KeyColumns <= 0 || s.KeyColumns > len(s.Columns) {
		return fmt.Errorf("%w: key column count %d out of range", ErrInvalidSchema, s.KeyColumns)
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for i, col := range s.Columns {
		if col.Name == "" {
			return fmt.Errorf("%w: column %d has empty name", ErrInvalidSchema, i)
		}
		if _, ok := validTypes[col.Type]; !ok {
			return fmt.Errorf("%w: column %q has unknown type %q", ErrInvalidSchema, col.Name, col.Type)
		}
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, col.Name)
		}
		seen[col.Name] = struct{}{}
		if i < s.KeyColumns && col.Nullable {
			return fmt.Errorf("%w: key column %q cannot be nullable", ErrInvalidSchema, col.Name)
		}
	}
	return nil
}

// Equal reports whether two schemas are identical.
func (s Schema) Equal(other Schema) bool {
	if s.KeyColumns != other.KeyColumns || len(s.Columns) != len(other.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}
